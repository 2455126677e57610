package poller

import (
	"context"
	"time"

	"github.com/andresuchdata/datapipe/internal/service"
	"github.com/andresuchdata/datapipe/internal/storage"
	"github.com/andresuchdata/datapipe/pkg/logger"
)

const incomingPrefix = "incoming/"

// Poller periodically lists the raw store's incoming prefix and feeds any
// objects it finds to the transform engine. It backs deployments without
// bucket notifications. Successful files are relocated out of the prefix by
// the engine; failed files stay behind and are picked up again on the next
// tick, so the poller itself keeps no state.
type Poller struct {
	raw      storage.ObjectStore
	service  *service.PipelineService
	interval time.Duration
}

func New(raw storage.ObjectStore, svc *service.PipelineService, interval time.Duration) *Poller {
	return &Poller{
		raw:      raw,
		service:  svc,
		interval: interval,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	logger.Log.Info().Dur("interval", p.interval).Msg("starting incoming poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("incoming poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	var keys []string
	err := p.raw.List(ctx, incomingPrefix, func(info storage.ObjectInfo) error {
		keys = append(keys, info.Key)
		return nil
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to list incoming prefix")
		return
	}
	if len(keys) == 0 {
		return
	}

	logger.Log.Info().Int("files", len(keys)).Msg("picked up incoming files")
	result := p.service.ProcessBatch(ctx, keys)
	if len(result.Failed) > 0 {
		logger.Log.Warn().
			Int("failed", len(result.Failed)).
			Msg("some incoming files failed; they remain queued for the next tick")
	}
}
