package service

import (
	"context"
	"time"

	"github.com/andresuchdata/datapipe/internal/archiver"
	"github.com/andresuchdata/datapipe/internal/cache"
	"github.com/andresuchdata/datapipe/internal/processor"
	"github.com/andresuchdata/datapipe/internal/repository/postgres"
	"github.com/andresuchdata/datapipe/pkg/logger"
)

// PipelineService fronts the two core components and handles the bookkeeping
// around them: rolling counters in the stats cache and, when a database is
// configured, run history. Bookkeeping failures are logged and never fail the
// pipeline work itself.
type PipelineService struct {
	engine  *processor.Engine
	sweeper *archiver.Sweeper
	stats   cache.StatsCache
	runs    *postgres.RunRepository // nil when run history is disabled
}

func NewPipelineService(
	engine *processor.Engine,
	sweeper *archiver.Sweeper,
	stats cache.StatsCache,
	runs *postgres.RunRepository,
) *PipelineService {
	return &PipelineService{
		engine:  engine,
		sweeper: sweeper,
		stats:   stats,
		runs:    runs,
	}
}

// Stats is the operator-facing snapshot served by the stats endpoint.
type Stats struct {
	Counters  cache.Counters   `json:"counters"`
	LastSweep *archiver.Report `json:"last_sweep,omitempty"`
}

// ProcessBatch runs the transform engine over a batch of raw keys and records
// the outcome.
func (s *PipelineService) ProcessBatch(ctx context.Context, keys []string) *processor.BatchResult {
	started := time.Now().UTC()

	var run *postgres.ProcessingRun
	if s.runs != nil {
		run = &postgres.ProcessingRun{
			TotalFiles: len(keys),
			StartedAt:  started,
		}
		if err := s.runs.CreateProcessingRun(ctx, run); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to create processing run record")
			run = nil
		}
	}

	result := s.engine.ProcessBatch(ctx, keys)

	if err := s.stats.AddBatchCounts(ctx, len(result.Processed), len(result.Failed)); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to update processing counters")
	}

	if run != nil {
		s.recordRun(ctx, run, result)
	}

	return result
}

// Sweep runs one lifecycle sweep and records its report.
func (s *PipelineService) Sweep(ctx context.Context) (*archiver.Report, error) {
	report, err := s.sweeper.Run(ctx)
	if report == nil {
		return nil, err
	}

	if cacheErr := s.stats.SetSweepReport(ctx, report); cacheErr != nil {
		logger.Log.Warn().Err(cacheErr).Msg("failed to cache sweep report")
	}

	if s.runs != nil {
		sweepRun := &postgres.SweepRun{
			Scanned:    report.Scanned,
			Archived:   report.Archived,
			Failed:     report.Failed,
			BytesMoved: report.BytesMoved,
			Cutoff:     report.Cutoff,
			StartedAt:  report.StartedAt,
			DurationMS: report.DurationMS,
		}
		if dbErr := s.runs.CreateSweepRun(ctx, sweepRun); dbErr != nil {
			logger.Log.Warn().Err(dbErr).Msg("failed to persist sweep run")
		}
	}

	return report, err
}

// Stats returns rolling counters and the last sweep report, falling back to
// the database when the cache has no report.
func (s *PipelineService) Stats(ctx context.Context) (*Stats, error) {
	counters, err := s.stats.GetCounters(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Counters: counters}

	report, ok, err := s.stats.GetSweepReport(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		stats.LastSweep = report
		return stats, nil
	}

	if s.runs != nil {
		sweepRun, err := s.runs.LatestSweepRun(ctx)
		if err != nil {
			return nil, err
		}
		if sweepRun != nil {
			stats.LastSweep = &archiver.Report{
				Scanned:    sweepRun.Scanned,
				Archived:   sweepRun.Archived,
				Failed:     sweepRun.Failed,
				BytesMoved: sweepRun.BytesMoved,
				Cutoff:     sweepRun.Cutoff,
				StartedAt:  sweepRun.StartedAt,
				DurationMS: sweepRun.DurationMS,
			}
		}
	}

	return stats, nil
}

func (s *PipelineService) recordRun(ctx context.Context, run *postgres.ProcessingRun, result *processor.BatchResult) {
	now := time.Now().UTC()

	for _, file := range result.Processed {
		job := &postgres.FileJob{
			RunID:          run.ID,
			SourceKey:      file.SourceKey,
			DestinationKey: file.DestinationKey,
			RecordCount:    file.RecordCount,
			Status:         postgres.FileJobCompleted,
			ProcessedAt:    &now,
		}
		if err := s.runs.CreateFileJob(ctx, job); err != nil {
			logger.Log.Warn().Err(err).Str("key", file.SourceKey).Msg("failed to persist file job")
		}
	}
	for _, failure := range result.Failed {
		job := &postgres.FileJob{
			RunID:        run.ID,
			SourceKey:    failure.SourceKey,
			Status:       postgres.FileJobFailed,
			ErrorMessage: failure.Error,
		}
		if err := s.runs.CreateFileJob(ctx, job); err != nil {
			logger.Log.Warn().Err(err).Str("key", failure.SourceKey).Msg("failed to persist file job")
		}
	}

	run.ProcessedFiles = len(result.Processed)
	run.FailedFiles = len(result.Failed)
	run.CompletedAt = &now
	if err := s.runs.CompleteProcessingRun(ctx, run); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to complete processing run record")
	}
}
