package archiver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/datapipe/internal/storage"
	"github.com/andresuchdata/datapipe/pkg/logger"
)

const (
	processedPrefix = "processed/"
	archivePrefix   = "archive/"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Sweeper moves processed objects older than the retention threshold into the
// archive store under a reduced-cost storage class. Each object's
// copy-then-delete is independent and idempotent, so an interrupted or
// partially failed run is simply caught up by the next scheduled one.
type Sweeper struct {
	processed     storage.ObjectStore
	archive       storage.ObjectStore
	retentionDays int
	concurrency   int64
	now           func() time.Time
}

func NewSweeper(processed, archive storage.ObjectStore, retentionDays, concurrency int) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		processed:     processed,
		archive:       archive,
		retentionDays: retentionDays,
		concurrency:   int64(concurrency),
		now:           time.Now,
	}
}

// Report aggregates the outcome of one sweep run.
type Report struct {
	Scanned    int       `json:"scanned"`
	Archived   int       `json:"archived_count"`
	Failed     int       `json:"failed_count"`
	BytesMoved int64     `json:"total_size_bytes"`
	Cutoff     time.Time `json:"cutoff_date"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Run executes one sweep: enumerate, partition by age, archive eligible
// objects. A single object's failure is recorded and skipped; the run only
// fails as a whole when every eligible object failed, or when the listing
// itself cannot complete.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	started := s.now()
	cutoff := started.UTC().AddDate(0, 0, -s.retentionDays)

	report := &Report{
		Cutoff:    cutoff,
		StartedAt: started.UTC(),
	}

	logger.Log.Info().
		Int("retention_days", s.retentionDays).
		Time("cutoff", cutoff).
		Str("store", s.processed.Name()).
		Msg("starting lifecycle sweep")

	var eligible []storage.ObjectInfo
	err := s.processed.List(ctx, processedPrefix, func(info storage.ObjectInfo) error {
		report.Scanned++
		// Strictly older than the cutoff; age exactly equal to the
		// threshold is not eligible.
		if info.LastModified.Before(cutoff) {
			eligible = append(eligible, info)
		}
		return nil
	})
	if err != nil {
		report.DurationMS = time.Since(started).Milliseconds()
		return report, fmt.Errorf("failed to list processed store: %w", err)
	}

	sem := semaphore.NewWeighted(s.concurrency)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, info := range eligible {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Out of time: finish in-flight objects and leave the
			// remainder for the next scheduled run.
			break
		}
		wg.Add(1)
		go func(info storage.ObjectInfo) {
			defer wg.Done()
			defer sem.Release(1)

			if err := s.archiveObject(ctx, info); err != nil {
				logger.Log.Error().Err(err).Str("key", info.Key).Msg("failed to archive object")
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return
			}
			logger.Log.Info().Str("key", info.Key).Int64("size", info.Size).Msg("archived object")
			mu.Lock()
			report.Archived++
			report.BytesMoved += info.Size
			mu.Unlock()
		}(info)
	}
	wg.Wait()

	report.DurationMS = time.Since(started).Milliseconds()

	logger.Log.Info().
		Int("scanned", report.Scanned).
		Int("archived", report.Archived).
		Int("failed", report.Failed).
		Int64("bytes", report.BytesMoved).
		Msg("lifecycle sweep complete")

	if report.Failed > 0 && report.Archived == 0 {
		return report, fmt.Errorf("sweep failed for all %d eligible objects", report.Failed)
	}
	return report, nil
}

// archiveObject copies one object into the archive store under the reduced
// storage class, then deletes the source. The copy sets the class in the same
// step; there is no separate transition.
func (s *Sweeper) archiveObject(ctx context.Context, info storage.ObjectInfo) error {
	archiveKey := archiveKey(info)
	opts := storage.CopyOptions{
		StorageClass: storage.ClassReduced,
		Metadata: map[string]string{
			"original_bucket":        s.processed.Name(),
			"original_key":           info.Key,
			"original_last_modified": info.LastModified.UTC().Format(timestampLayout),
			"archived_at":            s.now().UTC().Format(timestampLayout),
		},
	}
	if err := s.processed.Copy(ctx, info.Key, s.archive, archiveKey, opts); err != nil {
		return fmt.Errorf("failed to copy %s to archive: %w", info.Key, err)
	}
	if err := s.processed.Delete(ctx, info.Key); err != nil {
		return fmt.Errorf("failed to delete %s after archiving: %w", info.Key, err)
	}
	return nil
}

// archiveKey preserves the object's key relative to the processed prefix,
// e.g. processed/2026/07/01/orders.csv -> archive/2026/07/01/orders.csv.
// Deterministic, so re-running a sweep overwrites an identical copy.
func archiveKey(info storage.ObjectInfo) string {
	return archivePrefix + strings.TrimPrefix(info.Key, processedPrefix)
}
