package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/datapipe/internal/archiver"
	"github.com/andresuchdata/datapipe/internal/cache"
	"github.com/andresuchdata/datapipe/internal/processor"
	"github.com/andresuchdata/datapipe/internal/service"
	"github.com/andresuchdata/datapipe/internal/storage"
)

// recordingCache is an in-memory StatsCache for asserting bookkeeping.
type recordingCache struct {
	counters cache.Counters
	report   *archiver.Report
}

func (r *recordingCache) SetSweepReport(ctx context.Context, report *archiver.Report) error {
	r.report = report
	return nil
}

func (r *recordingCache) GetSweepReport(ctx context.Context) (*archiver.Report, bool, error) {
	if r.report == nil {
		return nil, false, nil
	}
	return r.report, true, nil
}

func (r *recordingCache) AddBatchCounts(ctx context.Context, processed, failed int) error {
	r.counters.FilesProcessed += int64(processed)
	r.counters.FilesFailed += int64(failed)
	return nil
}

func (r *recordingCache) GetCounters(ctx context.Context) (cache.Counters, error) {
	return r.counters, nil
}

func newTestService(t *testing.T) (*service.PipelineService, *storage.MemoryStore, *storage.MemoryStore, *recordingCache) {
	t.Helper()
	raw := storage.NewMemoryStore("raw")
	processed := storage.NewMemoryStore("processed")
	archive := storage.NewMemoryStore("archive")

	engine := processor.NewEngine(raw, processed, "test", 2)
	sweeper := archiver.NewSweeper(processed, archive, 30, 2)
	stats := &recordingCache{}

	return service.NewPipelineService(engine, sweeper, stats, nil), raw, processed, stats
}

func TestProcessBatchUpdatesCounters(t *testing.T) {
	svc, raw, _, stats := newTestService(t)
	ctx := context.Background()
	require.NoError(t, raw.Put(ctx, "incoming/a.json", []byte(`{"a":1}`), storage.PutOptions{}))
	require.NoError(t, raw.Put(ctx, "incoming/b.bin", []byte("junk"), storage.PutOptions{}))

	result := svc.ProcessBatch(ctx, []string{"incoming/a.json", "incoming/b.bin"})

	assert.Len(t, result.Processed, 1)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, int64(1), stats.counters.FilesProcessed)
	assert.Equal(t, int64(1), stats.counters.FilesFailed)
}

func TestSweepCachesReport(t *testing.T) {
	svc, _, processed, stats := newTestService(t)
	ctx := context.Background()
	require.NoError(t, processed.Put(ctx, "processed/old.json", []byte("x"), storage.PutOptions{}))
	require.True(t, processed.SetLastModified("processed/old.json", time.Now().AddDate(0, 0, -45)))

	report, err := svc.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Archived)
	require.NotNil(t, stats.report)
	assert.Equal(t, report, stats.report)
}

func TestStatsReturnsCountersAndLastSweep(t *testing.T) {
	svc, raw, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, raw.Put(ctx, "incoming/a.json", []byte(`{"a":1}`), storage.PutOptions{}))

	svc.ProcessBatch(ctx, []string{"incoming/a.json"})
	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Counters.FilesProcessed)
	require.NotNil(t, stats.LastSweep)
	assert.Zero(t, stats.LastSweep.Archived)
}
