package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/datapipe/internal/storage"
	"github.com/andresuchdata/datapipe/pkg/logger"
)

const (
	incomingPrefix  = "incoming/"
	completedPrefix = "completed/"
	processedPrefix = "processed/"
)

// Engine transforms raw files into normalized, enriched JSON documents in the
// processed store. It holds no state across invocations; every call operates
// only on the keys it is given.
type Engine struct {
	raw         storage.ObjectStore
	processed   storage.ObjectStore
	environment string
	workerCount int
	now         func() time.Time
}

func NewEngine(raw, processed storage.ObjectStore, environment string, workerCount int) *Engine {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Engine{
		raw:         raw,
		processed:   processed,
		environment: environment,
		workerCount: workerCount,
		now:         time.Now,
	}
}

// FileResult describes one successfully processed file.
type FileResult struct {
	SourceKey      string `json:"source_key"`
	DestinationKey string `json:"destination_key"`
	RecordCount    int    `json:"records_processed"`
}

// FileFailure describes one failed file. Failures are isolated per file; a
// bad file never aborts the rest of the batch.
type FileFailure struct {
	SourceKey string `json:"source_key"`
	Error     string `json:"error"`
}

// BatchResult summarizes one invocation over a batch of files.
type BatchResult struct {
	Processed []FileResult  `json:"processed"`
	Failed    []FileFailure `json:"failed"`
	Timestamp string        `json:"timestamp"`
}

// ProcessFile runs the full transform for a single raw object: parse,
// normalize, enrich, emit to the processed store, then relocate the source
// out of the incoming prefix. Emit overwrites any previous output for the
// same destination key, so a retried invocation converges on the same state.
func (e *Engine) ProcessFile(ctx context.Context, key string) (*FileResult, error) {
	content, err := e.raw.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	records, single, err := Parse(content, key)
	if err != nil {
		return nil, err
	}

	now := e.now()
	md := NewMetadata(now, e.environment)
	for i := range records {
		records[i] = Enrich(Normalize(records[i]), md)
	}

	payload, err := marshalOutput(records, single)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output for %s: %w", key, err)
	}

	destKey := destinationKey(now, key)
	putOpts := storage.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"source_bucket": e.raw.Name(),
			"source_key":    key,
			"processed_at":  md.ProcessedAt,
			"record_count":  strconv.Itoa(len(records)),
		},
	}
	if err := e.processed.Put(ctx, destKey, payload, putOpts); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", destKey, err)
	}

	// Relocation failures surface as file failures so the external retry
	// layer redelivers the event; re-emitting is a pure overwrite.
	if err := e.relocate(ctx, key); err != nil {
		return nil, err
	}

	return &FileResult{
		SourceKey:      key,
		DestinationKey: destKey,
		RecordCount:    len(records),
	}, nil
}

// ProcessBatch processes a batch of raw keys with a bounded worker pool.
func (e *Engine) ProcessBatch(ctx context.Context, keys []string) *BatchResult {
	result := &BatchResult{
		Processed: []FileResult{},
		Failed:    []FileFailure{},
	}

	jobChan := make(chan string, len(keys))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := 0; i < e.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobChan {
				fileResult, err := e.ProcessFile(ctx, key)
				mu.Lock()
				if err != nil {
					logger.Log.Error().Err(err).Str("key", key).Msg("failed to process file")
					result.Failed = append(result.Failed, FileFailure{SourceKey: key, Error: err.Error()})
				} else {
					logger.Log.Info().
						Str("key", key).
						Str("destination", fileResult.DestinationKey).
						Int("records", fileResult.RecordCount).
						Msg("processed file")
					result.Processed = append(result.Processed, *fileResult)
				}
				mu.Unlock()
			}
		}()
	}

	for _, key := range keys {
		select {
		case <-ctx.Done():
			close(jobChan)
			wg.Wait()
			result.Timestamp = e.now().UTC().Format(timestampLayout)
			return result
		case jobChan <- key:
		}
	}
	close(jobChan)
	wg.Wait()

	result.Timestamp = e.now().UTC().Format(timestampLayout)
	return result
}

// relocate moves a raw object from the incoming prefix to the completed
// prefix via copy-then-delete. Keys outside the incoming prefix are left in
// place; deleting after a copy-to-self would lose the raw input.
func (e *Engine) relocate(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, incomingPrefix) {
		logger.Log.Debug().Str("key", key).Msg("key outside incoming prefix, skipping relocation")
		return nil
	}
	newKey := completedPrefix + strings.TrimPrefix(key, incomingPrefix)
	if err := e.raw.Copy(ctx, key, e.raw, newKey, storage.CopyOptions{}); err != nil {
		return fmt.Errorf("failed to relocate %s: %w", key, err)
	}
	if err := e.raw.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to remove %s after relocation: %w", key, err)
	}
	logger.Log.Debug().Str("from", key).Str("to", newKey).Msg("relocated source file")
	return nil
}

// marshalOutput mirrors the input shape: a single JSON document stays an
// object, everything else is emitted as an array.
func marshalOutput(records []Record, single bool) ([]byte, error) {
	if single && len(records) == 1 {
		return json.MarshalIndent(records[0], "", "  ")
	}
	return json.MarshalIndent(records, "", "  ")
}

// destinationKey partitions output by processing date, e.g.
// processed/2026/08/23/143000/orders.csv.
func destinationKey(now time.Time, key string) string {
	return processedPrefix + now.UTC().Format("2006/01/02/150405") + "/" + path.Base(key)
}
