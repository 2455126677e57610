package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/datapipe/internal/storage"
)

var fixedNow = time.Date(2026, 8, 23, 14, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore, *storage.MemoryStore) {
	t.Helper()
	raw := storage.NewMemoryStore("raw")
	processed := storage.NewMemoryStore("processed")
	engine := NewEngine(raw, processed, "test", 2)
	engine.now = func() time.Time { return fixedNow }
	return engine, raw, processed
}

func putRaw(t *testing.T, raw *storage.MemoryStore, key, content string) {
	t.Helper()
	require.NoError(t, raw.Put(context.Background(), key, []byte(content), storage.PutOptions{}))
}

func TestProcessFileJSONObject(t *testing.T) {
	engine, raw, processed := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/user.json", `{"User Name": "John", "Email Address": "john@x.com", "Age": null}`)

	result, err := engine.ProcessFile(ctx, "incoming/user.json")

	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordCount)
	assert.Equal(t, "processed/2026/08/23/143000/user.json", result.DestinationKey)

	// Single-object input stays a single object in the output.
	data, err := processed.Get(ctx, result.DestinationKey)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "John", out["user_name"])
	assert.Equal(t, "john@x.com", out["email_address"])
	assert.NotContains(t, out, "age")

	md, ok := out[MetadataKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-08-23T14:30:00.000Z", md["processed_at"])
	assert.Equal(t, "test", md["environment"])
	assert.Equal(t, ProcessorVersion, md["processor_version"])

	// Source relocated out of the incoming prefix.
	_, err = raw.Get(ctx, "incoming/user.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	moved, err := raw.Get(ctx, "completed/user.json")
	require.NoError(t, err)
	assert.NotEmpty(t, moved)
}

func TestProcessFileCSV(t *testing.T) {
	engine, raw, processed := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/items.csv", "id,name\n001,Foo\n002,Bar\n")

	result, err := engine.ProcessFile(ctx, "incoming/items.csv")

	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordCount)

	data, err := processed.Get(ctx, result.DestinationKey)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "001", out[0]["id"])
	assert.Equal(t, "Bar", out[1]["name"])

	// Metadata is identical across records of one file.
	assert.Equal(t, out[0][MetadataKey], out[1][MetadataKey])
}

func TestProcessFileJSONArrayKeepsArrayShape(t *testing.T) {
	engine, raw, processed := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/one.json", `[{"id": 1}]`)

	result, err := engine.ProcessFile(ctx, "incoming/one.json")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordCount)

	data, err := processed.Get(ctx, result.DestinationKey)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Len(t, out, 1)
}

func TestProcessFileUnsupportedExtensionLeavesSource(t *testing.T) {
	engine, raw, processed := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/report.xml", "<xml/>")

	_, err := engine.ProcessFile(ctx, "incoming/report.xml")

	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// Failed input is never deleted and nothing is emitted.
	_, err = raw.Get(ctx, "incoming/report.xml")
	assert.NoError(t, err)
	count := 0
	require.NoError(t, processed.List(ctx, "", func(storage.ObjectInfo) error {
		count++
		return nil
	}))
	assert.Zero(t, count)
}

func TestProcessFileMalformedInputLeavesSource(t *testing.T) {
	engine, raw, _ := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/broken.json", `{"oops"`)

	_, err := engine.ProcessFile(ctx, "incoming/broken.json")

	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = raw.Get(ctx, "incoming/broken.json")
	assert.NoError(t, err)
}

func TestProcessFileMissingObject(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.ProcessFile(context.Background(), "incoming/ghost.json")

	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	engine, raw, _ := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/good.json", `{"id": 1}`)
	putRaw(t, raw, "incoming/bad.json", `not json`)
	putRaw(t, raw, "incoming/also_good.csv", "id\n1\n")

	result := engine.ProcessBatch(ctx, []string{
		"incoming/good.json",
		"incoming/bad.json",
		"incoming/also_good.csv",
	})

	assert.Len(t, result.Processed, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "incoming/bad.json", result.Failed[0].SourceKey)
	assert.NotEmpty(t, result.Failed[0].Error)
	assert.NotEmpty(t, result.Timestamp)
}

func TestProcessFileEmitIsIdempotent(t *testing.T) {
	engine, raw, processed := newTestEngine(t)
	ctx := context.Background()
	putRaw(t, raw, "incoming/user.json", `{"User Name": "John"}`)

	first, err := engine.ProcessFile(ctx, "incoming/user.json")
	require.NoError(t, err)
	firstData, err := processed.Get(ctx, first.DestinationKey)
	require.NoError(t, err)

	// Simulate external redelivery after a relocate failure: the source is
	// back under incoming and the same invocation runs again.
	putRaw(t, raw, "incoming/user.json", `{"User Name": "John"}`)
	second, err := engine.ProcessFile(ctx, "incoming/user.json")
	require.NoError(t, err)

	assert.Equal(t, first.DestinationKey, second.DestinationKey)
	secondData, err := processed.Get(ctx, second.DestinationKey)
	require.NoError(t, err)
	assert.Equal(t, firstData, secondData)
}

func TestDestinationKeyDatePartitioned(t *testing.T) {
	key := destinationKey(fixedNow, "incoming/nested/dir/orders.csv")
	assert.Equal(t, "processed/2026/08/23/143000/orders.csv", key)
}
