package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/datapipe/internal/api/handlers"
	"github.com/andresuchdata/datapipe/internal/archiver"
	"github.com/andresuchdata/datapipe/internal/cache"
	"github.com/andresuchdata/datapipe/internal/config"
	"github.com/andresuchdata/datapipe/internal/processor"
	"github.com/andresuchdata/datapipe/internal/service"
	"github.com/andresuchdata/datapipe/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storage.MemoryStore, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	raw := storage.NewMemoryStore("raw")
	processed := storage.NewMemoryStore("processed")
	archive := storage.NewMemoryStore("archive")

	engine := processor.NewEngine(raw, processed, "test", 2)
	sweeper := archiver.NewSweeper(processed, archive, 30, 2)
	svc := service.NewPipelineService(engine, sweeper, cache.NewNoopStatsCache(), nil)

	handler := handlers.NewPipelineHandler(svc, config.RetentionConfig{
		RetentionDays: 30,
		ArchiveDays:   90,
	})

	router := gin.New()
	router.POST("/api/v1/events", handler.PostEvents)
	router.POST("/api/v1/sweep", handler.PostSweep)
	router.GET("/api/v1/stats", handler.GetStats)

	return router, raw, processed
}

func eventPayload(keys ...string) string {
	var records []string
	for _, key := range keys {
		records = append(records,
			`{"s3":{"bucket":{"name":"raw"},"object":{"key":"`+key+`"}}}`)
	}
	return `{"Records":[` + strings.Join(records, ",") + `]}`
}

func TestPostEventsProcessesBatch(t *testing.T) {
	router, raw, processed := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, raw.Put(ctx, "incoming/user.json", []byte(`{"User Name":"John"}`), storage.PutOptions{}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader(eventPayload("incoming/user.json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result processor.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Processed, 1)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "incoming/user.json", result.Processed[0].SourceKey)

	_, err := processed.Get(ctx, result.Processed[0].DestinationKey)
	assert.NoError(t, err)
}

func TestPostEventsReportsPerFileFailures(t *testing.T) {
	router, raw, _ := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, raw.Put(ctx, "incoming/good.json", []byte(`{"a":1}`), storage.PutOptions{}))
	require.NoError(t, raw.Put(ctx, "incoming/bad.txt", []byte("plain text"), storage.PutOptions{}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
		strings.NewReader(eventPayload("incoming/good.json", "incoming/bad.txt")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Per-file failures are part of the result body, not an HTTP error.
	require.Equal(t, http.StatusOK, rec.Code)

	var result processor.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Processed, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "incoming/bad.txt", result.Failed[0].SourceKey)
}

func TestPostEventsRejectsEmptyPayload(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"Records":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEventsRejectsInvalidJSON(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostSweepReturnsReport(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var report archiver.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.Scanned)
}

func TestGetStatsIncludesRetentionPolicy(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RetentionPolicy struct {
			RetentionDays int `json:"retention_days"`
			ArchiveDays   int `json:"archive_days"`
		} `json:"retention_policy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 30, body.RetentionPolicy.RetentionDays)
	assert.Equal(t, 90, body.RetentionPolicy.ArchiveDays)
}
