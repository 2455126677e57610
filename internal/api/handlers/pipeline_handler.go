package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/datapipe/internal/config"
	"github.com/andresuchdata/datapipe/internal/service"
)

// PipelineHandler exposes the invocation trigger over HTTP: object-created
// event batches for the transform engine and a manual sweep trigger.
type PipelineHandler struct {
	service   *service.PipelineService
	retention config.RetentionConfig
}

func NewPipelineHandler(svc *service.PipelineService, retention config.RetentionConfig) *PipelineHandler {
	return &PipelineHandler{
		service:   svc,
		retention: retention,
	}
}

// objectEvent mirrors the S3 notification shape so bucket event forwarders
// can post their payloads unmodified.
type objectEvent struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// PostEvents processes a batch of object-created events. Per-file failures
// are reported in the response body, not as an HTTP error; a failed file
// stays in the incoming prefix for the external retry mechanism.
func (h *PipelineHandler) PostEvents(c *gin.Context) {
	var event objectEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload: " + err.Error()})
		return
	}

	keys := make([]string, 0, len(event.Records))
	for _, record := range event.Records {
		if record.S3.Object.Key != "" {
			keys = append(keys, record.S3.Object.Key)
		}
	}
	if len(keys) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event contains no object keys"})
		return
	}

	result := h.service.ProcessBatch(c.Request.Context(), keys)
	c.JSON(http.StatusOK, result)
}

// PostSweep triggers a lifecycle sweep outside the daily schedule.
func (h *PipelineHandler) PostSweep(c *gin.Context) {
	report, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if report != nil {
			c.JSON(status, gin.H{"error": err.Error(), "report": report})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetStats reports rolling counters, the last sweep, and the retention
// policy in force.
func (h *PipelineHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
		"retention_policy": gin.H{
			"retention_days": h.retention.RetentionDays,
			"archive_days":   h.retention.ArchiveDays,
		},
	})
}
