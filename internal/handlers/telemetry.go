// Package handlers contains HTTP request handlers for the diagnostics service.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xilian/diagnostics-service/internal/models"
	"github.com/xilian/diagnostics-service/internal/repository"
)

// TelemetryHandler handles sensor reading ingestion and queries
type TelemetryHandler struct {
	repo repository.TelemetryRepository
}

// NewTelemetryHandler creates a telemetry handler
func NewTelemetryHandler(repo repository.TelemetryRepository) *TelemetryHandler {
	return &TelemetryHandler{repo: repo}
}

// insertReadingsRequest is the batch ingest payload
type insertReadingsRequest struct {
	Readings []models.SensorReading `json:"readings" binding:"required"`
}

// HandleInsertReadings stores a batch of sensor readings
func (h *TelemetryHandler) HandleInsertReadings(c *gin.Context) {
	var req insertReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON payload",
		})
		return
	}
	if len(req.Readings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "readings must not be empty",
		})
		return
	}

	count, err := h.repo.InsertReadings(c.Request.Context(), req.Readings)
	if err != nil {
		var fieldErr *models.FieldError
		if errors.As(err, &fieldErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation failed",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to store readings",
		})
		return
	}

	c.JSON(http.StatusCreated, models.InsertReadingsResult{
		Inserted:  count,
		Timestamp: time.Now().UTC(),
	})
}

// HandleQueryReadings returns readings matching the query parameters
func (h *TelemetryHandler) HandleQueryReadings(c *gin.Context) {
	filter, err := readingFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid query parameter",
			"message": err.Error(),
		})
		return
	}

	readings, err := h.repo.QueryReadings(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to query readings",
		})
		return
	}
	if readings == nil {
		readings = []models.SensorReading{}
	}

	c.JSON(http.StatusOK, gin.H{
		"readings": readings,
		"count":    len(readings),
	})
}

// HandleQueryAggregated returns epoch-aligned aggregate buckets
func (h *TelemetryHandler) HandleQueryAggregated(c *gin.Context) {
	filter, err := readingFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid query parameter",
			"message": err.Error(),
		})
		return
	}

	interval := models.AggregateInterval(c.DefaultQuery("interval", string(models.Interval1h)))
	if interval.Duration() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid query parameter",
			"message": "interval must be one of 1m, 5m, 1h, 1d",
		})
		return
	}

	buckets, err := h.repo.QueryAggregated(c.Request.Context(), interval, filter)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to aggregate readings",
		})
		return
	}
	if buckets == nil {
		buckets = []models.AggregateBucket{}
	}

	c.JSON(http.StatusOK, gin.H{
		"interval": interval,
		"buckets":  buckets,
		"count":    len(buckets),
	})
}

// readingFilterFromQuery parses the shared reading-filter query parameters
func readingFilterFromQuery(c *gin.Context) (repository.ReadingFilter, error) {
	var filter repository.ReadingFilter

	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("start must be an RFC3339 timestamp")
		}
		filter.Start = &t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("end must be an RFC3339 timestamp")
		}
		filter.End = &t
	}
	filter.DeviceIDs = splitList(c.Query("devices"))
	filter.SensorIDs = splitList(c.Query("sensors"))
	filter.MetricNames = splitList(c.Query("metrics"))

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, errors.New("limit must be a positive integer")
		}
		if n > repository.MaxReadingLimit {
			return filter, errors.New("limit must not exceed " + strconv.Itoa(repository.MaxReadingLimit))
		}
		filter.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	switch c.DefaultQuery("order", "desc") {
	case "asc":
		filter.Ascending = true
	case "desc":
		filter.Ascending = false
	default:
		return filter, errors.New("order must be asc or desc")
	}

	return filter, nil
}

// splitList splits a comma-separated query value, dropping empty entries
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
