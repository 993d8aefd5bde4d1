package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xilian/diagnostics-service/internal/alerting"
	"github.com/xilian/diagnostics-service/internal/models"
	"github.com/xilian/diagnostics-service/internal/repository"
)

// AnomalyHandler handles the anomaly audit trail
type AnomalyHandler struct {
	repo       repository.TelemetryRepository
	dispatcher *alerting.Dispatcher // optional: nil disables notifications
}

// NewAnomalyHandler creates an anomaly handler
func NewAnomalyHandler(repo repository.TelemetryRepository) *AnomalyHandler {
	return &AnomalyHandler{repo: repo}
}

// WithDispatcher wires an alert dispatcher for stored high-severity records
func (h *AnomalyHandler) WithDispatcher(d *alerting.Dispatcher) *AnomalyHandler {
	h.dispatcher = d
	return h
}

// HandleInsertAnomaly appends one anomaly record to the audit trail
func (h *AnomalyHandler) HandleInsertAnomaly(c *gin.Context) {
	var record models.AnomalyRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON payload",
		})
		return
	}

	err := h.repo.InsertAnomaly(c.Request.Context(), record)
	if err != nil {
		var fieldErr *models.FieldError
		switch {
		case errors.As(err, &fieldErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation failed",
				"message": err.Error(),
			})
		case errors.Is(err, repository.ErrDuplicateDetection):
			c.JSON(http.StatusConflict, gin.H{
				"error":       "detection id already exists",
				"detectionId": record.DetectionID,
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "failed to store anomaly",
			})
		}
		return
	}

	if h.dispatcher != nil {
		h.dispatcher.Enqueue(record)
	}

	c.JSON(http.StatusCreated, gin.H{
		"detectionId": record.DetectionID,
	})
}

// HandleQueryAnomalies returns anomaly records matching the query parameters
func (h *AnomalyHandler) HandleQueryAnomalies(c *gin.Context) {
	var filter repository.AnomalyFilter

	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid query parameter",
				"message": "start must be an RFC3339 timestamp",
			})
			return
		}
		filter.Start = &t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid query parameter",
				"message": "end must be an RFC3339 timestamp",
			})
			return
		}
		filter.End = &t
	}
	filter.DeviceIDs = splitList(c.Query("devices"))
	for _, raw := range splitList(c.Query("severities")) {
		severity := models.Severity(raw)
		if !severity.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid query parameter",
				"message": "severities must be low, medium, high, or critical",
			})
			return
		}
		filter.Severities = append(filter.Severities, severity)
	}
	if raw := c.Query("acknowledged"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid query parameter",
				"message": "acknowledged must be true or false",
			})
			return
		}
		filter.Acknowledged = &v
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid query parameter",
				"message": "limit must be a positive integer",
			})
			return
		}
		filter.Limit = n
	}

	records, err := h.repo.QueryAnomalies(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to query anomalies",
		})
		return
	}
	if records == nil {
		records = []models.AnomalyRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"anomalies": records,
		"count":     len(records),
	})
}

// HandleAcknowledgeAnomaly marks one anomaly acknowledged
func (h *AnomalyHandler) HandleAcknowledgeAnomaly(c *gin.Context) {
	detectionID := c.Param("id")
	err := h.repo.AcknowledgeAnomaly(c.Request.Context(), detectionID)
	if err != nil {
		if errors.Is(err, repository.ErrAnomalyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":       "anomaly not found",
				"detectionId": detectionID,
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to acknowledge anomaly",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detectionId":  detectionID,
		"acknowledged": true,
	})
}
