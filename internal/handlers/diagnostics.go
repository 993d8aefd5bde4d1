package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xilian/diagnostics-service/internal/diagnostics"
	"github.com/xilian/diagnostics-service/internal/models"
)

// DiagnosticsHandler exposes the diagnosis orchestrator over HTTP
type DiagnosticsHandler struct {
	orchestrator *diagnostics.Orchestrator
}

// NewDiagnosticsHandler creates a diagnostics handler
func NewDiagnosticsHandler(orchestrator *diagnostics.Orchestrator) *DiagnosticsHandler {
	return &DiagnosticsHandler{orchestrator: orchestrator}
}

// HandleDiagnose runs one diagnosis
func (h *DiagnosticsHandler) HandleDiagnose(c *gin.Context) {
	var req models.DiagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON payload",
		})
		return
	}

	result, err := h.orchestrator.Diagnose(c.Request.Context(), req)
	if err != nil {
		writeDiagnosisError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// batchDiagnoseRequest is the batch diagnosis payload
type batchDiagnoseRequest struct {
	Devices []models.DeviceRequest `json:"devices" binding:"required"`
	Mode    models.DiagnoseMode    `json:"mode,omitempty"`
}

// HandleBatchDiagnose runs independent diagnoses for up to the configured
// batch limit of devices. Per-item failures land in the item's result slot;
// the call itself only fails on an invalid batch shape.
func (h *DiagnosticsHandler) HandleBatchDiagnose(c *gin.Context) {
	var req batchDiagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON payload",
		})
		return
	}

	result, err := h.orchestrator.BatchDiagnose(c.Request.Context(), req.Devices, req.Mode)
	if err != nil {
		writeDiagnosisError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleStatus reports aggregate session counts
func (h *DiagnosticsHandler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Status())
}

// HandleSessionHistory returns a session's turns. A missing session is a
// 200 with found=false rather than a 404.
func (h *DiagnosticsHandler) HandleSessionHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.SessionHistory(c.Param("id")))
}

// HandleClearSession removes a session. Idempotent.
func (h *DiagnosticsHandler) HandleClearSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.ClearSession(c.Param("id")))
}

// writeDiagnosisError maps orchestrator errors onto HTTP responses,
// distinguishing invalid input from reasoning failures from backend outages
func writeDiagnosisError(c *gin.Context, err error) {
	var validationErr *diagnostics.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"field":   validationErr.Field,
			"message": validationErr.Message,
		})
		return
	}

	var reasoningErr *diagnostics.ReasoningError
	if errors.As(err, &reasoningErr) {
		status := http.StatusBadGateway
		if reasoningErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"error":     "reasoning failed",
			"message":   reasoningErr.Error(),
			"retryable": true,
		})
		return
	}

	var storeErr *diagnostics.StoreError
	if errors.As(err, &storeErr) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "telemetry store unavailable",
			"retryable": true,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "diagnosis failed",
	})
}
