package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xilian/diagnostics-service/internal/alerting"
	"github.com/xilian/diagnostics-service/internal/models"
	"github.com/xilian/diagnostics-service/internal/repository"
)

func anomalyRouter(h *AnomalyHandler) *gin.Engine {
	router := gin.New()
	router.POST("/anomalies", h.HandleInsertAnomaly)
	router.GET("/anomalies", h.HandleQueryAnomalies)
	router.POST("/anomalies/:id/acknowledge", h.HandleAcknowledgeAnomaly)
	return router
}

func validAnomalyBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(models.AnomalyRecord{
		DetectionID:   "det-1",
		DeviceID:      "press-07",
		SensorID:      "temp-1",
		MetricName:    "bearing_temp",
		Algorithm:     models.AlgorithmZScore,
		CurrentValue:  150,
		ExpectedValue: 100,
		Deviation:     5.2,
		Score:         0.86,
		Severity:      models.SeverityHigh,
		Timestamp:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return body
}

func TestHandleInsertAnomaly(t *testing.T) {
	mockRepo := repository.NewMockTelemetryRepository()
	var captured models.AnomalyRecord
	mockRepo.InsertAnomalyFunc = func(_ context.Context, record models.AnomalyRecord) error {
		captured = record
		return nil
	}
	router := anomalyRouter(NewAnomalyHandler(mockRepo))

	req, _ := http.NewRequest("POST", "/anomalies", bytes.NewBuffer(validAnomalyBody(t)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "det-1", captured.DetectionID)
	assert.Equal(t, models.SeverityHigh, captured.Severity)
}

func TestHandleInsertAnomalyErrors(t *testing.T) {
	tests := []struct {
		name           string
		body           []byte
		insertErr      error
		expectedStatus int
	}{
		{
			name:           "invalid JSON",
			body:           []byte("not json"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation failure",
			insertErr:      &models.FieldError{Field: "severity", Message: "unknown severity"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "duplicate detection id",
			insertErr:      repository.ErrDuplicateDetection,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "store outage",
			insertErr:      errors.New("connection refused"),
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := repository.NewMockTelemetryRepository()
			if tt.insertErr != nil {
				mockRepo.InsertAnomalyFunc = func(context.Context, models.AnomalyRecord) error {
					return tt.insertErr
				}
			}
			router := anomalyRouter(NewAnomalyHandler(mockRepo))

			body := tt.body
			if body == nil {
				body = validAnomalyBody(t)
			}
			req, _ := http.NewRequest("POST", "/anomalies", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHandleInsertAnomalyNotifies(t *testing.T) {
	mockRepo := repository.NewMockTelemetryRepository()
	notifier := alerting.NewMockNotifier()
	dispatcher := alerting.NewDispatcher(notifier, models.SeverityHigh)
	dispatcher.Start()

	router := anomalyRouter(NewAnomalyHandler(mockRepo).WithDispatcher(dispatcher))

	req, _ := http.NewRequest("POST", "/anomalies", bytes.NewBuffer(validAnomalyBody(t)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	dispatcher.Stop()

	notified := notifier.Records()
	require.Len(t, notified, 1)
	assert.Equal(t, "det-1", notified[0].DetectionID)
}

func TestHandleQueryAnomaliesFilterParsing(t *testing.T) {
	mockRepo := repository.NewMockTelemetryRepository()
	var captured repository.AnomalyFilter
	mockRepo.QueryAnomaliesFunc = func(_ context.Context, filter repository.AnomalyFilter) ([]models.AnomalyRecord, error) {
		captured = filter
		return []models.AnomalyRecord{}, nil
	}
	router := anomalyRouter(NewAnomalyHandler(mockRepo))

	url := "/anomalies?start=2026-03-14T09:00:00Z&devices=press-07" +
		"&severities=high,critical&acknowledged=false&limit=25"
	req, _ := http.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"press-07"}, captured.DeviceIDs)
	assert.Equal(t, []models.Severity{models.SeverityHigh, models.SeverityCritical}, captured.Severities)
	require.NotNil(t, captured.Acknowledged)
	assert.False(t, *captured.Acknowledged)
	assert.Equal(t, 25, captured.Limit)
}

func TestHandleQueryAnomaliesBadParams(t *testing.T) {
	router := anomalyRouter(NewAnomalyHandler(repository.NewMockTelemetryRepository()))

	tests := []struct {
		name string
		url  string
	}{
		{name: "bad start", url: "/anomalies?start=yesterday"},
		{name: "bad end", url: "/anomalies?end=never"},
		{name: "unknown severity", url: "/anomalies?severities=catastrophic"},
		{name: "bad acknowledged", url: "/anomalies?acknowledged=maybe"},
		{name: "bad limit", url: "/anomalies?limit=zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleAcknowledgeAnomaly(t *testing.T) {
	mockRepo := repository.NewMockTelemetryRepository()
	router := anomalyRouter(NewAnomalyHandler(mockRepo))

	req, _ := http.NewRequest("POST", "/anomalies/det-1/acknowledge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	mockRepo.AcknowledgeAnomalyFunc = func(context.Context, string) error {
		return repository.ErrAnomalyNotFound
	}
	req, _ = http.NewRequest("POST", "/anomalies/missing/acknowledge", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockRepo.AcknowledgeAnomalyFunc = func(context.Context, string) error {
		return errors.New("connection refused")
	}
	req, _ = http.NewRequest("POST", "/anomalies/det-1/acknowledge", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
