// Package diagnostics drives stateful device diagnoses: it resolves sessions,
// gathers telemetry evidence per mode, invokes the reasoning capability, and
// records the conversation. Batch diagnoses fan out independently with
// per-item failure isolation.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xilian/diagnostics-service/internal/anomaly"
	"github.com/xilian/diagnostics-service/internal/models"
	"github.com/xilian/diagnostics-service/internal/reasoning"
	"github.com/xilian/diagnostics-service/internal/repository"
	"github.com/xilian/diagnostics-service/internal/session"
)

const (
	// DefaultReasoningTimeout bounds one reasoning call
	DefaultReasoningTimeout = 60 * time.Second

	// DefaultMaxBatchSize caps one batch diagnosis
	DefaultMaxBatchSize = 10

	// DefaultTimeRangeHours is the deep-mode lookback when unspecified
	DefaultTimeRangeHours = 24

	// MaxTimeRangeHours is 30 days, the largest permitted lookback
	MaxTimeRangeHours = 720

	// predictiveLookback is the aggregate window for trend baselines
	predictiveLookback = 7 * 24 * time.Hour

	// minDescriptionLen rejects descriptions too short to diagnose from
	minDescriptionLen = 5
)

// Config tunes the orchestrator. Zero values fall back to the defaults.
type Config struct {
	ReasoningTimeout time.Duration
	MaxBatchSize     int
	TimeRangeHours   int
}

// Orchestrator runs single and batched diagnoses over one session store,
// telemetry repository, detector, and reasoning capability.
type Orchestrator struct {
	sessions   *session.Store
	telemetry  repository.TelemetryRepository
	detector   *anomaly.Detector
	capability reasoning.Capability

	reasoningTimeout time.Duration
	maxBatchSize     int
	timeRangeHours   int
}

// NewOrchestrator creates a diagnosis orchestrator
func NewOrchestrator(
	sessions *session.Store,
	telemetry repository.TelemetryRepository,
	detector *anomaly.Detector,
	capability reasoning.Capability,
	cfg Config,
) *Orchestrator {
	if cfg.ReasoningTimeout <= 0 {
		cfg.ReasoningTimeout = DefaultReasoningTimeout
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.TimeRangeHours <= 0 {
		cfg.TimeRangeHours = DefaultTimeRangeHours
	}
	return &Orchestrator{
		sessions:         sessions,
		telemetry:        telemetry,
		detector:         detector,
		capability:       capability,
		reasoningTimeout: cfg.ReasoningTimeout,
		maxBatchSize:     cfg.MaxBatchSize,
		timeRangeHours:   cfg.TimeRangeHours,
	}
}

// validate checks the request without touching any state
func (o *Orchestrator) validate(req *models.DiagnoseRequest) error {
	if req.DeviceCode == "" {
		return &ValidationError{Field: "deviceCode", Message: "must not be empty"}
	}
	if len(req.Description) < minDescriptionLen {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("must be at least %d characters", minDescriptionLen)}
	}
	if req.Mode == "" {
		req.Mode = models.ModeQuick
	}
	if !req.Mode.Valid() {
		return &ValidationError{Field: "mode", Message: "must be one of quick, deep, predictive"}
	}
	if req.TimeRangeHours != 0 && (req.TimeRangeHours < 1 || req.TimeRangeHours > MaxTimeRangeHours) {
		return &ValidationError{Field: "timeRangeHours", Message: fmt.Sprintf("must be between 1 and %d", MaxTimeRangeHours)}
	}
	for metric, value := range req.SensorReadings {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return &ValidationError{Field: "sensorReadings", Message: fmt.Sprintf("metric %q has a non-finite value", metric)}
		}
	}
	return nil
}

// Diagnose runs one diagnosis: validate, resolve the session, gather
// evidence for the requested mode, invoke the reasoning capability, and
// record the exchange. Validation failures happen before any session
// mutation; reasoning failures happen after the user turn is recorded, so
// a retry resumes the same conversation.
func (o *Orchestrator) Diagnose(ctx context.Context, req models.DiagnoseRequest) (*models.DiagnoseResult, error) {
	if err := o.validate(&req); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	o.sessions.GetOrCreate(sessionID, req.DeviceCode, req.Mode)

	userTurn := models.DiagnosticTurn{
		Role:      models.RoleUser,
		Content:   req.Description,
		Timestamp: time.Now().UTC(),
	}
	if err := o.sessions.Append(sessionID, userTurn); err != nil {
		// GetOrCreate just succeeded; only a concurrent eviction can
		// race us here, and recreating is the correct recovery.
		o.sessions.GetOrCreate(sessionID, req.DeviceCode, req.Mode)
		if err := o.sessions.Append(sessionID, userTurn); err != nil {
			return nil, fmt.Errorf("failed to record user turn: %w", err)
		}
	}

	evidence, err := o.gatherEvidence(ctx, &req)
	if err != nil {
		return nil, err
	}

	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s disappeared mid-diagnosis", sessionID)
	}

	reasonCtx, cancel := context.WithTimeout(ctx, o.reasoningTimeout)
	defer cancel()

	reply, err := o.capability.Diagnose(reasonCtx, sess.Turns, evidence)
	if err != nil {
		return nil, &ReasoningError{
			Cause:   err,
			Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(reasonCtx.Err(), context.DeadlineExceeded),
		}
	}
	if reply == nil || reply.Content == "" {
		return nil, &ReasoningError{Cause: errors.New("capability returned an empty reply")}
	}

	assistantTurn := models.DiagnosticTurn{
		Role:      models.RoleAssistant,
		Content:   reply.Content,
		ToolCalls: reply.ToolCalls,
		Timestamp: time.Now().UTC(),
	}
	if err := o.sessions.Append(sessionID, assistantTurn); err != nil {
		return nil, fmt.Errorf("failed to record assistant turn: %w", err)
	}

	return &models.DiagnoseResult{
		SessionID: sessionID,
		Reply:     reply.Content,
		ToolCalls: reply.ToolCalls,
		Evidence:  evidence,
		Mode:      req.Mode,
	}, nil
}

// gatherEvidence collects supporting data for the requested mode. Store
// failures in deep and predictive modes degrade to partial evidence rather
// than failing the diagnosis, as long as something else survives to reason
// over. When the caller supplied no readings and every store query failed,
// there is nothing to degrade to and the failure surfaces as a StoreError.
func (o *Orchestrator) gatherEvidence(ctx context.Context, req *models.DiagnoseRequest) (models.EvidenceSummary, error) {
	evidence := models.EvidenceSummary{
		ProvidedReadings: req.SensorReadings,
	}
	if req.Mode == models.ModeQuick {
		return evidence, nil
	}

	hours := req.TimeRangeHours
	if hours == 0 {
		hours = o.timeRangeHours
	}
	now := time.Now().UTC()
	start := now.Add(-time.Duration(hours) * time.Hour)

	var storeErr *StoreError
	readings, err := o.telemetry.QueryReadings(ctx, repository.ReadingFilter{
		Start:     &start,
		End:       &now,
		DeviceIDs: []string{req.DeviceCode},
		Ascending: true,
	})
	if err != nil {
		evidence.Partial = true
		storeErr = &StoreError{Op: "queryReadings", Cause: err}
	} else {
		evidence.ReadingCount = len(readings)
		anomalies, err := o.detector.Evaluate(readings, models.AlgorithmZScore)
		if err != nil {
			evidence.Partial = true
		} else {
			evidence.Anomalies = anomalies
		}
	}

	if req.Mode == models.ModePredictive {
		trendStart := now.Add(-predictiveLookback)
		buckets, err := o.telemetry.QueryAggregated(ctx, models.Interval1h, repository.ReadingFilter{
			Start:     &trendStart,
			End:       &now,
			DeviceIDs: []string{req.DeviceCode},
		})
		if err != nil {
			evidence.Partial = true
			if storeErr == nil {
				storeErr = &StoreError{Op: "queryAggregated", Cause: err}
			}
		} else {
			evidence.TrendBuckets = buckets
		}
	}

	if storeErr != nil && len(evidence.ProvidedReadings) == 0 &&
		evidence.ReadingCount == 0 && len(evidence.TrendBuckets) == 0 {
		return evidence, storeErr
	}
	return evidence, nil
}

// BatchDiagnose fans out 1 to maxBatchSize independent diagnoses. Items run
// concurrently with the same per-item reasoning timeout; one item's failure
// never aborts or delays its siblings. Results preserve input order.
func (o *Orchestrator) BatchDiagnose(ctx context.Context, devices []models.DeviceRequest, mode models.DiagnoseMode) (*models.BatchDiagnoseResult, error) {
	if len(devices) == 0 {
		return nil, &ValidationError{Field: "devices", Message: "must contain at least one device"}
	}
	if len(devices) > o.maxBatchSize {
		return nil, &ValidationError{Field: "devices", Message: fmt.Sprintf("must contain at most %d devices", o.maxBatchSize)}
	}
	if mode == "" {
		mode = models.ModeQuick
	}
	if !mode.Valid() {
		return nil, &ValidationError{Field: "mode", Message: "must be one of quick, deep, predictive"}
	}

	results := make([]models.BatchItemResult, len(devices))

	// A plain errgroup (not WithContext): a failing item must not cancel
	// its siblings, so item errors are captured in result slots and the
	// group only coordinates completion.
	var g errgroup.Group
	for i, device := range devices {
		g.Go(func() error {
			data, err := o.Diagnose(ctx, models.DiagnoseRequest{
				DeviceCode:     device.DeviceCode,
				Description:    device.Description,
				Mode:           mode,
				SensorReadings: device.SensorReadings,
				TimeRangeHours: device.TimeRangeHours,
			})
			if err != nil {
				results[i] = models.BatchItemResult{
					DeviceCode: device.DeviceCode,
					Status:     models.BatchRejected,
					Error:      err.Error(),
				}
				return nil
			}
			results[i] = models.BatchItemResult{
				DeviceCode: device.DeviceCode,
				Status:     models.BatchFulfilled,
				Data:       data,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &models.BatchDiagnoseResult{
		Total:   len(devices),
		Results: results,
	}
	for _, result := range results {
		if result.Status == models.BatchFulfilled {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out, nil
}

// Status reports aggregate session counts. Read-only.
func (o *Orchestrator) Status() models.OrchestratorStatus {
	return models.OrchestratorStatus{
		ActiveSessions:   o.sessions.Len(),
		Capacity:         o.sessions.Capacity(),
		ModeDistribution: o.sessions.ModeCounts(),
	}
}

// SessionHistory returns a session's turns in append order. A missing
// session is a normal result, not an error.
func (o *Orchestrator) SessionHistory(sessionID string) models.SessionHistoryResult {
	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return models.SessionHistoryResult{Found: false}
	}
	return models.SessionHistoryResult{Found: true, Turns: sess.Turns}
}

// ClearSession removes a session. Idempotent.
func (o *Orchestrator) ClearSession(sessionID string) models.ClearSessionResult {
	return models.ClearSessionResult{Cleared: o.sessions.Clear(sessionID)}
}
