package models

import "time"

// DiagnoseRequest is a single-device diagnosis request
type DiagnoseRequest struct {
	// Equipment code under investigation
	DeviceCode string `json:"deviceCode"`

	// Operator's description of the symptom, at least 5 characters
	Description string `json:"description"`

	// Evidence-gathering depth; defaults to quick
	Mode DiagnoseMode `json:"mode,omitempty"`

	// Caller-supplied spot readings keyed by metric name
	SensorReadings map[string]float64 `json:"sensorReadings,omitempty"`

	// Lookback window for deep mode store queries, 1-720 hours
	TimeRangeHours int `json:"timeRangeHours,omitempty"`

	// Existing session to continue; a new one is created when empty
	SessionID string `json:"sessionId,omitempty"`
}

// EvidenceSummary describes what supporting data backed a diagnosis
type EvidenceSummary struct {
	// Spot readings supplied by the caller
	ProvidedReadings map[string]float64 `json:"providedReadings,omitempty"`

	// Number of stored readings examined (deep mode)
	ReadingCount int `json:"readingCount"`

	// Anomalies flagged while scoring gathered readings (deep mode)
	Anomalies []AnomalyRecord `json:"anomalies,omitempty"`

	// Trend buckets from the aggregate lookback (predictive mode)
	TrendBuckets []AggregateBucket `json:"trendBuckets,omitempty"`

	// True when evidence gathering partially failed and the diagnosis
	// proceeded on what was available
	Partial bool `json:"partial,omitempty"`
}

// DiagnoseResult is the outcome of a completed diagnosis
type DiagnoseResult struct {
	SessionID string          `json:"sessionId"`
	Reply     string          `json:"reply"`
	ToolCalls []ToolCall      `json:"toolCalls,omitempty"`
	Evidence  EvidenceSummary `json:"evidence"`
	Mode      DiagnoseMode    `json:"mode"`
}

// DeviceRequest is one item of a batch diagnosis
type DeviceRequest struct {
	DeviceCode     string             `json:"deviceCode"`
	Description    string             `json:"description"`
	SensorReadings map[string]float64 `json:"sensorReadings,omitempty"`
	TimeRangeHours int                `json:"timeRangeHours,omitempty"`
}

// BatchItemStatus tags one batch result slot
type BatchItemStatus string

const (
	BatchFulfilled BatchItemStatus = "fulfilled"
	BatchRejected  BatchItemStatus = "rejected"
)

// BatchItemResult is the tagged outcome of one device in a batch diagnosis.
// Exactly one of Data and Error is set, according to Status.
type BatchItemResult struct {
	DeviceCode string          `json:"deviceCode"`
	Status     BatchItemStatus `json:"status"`
	Data       *DiagnoseResult `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BatchDiagnoseResult aggregates a batch diagnosis. Results preserve the
// input order regardless of completion order.
type BatchDiagnoseResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// OrchestratorStatus reports aggregate session counts
type OrchestratorStatus struct {
	ActiveSessions   int                  `json:"activeSessions"`
	Capacity         int                  `json:"capacity"`
	ModeDistribution map[DiagnoseMode]int `json:"modeDistribution"`
}

// SessionHistoryResult reports a session's turns, or Found=false when the
// session does not exist (a normal result, not an error)
type SessionHistoryResult struct {
	Found bool             `json:"found"`
	Turns []DiagnosticTurn `json:"turns,omitempty"`
}

// ClearSessionResult reports whether a cleared session existed
type ClearSessionResult struct {
	Cleared bool `json:"cleared"`
}

// InsertReadingsResult reports how many readings were stored
type InsertReadingsResult struct {
	Inserted  int       `json:"inserted"`
	Timestamp time.Time `json:"timestamp"`
}
