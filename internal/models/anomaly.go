package models

import "time"

// Algorithm identifies the scoring algorithm that produced an anomaly record
type Algorithm string

const (
	AlgorithmZScore          Algorithm = "zscore"
	AlgorithmIQR             Algorithm = "iqr"
	AlgorithmMAD             Algorithm = "mad"
	AlgorithmIsolationForest Algorithm = "isolation_forest"
	AlgorithmCustom          Algorithm = "custom"
)

// Valid reports whether the algorithm is one of the known values
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmZScore, AlgorithmIQR, AlgorithmMAD, AlgorithmIsolationForest, AlgorithmCustom:
		return true
	}
	return false
}

// Severity is the ordinal classification of an anomaly's significance
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the known values
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AnomalyRecord is an append-only audit entry for a detected anomaly.
// Records are never deleted; acknowledgement is the only permitted mutation.
type AnomalyRecord struct {
	// Globally unique detection identifier; duplicate inserts are rejected
	DetectionID string `json:"detectionId" binding:"required"`

	DeviceID   string `json:"deviceId" binding:"required"`
	SensorID   string `json:"sensorId" binding:"required"`
	MetricName string `json:"metricName" binding:"required"`

	// Algorithm that flagged the value
	Algorithm Algorithm `json:"algorithm" binding:"required"`

	// Observed value and the baseline expectation it was scored against
	CurrentValue  float64 `json:"currentValue"`
	ExpectedValue float64 `json:"expectedValue"`

	// Signed deviation from the expectation, in algorithm-specific units
	Deviation float64 `json:"deviation"`

	// Normalized score in [0,1]
	Score float64 `json:"score"`

	Severity Severity `json:"severity"`

	// Whether an operator has acknowledged the anomaly
	Acknowledged bool `json:"acknowledged"`

	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the record for storable content
func (a *AnomalyRecord) Validate() error {
	if a.DetectionID == "" {
		return &FieldError{Field: "detectionId", Message: "must not be empty"}
	}
	if a.DeviceID == "" {
		return &FieldError{Field: "deviceId", Message: "must not be empty"}
	}
	if a.SensorID == "" {
		return &FieldError{Field: "sensorId", Message: "must not be empty"}
	}
	if a.MetricName == "" {
		return &FieldError{Field: "metricName", Message: "must not be empty"}
	}
	if !a.Algorithm.Valid() {
		return &FieldError{Field: "algorithm", Message: "unknown algorithm"}
	}
	if !a.Severity.Valid() {
		return &FieldError{Field: "severity", Message: "unknown severity"}
	}
	if a.Timestamp.IsZero() {
		return &FieldError{Field: "timestamp", Message: "must be set"}
	}
	return nil
}
