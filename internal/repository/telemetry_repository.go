// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xilian/diagnostics-service/internal/models"
)

var (
	// ErrDuplicateDetection is returned when inserting an anomaly record
	// whose detection ID already exists
	ErrDuplicateDetection = errors.New("detection id already exists")

	// ErrAnomalyNotFound is returned when acknowledging an unknown anomaly
	ErrAnomalyNotFound = errors.New("anomaly not found")
)

const (
	// MaxReadingLimit caps a single readings query
	MaxReadingLimit = 10000

	// DefaultReadingLimit applies when a filter carries no limit
	DefaultReadingLimit = 1000

	// DefaultAnomalyLimit applies when an anomaly filter carries no limit
	DefaultAnomalyLimit = 100
)

// ReadingFilter narrows a readings query. All fields are optional; zero
// values match everything. Filters are only ever rendered as bound query
// parameters, never interpolated into query text.
type ReadingFilter struct {
	Start       *time.Time
	End         *time.Time
	DeviceIDs   []string
	SensorIDs   []string
	MetricNames []string
	Limit       int
	Offset      int
	Ascending   bool
}

// EffectiveLimit clamps the filter's limit to [1, MaxReadingLimit], applying
// the default when unset
func (f *ReadingFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultReadingLimit
	}
	if f.Limit > MaxReadingLimit {
		return MaxReadingLimit
	}
	return f.Limit
}

// AnomalyFilter narrows an anomalies query
type AnomalyFilter struct {
	Start        *time.Time
	End          *time.Time
	DeviceIDs    []string
	Severities   []models.Severity
	Acknowledged *bool
	Limit        int
}

// EffectiveLimit clamps the filter's limit, applying the default when unset
func (f *AnomalyFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultAnomalyLimit
	}
	if f.Limit > MaxReadingLimit {
		return MaxReadingLimit
	}
	return f.Limit
}

// TelemetryRepository defines the interface for the time-series telemetry
// store: append-only sensor readings plus the anomaly audit trail.
type TelemetryRepository interface {
	// InsertReadings appends a batch of readings in one transaction and
	// returns the number written. Every reading is validated first; one
	// invalid reading rejects the whole batch before anything is stored.
	InsertReadings(ctx context.Context, readings []models.SensorReading) (int, error)

	// QueryReadings returns readings matching the filter, ordered by
	// timestamp. A query matching nothing returns an empty slice.
	QueryReadings(ctx context.Context, filter ReadingFilter) ([]models.SensorReading, error)

	// QueryAggregated buckets matching readings into fixed-width windows
	// aligned to epoch boundaries. Windows with no data are omitted.
	QueryAggregated(ctx context.Context, interval models.AggregateInterval, filter ReadingFilter) ([]models.AggregateBucket, error)

	// InsertAnomaly appends one anomaly record. Returns
	// ErrDuplicateDetection when the detection ID already exists; the
	// original record is left unchanged.
	InsertAnomaly(ctx context.Context, record models.AnomalyRecord) error

	// QueryAnomalies returns anomaly records matching the filter, newest
	// first.
	QueryAnomalies(ctx context.Context, filter AnomalyFilter) ([]models.AnomalyRecord, error)

	// AcknowledgeAnomaly marks a record acknowledged. Acknowledgement is
	// the only permitted mutation of the anomaly audit trail.
	AcknowledgeAnomaly(ctx context.Context, detectionID string) error
}
