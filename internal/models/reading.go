// Package models contains data models for the diagnostics service.
package models

import (
	"math"
	"time"
)

// ReadingQuality indicates how trustworthy a sensor reading is
type ReadingQuality string

const (
	// QualityGood means the reading passed all device-side checks
	QualityGood ReadingQuality = "good"

	// QualityUncertain means the device flagged the reading as suspect
	QualityUncertain ReadingQuality = "uncertain"

	// QualityBad means the reading failed device-side validation
	QualityBad ReadingQuality = "bad"
)

// Valid reports whether the quality flag is one of the known values.
// An empty quality is treated as good for backward compatibility with
// devices that predate the quality field.
func (q ReadingQuality) Valid() bool {
	switch q {
	case QualityGood, QualityUncertain, QualityBad, "":
		return true
	}
	return false
}

// SensorReading represents a single telemetry point from an equipment sensor.
// Readings are immutable once stored.
type SensorReading struct {
	// Equipment identifier the sensor is mounted on
	DeviceID string `json:"deviceId" binding:"required"`

	// Sensor identifier within the device
	SensorID string `json:"sensorId" binding:"required"`

	// Metric the sensor measures (e.g. "bearing_temp", "vibration_rms")
	MetricName string `json:"metricName" binding:"required"`

	// Measured value
	Value float64 `json:"value"`

	// Measurement unit (e.g. "°C", "mm/s")
	Unit string `json:"unit,omitempty"`

	// Quality flag reported by the device
	Quality ReadingQuality `json:"quality,omitempty"`

	// UTC timestamp of the measurement
	Timestamp time.Time `json:"timestamp"`

	// Free-form metadata tags
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the reading for storable content. Non-finite values and
// empty identifiers are rejected before they reach the store.
func (r *SensorReading) Validate() error {
	if r.DeviceID == "" {
		return &FieldError{Field: "deviceId", Message: "must not be empty"}
	}
	if r.SensorID == "" {
		return &FieldError{Field: "sensorId", Message: "must not be empty"}
	}
	if r.MetricName == "" {
		return &FieldError{Field: "metricName", Message: "must not be empty"}
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return &FieldError{Field: "value", Message: "must be a finite number"}
	}
	if r.Timestamp.IsZero() {
		return &FieldError{Field: "timestamp", Message: "must be set"}
	}
	if !r.Quality.Valid() {
		return &FieldError{Field: "quality", Message: "must be one of good, uncertain, bad"}
	}
	return nil
}

// FieldError describes a single invalid field in a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

// AggregateInterval is a fixed bucket width for telemetry aggregation
type AggregateInterval string

const (
	Interval1m AggregateInterval = "1m"
	Interval5m AggregateInterval = "5m"
	Interval1h AggregateInterval = "1h"
	Interval1d AggregateInterval = "1d"
)

// Duration returns the bucket width, or zero for an unknown interval.
func (i AggregateInterval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	}
	return 0
}

// AggregateBucket is one fixed-width time window of readings for one metric.
// Buckets are aligned to epoch boundaries; windows with no data are omitted.
type AggregateBucket struct {
	MetricName  string    `json:"metricName"`
	BucketStart time.Time `json:"bucketStart"`
	Count       int64     `json:"count"`
	Mean        float64   `json:"mean"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	StdDev      float64   `json:"stdDev"`
}
