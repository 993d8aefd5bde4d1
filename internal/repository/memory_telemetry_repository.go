package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xilian/diagnostics-service/internal/models"
)

// MemoryTelemetryRepository is an in-memory TelemetryRepository. It backs
// local development and tests, and implements the same semantics as the
// PostgreSQL repository including epoch-aligned aggregation and duplicate
// detection-ID rejection.
type MemoryTelemetryRepository struct {
	mu        sync.RWMutex
	readings  []models.SensorReading
	anomalies map[string]models.AnomalyRecord
	// insertion order of detection IDs, for stable query output
	anomalyOrder []string
}

// NewMemoryTelemetryRepository creates an empty in-memory repository
func NewMemoryTelemetryRepository() *MemoryTelemetryRepository {
	return &MemoryTelemetryRepository{
		anomalies: make(map[string]models.AnomalyRecord),
	}
}

// InsertReadings appends a batch of readings, all-or-nothing
func (r *MemoryTelemetryRepository) InsertReadings(_ context.Context, readings []models.SensorReading) (int, error) {
	for i := range readings {
		if err := readings[i].Validate(); err != nil {
			return 0, fmt.Errorf("reading %d: %w", i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reading := range readings {
		if reading.Quality == "" {
			reading.Quality = models.QualityGood
		}
		reading.Timestamp = reading.Timestamp.UTC()
		r.readings = append(r.readings, reading)
	}
	return len(readings), nil
}

// matchesReading reports whether a reading passes the filter
func matchesReading(reading *models.SensorReading, filter *ReadingFilter) bool {
	if filter.Start != nil && reading.Timestamp.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && reading.Timestamp.After(*filter.End) {
		return false
	}
	if len(filter.DeviceIDs) > 0 && !containsString(filter.DeviceIDs, reading.DeviceID) {
		return false
	}
	if len(filter.SensorIDs) > 0 && !containsString(filter.SensorIDs, reading.SensorID) {
		return false
	}
	if len(filter.MetricNames) > 0 && !containsString(filter.MetricNames, reading.MetricName) {
		return false
	}
	return true
}

// QueryReadings returns readings matching the filter
func (r *MemoryTelemetryRepository) QueryReadings(_ context.Context, filter ReadingFilter) ([]models.SensorReading, error) {
	r.mu.RLock()
	var matched []models.SensorReading
	for i := range r.readings {
		if matchesReading(&r.readings[i], &filter) {
			matched = append(matched, r.readings[i])
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if filter.Ascending {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})

	if filter.Offset >= len(matched) {
		return []models.SensorReading{}, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// QueryAggregated buckets matching readings into epoch-aligned windows
func (r *MemoryTelemetryRepository) QueryAggregated(_ context.Context, interval models.AggregateInterval, filter ReadingFilter) ([]models.AggregateBucket, error) {
	width := interval.Duration()
	if width <= 0 {
		return nil, fmt.Errorf("unknown aggregate interval %q", interval)
	}

	type bucketKey struct {
		metric string
		start  int64
	}
	type bucketAgg struct {
		count          int64
		sum, sumSq     float64
		minVal, maxVal float64
	}

	r.mu.RLock()
	acc := make(map[bucketKey]*bucketAgg)
	for i := range r.readings {
		reading := &r.readings[i]
		if !matchesReading(reading, &filter) {
			continue
		}
		start := reading.Timestamp.Unix() / int64(width.Seconds()) * int64(width.Seconds())
		key := bucketKey{metric: reading.MetricName, start: start}
		agg, ok := acc[key]
		if !ok {
			agg = &bucketAgg{minVal: reading.Value, maxVal: reading.Value}
			acc[key] = agg
		}
		agg.count++
		agg.sum += reading.Value
		agg.sumSq += reading.Value * reading.Value
		if reading.Value < agg.minVal {
			agg.minVal = reading.Value
		}
		if reading.Value > agg.maxVal {
			agg.maxVal = reading.Value
		}
	}
	r.mu.RUnlock()

	buckets := make([]models.AggregateBucket, 0, len(acc))
	for key, agg := range acc {
		mean := agg.sum / float64(agg.count)
		var stddev float64
		if agg.count > 1 {
			variance := (agg.sumSq - agg.sum*agg.sum/float64(agg.count)) / float64(agg.count-1)
			if variance > 0 {
				stddev = math.Sqrt(variance)
			}
		}
		buckets = append(buckets, models.AggregateBucket{
			MetricName:  key.metric,
			BucketStart: time.Unix(key.start, 0).UTC(),
			Count:       agg.count,
			Mean:        mean,
			Min:         agg.minVal,
			Max:         agg.maxVal,
			StdDev:      stddev,
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if !buckets[i].BucketStart.Equal(buckets[j].BucketStart) {
			return buckets[i].BucketStart.Before(buckets[j].BucketStart)
		}
		return buckets[i].MetricName < buckets[j].MetricName
	})
	return buckets, nil
}

// InsertAnomaly appends one anomaly record, rejecting duplicates
func (r *MemoryTelemetryRepository) InsertAnomaly(_ context.Context, record models.AnomalyRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.anomalies[record.DetectionID]; exists {
		return ErrDuplicateDetection
	}
	record.Timestamp = record.Timestamp.UTC()
	r.anomalies[record.DetectionID] = record
	r.anomalyOrder = append(r.anomalyOrder, record.DetectionID)
	return nil
}

// QueryAnomalies returns anomaly records matching the filter, newest first
func (r *MemoryTelemetryRepository) QueryAnomalies(_ context.Context, filter AnomalyFilter) ([]models.AnomalyRecord, error) {
	r.mu.RLock()
	var matched []models.AnomalyRecord
	for _, id := range r.anomalyOrder {
		record := r.anomalies[id]
		if filter.Start != nil && record.Timestamp.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && record.Timestamp.After(*filter.End) {
			continue
		}
		if len(filter.DeviceIDs) > 0 && !containsString(filter.DeviceIDs, record.DeviceID) {
			continue
		}
		if len(filter.Severities) > 0 && !containsSeverity(filter.Severities, record.Severity) {
			continue
		}
		if filter.Acknowledged != nil && record.Acknowledged != *filter.Acknowledged {
			continue
		}
		matched = append(matched, record)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// AcknowledgeAnomaly marks a record acknowledged
func (r *MemoryTelemetryRepository) AcknowledgeAnomaly(_ context.Context, detectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.anomalies[detectionID]
	if !ok {
		return ErrAnomalyNotFound
	}
	record.Acknowledged = true
	r.anomalies[detectionID] = record
	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsSeverity(haystack []models.Severity, needle models.Severity) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
