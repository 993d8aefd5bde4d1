package repository

import (
	"context"

	"github.com/xilian/diagnostics-service/internal/models"
)

// MockTelemetryRepository is a mock implementation of TelemetryRepository
// for testing
type MockTelemetryRepository struct {
	InsertReadingsFunc     func(ctx context.Context, readings []models.SensorReading) (int, error)
	QueryReadingsFunc      func(ctx context.Context, filter ReadingFilter) ([]models.SensorReading, error)
	QueryAggregatedFunc    func(ctx context.Context, interval models.AggregateInterval, filter ReadingFilter) ([]models.AggregateBucket, error)
	InsertAnomalyFunc      func(ctx context.Context, record models.AnomalyRecord) error
	QueryAnomaliesFunc     func(ctx context.Context, filter AnomalyFilter) ([]models.AnomalyRecord, error)
	AcknowledgeAnomalyFunc func(ctx context.Context, detectionID string) error
}

// NewMockTelemetryRepository creates a new mock repository with default
// implementations
func NewMockTelemetryRepository() *MockTelemetryRepository {
	return &MockTelemetryRepository{
		InsertReadingsFunc: func(_ context.Context, readings []models.SensorReading) (int, error) {
			return len(readings), nil
		},
		QueryReadingsFunc: func(_ context.Context, _ ReadingFilter) ([]models.SensorReading, error) {
			return []models.SensorReading{}, nil
		},
		QueryAggregatedFunc: func(_ context.Context, _ models.AggregateInterval, _ ReadingFilter) ([]models.AggregateBucket, error) {
			return []models.AggregateBucket{}, nil
		},
		InsertAnomalyFunc: func(_ context.Context, _ models.AnomalyRecord) error {
			return nil
		},
		QueryAnomaliesFunc: func(_ context.Context, _ AnomalyFilter) ([]models.AnomalyRecord, error) {
			return []models.AnomalyRecord{}, nil
		},
		AcknowledgeAnomalyFunc: func(_ context.Context, _ string) error {
			return nil
		},
	}
}

// InsertReadings implements TelemetryRepository.InsertReadings
func (m *MockTelemetryRepository) InsertReadings(ctx context.Context, readings []models.SensorReading) (int, error) {
	return m.InsertReadingsFunc(ctx, readings)
}

// QueryReadings implements TelemetryRepository.QueryReadings
func (m *MockTelemetryRepository) QueryReadings(ctx context.Context, filter ReadingFilter) ([]models.SensorReading, error) {
	return m.QueryReadingsFunc(ctx, filter)
}

// QueryAggregated implements TelemetryRepository.QueryAggregated
func (m *MockTelemetryRepository) QueryAggregated(ctx context.Context, interval models.AggregateInterval, filter ReadingFilter) ([]models.AggregateBucket, error) {
	return m.QueryAggregatedFunc(ctx, interval, filter)
}

// InsertAnomaly implements TelemetryRepository.InsertAnomaly
func (m *MockTelemetryRepository) InsertAnomaly(ctx context.Context, record models.AnomalyRecord) error {
	return m.InsertAnomalyFunc(ctx, record)
}

// QueryAnomalies implements TelemetryRepository.QueryAnomalies
func (m *MockTelemetryRepository) QueryAnomalies(ctx context.Context, filter AnomalyFilter) ([]models.AnomalyRecord, error) {
	return m.QueryAnomaliesFunc(ctx, filter)
}

// AcknowledgeAnomaly implements TelemetryRepository.AcknowledgeAnomaly
func (m *MockTelemetryRepository) AcknowledgeAnomaly(ctx context.Context, detectionID string) error {
	return m.AcknowledgeAnomalyFunc(ctx, detectionID)
}
