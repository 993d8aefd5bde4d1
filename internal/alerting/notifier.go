// Package alerting delivers notifications for high-severity anomalies.
// Dispatch is asynchronous and best-effort: a slow or failing notification
// channel never blocks the telemetry insert path.
package alerting

import (
	"context"
	"log"
	"sync"

	"github.com/xilian/diagnostics-service/internal/models"
)

// Notifier delivers one anomaly notification.
// Implementations include Webhook for production and Log for development.
type Notifier interface {
	// Notify delivers the anomaly to the configured channel. Returns an
	// error if delivery ultimately failed after retries.
	Notify(ctx context.Context, record models.AnomalyRecord) error
}

// LogNotifier logs anomaly notifications to the console.
// This is the fallback when no webhook is configured.
type LogNotifier struct{}

// NewLogNotifier creates a console-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the anomaly
func (n *LogNotifier) Notify(_ context.Context, record models.AnomalyRecord) error {
	log.Printf("ALERT [%s] device=%s sensor=%s metric=%s current=%g expected=%g deviation=%.2f",
		record.Severity, record.DeviceID, record.SensorID, record.MetricName,
		record.CurrentValue, record.ExpectedValue, record.Deviation)
	return nil
}

// MockNotifier is a mock implementation of Notifier for testing
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, record models.AnomalyRecord) error

	mu      sync.Mutex
	records []models.AnomalyRecord
}

// NewMockNotifier creates a mock that accepts every notification
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		NotifyFunc: func(_ context.Context, _ models.AnomalyRecord) error {
			return nil
		},
	}
}

// Notify implements Notifier
func (m *MockNotifier) Notify(ctx context.Context, record models.AnomalyRecord) error {
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	return m.NotifyFunc(ctx, record)
}

// Records returns a copy of every notification received so far
func (m *MockNotifier) Records() []models.AnomalyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AnomalyRecord, len(m.records))
	copy(out, m.records)
	return out
}
