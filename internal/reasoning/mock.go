package reasoning

import (
	"context"
	"sync"

	"github.com/xilian/diagnostics-service/internal/models"
)

// MockCapability is a mock implementation of Capability for testing
type MockCapability struct {
	DiagnoseFunc func(ctx context.Context, history []models.DiagnosticTurn, evidence models.EvidenceSummary) (*Reply, error)

	mu    sync.Mutex
	calls int
}

// NewMockCapability creates a mock that returns a fixed reply
func NewMockCapability() *MockCapability {
	return &MockCapability{
		DiagnoseFunc: func(_ context.Context, _ []models.DiagnosticTurn, _ models.EvidenceSummary) (*Reply, error) {
			return &Reply{Content: "mock diagnosis"}, nil
		},
	}
}

// Diagnose implements Capability
func (m *MockCapability) Diagnose(ctx context.Context, history []models.DiagnosticTurn, evidence models.EvidenceSummary) (*Reply, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.DiagnoseFunc(ctx, history, evidence)
}

// Calls reports how many times Diagnose was invoked
func (m *MockCapability) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
