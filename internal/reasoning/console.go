package reasoning

import (
	"context"
	"fmt"
	"log"

	"github.com/xilian/diagnostics-service/internal/models"
)

// ConsoleCapability logs the prompt and returns a canned reply.
// This is useful for local development without an API key.
type ConsoleCapability struct{}

// NewConsoleCapability creates a console-backed reasoning capability
func NewConsoleCapability() *ConsoleCapability {
	return &ConsoleCapability{}
}

// Diagnose logs the conversation and evidence and returns a placeholder reply
func (s *ConsoleCapability) Diagnose(_ context.Context, history []models.DiagnosticTurn, evidence models.EvidenceSummary) (*Reply, error) {
	log.Println("========================================")
	log.Println("REASONING REQUEST (Console Mode)")
	log.Println("========================================")
	for _, turn := range history {
		log.Printf("[%s] %s", turn.Role, turn.Content)
	}
	log.Println("----------------------------------------")
	log.Print(FormatEvidence(evidence))
	log.Println("========================================")

	anomalyNote := "no anomalies were flagged"
	if n := len(evidence.Anomalies); n > 0 {
		anomalyNote = fmt.Sprintf("%d anomalies were flagged", n)
	}
	return &Reply{
		Content: fmt.Sprintf(
			"Console diagnosis: %d readings examined, %s. Configure a reasoning provider for real analysis.",
			evidence.ReadingCount, anomalyNote),
	}, nil
}
