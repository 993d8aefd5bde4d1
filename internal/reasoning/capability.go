// Package reasoning defines the turn-taking capability the diagnostic
// orchestrator invokes, and its provider implementations. The orchestrator
// treats the capability as a black box: conversation history and evidence in,
// a reply and optional tool calls out.
package reasoning

import (
	"context"

	"github.com/xilian/diagnostics-service/internal/models"
)

// Reply is the capability's answer to one diagnostic turn
type Reply struct {
	// Diagnostic text to append as the assistant turn
	Content string

	// Tool invocations the capability requested, in order
	ToolCalls []models.ToolCall
}

// Capability is the opaque reasoning backend.
// Implementations include Gemini for production, Console for local
// development, and Mock for testing. Implementations must honor the
// context deadline; the orchestrator abandons calls that exceed it.
type Capability interface {
	// Diagnose produces the next assistant reply for the conversation.
	// Returns an error if the backend is unavailable, times out, or
	// produces an unusable result.
	Diagnose(ctx context.Context, history []models.DiagnosticTurn, evidence models.EvidenceSummary) (*Reply, error)
}
