package reasoning

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/xilian/diagnostics-service/internal/models"
)

// defaultGeminiModel balances latency and reasoning quality for diagnostics
const defaultGeminiModel = "gemini-2.5-flash"

// GeminiCapability implements Capability using Google's Gemini API
type GeminiCapability struct {
	client *genai.Client
	model  string
}

// NewGeminiCapability creates a Gemini-backed reasoning capability
func NewGeminiCapability(ctx context.Context, apiKey, model string) (*GeminiCapability, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiCapability{client: client, model: model}, nil
}

// Diagnose sends the conversation and evidence to Gemini and returns its
// reply. Context cancellation aborts the request.
func (g *GeminiCapability) Diagnose(ctx context.Context, history []models.DiagnosticTurn, evidence models.EvidenceSummary) (*Reply, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(
		"Supporting evidence:\n"+FormatEvidence(evidence), genai.RoleUser))

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty reply")
	}

	reply := &Reply{Content: text}
	for _, call := range result.FunctionCalls() {
		args := make(map[string]string, len(call.Args))
		for k, v := range call.Args {
			args[k] = fmt.Sprintf("%v", v)
		}
		reply.ToolCalls = append(reply.ToolCalls, models.ToolCall{
			Name:      call.Name,
			Arguments: args,
		})
	}
	return reply, nil
}
