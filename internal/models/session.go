package models

import "time"

// TurnRole identifies who produced a turn in a diagnostic conversation
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
)

// ToolCall is a tool invocation requested by the reasoning capability
type ToolCall struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// DiagnosticTurn is one message within a diagnostic session.
// Turns are immutable once appended.
type DiagnosticTurn struct {
	Role      TurnRole   `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// DiagnoseMode selects the depth of evidence gathering for a diagnosis
type DiagnoseMode string

const (
	// ModeQuick uses only caller-supplied readings, no store query
	ModeQuick DiagnoseMode = "quick"

	// ModeDeep additionally queries stored readings and scores them
	ModeDeep DiagnoseMode = "deep"

	// ModePredictive additionally aggregates a longer lookback for trends
	ModePredictive DiagnoseMode = "predictive"
)

// Valid reports whether the mode is one of the known values
func (m DiagnoseMode) Valid() bool {
	switch m {
	case ModeQuick, ModeDeep, ModePredictive:
		return true
	}
	return false
}

// DiagnosticSession is a bounded-lifetime, multi-turn conversation scoped to
// one device investigation. Sessions are owned exclusively by the session
// store; callers only ever see copies.
type DiagnosticSession struct {
	SessionID    string           `json:"sessionId"`
	DeviceCode   string           `json:"deviceCode"`
	Mode         DiagnoseMode     `json:"mode"`
	Turns        []DiagnosticTurn `json:"turns"`
	LastAccessed time.Time        `json:"lastAccessed"`
}
