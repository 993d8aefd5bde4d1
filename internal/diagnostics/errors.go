package diagnostics

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range request input. It is
// surfaced before any session mutation, so the caller can correct the input
// and retry without side effects.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ReasoningError reports that the reasoning capability failed, timed out, or
// returned an unusable result. The session's user turn is preserved, so a
// retry continues the same conversation.
type ReasoningError struct {
	Cause   error
	Timeout bool
}

// Error implements the error interface
func (e *ReasoningError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("reasoning timed out: %v", e.Cause)
	}
	return fmt.Sprintf("reasoning failed: %v", e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *ReasoningError) Unwrap() error {
	return e.Cause
}

// StoreError reports that the telemetry backend was unavailable. Callers may
// retry with backoff.
type StoreError struct {
	Op    string
	Cause error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("telemetry store %s failed: %v", e.Op, e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
