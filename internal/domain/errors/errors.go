// Package errors provides domain-specific errors for agentmon.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentNameRequired  = errors.New("agent name required")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrNoActiveExecution  = errors.New("no execution in flight")
	ErrInvalidBudget      = errors.New("budget must be a finite number")
	ErrInvalidPeriod      = errors.New("invalid stats period")
	ErrSnapshotNotFound   = errors.New("no snapshot available")
	ErrChannelUnavailable = errors.New("notification channel unavailable")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeStorage       ErrorCode = "STORAGE"
	CodeNotification  ErrorCode = "NOTIFICATION"
	CodeExecution     ErrorCode = "EXECUTION"
	CodeConfiguration ErrorCode = "CONFIG"
)

// AgentmonError wraps errors with additional context for debugging and handling.
type AgentmonError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *AgentmonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *AgentmonError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgentmonError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *AgentmonError {
	return &AgentmonError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *AgentmonError, key string, value any) *AgentmonError {
	if err.Context == nil {
		err.Context = make(map[string]any)
	}
	err.Context[key] = value
	return err
}

// CodeOf returns the ErrorCode of the first AgentmonError in err's chain, or "" when none.
func CodeOf(err error) ErrorCode {
	var ae *AgentmonError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
