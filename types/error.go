package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Configuration error codes. These are raised synchronously from the
// public API and are never retried.
const (
	ErrWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	ErrInvalidWorkflow  ErrorCode = "INVALID_WORKFLOW"
)

// Execution error codes. These are captured per step and surface as
// structured result data rather than as errors from the public API.
const (
	ErrStepTimeout   ErrorCode = "STEP_TIMEOUT"
	ErrStepFailed    ErrorCode = "STEP_FAILED"
	ErrTaskCancelled ErrorCode = "TASK_CANCELLED"
)

// Executor error codes
const (
	ErrExecutorQueueFull ErrorCode = "EXECUTOR_QUEUE_FULL"
	ErrExecutorClosed    ErrorCode = "EXECUTOR_CLOSED"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	AgentID   string    `json:"agent_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent records the agent the error originated from.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" if the error
// carries no code.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
