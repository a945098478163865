package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	err := NewError(ErrAgentNotFound, "agent not registered")
	assert.Equal(t, "[AGENT_NOT_FOUND] agent not registered", err.Error())

	withCause := NewError(ErrStepFailed, "step exploded").WithCause(errors.New("boom"))
	assert.Equal(t, "[STEP_FAILED] step exploded: boom", withCause.Error())
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	err := NewError(ErrStepTimeout, "attempt timed out").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_Builders(t *testing.T) {
	t.Parallel()

	err := NewError(ErrExecutorQueueFull, "queue full").
		WithRetryable(true).
		WithAgent("worker-1")

	assert.True(t, err.Retryable)
	assert.Equal(t, "worker-1", err.AgentID)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(NewError(ErrStepTimeout, "t").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrStepTimeout, "t")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))

	// Wrapped structured errors are still recognized.
	wrapped := fmt.Errorf("context: %w", NewError(ErrStepFailed, "f").WithRetryable(true))
	assert.True(t, IsRetryable(wrapped))
}

func TestGetErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrWorkflowNotFound, GetErrorCode(NewError(ErrWorkflowNotFound, "x")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.True(t, IsCode(NewError(ErrInvalidWorkflow, "bad dep"), ErrInvalidWorkflow))
	assert.False(t, IsCode(nil, ErrInvalidWorkflow))
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	task := NewTask("analyze", map[string]any{"input": "doc"}, PriorityHigh)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "analyze", task.Type)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.False(t, task.CreatedAt.IsZero())
}
