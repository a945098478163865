package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task priority levels. Higher values are dequeued first.
const (
	PriorityLow    = 0
	PriorityNormal = 5
	PriorityHigh   = 10
)

// Task is the unit of work handed to an agent's task executor.
// A task is created when a workflow step becomes ready and discarded
// once execution completes; it carries no state of its own beyond status.
type Task struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   int            `json:"priority"`
	CreatedAt  time.Time      `json:"created_at"`
	Status     TaskStatus     `json:"status"`
}

// NewTask creates a pending task with a generated ID.
func NewTask(taskType string, parameters map[string]any, priority int) *Task {
	return &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		Parameters: parameters,
		Priority:   priority,
		CreatedAt:  time.Now(),
		Status:     TaskStatusPending,
	}
}
