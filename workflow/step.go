package workflow

import (
	"time"
)

// StepStatus represents the lifecycle state of a workflow step.
// Transitions are one-directional (pending → running → completed/failed)
// and terminal states are sticky.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	// StepStatusSkipped marks a step whose dependency failed (or was itself
	// skipped), or whose condition can no longer become true. Skipped is
	// terminal but does not count as a failure.
	StepStatusSkipped StepStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// Condition gates a step's readiness on the shared workflow context.
// A nil Condition means the step is always ready once its dependencies
// complete.
type Condition interface {
	Evaluate(wfContext map[string]any) bool
}

// ConditionFunc adapts a plain function to the Condition interface.
type ConditionFunc func(wfContext map[string]any) bool

func (f ConditionFunc) Evaluate(wfContext map[string]any) bool { return f(wfContext) }

// Step is one DAG node: a task bound to a target agent plus the scheduling
// metadata the pipeline needs. Steps are created via Pipeline.AddStep and
// mutated only by the pipeline control loop during a run.
type Step struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	TaskType   string         `json:"task_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Condition  Condition      `json:"-"`
	// RetryCount is the retry budget: a step is attempted at most
	// RetryCount+1 times before it is marked failed.
	RetryCount int `json:"retry_count"`
	// Timeout bounds a single attempt. Zero means no per-attempt bound.
	Timeout time.Duration `json:"timeout,omitempty"`

	Status      StepStatus     `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Err         string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ready reports whether the step can be scheduled: pending, every
// dependency completed, and the condition (if any) true for the current
// shared context.
func (s *Step) ready(completed map[string]struct{}, wfContext map[string]any) bool {
	if s.Status != StepStatusPending {
		return false
	}
	for _, dep := range s.DependsOn {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	if s.Condition != nil && !s.Condition.Evaluate(wfContext) {
		return false
	}
	return true
}

// blockedBy returns the first dependency that landed in a terminal
// non-completed state, if any. Such a step can never become ready.
func (s *Step) blockedBy(failed, skipped map[string]struct{}) (string, bool) {
	for _, dep := range s.DependsOn {
		if _, ok := failed[dep]; ok {
			return dep, true
		}
		if _, ok := skipped[dep]; ok {
			return dep, true
		}
	}
	return "", false
}

// setStatus applies a transition, keeping terminal states sticky.
func (s *Step) setStatus(status StepStatus) bool {
	if s.Status.Terminal() {
		return false
	}
	s.Status = status
	return true
}

// markRunning stamps the step as started.
func (s *Step) markRunning(now time.Time) {
	if s.setStatus(StepStatusRunning) {
		s.StartedAt = &now
	}
}

// markCompleted records the result and stamps completion.
func (s *Step) markCompleted(result map[string]any, now time.Time) {
	if s.setStatus(StepStatusCompleted) {
		s.Result = result
		s.CompletedAt = &now
	}
}

// markFailed records the error and stamps completion.
func (s *Step) markFailed(err error, now time.Time) {
	if s.setStatus(StepStatusFailed) {
		s.Err = err.Error()
		s.CompletedAt = &now
	}
}

// markSkipped records why the step was abandoned.
func (s *Step) markSkipped(reason string, now time.Time) {
	if s.setStatus(StepStatusSkipped) {
		s.Err = reason
		s.CompletedAt = &now
	}
}
