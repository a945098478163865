package workflow

import "time"

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Terminal reports whether the workflow status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// State holds the mutable run state of one pipeline. The id sets give
// O(1) membership tests for readiness computation; CompletedSteps and
// FailedSteps are always disjoint.
type State struct {
	WorkflowID     string                    `json:"workflow_id"`
	Status         Status                    `json:"status"`
	CurrentStep    string                    `json:"current_step,omitempty"`
	CompletedSteps map[string]struct{}       `json:"-"`
	FailedSteps    map[string]struct{}       `json:"-"`
	SkippedSteps   map[string]struct{}       `json:"-"`
	StepResults    map[string]map[string]any `json:"step_results,omitempty"`
	Context        map[string]any            `json:"context,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	StartedAt      *time.Time                `json:"started_at,omitempty"`
	CompletedAt    *time.Time                `json:"completed_at,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

// NewState creates a pending state for the given workflow id.
func NewState(workflowID string) *State {
	return &State{
		WorkflowID:     workflowID,
		Status:         StatusPending,
		CompletedSteps: make(map[string]struct{}),
		FailedSteps:    make(map[string]struct{}),
		SkippedSteps:   make(map[string]struct{}),
		StepResults:    make(map[string]map[string]any),
		Context:        make(map[string]any),
		CreatedAt:      time.Now(),
	}
}

// snapshot returns a copy safe to hand out while the control loop keeps
// mutating the original.
func (s *State) snapshot() *State {
	cp := &State{
		WorkflowID:     s.WorkflowID,
		Status:         s.Status,
		CurrentStep:    s.CurrentStep,
		CompletedSteps: copySet(s.CompletedSteps),
		FailedSteps:    copySet(s.FailedSteps),
		SkippedSteps:   copySet(s.SkippedSteps),
		StepResults:    make(map[string]map[string]any, len(s.StepResults)),
		Context:        copyMap(s.Context),
		CreatedAt:      s.CreatedAt,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		Error:          s.Error,
	}
	for id, result := range s.StepResults {
		cp.StepResults[id] = copyMap(result)
	}
	return cp
}

func copySet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
