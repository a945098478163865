package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quintal-io/agentdag/internal/metrics"
	"github.com/quintal-io/agentdag/types"
	"github.com/quintal-io/agentdag/workflow"
)

// Orchestrator is the registry of workflow pipelines plus the coordination
// primitives. The registry is single-writer per workflow id: one workflow
// is executed by at most one caller at a time.
type Orchestrator struct {
	agents    types.AgentManager
	cfg       workflow.Config
	logger    *zap.Logger
	collector *metrics.Collector

	mu        sync.RWMutex
	workflows map[string]*workflow.Pipeline
	active    map[string]struct{}
}

// New creates an orchestrator on top of an agent manager. A nil logger is
// replaced with a noop logger; zero config fields fall back to defaults.
func New(agents types.AgentManager, cfg workflow.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		agents:    agents,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "orchestrator")),
		workflows: make(map[string]*workflow.Pipeline),
		active:    make(map[string]struct{}),
	}
}

// SetCollector wires an optional metrics collector into the orchestrator
// and every pipeline it creates afterwards.
func (o *Orchestrator) SetCollector(c *metrics.Collector) {
	o.collector = c
}

// CreateWorkflow registers a new empty pipeline under a generated id.
func (o *Orchestrator) CreateWorkflow(name, description string) *workflow.Pipeline {
	id := uuid.New().String()
	p := workflow.NewPipeline(id, name, description, o.agents, o.cfg, o.logger)
	p.SetCollector(o.collector)

	o.mu.Lock()
	o.workflows[id] = p
	o.mu.Unlock()

	o.logger.Info("workflow created",
		zap.String("workflow_id", id),
		zap.String("name", name),
	)
	return p
}

// GetWorkflow looks up a pipeline by id.
func (o *Orchestrator) GetWorkflow(id string) (*workflow.Pipeline, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.workflows[id]
	if !ok {
		return nil, types.NewError(types.ErrWorkflowNotFound,
			fmt.Sprintf("workflow %q not found", id))
	}
	return p, nil
}

// ListWorkflows returns a summary of every registered workflow.
func (o *Orchestrator) ListWorkflows() []WorkflowInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	infos := make([]WorkflowInfo, 0, len(o.workflows))
	for id, p := range o.workflows {
		_, isActive := o.active[id]
		infos = append(infos, WorkflowInfo{
			ID:     id,
			Name:   p.Name(),
			Status: p.State().Status,
			Active: isActive,
		})
	}
	return infos
}

// WorkflowInfo is a registry summary entry.
type WorkflowInfo struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status workflow.Status `json:"status"`
	Active bool            `json:"active"`
}

// ExecuteWorkflow runs a registered pipeline with the given initial
// context. It fails immediately with a not-found error for an unknown id,
// marks the workflow active for the duration of the run, and always
// un-marks it afterward.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, id string, initial map[string]any) (*workflow.Result, error) {
	p, err := o.GetWorkflow(id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active[id] = struct{}{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
	}()

	return p.Execute(ctx, initial)
}

// Status describes the orchestrator at a point in time.
type Status struct {
	TotalWorkflows   int                     `json:"total_workflows"`
	ActiveWorkflows  []string                `json:"active_workflows"`
	WorkflowsByState map[workflow.Status]int `json:"workflows_by_state"`
	RegisteredAgents []string                `json:"registered_agents"`
}

// Status returns an orchestration status snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := Status{
		TotalWorkflows:   len(o.workflows),
		ActiveWorkflows:  make([]string, 0, len(o.active)),
		WorkflowsByState: make(map[workflow.Status]int),
	}
	for id := range o.active {
		st.ActiveWorkflows = append(st.ActiveWorkflows, id)
	}
	for _, p := range o.workflows {
		st.WorkflowsByState[p.State().Status]++
	}
	if o.agents != nil {
		st.RegisteredAgents = o.agents.ListAgents()
	}
	return st
}
