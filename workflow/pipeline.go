package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/quintal-io/agentdag/internal/metrics"
	"github.com/quintal-io/agentdag/types"
)

// Config tunes pipeline execution.
type Config struct {
	// BaseRetryDelay is the base of the linear backoff between step
	// attempts: delay = BaseRetryDelay × attempt number.
	BaseRetryDelay time.Duration `json:"base_retry_delay"`
	// MaxConcurrentSteps bounds how many steps of one wavefront run at
	// the same time.
	MaxConcurrentSteps int64 `json:"max_concurrent_steps"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseRetryDelay:     500 * time.Millisecond,
		MaxConcurrentSteps: 16,
	}
}

// Result is what an execution call hands back: final status, per-step
// results, the final shared context, and an aggregate error string when
// the run did not complete cleanly. A Result is returned even under
// partial failure; only configuration errors surface as Go errors.
type Result struct {
	WorkflowID  string                    `json:"workflow_id"`
	Status      Status                    `json:"status"`
	StepResults map[string]map[string]any `json:"step_results,omitempty"`
	Context     map[string]any            `json:"context,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// Pipeline is an in-memory DAG of steps plus one State, driven to
// completion by repeated ready-set resolution. Steps are appended before
// execution starts; the control loop is the only writer of step and state
// fields during a run.
type Pipeline struct {
	id          string
	name        string
	description string
	agents      types.AgentManager
	cfg         Config
	logger      *zap.Logger
	collector   *metrics.Collector

	mu        sync.Mutex
	steps     []*Step
	index     map[string]*Step
	state     *State
	pauseGate chan struct{}
	cancelRun context.CancelFunc
}

// NewPipeline creates an empty pipeline. An empty id gets a generated
// UUID; a nil logger is replaced with a noop logger; zero config fields
// fall back to defaults.
func NewPipeline(id, name, description string, agents types.AgentManager, cfg Config, logger *zap.Logger) *Pipeline {
	if id == "" {
		id = uuid.New().String()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = def.BaseRetryDelay
	}
	if cfg.MaxConcurrentSteps <= 0 {
		cfg.MaxConcurrentSteps = def.MaxConcurrentSteps
	}
	return &Pipeline{
		id:          id,
		name:        name,
		description: description,
		agents:      agents,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "pipeline"), zap.String("workflow_id", id)),
		index:       make(map[string]*Step),
		state:       NewState(id),
	}
}

// SetCollector wires an optional metrics collector.
func (p *Pipeline) SetCollector(c *metrics.Collector) {
	p.collector = c
}

// ID returns the workflow id.
func (p *Pipeline) ID() string { return p.id }

// Name returns the workflow name.
func (p *Pipeline) Name() string { return p.name }

// Description returns the workflow description.
func (p *Pipeline) Description() string { return p.description }

// State returns a snapshot of the current run state.
func (p *Pipeline) State() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.snapshot()
}

// Steps returns the steps in insertion order. The returned steps are the
// live instances; inspect them only before Execute starts or after it
// returns.
func (p *Pipeline) Steps() []*Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Step retrieves a step by id.
func (p *Pipeline) Step(id string) (*Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.index[id]
	return s, ok
}

// AddStep appends a step to the pipeline. An empty step id defaults to
// "step_<n>" (1-based position). Duplicate ids and steps added after
// execution has started are rejected.
func (p *Pipeline) AddStep(step *Step) (*Step, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Status != StatusPending {
		return nil, types.NewError(types.ErrInvalidWorkflow,
			fmt.Sprintf("workflow %s is %s, steps must be added before execution", p.id, p.state.Status))
	}
	if step.ID == "" {
		step.ID = fmt.Sprintf("step_%d", len(p.steps)+1)
	}
	if _, exists := p.index[step.ID]; exists {
		return nil, types.NewError(types.ErrInvalidWorkflow,
			fmt.Sprintf("duplicate step id %q", step.ID))
	}
	step.Status = StepStatusPending
	p.steps = append(p.steps, step)
	p.index[step.ID] = step

	p.logger.Debug("step added",
		zap.String("step_id", step.ID),
		zap.String("agent_id", step.AgentID),
		zap.Strings("depends_on", step.DependsOn),
	)
	return step, nil
}

// Pause holds the control loop before the next wavefront. Steps already
// in flight run to completion.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status != StatusRunning || p.pauseGate != nil {
		return
	}
	p.pauseGate = make(chan struct{})
	p.state.Status = StatusPaused
	p.logger.Info("workflow paused")
}

// Resume releases a paused control loop.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pauseGate == nil {
		return
	}
	close(p.pauseGate)
	p.pauseGate = nil
	if p.state.Status == StatusPaused {
		p.state.Status = StatusRunning
	}
	p.logger.Info("workflow resumed")
}

// Cancel aborts the run. In-flight attempts are torn down through context
// cancellation; remaining steps are marked skipped.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	cancel := p.cancelRun
	if p.pauseGate != nil {
		close(p.pauseGate)
		p.pauseGate = nil
	}
	if p.state.Status == StatusPending {
		now := time.Now()
		for _, s := range p.steps {
			s.markSkipped("workflow cancelled", now)
			p.state.SkippedSteps[s.ID] = struct{}{}
		}
		p.state.Status = StatusCancelled
		p.state.CompletedAt = &now
	}
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Execute runs the pipeline to completion. The caller-supplied initial
// context is merged into the shared workflow context before scheduling
// begins. A Result is always returned once the run starts; a non-nil
// error is returned only for configuration problems (unknown dependency,
// dependency cycle, pipeline already executed).
func (p *Pipeline) Execute(ctx context.Context, initial map[string]any) (*Result, error) {
	p.mu.Lock()
	if p.state.Status != StatusPending {
		status := p.state.Status
		p.mu.Unlock()
		return nil, types.NewError(types.ErrInvalidWorkflow,
			fmt.Sprintf("workflow %s already %s", p.id, status))
	}
	if err := p.validateLocked(); err != nil {
		p.state.Status = StatusFailed
		p.state.Error = err.Error()
		p.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancelRun = cancel
	now := time.Now()
	p.state.Status = StatusRunning
	p.state.StartedAt = &now
	for k, v := range initial {
		p.state.Context[k] = v
	}
	stepCount := len(p.steps)
	p.mu.Unlock()
	defer cancel()

	tracer := otel.Tracer("agentdag/workflow")
	runCtx, span := tracer.Start(runCtx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", p.id),
		attribute.String("workflow.name", p.name),
		attribute.Int("workflow.steps", stepCount),
	))
	defer span.End()

	p.logger.Info("workflow execution started", zap.Int("steps", stepCount))
	start := time.Now()

	p.runLoop(runCtx, tracer)
	result := p.finish(runCtx)

	duration := time.Since(start)
	p.collector.RecordWorkflow(string(result.Status), duration)
	span.SetAttributes(attribute.String("workflow.status", string(result.Status)))
	if result.Status != StatusCompleted {
		span.SetStatus(codes.Error, result.Error)
	}
	p.logger.Info("workflow execution finished",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", duration),
	)
	return result, nil
}

type stepOutcome struct {
	step   *Step
	result map[string]any
	err    error
}

// runLoop drives wavefronts until every step is terminal or the run is
// cancelled. The ready set is recomputed after each wavefront resolves;
// the shared context only changes when a step completes, so there is
// nothing to poll for in between.
func (p *Pipeline) runLoop(ctx context.Context, tracer trace.Tracer) {
	sem := semaphore.NewWeighted(p.cfg.MaxConcurrentSteps)

	for {
		if err := p.waitIfPaused(ctx); err != nil {
			p.skipRemaining("workflow cancelled")
			return
		}
		if ctx.Err() != nil {
			p.skipRemaining("workflow cancelled")
			return
		}

		p.mu.Lock()
		p.cascadeSkipsLocked()
		ready := p.readyStepsLocked()
		if len(ready) == 0 {
			if p.allTerminalLocked() {
				p.mu.Unlock()
				return
			}
			// Nothing in flight and nothing ready: no future completion can
			// change the context, so the remaining conditions can never
			// flip. Abandon the stranded steps instead of stalling.
			p.skipPendingLocked("condition never satisfied")
			p.mu.Unlock()
			return
		}
		now := time.Now()
		for _, s := range ready {
			s.markRunning(now)
			p.state.CurrentStep = s.ID
		}
		wfCtx := copyMap(p.state.Context)
		p.mu.Unlock()

		p.collector.RecordWavefront(len(ready))
		p.logger.Debug("wavefront launched", zap.Int("size", len(ready)))

		outcomes := make(chan stepOutcome, len(ready))
		for _, s := range ready {
			go func(step *Step) {
				if err := sem.Acquire(ctx, 1); err != nil {
					outcomes <- stepOutcome{step: step, err: err}
					return
				}
				defer sem.Release(1)
				result, err := p.runStep(ctx, tracer, step, wfCtx)
				outcomes <- stepOutcome{step: step, result: result, err: err}
			}(s)
		}

		// Merge strictly after units resolve, in completion order: steps
		// within one wavefront are unordered and the last writer wins on
		// key collision.
		for i := 0; i < len(ready); i++ {
			out := <-outcomes
			p.recordOutcome(ctx, out)
		}
	}
}

// recordOutcome folds one finished unit back into the shared state.
func (p *Pipeline) recordOutcome(ctx context.Context, out stepOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	switch {
	case out.err != nil && ctx.Err() != nil:
		// The run was torn down, not the step itself.
		out.step.markSkipped("workflow cancelled", now)
		p.state.SkippedSteps[out.step.ID] = struct{}{}
	case out.err != nil:
		out.step.markFailed(out.err, now)
		p.state.FailedSteps[out.step.ID] = struct{}{}
		p.logger.Warn("step failed",
			zap.String("step_id", out.step.ID),
			zap.String("agent_id", out.step.AgentID),
			zap.Error(out.err),
		)
	default:
		out.step.markCompleted(out.result, now)
		p.state.CompletedSteps[out.step.ID] = struct{}{}
		p.state.StepResults[out.step.ID] = out.result
		for k, v := range out.result {
			p.state.Context[k] = v
		}
	}

	if out.step.StartedAt != nil {
		p.collector.RecordStep(out.step.AgentID, out.step.TaskType,
			string(out.step.Status), now.Sub(*out.step.StartedAt))
	}
}

// runStep executes one step through its retry budget: at most
// RetryCount+1 attempts, each bounded by the per-attempt timeout, with a
// linear backoff delay between attempts. The returned error never aborts
// siblings; the control loop captures it into the step.
func (p *Pipeline) runStep(ctx context.Context, tracer trace.Tracer, step *Step, wfCtx map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrStepFailed,
				fmt.Sprintf("step %s panicked: %v", step.ID, r))
		}
	}()

	ctx, span := tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.agent_id", step.AgentID),
		attribute.String("step.task_type", step.TaskType),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	agent, ok := p.agents.GetAgent(step.AgentID)
	if !ok {
		return nil, types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q not registered", step.AgentID)).WithAgent(step.AgentID)
	}

	// Step parameters merged with the shared context; context values win
	// over step parameters on key collision.
	params := copyMap(step.Parameters)
	for k, v := range wfCtx {
		params[k] = v
	}
	task := types.NewTask(step.TaskType, params, types.PriorityNormal)

	attempts := step.RetryCount + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, lastErr = p.attempt(ctx, agent, task, step.Timeout)
		if lastErr == nil {
			span.SetAttributes(attribute.Int("step.attempts", attempt))
			return result, nil
		}
		p.logger.Debug("step attempt failed",
			zap.String("step_id", step.ID),
			zap.Int("attempt", attempt),
			zap.Int("budget", attempts),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < attempts {
			p.collector.RecordStepRetry(step.AgentID, step.TaskType)
			select {
			case <-time.After(p.cfg.BaseRetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	span.SetAttributes(attribute.Int("step.attempts", attempts))
	return nil, types.NewError(types.ErrStepFailed,
		fmt.Sprintf("step %s failed after %d attempts", step.ID, attempts)).
		WithCause(lastErr).WithAgent(step.AgentID)
}

// attempt performs a single bounded call into the agent's task executor.
// On timeout the outstanding call is abandoned to the runtime's context
// teardown; there is no further cooperative cancellation.
func (p *Pipeline) attempt(ctx context.Context, agent types.Agent, task *types.Task, timeout time.Duration) (map[string]any, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan stepOutcome, 1)
	go func() {
		result, err := agent.ExecuteTask(attemptCtx, task)
		done <- stepOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewError(types.ErrStepTimeout,
			fmt.Sprintf("attempt exceeded %s", timeout)).WithRetryable(true)
	}
}

// finish stamps the terminal workflow status: completed iff no step
// failed, cancelled when the run context was torn down, failed otherwise
// with an aggregate error naming the failed step ids.
func (p *Pipeline) finish(ctx context.Context) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.state.CompletedAt = &now
	p.state.CurrentStep = ""

	switch {
	case ctx.Err() != nil:
		p.state.Status = StatusCancelled
		p.state.Error = "workflow cancelled"
	case len(p.state.FailedSteps) > 0:
		ids := make([]string, 0, len(p.state.FailedSteps))
		for id := range p.state.FailedSteps {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		p.state.Status = StatusFailed
		p.state.Error = fmt.Sprintf("steps failed: %s", strings.Join(ids, ", "))
	default:
		p.state.Status = StatusCompleted
	}

	snap := p.state.snapshot()
	return &Result{
		WorkflowID:  snap.WorkflowID,
		Status:      snap.Status,
		StepResults: snap.StepResults,
		Context:     snap.Context,
		Error:       snap.Error,
	}
}

// waitIfPaused blocks between wavefronts while the pipeline is paused.
func (p *Pipeline) waitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	gate := p.pauseGate
	p.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validateLocked fails fast on configuration errors: unknown dependency
// ids and dependency cycles.
func (p *Pipeline) validateLocked() error {
	for _, s := range p.steps {
		for _, dep := range s.DependsOn {
			if _, ok := p.index[dep]; !ok {
				return types.NewError(types.ErrInvalidWorkflow,
					fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep))
			}
		}
	}

	// Kahn's algorithm over the dependency edges.
	indegree := make(map[string]int, len(p.steps))
	dependents := make(map[string][]string, len(p.steps))
	for _, s := range p.steps {
		indegree[s.ID] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}
	queue := make([]string, 0, len(p.steps))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(p.steps) {
		return types.NewError(types.ErrInvalidWorkflow, "dependency cycle detected")
	}
	return nil
}

// cascadeSkipsLocked marks pending steps whose dependency failed or was
// skipped. Runs to a fixpoint so skips propagate through chains.
func (p *Pipeline) cascadeSkipsLocked() {
	for {
		changed := false
		now := time.Now()
		for _, s := range p.steps {
			if s.Status != StepStatusPending {
				continue
			}
			if dep, blocked := s.blockedBy(p.state.FailedSteps, p.state.SkippedSteps); blocked {
				s.markSkipped(fmt.Sprintf("dependency %s did not complete", dep), now)
				p.state.SkippedSteps[s.ID] = struct{}{}
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// readyStepsLocked computes the ready set in step insertion order.
func (p *Pipeline) readyStepsLocked() []*Step {
	var ready []*Step
	for _, s := range p.steps {
		if s.ready(p.state.CompletedSteps, p.state.Context) {
			ready = append(ready, s)
		}
	}
	return ready
}

func (p *Pipeline) allTerminalLocked() bool {
	for _, s := range p.steps {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

// skipPendingLocked abandons every still-pending step.
func (p *Pipeline) skipPendingLocked(reason string) {
	now := time.Now()
	for _, s := range p.steps {
		if s.Status == StepStatusPending {
			s.markSkipped(reason, now)
			p.state.SkippedSteps[s.ID] = struct{}{}
		}
	}
}

// skipRemaining abandons every non-terminal step after cancellation.
func (p *Pipeline) skipRemaining(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for _, s := range p.steps {
		if !s.Status.Terminal() {
			s.markSkipped(reason, now)
			p.state.SkippedSteps[s.ID] = struct{}{}
		}
	}
}
