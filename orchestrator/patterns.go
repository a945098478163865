package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quintal-io/agentdag/types"
)

// TaskSpec describes a task to hand to an agent within a coordination
// primitive: the type, the base parameters, and the queue priority.
type TaskSpec struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   int            `json:"priority"`
}

func (t TaskSpec) newTask(extra map[string]any) *types.Task {
	params := make(map[string]any, len(t.Parameters)+len(extra))
	for k, v := range t.Parameters {
		params[k] = v
	}
	for k, v := range extra {
		params[k] = v
	}
	return types.NewTask(t.Type, params, t.Priority)
}

// ResultTransformer maps the result of chain stage i into the parameters
// of stage i+1. A nil transformer passes the map result through unchanged.
type ResultTransformer interface {
	Transform(result map[string]any, index int) (map[string]any, error)
}

// TransformerFunc adapts a plain function to ResultTransformer.
type TransformerFunc func(result map[string]any, index int) (map[string]any, error)

func (f TransformerFunc) Transform(result map[string]any, index int) (map[string]any, error) {
	return f(result, index)
}

// FollowerResult is one follower's outcome in a leader-follower round:
// either a value or a captured error, never both.
type FollowerResult struct {
	AgentID string         `json:"agent_id"`
	Result  map[string]any `json:"result,omitempty"`
	Err     error          `json:"-"`
}

// Aggregator reduces the follower result list into one combined outcome.
// A nil aggregator returns the list unchanged.
type Aggregator interface {
	Aggregate(results []FollowerResult) (any, error)
}

// AggregatorFunc adapts a plain function to Aggregator.
type AggregatorFunc func(results []FollowerResult) (any, error)

func (f AggregatorFunc) Aggregate(results []FollowerResult) (any, error) { return f(results) }

// PeerResult is one peer's outcome in a peer-to-peer round.
type PeerResult struct {
	AgentID string         `json:"agent_id"`
	Result  map[string]any `json:"result,omitempty"`
	Err     error          `json:"-"`
}

// Coordinator reconciles the per-peer results into one outcome. A nil
// coordinator returns the result map unchanged.
type Coordinator interface {
	Coordinate(results map[string]PeerResult) (any, error)
}

// CoordinatorFunc adapts a plain function to Coordinator.
type CoordinatorFunc func(results map[string]PeerResult) (any, error)

func (f CoordinatorFunc) Coordinate(results map[string]PeerResult) (any, error) { return f(results) }

// DelegateTask hands one task from one agent to another and awaits the
// target's result. The target must be registered; an unknown target fails
// synchronously before any task is built. The source agent is notified
// best-effort and never awaited.
func (o *Orchestrator) DelegateTask(ctx context.Context, from, to, taskType string, parameters map[string]any, priority int) (map[string]any, error) {
	target, ok := o.agents.GetAgent(to)
	if !ok {
		return nil, types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q not found", to)).WithAgent(to)
	}

	if source, ok := o.agents.GetAgent(from); ok {
		if err := source.SendMessage(ctx, to,
			fmt.Sprintf("delegated task %s", taskType), types.MessageTypeTaskHandoff); err != nil {
			o.logger.Debug("delegation notification failed",
				zap.String("from", from),
				zap.String("to", to),
				zap.Error(err),
			)
		}
	}

	start := time.Now()
	task := types.NewTask(taskType, parameters, priority)
	result, err := target.ExecuteTask(ctx, task)
	o.recordPattern("delegate", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("delegate %s to %s: %w", taskType, to, err)
	}
	return result, nil
}

// ChainTasks executes the same task type sequentially across the agents
// in order. Stage i's result feeds stage i+1's parameters, through the
// transformer when supplied. A failure at stage i propagates to the
// caller and stage i+1 is never invoked.
func (o *Orchestrator) ChainTasks(ctx context.Context, agentIDs []string, taskType string, initialParams map[string]any, transformer ResultTransformer) ([]map[string]any, error) {
	start := time.Now()
	results := make([]map[string]any, 0, len(agentIDs))
	params := initialParams

	for i, id := range agentIDs {
		agent, ok := o.agents.GetAgent(id)
		if !ok {
			err := types.NewError(types.ErrAgentNotFound,
				fmt.Sprintf("agent %q not found", id)).WithAgent(id)
			o.recordPattern("chain", err, time.Since(start))
			return results, err
		}

		task := types.NewTask(taskType, params, types.PriorityNormal)
		result, err := agent.ExecuteTask(ctx, task)
		if err != nil {
			o.recordPattern("chain", err, time.Since(start))
			return results, fmt.Errorf("chain stage %d (%s): %w", i+1, id, err)
		}
		results = append(results, result)

		if transformer != nil {
			params, err = transformer.Transform(result, i)
			if err != nil {
				o.recordPattern("chain", err, time.Since(start))
				return results, fmt.Errorf("chain transform after stage %d (%s): %w", i+1, id, err)
			}
		} else {
			params = result
		}
	}

	o.recordPattern("chain", nil, time.Since(start))
	return results, nil
}

// CoordinateLeaderFollower runs the leader task first as a barrier, then
// fans the follower task out concurrently with the leader's result
// injected into every follower's parameters under "leader_result".
// A leader failure propagates before any follower is invoked; follower
// failures become values in the result list for the aggregator to judge.
// Unregistered follower ids are silently skipped.
func (o *Orchestrator) CoordinateLeaderFollower(ctx context.Context, leaderID string, followerIDs []string, leaderTask, followerTemplate TaskSpec, aggregator Aggregator) (any, error) {
	start := time.Now()

	leader, ok := o.agents.GetAgent(leaderID)
	if !ok {
		err := types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("leader agent %q not found", leaderID)).WithAgent(leaderID)
		o.recordPattern("leader_follower", err, time.Since(start))
		return nil, err
	}

	leaderResult, err := leader.ExecuteTask(ctx, leaderTask.newTask(nil))
	if err != nil {
		o.recordPattern("leader_follower", err, time.Since(start))
		return nil, fmt.Errorf("leader %s: %w", leaderID, err)
	}

	type slot struct {
		index int
		agent types.Agent
	}
	slots := make([]slot, 0, len(followerIDs))
	for _, id := range followerIDs {
		agent, ok := o.agents.GetAgent(id)
		if !ok {
			o.logger.Warn("follower not registered, skipping", zap.String("agent_id", id))
			continue
		}
		slots = append(slots, slot{index: len(slots), agent: agent})
	}

	results := make([]FollowerResult, len(slots))
	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(s slot) {
			defer wg.Done()
			task := followerTemplate.newTask(map[string]any{"leader_result": leaderResult})
			result, err := s.agent.ExecuteTask(ctx, task)
			results[s.index] = FollowerResult{AgentID: s.agent.ID(), Result: result, Err: err}
		}(s)
	}
	wg.Wait()

	o.recordPattern("leader_follower", nil, time.Since(start))
	if aggregator == nil {
		return results, nil
	}
	return aggregator.Aggregate(results)
}

// CoordinatePeerToPeer runs the same task template concurrently across
// all agents with no leader, collecting a value-or-error per agent, and
// hands the map to the coordinator. Unregistered ids are silently skipped.
func (o *Orchestrator) CoordinatePeerToPeer(ctx context.Context, agentIDs []string, template TaskSpec, coordinator Coordinator) (any, error) {
	start := time.Now()

	peers := make([]types.Agent, 0, len(agentIDs))
	for _, id := range agentIDs {
		agent, ok := o.agents.GetAgent(id)
		if !ok {
			o.logger.Warn("peer not registered, skipping", zap.String("agent_id", id))
			continue
		}
		peers = append(peers, agent)
	}

	results := make(map[string]PeerResult, len(peers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer types.Agent) {
			defer wg.Done()
			result, err := peer.ExecuteTask(ctx, template.newTask(nil))
			mu.Lock()
			results[peer.ID()] = PeerResult{AgentID: peer.ID(), Result: result, Err: err}
			mu.Unlock()
		}(peer)
	}
	wg.Wait()

	o.recordPattern("peer_to_peer", nil, time.Since(start))
	if coordinator == nil {
		return results, nil
	}
	return coordinator.Coordinate(results)
}

func (o *Orchestrator) recordPattern(pattern string, err error, duration time.Duration) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	o.collector.RecordPattern(pattern, status, duration)
}
