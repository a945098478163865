package agentdag

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quintal-io/agentdag/config"
	"github.com/quintal-io/agentdag/executor"
	"github.com/quintal-io/agentdag/types"
	"github.com/quintal-io/agentdag/workflow"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(context.Background(),
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })
	return engine
}

func TestEngineEndToEnd(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.RegisterAgent("doubler", executor.HandlerFunc(
		func(ctx context.Context, task *types.Task) (map[string]any, error) {
			n, _ := task.Parameters["n"].(int)
			return map[string]any{"n": n * 2}, nil
		}))
	require.NoError(t, err)

	wf := engine.Orchestrator().CreateWorkflow("double-twice", "")
	_, err = wf.AddStep(&workflow.Step{ID: "first", AgentID: "doubler", TaskType: "double"})
	require.NoError(t, err)
	_, err = wf.AddStep(&workflow.Step{ID: "second", AgentID: "doubler", TaskType: "double", DependsOn: []string{"first"}})
	require.NoError(t, err)

	result, err := engine.Orchestrator().ExecuteWorkflow(context.Background(), wf.ID(), map[string]any{"n": 3})
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, result.Status)
	assert.Equal(t, 12, result.Context["n"])
}

func TestEngineDelegationThroughLocalAgents(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.RegisterAgent("requester", executor.HandlerFunc(
		func(ctx context.Context, task *types.Task) (map[string]any, error) {
			return nil, nil
		}))
	require.NoError(t, err)
	target, err := engine.RegisterAgent("specialist", executor.HandlerFunc(
		func(ctx context.Context, task *types.Task) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		}))
	require.NoError(t, err)

	result, err := engine.Orchestrator().DelegateTask(context.Background(),
		"requester", "specialist", "review", nil, types.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, true, result["done"])

	assert.Equal(t, int64(1), target.Stats().Completed)

	// The handoff notification landed in the target's inbox via the
	// requester's manager-routed messaging.
	msgs := target.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "requester", msgs[0].From)
	assert.Equal(t, types.MessageTypeTaskHandoff, msgs[0].Type)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.MaxConcurrentSteps = 0

	_, err := New(context.Background(), WithConfig(cfg), WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestEngineDefaultsApplied(t *testing.T) {
	engine := newTestEngine(t)
	assert.Equal(t, 500*time.Millisecond, engine.Config().Engine.BaseRetryDelay)
	assert.NotNil(t, engine.Logger())
	assert.NotNil(t, engine.Agents())
}
