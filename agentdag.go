// Package agentdag provides a top-level entry point that wires the
// module together: configuration, logging, metrics, telemetry, the
// agent registry, and the workflow orchestrator.
//
// Usage:
//
//	engine, err := agentdag.New(ctx)
//	engine.RegisterAgent("analyzer", handler)
//	wf := engine.Orchestrator().CreateWorkflow("pipeline", "")
//	wf.AddStep(&workflow.Step{AgentID: "analyzer", TaskType: "analyze"})
//	result, err := engine.Orchestrator().ExecuteWorkflow(ctx, wf.ID(), nil)
//
// Every component is also usable on its own; this package only saves
// the wiring boilerplate.
package agentdag

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quintal-io/agentdag/config"
	"github.com/quintal-io/agentdag/executor"
	"github.com/quintal-io/agentdag/internal/metrics"
	"github.com/quintal-io/agentdag/internal/telemetry"
	"github.com/quintal-io/agentdag/orchestrator"
	"github.com/quintal-io/agentdag/workflow"
)

// Engine bundles the configured components of one agentdag instance.
type Engine struct {
	cfg          *config.Config
	logger       *zap.Logger
	agents       *executor.Manager
	orchestrator *orchestrator.Orchestrator
	collector    *metrics.Collector
	providers    *telemetry.Providers
}

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// Option configures the engine created by [New].
type Option func(*options)

// WithConfig supplies a pre-built configuration, bypassing the loader.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from the given YAML file.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger supplies a logger instead of building one from LogConfig.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer sets the Prometheus registerer for engine metrics.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds a fully wired engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.NewLoader().WithConfigPath(o.configPath).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = config.NewLogger(cfg.Log)
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		collector = metrics.NewCollector(reg)
	}

	agents := executor.NewManager(logger)
	orch := orchestrator.New(agents, workflow.Config{
		BaseRetryDelay:     cfg.Engine.BaseRetryDelay,
		MaxConcurrentSteps: int64(cfg.Engine.MaxConcurrentSteps),
	}, logger)
	orch.SetCollector(collector)

	return &Engine{
		cfg:          cfg,
		logger:       logger,
		agents:       agents,
		orchestrator: orch,
		collector:    collector,
		providers:    providers,
	}, nil
}

// RegisterAgent registers a local agent running the handler on its own
// executor, configured from the engine's ExecutorConfig.
func (e *Engine) RegisterAgent(id string, handler executor.Handler) (*executor.LocalAgent, error) {
	return e.agents.RegisterHandler(id, handler, executor.Config{
		QueueCapacity:  e.cfg.Executor.QueueCapacity,
		MaxRetries:     e.cfg.Executor.MaxRetries,
		BaseRetryDelay: e.cfg.Executor.BaseRetryDelay,
		RateLimit:      e.cfg.Executor.RateLimit,
		RateBurst:      e.cfg.Executor.RateBurst,
	})
}

// Orchestrator returns the workflow orchestrator.
func (e *Engine) Orchestrator() *orchestrator.Orchestrator { return e.orchestrator }

// Agents returns the agent registry.
func (e *Engine) Agents() *executor.Manager { return e.agents }

// Config returns the effective configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Logger returns the shared logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Shutdown closes every agent executor and flushes telemetry.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.agents.Close()
	if err := e.providers.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown telemetry: %w", err)
	}
	_ = e.logger.Sync()
	return nil
}
