// Package metrics provides Prometheus instrumentation for workflow
// execution, step attempts, and coordination patterns. A nil *Collector
// is a valid no-op so callers never guard call sites.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agentdag"

// Collector holds the engine's Prometheus metrics.
type Collector struct {
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	stepRetries      *prometheus.CounterVec
	wavefrontSize    prometheus.Histogram
	patternsTotal    *prometheus.CounterVec
	patternDuration  *prometheus.HistogramVec
}

// NewCollector registers the engine metrics with reg. Passing a fresh
// prometheus.NewRegistry() keeps test instances independent; pass
// prometheus.DefaultRegisterer for process-wide exposure.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		workflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Workflow executions by terminal status.",
		}, []string{"status"}),
		workflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Wall-clock duration of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Step outcomes by agent, task type, and status.",
		}, []string{"agent_id", "task_type", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration across all attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"agent_id", "task_type"}),
		stepRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Step retry attempts by agent and task type.",
		}, []string{"agent_id", "task_type"}),
		wavefrontSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wavefront_size",
			Help:      "Number of steps dispatched per scheduling wavefront.",
			Buckets:   prometheus.LinearBuckets(1, 2, 16),
		}),
		patternsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_total",
			Help:      "Coordination pattern invocations by pattern and status.",
		}, []string{"pattern", "status"}),
		patternDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pattern_duration_seconds",
			Help:      "Coordination pattern round-trip duration.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"pattern"}),
	}
}

// RecordWorkflow records one finished workflow execution.
func (c *Collector) RecordWorkflow(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workflowsTotal.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStep records one step reaching a terminal status.
func (c *Collector) RecordStep(agentID, taskType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(agentID, taskType, status).Inc()
	c.stepDuration.WithLabelValues(agentID, taskType).Observe(duration.Seconds())
}

// RecordStepRetry records one retry attempt.
func (c *Collector) RecordStepRetry(agentID, taskType string) {
	if c == nil {
		return
	}
	c.stepRetries.WithLabelValues(agentID, taskType).Inc()
}

// RecordWavefront records the size of one dispatched wavefront.
func (c *Collector) RecordWavefront(size int) {
	if c == nil {
		return
	}
	c.wavefrontSize.Observe(float64(size))
}

// RecordPattern records one coordination pattern invocation.
func (c *Collector) RecordPattern(pattern, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.patternsTotal.WithLabelValues(pattern, status).Inc()
	c.patternDuration.WithLabelValues(pattern).Observe(duration.Seconds())
}
