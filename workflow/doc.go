// Package workflow implements the dependency-aware pipeline at the heart
// of agentdag: an in-memory DAG of steps, each delegating one task to a
// target agent, driven to completion wavefront by wavefront.
//
// Execution is event-driven. The ready set is recomputed after each
// wavefront resolves instead of on a fixed polling interval: the shared
// context only changes when a step completes, so nothing can become ready
// while no step is in flight. When the ready set drains with non-terminal
// steps remaining (a failed dependency, or a condition that can no longer
// flip), those steps are marked skipped and the run terminates instead of
// stalling.
//
// Steps within one wavefront run concurrently and have no relative
// ordering guarantee; their results are merged into the shared context in
// completion order, last writer wins. Merges happen exclusively in the
// control loop after the whole wavefront resolves, so the context needs no
// locking during a run.
package workflow
