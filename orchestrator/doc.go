// Package orchestrator manages workflow pipelines and provides four
// coordination primitives independent of the DAG model: task delegation,
// sequential chaining, leader-follower, and peer-to-peer.
//
// The primitives differ deliberately in failure semantics. DelegateTask
// and ChainTasks propagate the underlying failure to the caller.
// Leader-follower and peer-to-peer instead collect per-unit failures as
// data and hand interpretation to a caller-supplied Aggregator or
// Coordinator.
package orchestrator
