// Package executor provides the local agent runtime: a bounded
// priority-queue task executor with retry and rate limiting, an
// in-process agent backed by it, and a registry that resolves agents
// for the orchestration layer.
package executor
