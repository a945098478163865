// Package types holds the contracts shared by every layer of agentdag:
// the Task unit of work, the structured error taxonomy, and the minimal
// agent execution interfaces.
//
// types is the lowest-level package with no internal dependencies, so
// placing the shared interfaces here avoids circular imports between the
// workflow engine, the orchestrator, and the executor.
package types
