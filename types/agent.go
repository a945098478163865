package types

import "context"

// MessageType categorizes inter-agent notifications.
type MessageType string

const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeTaskHandoff  MessageType = "task_handoff"
	MessageTypeResult       MessageType = "result"
)

// TaskExecutor is the narrow contract the engine consumes from an agent:
// execute one task, get a map-shaped result or an error. The engine never
// inspects how the agent performs the work.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, task *Task) (map[string]any, error)
}

// Agent is the minimal agent contract shared by every coordination
// primitive: an identity, the task-execution contract, and best-effort
// messaging. SendMessage is fire-and-forget; callers log a returned error
// but never depend on delivery for correctness.
type Agent interface {
	ID() string
	TaskExecutor
	SendMessage(ctx context.Context, to, content string, msgType MessageType) error
}

// AgentManager resolves agents by id. A missing id is the standard
// not-found signal used by every coordination primitive.
type AgentManager interface {
	GetAgent(id string) (Agent, bool)
	ListAgents() []string
}
