package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quintal-io/agentdag/types"
)

// Message is one inter-agent notification held in a local agent's inbox.
type Message struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Content string            `json:"content"`
	Type    types.MessageType `json:"type"`
	SentAt  time.Time         `json:"sent_at"`
}

// LocalAgent is an in-process agent: its tasks run on a dedicated
// executor and its messages are routed through the manager it was
// registered with.
type LocalAgent struct {
	id      string
	exec    *Executor
	manager *Manager

	mu    sync.Mutex
	inbox []Message
}

// ID returns the agent identifier.
func (a *LocalAgent) ID() string { return a.id }

// ExecuteTask runs the task on the agent's executor.
func (a *LocalAgent) ExecuteTask(ctx context.Context, task *types.Task) (map[string]any, error) {
	return a.exec.Execute(ctx, task)
}

// SendMessage delivers a message to another local agent's inbox.
// Delivery is best-effort in-memory; an unknown recipient is an error
// the caller may log and ignore.
func (a *LocalAgent) SendMessage(ctx context.Context, to, content string, msgType types.MessageType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, ok := a.manager.GetAgent(to)
	if !ok {
		return types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("recipient %q not found", to)).WithAgent(to)
	}
	local, ok := target.(*LocalAgent)
	if !ok {
		return fmt.Errorf("recipient %q does not accept local messages", to)
	}
	local.deliver(Message{
		From:    a.id,
		To:      to,
		Content: content,
		Type:    msgType,
		SentAt:  time.Now(),
	})
	return nil
}

// Messages returns a copy of the inbox in delivery order.
func (a *LocalAgent) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.inbox))
	copy(out, a.inbox)
	return out
}

// Stats exposes the underlying executor counters.
func (a *LocalAgent) Stats() Stats { return a.exec.Stats() }

func (a *LocalAgent) deliver(msg Message) {
	a.mu.Lock()
	a.inbox = append(a.inbox, msg)
	a.mu.Unlock()
}
