package executor

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quintal-io/agentdag/types"
)

// Manager is the agent registry the orchestration layer resolves
// against. It implements types.AgentManager.
type Manager struct {
	logger *zap.Logger

	mu     sync.RWMutex
	agents map[string]types.Agent
}

// NewManager creates an empty agent registry.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger.With(zap.String("component", "agent_manager")),
		agents: make(map[string]types.Agent),
	}
}

// Register adds an agent under its own id. Duplicate ids are rejected.
func (m *Manager) Register(agent types.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := agent.ID()
	if _, exists := m.agents[id]; exists {
		return fmt.Errorf("agent %q already registered", id)
	}
	m.agents[id] = agent
	m.logger.Info("agent registered", zap.String("agent_id", id))
	return nil
}

// RegisterHandler builds a LocalAgent running the handler on a fresh
// executor and registers it.
func (m *Manager) RegisterHandler(id string, handler Handler, cfg Config) (*LocalAgent, error) {
	agent := &LocalAgent{
		id:      id,
		exec:    New(handler, cfg, m.logger.With(zap.String("agent_id", id))),
		manager: m,
	}
	if err := m.Register(agent); err != nil {
		agent.exec.Close()
		return nil, err
	}
	return agent, nil
}

// Unregister removes an agent, closing its executor if it is local.
func (m *Manager) Unregister(id string) error {
	m.mu.Lock()
	agent, exists := m.agents[id]
	if exists {
		delete(m.agents, id)
	}
	m.mu.Unlock()
	if !exists {
		return types.NewError(types.ErrAgentNotFound,
			fmt.Sprintf("agent %q not found", id)).WithAgent(id)
	}
	if local, ok := agent.(*LocalAgent); ok {
		local.exec.Close()
	}
	m.logger.Info("agent unregistered", zap.String("agent_id", id))
	return nil
}

// GetAgent resolves an agent by id.
func (m *Manager) GetAgent(id string) (types.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	return agent, ok
}

// ListAgents returns the registered ids in sorted order.
func (m *Manager) ListAgents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close unregisters every agent and closes all local executors.
func (m *Manager) Close() {
	m.mu.Lock()
	agents := m.agents
	m.agents = make(map[string]types.Agent)
	m.mu.Unlock()
	for _, agent := range agents {
		if local, ok := agent.(*LocalAgent); ok {
			local.exec.Close()
		}
	}
}
