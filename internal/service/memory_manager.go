package service

import (
	"sort"
	"sync"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// ExecutionRecorder receives one record per LLM-invoking step.
type ExecutionRecorder interface {
	AddExecution(sessionID string, exec domain.AgentExecution)
}

// MemoryManager keeps agent executions keyed by (session, agent) and
// aggregates their token usage and cost.
type MemoryManager struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]domain.AgentExecution
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{sessions: make(map[string]map[string][]domain.AgentExecution)}
}

// AddExecution stores exec. A missing cost is filled from the model rate table.
func (m *MemoryManager) AddExecution(sessionID string, exec domain.AgentExecution) {
	if exec.Metadata == nil {
		exec.Metadata = map[string]any{}
	}
	if _, ok := exec.Metadata["cost"]; !ok {
		if model, _ := exec.Metadata["model"].(string); model != "" {
			cost, _ := llm.CalculateCost(model, exec.TokensInput, exec.TokensOutput)
			exec.Metadata["cost"] = cost
		}
	}
	exec.TokensTotal = exec.TokensInput + exec.TokensOutput

	m.mu.Lock()
	defer m.mu.Unlock()
	agents, ok := m.sessions[sessionID]
	if !ok {
		agents = make(map[string][]domain.AgentExecution)
		m.sessions[sessionID] = agents
	}
	agents[exec.AgentName] = append(agents[exec.AgentName], exec)
}

// History returns the executions of one agent in a session, oldest first.
func (m *MemoryManager) History(sessionID, agent string) []domain.AgentExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.AgentExecution(nil), m.sessions[sessionID][agent]...)
}

// SessionHistory returns every execution of a session ordered by timestamp.
func (m *MemoryManager) SessionHistory(sessionID string) []domain.AgentExecution {
	m.mu.RLock()
	var out []domain.AgentExecution
	for _, execs := range m.sessions[sessionID] {
		out = append(out, execs...)
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// SessionUsage is the cost breakdown of one session.
type SessionUsage struct {
	SessionID string                        `json:"session_id"`
	Total     domain.UsageTotals            `json:"total"`
	ByAgent   map[string]domain.UsageTotals `json:"by_agent"`
}

func (m *MemoryManager) Totals(sessionID string) SessionUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := SessionUsage{SessionID: sessionID, ByAgent: map[string]domain.UsageTotals{}}
	for agent, execs := range m.sessions[sessionID] {
		t := domain.UsageTotals{}
		for _, e := range execs {
			t.Add(e)
			out.Total.Add(e)
		}
		out.ByAgent[agent] = t
	}
	return out
}

// ResetSession drops one session's history and leaves every other session untouched.
func (m *MemoryManager) ResetSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *MemoryManager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
