package service

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

func newExec(agent string, in, out int, meta map[string]any) domain.AgentExecution {
	return domain.NewAgentExecution(agent, domain.TokenUsage{Input: in, Output: out}, agent+" step", meta)
}

func TestMemoryManager_ResetIsolatesSessions(t *testing.T) {
	m := NewMemoryManager()
	m.AddExecution("s1", newExec(domain.AgentOrchestrator, 10, 5, nil))
	m.AddExecution("s1", newExec(domain.AgentStructurer, 20, 5, nil))
	m.AddExecution("s2", newExec(domain.AgentOrchestrator, 30, 5, nil))

	before := m.History("s2", domain.AgentOrchestrator)
	m.ResetSession("s1")

	if got := m.SessionHistory("s1"); len(got) != 0 {
		t.Fatalf("s1 history should be empty, got %d", len(got))
	}
	if diff := cmp.Diff(before, m.History("s2", domain.AgentOrchestrator)); diff != "" {
		t.Fatalf("s2 history changed (-before +after):\n%s", diff)
	}
	if got := m.Sessions(); len(got) != 1 || got[0] != "s2" {
		t.Fatalf("Sessions = %v", got)
	}
}

func TestMemoryManager_TotalsAndCost(t *testing.T) {
	m := NewMemoryManager()
	m.AddExecution("s", newExec(domain.AgentOrchestrator, 1200, 350, map[string]any{"model": "claude-3-5-sonnet-20241022"}))
	m.AddExecution("s", newExec(domain.AgentObserver, 1_000_000, 1_000_000, map[string]any{"model": "claude-3-5-haiku-20241022"}))
	m.AddExecution("s", newExec(domain.AgentObserver, 100, 100, map[string]any{"cost": 0.5}))
	m.AddExecution("s", newExec(domain.AgentStructurer, 100, 100, map[string]any{"model": "unknown"}))

	totals := m.Totals("s")
	wantOrch := 1200.0/1e6*3.00 + 350.0/1e6*15.00
	if got := totals.ByAgent[domain.AgentOrchestrator].Cost; math.Abs(got-wantOrch) > 1e-9 {
		t.Fatalf("orchestrator cost = %v, want %v", got, wantOrch)
	}
	if got := totals.ByAgent[domain.AgentObserver].Cost; math.Abs(got-5.30) > 1e-9 {
		t.Fatalf("observer cost = %v, want 5.30", got)
	}
	if got := totals.ByAgent[domain.AgentStructurer].Cost; got != 0 {
		t.Fatalf("unknown model cost = %v, want 0", got)
	}
	if totals.Total.Executions != 4 {
		t.Fatalf("executions = %d, want 4", totals.Total.Executions)
	}
	if totals.Total.TokensTotal != 1550+2_000_000+200+200 {
		t.Fatalf("tokens total = %d", totals.Total.TokensTotal)
	}
}

func TestMemoryManager_ConcurrentWriters(t *testing.T) {
	m := NewMemoryManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.AddExecution("s", newExec(domain.AgentObserver, 1, 1, nil))
			}
		}()
	}
	wg.Wait()
	if got := len(m.History("s", domain.AgentObserver)); got != 400 {
		t.Fatalf("history length = %d, want 400", got)
	}
}
