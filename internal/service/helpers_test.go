package service

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/config"
	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/embedding"
	"github.com/Harshitk-cp/paper-agent/internal/events"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
	"github.com/Harshitk-cp/paper-agent/internal/store"
)

func testAgentConfigs() config.AgentConfigs {
	out := config.AgentConfigs{}
	for _, name := range []string{domain.AgentOrchestrator, domain.AgentStructurer, domain.AgentMethodologist, domain.AgentObserver} {
		out[name] = &config.AgentConfig{
			Name:          name,
			Prompt:        "You are the " + name + ".",
			Tags:          []string{name},
			ContextLimits: config.ContextLimits{MaxInputTokens: 8000, MaxOutputTokens: 1000, MaxTotalTokens: 9000},
			Model:         "claude-3-5-haiku-20241022",
			Metadata:      config.AgentMetadata{Version: "1", Epic: "test", CreatedAt: "2025-01-01", Description: name},
		}
	}
	return out
}

func newTestCatalog(t *testing.T) *CatalogService {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewCatalogService(
		store.NewSQLiteConceptStore(db),
		store.NewSQLiteVectorIndex(db),
		embedding.NewHashClient(domain.EmbeddingDimensions),
		zap.NewNop(),
	)
}

// harness wires the full dialogue graph against a scripted LLM.
type harness struct {
	mock      *llm.MockClient
	bus       *events.Bus
	slog      *events.StructuredLogger
	memory    *MemoryManager
	telemetry *Telemetry
	runtime   *AgentRuntime
	catalog   *CatalogService
	observer  *ObserverService
	review    *ReviewService
	engine    *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	bus, err := events.NewBus(filepath.Join(t.TempDir(), "events"), logger)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	slog, err := events.NewStructuredLogger(filepath.Join(t.TempDir(), "structured"))
	if err != nil {
		t.Fatalf("new structured logger: %v", err)
	}
	t.Cleanup(func() { _ = slog.Close() })

	h := &harness{mock: llm.NewMockClient(), bus: bus, slog: slog, memory: NewMemoryManager()}
	h.telemetry = NewTelemetry(bus, slog, h.memory, logger)
	h.runtime = NewAgentRuntime(h.mock, testAgentConfigs(), logger)
	h.catalog = newTestCatalog(t)
	h.observer = NewObserverService(h.runtime, h.catalog, h.telemetry, logger)
	h.review = NewReviewService(h.runtime, NewMemoryCheckpointStore(), h.telemetry, logger)
	h.engine = NewEngine(
		h.runtime,
		h.observer,
		NewOrchestratorService(h.runtime, h.telemetry, logger),
		NewStructurerService(h.runtime, h.telemetry, logger),
		NewMethodologistService(h.runtime, h.telemetry, logger),
		h.review,
		h.memory,
		h.telemetry,
		logger,
	)
	return h
}

func (h *harness) eventTypes(t *testing.T, sessionID string) []domain.EventType {
	t.Helper()
	evs, err := h.bus.GetSessionEvents(sessionID)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	out := make([]domain.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.EventType)
	}
	return out
}

func hasEvent(types []domain.EventType, want domain.EventType) bool {
	for _, ty := range types {
		if ty == want {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }
