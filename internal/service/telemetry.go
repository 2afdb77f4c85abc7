package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
)

// Telemetry fans each agent step out to the event bus, the structured log
// (trace id = session id) and the execution recorder. Every sink is optional;
// write failures are logged and never fail the step.
type Telemetry struct {
	bus      *events.Bus
	slog     *events.StructuredLogger
	recorder ExecutionRecorder
	logger   *zap.Logger
}

func NewTelemetry(bus *events.Bus, slog *events.StructuredLogger, recorder ExecutionRecorder, logger *zap.Logger) *Telemetry {
	return &Telemetry{bus: bus, slog: slog, recorder: recorder, logger: logger}
}

func (t *Telemetry) warn(what, sessionID string, err error) {
	if err != nil {
		t.logger.Warn("failed to write "+what, zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (t *Telemetry) Started(sessionID, agent, node, input string) {
	if t == nil {
		return
	}
	if t.bus != nil {
		t.warn("event", sessionID, t.bus.PublishAgentStarted(sessionID, agent, node, domain.TruncateRunes(input, 500)))
	}
	if t.slog != nil {
		t.warn("structured log", sessionID, t.slog.AgentStarted(sessionID, agent, node, agent+" started", nil))
	}
}

// Record stores an execution without emitting events.
func (t *Telemetry) Record(sessionID string, exec domain.AgentExecution) {
	if t == nil || t.recorder == nil {
		return
	}
	t.recorder.AddExecution(sessionID, exec)
}

// Completed emits the completion of a step whose usage is summed in totals.
func (t *Telemetry) Completed(sessionID, agent, node, summary string, totals domain.UsageTotals, d time.Duration, metadata map[string]any) {
	if t == nil {
		return
	}
	if t.bus != nil {
		t.warn("event", sessionID, t.bus.PublishAgentCompleted(sessionID, domain.AgentCompletedPayload{
			Agent:        agent,
			Summary:      domain.TruncateRunes(summary, domain.MaxExecutionSummary),
			TokensInput:  totals.TokensInput,
			TokensOutput: totals.TokensOutput,
			TokensTotal:  totals.TokensTotal,
			Cost:         totals.Cost,
			DurationMS:   d.Milliseconds(),
			Metadata:     metadata,
		}))
	}
	if t.slog != nil {
		t.warn("structured log", sessionID, t.slog.AgentCompleted(sessionID, agent, node,
			domain.TruncateRunes(summary, domain.MaxExecutionSummary), d, totals.Cost, totals.TokensTotal, metadata))
	}
}

// Step records exec and emits its completion in one call.
func (t *Telemetry) Step(sessionID, node string, exec domain.AgentExecution, d time.Duration) {
	if t == nil {
		return
	}
	t.Record(sessionID, exec)
	totals := domain.UsageTotals{}
	totals.Add(exec)
	t.Completed(sessionID, exec.AgentName, node, exec.Summary, totals, d, exec.Metadata)
}

func (t *Telemetry) Failed(sessionID, agent, node string, err error) {
	if t == nil {
		return
	}
	if t.bus != nil {
		t.warn("event", sessionID, t.bus.PublishAgentError(sessionID, agent, errorType(err), err))
	}
	if t.slog != nil {
		t.warn("structured log", sessionID, t.slog.Error(sessionID, agent, node, err, map[string]any{"error_type": errorType(err)}))
	}
}

func (t *Telemetry) Decision(sessionID, agent, node, message string, decision any, reasoning string) {
	if t == nil || t.slog == nil {
		return
	}
	t.warn("structured log", sessionID, t.slog.Decision(sessionID, agent, node, message, decision, reasoning, nil))
}

// Emit publishes through the bus when one is configured.
func (t *Telemetry) Emit(sessionID string, publish func(b *events.Bus) error) {
	if t == nil || t.bus == nil {
		return
	}
	t.warn("event", sessionID, publish(t.bus))
}

// CloseTrace releases the structured log file of a session.
func (t *Telemetry) CloseTrace(sessionID string) {
	if t == nil || t.slog == nil {
		return
	}
	t.warn("structured log", sessionID, t.slog.CloseTrace(sessionID))
}

// Forget deletes the event file and the structured log of a session.
func (t *Telemetry) Forget(sessionID string) error {
	if t == nil {
		return nil
	}
	if t.bus != nil {
		if err := t.bus.ClearSession(sessionID); err != nil {
			return err
		}
	}
	if t.slog != nil {
		if err := t.slog.RemoveTrace(sessionID); err != nil {
			return err
		}
	}
	return nil
}
