package events

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// Structured log event kinds.
const (
	LogAgentStarted   = "agent_started"
	LogAgentCompleted = "agent_completed"
	LogDecisionMade   = "decision_made"
	LogError          = "error"
)

// StructuredLogger writes one JSONL file per trace id. Every line carries
// timestamp, level, message, trace_id, agent, node, event and metadata.
type StructuredLogger struct {
	dir string

	mu      sync.Mutex
	traces  map[string]*zap.Logger
	files   map[string]*os.File
	encoder zapcore.EncoderConfig
}

func NewStructuredLogger(dir string) (*StructuredLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create structured log dir: %w", err)
	}
	return &StructuredLogger{
		dir:    dir,
		traces: make(map[string]*zap.Logger),
		files:  make(map[string]*os.File),
		encoder: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			MessageKey:     "message",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     utcTimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		},
	}, nil
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(domain.FormatTimestamp(t))
}

// Path returns the JSONL file of a trace.
func (l *StructuredLogger) Path(traceID string) string {
	return filepath.Join(l.dir, traceID+".jsonl")
}

func (l *StructuredLogger) trace(traceID string) (*zap.Logger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lg, ok := l.traces[traceID]; ok {
		return lg, nil
	}
	if !ValidSessionID(traceID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, traceID)
	}
	f, err := os.OpenFile(l.Path(traceID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open structured log: %w", err)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(l.encoder), zapcore.AddSync(f), zapcore.DebugLevel)
	lg := zap.New(core).With(zap.String("trace_id", traceID))
	l.traces[traceID] = lg
	l.files[traceID] = f
	return lg, nil
}

func (l *StructuredLogger) write(traceID string, level zapcore.Level, agent, node, event, message string, metadata map[string]any) error {
	lg, err := l.trace(traceID)
	if err != nil {
		return err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if ce := lg.Check(level, message); ce != nil {
		ce.Write(
			zap.String("agent", agent),
			zap.String("node", node),
			zap.String("event", event),
			zap.Any("metadata", metadata),
		)
	}
	return nil
}

func (l *StructuredLogger) AgentStarted(traceID, agent, node, message string, metadata map[string]any) error {
	return l.write(traceID, zapcore.InfoLevel, agent, node, LogAgentStarted, message, metadata)
}

// AgentCompleted records duration_ms, cost and tokens_total next to any
// caller metadata.
func (l *StructuredLogger) AgentCompleted(traceID, agent, node, message string, duration time.Duration, cost float64, tokensTotal int, metadata map[string]any) error {
	meta := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["duration_ms"] = duration.Milliseconds()
	meta["cost"] = cost
	meta["tokens_total"] = tokensTotal
	return l.write(traceID, zapcore.InfoLevel, agent, node, LogAgentCompleted, message, meta)
}

// Decision records a structured decision and the reasoning behind it.
func (l *StructuredLogger) Decision(traceID, agent, node, message string, decision any, reasoning string, metadata map[string]any) error {
	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["decision"] = decision
	meta["reasoning"] = reasoning
	return l.write(traceID, zapcore.InfoLevel, agent, node, LogDecisionMade, message, meta)
}

func (l *StructuredLogger) Error(traceID, agent, node string, err error, metadata map[string]any) error {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	msg := "error"
	if err != nil {
		msg = err.Error()
		meta["error"] = err.Error()
	}
	return l.write(traceID, zapcore.ErrorLevel, agent, node, LogError, msg, meta)
}

// CloseTrace releases the file of one trace. Later writes reopen it in append mode.
func (l *StructuredLogger) CloseTrace(traceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(traceID)
}

func (l *StructuredLogger) closeLocked(traceID string) error {
	lg, ok := l.traces[traceID]
	if !ok {
		return nil
	}
	_ = lg.Sync()
	err := l.files[traceID].Close()
	delete(l.traces, traceID)
	delete(l.files, traceID)
	return err
}

// RemoveTrace closes and deletes a trace file.
func (l *StructuredLogger) RemoveTrace(traceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.closeLocked(traceID); err != nil {
		return err
	}
	if err := os.Remove(l.Path(traceID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *StructuredLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for id := range l.traces {
		if err := l.closeLocked(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
