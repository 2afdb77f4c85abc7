package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

const (
	filePrefix = "events-"
	fileSuffix = ".json"
)

// sessionFile is the on-disk shape of one session's log.
type sessionFile struct {
	SessionID string         `json:"session_id"`
	Events    []domain.Event `json:"events"`
}

// Bus appends events to one JSON file per session. Each publish loads the
// file, appends and rewrites it through a temp file and rename, so readers
// see either the old or the new content.
type Bus struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewBus(dir string, logger *zap.Logger) (*Bus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &Bus{dir: dir, logger: logger, now: time.Now}, nil
}

func (b *Bus) Dir() string { return b.dir }

// Path returns the event file of a session.
func (b *Bus) Path(sessionID string) string {
	return filepath.Join(b.dir, filePrefix+sessionID+fileSuffix)
}

// SessionIDFromPath extracts the session id of an event file path, or "".
func SessionIDFromPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileSuffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileSuffix)
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Publish appends ev to its session file. Timestamps are clamped so they never
// go backwards within a file.
func (b *Bus) Publish(ev domain.Event) error {
	if !ValidSessionID(ev.SessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, ev.SessionID)
	}
	if !domain.ValidEventType(string(ev.EventType)) {
		return fmt.Errorf("unknown event type %q", ev.EventType)
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	file, err := b.load(ev.SessionID)
	if err != nil {
		return err
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Microsecond)
	if n := len(file.Events); n > 0 {
		if last := file.Events[n-1].Timestamp; ev.Timestamp.Before(last) {
			ev.Timestamp = last
		}
	}

	file.Events = append(file.Events, ev)
	return b.save(file)
}

func (b *Bus) publish(sessionID string, typ domain.EventType, payload any) error {
	ev, err := domain.NewEvent(sessionID, typ, payload)
	if err != nil {
		return err
	}
	ev.Timestamp = b.now()
	return b.Publish(ev)
}

// load reads a session file for writing. A corrupt file is an error here so
// a publish never overwrites history it could not read.
func (b *Bus) load(sessionID string) (*sessionFile, error) {
	data, err := os.ReadFile(b.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return &sessionFile{SessionID: sessionID, Events: []domain.Event{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode events file for %s: %w", sessionID, err)
	}
	if f.SessionID == "" {
		f.SessionID = sessionID
	}
	return &f, nil
}

func (b *Bus) save(f *sessionFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode events file: %w", err)
	}
	tmp, err := os.CreateTemp(b.dir, ".events-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp events file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp events file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.Path(f.SessionID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace events file: %w", err)
	}
	return nil
}

// GetSessionEvents returns the events of a session in insertion order. A
// missing file yields an empty list; a file that fails to decode (for example
// while a writer is mid-flight on another platform) yields an empty list and
// a warning.
func (b *Bus) GetSessionEvents(sessionID string) ([]domain.Event, error) {
	if !ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	data, err := os.ReadFile(b.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		b.logger.Warn("failed to decode events file",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return []domain.Event{}, nil
	}
	if f.Events == nil {
		f.Events = []domain.Event{}
	}
	return f.Events, nil
}

// ListActiveSessions returns sessions whose last event is within maxAge,
// newest first. maxAge <= 0 lists every session.
func (b *Bus) ListActiveSessions(maxAge time.Duration) ([]domain.SessionInfo, error) {
	paths, err := filepath.Glob(filepath.Join(b.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	cutoff := b.now().Add(-maxAge)

	var out []domain.SessionInfo
	for _, p := range paths {
		id := SessionIDFromPath(p)
		if !ValidSessionID(id) {
			continue
		}
		evs, err := b.GetSessionEvents(id)
		if err != nil || len(evs) == 0 {
			continue
		}
		last := evs[len(evs)-1].Timestamp
		if maxAge > 0 && last.Before(cutoff) {
			continue
		}
		out = append(out, domain.SessionInfo{SessionID: id, EventCount: len(evs), LastEventAt: last})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastEventAt.After(out[j].LastEventAt) })
	return out, nil
}

// ClearSession deletes the session file. Clearing a missing session is a no-op.
func (b *Bus) ClearSession(sessionID string) error {
	if !ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.Path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GetSessionSummary condenses a session file. It returns nil for a session
// with no events.
func (b *Bus) GetSessionSummary(sessionID string) (*domain.SessionSummary, error) {
	evs, err := b.GetSessionEvents(sessionID)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}

	s := &domain.SessionSummary{
		SessionID:   sessionID,
		TotalEvents: len(evs),
		Status:      domain.SessionStatusActive,
	}
	first := domain.FormatTimestamp(evs[0].Timestamp)
	last := domain.FormatTimestamp(evs[len(evs)-1].Timestamp)
	s.StartedAt = &first
	s.LastEventAt = &last

	for _, ev := range evs {
		switch ev.EventType {
		case domain.EventSessionStarted:
			ts := domain.FormatTimestamp(ev.Timestamp)
			s.StartedAt = &ts
			if in := ev.String("user_input"); in != "" && s.UserInput == nil {
				s.UserInput = &in
			}
		case domain.EventSessionCompleted:
			s.Status = domain.SessionStatusCompleted
			fs := ev.String("final_status")
			s.FinalStatus = &fs
		}
	}
	return s, nil
}

// RemoveStale deletes session files whose last modification is older than
// maxAge and returns the ids removed.
func (b *Bus) RemoveStale(maxAge time.Duration) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(b.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	cutoff := b.now().Add(-maxAge)

	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("failed to remove stale events file", zap.String("path", p), zap.Error(err))
			continue
		}
		removed = append(removed, SessionIDFromPath(p))
	}
	return removed, nil
}

// Typed helpers, one per event type.

func (b *Bus) PublishSessionStarted(sessionID, userInput string) error {
	return b.publish(sessionID, domain.EventSessionStarted, domain.SessionStartedPayload{UserInput: userInput})
}

func (b *Bus) PublishSessionCompleted(sessionID string, p domain.SessionCompletedPayload) error {
	return b.publish(sessionID, domain.EventSessionCompleted, p)
}

func (b *Bus) PublishAgentStarted(sessionID, agent, node, input string) error {
	return b.publish(sessionID, domain.EventAgentStarted, domain.AgentStartedPayload{Agent: agent, Node: node, Input: input})
}

func (b *Bus) PublishAgentCompleted(sessionID string, p domain.AgentCompletedPayload) error {
	return b.publish(sessionID, domain.EventAgentCompleted, p)
}

func (b *Bus) PublishAgentError(sessionID, agent, errorType string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return b.publish(sessionID, domain.EventAgentError, domain.AgentErrorPayload{Agent: agent, ErrorType: errorType, Error: msg})
}

func (b *Bus) PublishCognitiveModelUpdated(sessionID string, p domain.CognitiveModelUpdatedPayload) error {
	return b.publish(sessionID, domain.EventCognitiveModelUpdated, p)
}

func (b *Bus) PublishClarificationRequested(sessionID string, p domain.ClarificationRequestedPayload) error {
	return b.publish(sessionID, domain.EventClarificationRequested, p)
}

func (b *Bus) PublishClarificationResolved(sessionID string, p domain.ClarificationResolvedPayload) error {
	return b.publish(sessionID, domain.EventClarificationResolved, p)
}

func (b *Bus) PublishVariationDetected(sessionID string, p domain.VariationDetectedPayload) error {
	return b.publish(sessionID, domain.EventVariationDetected, p)
}

func (b *Bus) PublishDirectionChangeConfirmed(sessionID string, p domain.DirectionChangeConfirmedPayload) error {
	return b.publish(sessionID, domain.EventDirectionChangeConfirmed, p)
}

func (b *Bus) PublishClarityCheckpoint(sessionID string, p domain.ClarityCheckpointPayload) error {
	return b.publish(sessionID, domain.EventClarityCheckpoint, p)
}
