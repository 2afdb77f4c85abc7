package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the tag of a bus event.
type EventType string

const (
	EventSessionStarted           EventType = "session_started"
	EventSessionCompleted         EventType = "session_completed"
	EventAgentStarted             EventType = "agent_started"
	EventAgentCompleted           EventType = "agent_completed"
	EventAgentError               EventType = "agent_error"
	EventCognitiveModelUpdated    EventType = "cognitive_model_updated"
	EventClarificationRequested   EventType = "clarification_requested"
	EventClarificationResolved    EventType = "clarification_resolved"
	EventVariationDetected        EventType = "variation_detected"
	EventDirectionChangeConfirmed EventType = "direction_change_confirmed"
	EventClarityCheckpoint        EventType = "clarity_checkpoint"
)

var eventTypes = map[EventType]bool{
	EventSessionStarted:           true,
	EventSessionCompleted:         true,
	EventAgentStarted:             true,
	EventAgentCompleted:           true,
	EventAgentError:               true,
	EventCognitiveModelUpdated:    true,
	EventClarificationRequested:   true,
	EventClarificationResolved:    true,
	EventVariationDetected:        true,
	EventDirectionChangeConfirmed: true,
	EventClarityCheckpoint:        true,
}

func ValidEventType(s string) bool {
	return eventTypes[EventType(s)]
}

// TimestampLayout is ISO-8601 UTC with microseconds and a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and RFC 3339 variants.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Event is one record in a session's event file. On the wire the payload
// fields sit next to session_id, timestamp and event_type.
type Event struct {
	SessionID string
	Timestamp time.Time
	EventType EventType
	Payload   map[string]any
}

// NewEvent builds an event with a payload copied from any JSON-encodable value.
func NewEvent(sessionID string, typ EventType, payload any) (Event, error) {
	ev := Event{SessionID: sessionID, Timestamp: time.Now().UTC(), EventType: typ}
	if payload == nil {
		ev.Payload = map[string]any{}
		return ev, nil
	}
	if m, ok := payload.(map[string]any); ok {
		ev.Payload = m
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ev, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	ev.Payload = map[string]any{}
	if err := json.Unmarshal(raw, &ev.Payload); err != nil {
		return ev, fmt.Errorf("flatten %s payload: %w", typ, err)
	}
	return ev, nil
}

// String returns the payload value for key as text, or "".
func (e Event) String(key string) string {
	v, ok := e.Payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["session_id"] = e.SessionID
	out["timestamp"] = FormatTimestamp(e.Timestamp)
	out["event_type"] = string(e.EventType)
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sid, _ := raw["session_id"].(string)
	typ, _ := raw["event_type"].(string)
	ts, _ := raw["timestamp"].(string)
	e.SessionID = sid
	e.EventType = EventType(typ)
	e.Timestamp = time.Time{}
	if ts != "" {
		t, err := ParseTimestamp(ts)
		if err != nil {
			return fmt.Errorf("event timestamp %q: %w", ts, err)
		}
		e.Timestamp = t
	}
	delete(raw, "session_id")
	delete(raw, "event_type")
	delete(raw, "timestamp")
	e.Payload = raw
	return nil
}

// Typed payloads. Field names are the wire keys of each event type.

type SessionStartedPayload struct {
	UserInput string `json:"user_input"`
}

type SessionCompletedPayload struct {
	FinalStatus string  `json:"final_status"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	Turns       int     `json:"turns"`
}

type AgentStartedPayload struct {
	Agent string `json:"agent"`
	Node  string `json:"node,omitempty"`
	Input string `json:"input,omitempty"`
}

type AgentCompletedPayload struct {
	Agent        string         `json:"agent"`
	Summary      string         `json:"summary"`
	TokensInput  int            `json:"tokens_input"`
	TokensOutput int            `json:"tokens_output"`
	TokensTotal  int            `json:"tokens_total"`
	Cost         float64        `json:"cost"`
	DurationMS   int64          `json:"duration_ms"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type AgentErrorPayload struct {
	Agent     string `json:"agent"`
	ErrorType string `json:"error_type"`
	Error     string `json:"error"`
}

type CognitiveModelUpdatedPayload struct {
	CognitiveModel *CognitiveModel `json:"cognitive_model"`
	Solidez        float64         `json:"solidez"`
	Completude     float64         `json:"completude"`
	TurnCount      int             `json:"turn_count"`
}

type ClarificationRequestedPayload struct {
	ClarificationType ClarificationType `json:"clarification_type"`
	Description       string            `json:"description"`
	Priority          Priority          `json:"priority"`
	TurnsPersisted    int               `json:"turns_persisted"`
	Reason            string            `json:"reason"`
}

type ClarificationResolvedPayload struct {
	ResolutionStatus ResolutionStatus `json:"resolution_status"`
	Summary          string           `json:"summary"`
	NeedsFollowup    bool             `json:"needs_followup"`
}

type VariationDetectedPayload struct {
	Classification  VariationClass `json:"classification"`
	EssencePrevious string         `json:"essence_previous"`
	EssenceNew      string         `json:"essence_new"`
	Analysis        string         `json:"analysis"`
}

type DirectionChangeConfirmedPayload struct {
	PreviousClaim string   `json:"previous_claim"`
	NewClaim      string   `json:"new_claim"`
	NewConcepts   []string `json:"new_concepts"`
}

type ClarityCheckpointPayload struct {
	ClarityLevel ClarityLevel `json:"clarity_level"`
	ClarityScore int          `json:"clarity_score"`
	Description  string       `json:"description"`
	Suggestion   *string      `json:"suggestion"`
}

// SessionSummary condenses one session file.
type SessionSummary struct {
	SessionID   string  `json:"session_id"`
	TotalEvents int     `json:"total_events"`
	Status      string  `json:"status"`
	FinalStatus *string `json:"final_status"`
	StartedAt   *string `json:"started_at"`
	LastEventAt *string `json:"last_event_at"`
	UserInput   *string `json:"user_input"`
}

// Session statuses reported by SessionSummary.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// SessionInfo is a row of the active session listing.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	EventCount  int       `json:"event_count"`
	LastEventAt time.Time `json:"last_event_at"`
}
