package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

// ListSessionsTool handles list_sessions.
type ListSessionsTool struct {
	bus *events.Bus
}

func NewListSessionsTool(bus *events.Bus) *ListSessionsTool {
	return &ListSessionsTool{bus: bus}
}

func (t *ListSessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_sessions",
		mcp.WithDescription("List dialogue sessions, newest activity first."),
		mcp.WithNumber("max_age_minutes",
			mcp.Description("Only sessions active within this many minutes (default: all)"),
		),
	)
}

func (t *ListSessionsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maxAge := time.Duration(intArg(req, "max_age_minutes", 0)) * time.Minute
	infos, err := t.bus.ListActiveSessions(maxAge)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("No sessions found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d sessions:\n\n", len(infos))
	for _, s := range infos {
		fmt.Fprintf(&b, "- %s: %d events, last at %s\n", s.SessionID, s.EventCount, s.LastEventAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// SessionEventsTool handles session_events.
type SessionEventsTool struct {
	bus *events.Bus
}

func NewSessionEventsTool(bus *events.Bus) *SessionEventsTool {
	return &SessionEventsTool{bus: bus}
}

func (t *SessionEventsTool) Definition() mcp.Tool {
	return mcp.NewTool("session_events",
		mcp.WithDescription("Return the event history of one session in publish order."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
		mcp.WithString("type",
			mcp.Description("Only events of this type, e.g. agent_completed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Only the last N events"),
		),
	)
}

func (t *SessionEventsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	evs, err := t.bus.GetSessionEvents(id)
	if errors.Is(err, events.ErrInvalidSessionID) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid session id %q", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read failed: %v", err)), nil
	}
	if typ := req.GetString("type", ""); typ != "" {
		filtered := make([]domain.Event, 0, len(evs))
		for _, ev := range evs {
			if string(ev.EventType) == typ {
				filtered = append(filtered, ev)
			}
		}
		evs = filtered
	}
	if n := intArg(req, "limit", 0); n > 0 && len(evs) > n {
		evs = evs[len(evs)-n:]
	}
	return jsonResult(evs), nil
}

// SessionSummaryTool handles session_summary.
type SessionSummaryTool struct {
	bus *events.Bus
}

func NewSessionSummaryTool(bus *events.Bus) *SessionSummaryTool {
	return &SessionSummaryTool{bus: bus}
}

func (t *SessionSummaryTool) Definition() mcp.Tool {
	return mcp.NewTool("session_summary",
		mcp.WithDescription("Summarize one session: status, event count and first user input."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
	)
}

func (t *SessionSummaryTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	s, err := t.bus.GetSessionSummary(id)
	if errors.Is(err, events.ErrInvalidSessionID) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid session id %q", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read failed: %v", err)), nil
	}
	if s == nil {
		return mcp.NewToolResultError("session not found"), nil
	}
	return jsonResult(s), nil
}

// TurnTool handles dialogue_turn.
type TurnTool struct {
	engine *service.Engine
}

func NewTurnTool(engine *service.Engine) *TurnTool {
	return &TurnTool{engine: engine}
}

func (t *TurnTool) Definition() mcp.Tool {
	return mcp.NewTool("dialogue_turn",
		mcp.WithDescription("Send one user message to a dialogue session and return the reply."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id; a new id starts a new dialogue"),
		),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("The user's message"),
		),
	)
}

func (t *TurnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.ProcessTurn(ctx, req.GetString("session_id", ""), req.GetString("input", ""))
	switch {
	case errors.Is(err, service.ErrTurnAborted):
		return mcp.NewToolResultError(service.RecoveryMessage), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString(res.Message)
	fmt.Fprintf(&b, "\n\n[next_step=%s stage=%s", res.NextStep, res.Stage)
	if len(res.AgentsRun) > 0 {
		fmt.Fprintf(&b, " agents=%s", strings.Join(res.AgentsRun, ","))
	}
	b.WriteString("]")
	if res.AgentSuggestion != nil {
		fmt.Fprintf(&b, "\nSuggested agent: %s (%s)", res.AgentSuggestion.Agent, res.AgentSuggestion.Justification)
	}
	return mcp.NewToolResultText(b.String()), nil
}
