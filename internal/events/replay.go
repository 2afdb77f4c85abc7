package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// TurnGap separates turns in a replay: a pause longer than this starts a new turn.
const TurnGap = 5 * time.Second

// LogEntry is one decoded line of a structured log.
type LogEntry struct {
	Timestamp time.Time      `json:"-"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id"`
	Agent     string         `json:"agent"`
	Node      string         `json:"node"`
	Event     string         `json:"event"`
	Metadata  map[string]any `json:"metadata"`
}

func (e *LogEntry) UnmarshalJSON(data []byte) error {
	type alias LogEntry
	aux := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timestamp != "" {
		t, err := domain.ParseTimestamp(aux.Timestamp)
		if err != nil {
			return err
		}
		e.Timestamp = t
	}
	return nil
}

// ReadLogFile decodes a JSONL structured log. Malformed lines are skipped and
// counted.
func ReadLogFile(path string) ([]LogEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	var entries []LogEntry
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, sc.Err()
}

// Turn is a run of log entries with no pause longer than TurnGap.
type Turn struct {
	Index   int
	Start   time.Time
	End     time.Time
	Entries []LogEntry
}

// Duration of the turn from first to last entry.
func (t Turn) Duration() time.Duration { return t.End.Sub(t.Start) }

// GroupTurns splits entries into turns. Entries are ordered by timestamp first.
func GroupTurns(entries []LogEntry, gap time.Duration) []Turn {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]LogEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var turns []Turn
	cur := Turn{Index: 1, Start: sorted[0].Timestamp}
	prev := sorted[0].Timestamp
	for _, e := range sorted {
		if e.Timestamp.Sub(prev) > gap && len(cur.Entries) > 0 {
			cur.End = prev
			turns = append(turns, cur)
			cur = Turn{Index: len(turns) + 1, Start: e.Timestamp}
		}
		cur.Entries = append(cur.Entries, e)
		prev = e.Timestamp
	}
	cur.End = prev
	return append(turns, cur)
}

var (
	replayTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	replayTurn  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	replayAgent = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	replayError = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	replayMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderReplay draws turns as a tree: trace, then turns, then agent steps.
// Decision entries show the decision next_step and reasoning.
func RenderReplay(traceID string, turns []Turn) string {
	root := tree.Root(replayTitle.Render("trace " + traceID))
	for _, t := range turns {
		label := fmt.Sprintf("turn %d  %s  (%s, %d entries)",
			t.Index, domain.FormatTimestamp(t.Start), t.Duration().Round(time.Millisecond), len(t.Entries))
		node := tree.Root(replayTurn.Render(label))
		for _, e := range t.Entries {
			node.Child(renderEntry(e))
		}
		root.Child(node)
	}
	return root.String()
}

func renderEntry(e LogEntry) any {
	head := fmt.Sprintf("%s %s", replayAgent.Render(e.Agent), replayMuted.Render("["+e.Event+"]"))
	if e.Node != "" && e.Node != e.Agent {
		head += replayMuted.Render(" " + e.Node)
	}
	switch e.Event {
	case LogDecisionMade:
		node := tree.Root(head + " " + e.Message)
		if d, ok := e.Metadata["decision"]; ok {
			node.Child("decision: " + compactJSON(d))
		}
		if r, ok := e.Metadata["reasoning"].(string); ok && r != "" {
			node.Child("reasoning: " + domain.TruncateRunes(r, 200))
		}
		return node
	case LogAgentCompleted:
		return fmt.Sprintf("%s %s %s", head, e.Message,
			replayMuted.Render(fmt.Sprintf("(%vms, %v tokens, $%v)",
				e.Metadata["duration_ms"], e.Metadata["tokens_total"], e.Metadata["cost"])))
	case LogError:
		return head + " " + replayError.Render(e.Message)
	default:
		return head + " " + e.Message
	}
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return domain.TruncateRunes(string(b), 200)
}
