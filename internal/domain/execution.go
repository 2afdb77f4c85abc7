package domain

import "time"

// MaxExecutionSummary is the recommended summary length.
const MaxExecutionSummary = 280

// TokenUsage is the token accounting of one LLM call.
type TokenUsage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
}

func (u TokenUsage) Total() int { return u.Input + u.Output }

// AgentExecution records one LLM-invoking step.
type AgentExecution struct {
	AgentName    string         `json:"agent_name"`
	TokensInput  int            `json:"tokens_input"`
	TokensOutput int            `json:"tokens_output"`
	TokensTotal  int            `json:"tokens_total"`
	Summary      string         `json:"summary"`
	Timestamp    string         `json:"timestamp"`
	Metadata     map[string]any `json:"metadata"`
}

// NewAgentExecution fills TokensTotal, truncates the summary and stamps the time.
func NewAgentExecution(agent string, usage TokenUsage, summary string, metadata map[string]any) AgentExecution {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return AgentExecution{
		AgentName:    agent,
		TokensInput:  usage.Input,
		TokensOutput: usage.Output,
		TokensTotal:  usage.Total(),
		Summary:      TruncateRunes(summary, MaxExecutionSummary),
		Timestamp:    FormatTimestamp(time.Now()),
		Metadata:     metadata,
	}
}

// Cost reads metadata["cost"], 0 if absent.
func (e AgentExecution) Cost() float64 {
	switch v := e.Metadata["cost"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// UsageTotals aggregates executions.
type UsageTotals struct {
	Executions   int     `json:"executions"`
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	TokensTotal  int     `json:"tokens_total"`
	Cost         float64 `json:"cost"`
}

func (t *UsageTotals) Add(e AgentExecution) {
	t.Executions++
	t.TokensInput += e.TokensInput
	t.TokensOutput += e.TokensOutput
	t.TokensTotal += e.TokensTotal
	t.Cost += e.Cost()
}

// TruncateRunes shortens s to at most n runes, marking the cut with "...".
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
