package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/config"
	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

const (
	defaultTemperature = 0.3
	// runesPerToken is the rough ratio used to keep prompts inside
	// context_limits.max_input_tokens.
	runesPerToken = 4
)

// AgentRuntime sends one prompt on behalf of a configured agent: the agent's
// YAML prompt becomes the system message and its model, temperature and
// output limit shape the request.
type AgentRuntime struct {
	llmClient domain.LLMClient
	configs   config.AgentConfigs
	logger    *zap.Logger
}

func NewAgentRuntime(lc domain.LLMClient, configs config.AgentConfigs, logger *zap.Logger) *AgentRuntime {
	return &AgentRuntime{llmClient: lc, configs: configs, logger: logger}
}

// Registered lists the agents with a loaded config.
func (r *AgentRuntime) Registered() []string {
	return r.configs.Names()
}

// AgentReply is the raw outcome of one agent call.
type AgentReply struct {
	Agent    string
	Task     string
	Content  string
	Model    string
	Usage    domain.TokenUsage
	Cost     float64
	Duration time.Duration
}

// Execution converts the reply into an AgentExecution record.
func (r *AgentReply) Execution(summary string, extra map[string]any) domain.AgentExecution {
	meta := map[string]any{
		"model":       r.Model,
		"cost":        r.Cost,
		"task":        r.Task,
		"duration_ms": r.Duration.Milliseconds(),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return domain.NewAgentExecution(r.Agent, r.Usage, summary, meta)
}

// Call invokes the LLM for agent. Failures come back as *llm.InvocationError.
func (r *AgentRuntime) Call(ctx context.Context, agent, task, prompt string) (*AgentReply, error) {
	cfg := r.configs.Get(agent)
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAgent, agent)
	}

	budget := cfg.ContextLimits.MaxInputTokens*runesPerToken - utf8.RuneCountInString(cfg.Prompt)
	if trimmed, cut := trimToBudget(prompt, budget); cut {
		r.logger.Debug("prompt trimmed to context limit",
			zap.String("agent", agent),
			zap.String("task", task),
			zap.Int("max_input_tokens", cfg.ContextLimits.MaxInputTokens))
		prompt = trimmed
	}

	req := domain.LLMRequest{
		Agent:       agent,
		Task:        task,
		Model:       cfg.Model,
		System:      cfg.Prompt,
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: cfg.TemperatureOr(defaultTemperature),
		MaxTokens:   cfg.ContextLimits.MaxOutputTokens,
	}

	start := time.Now()
	resp, err := r.llmClient.Invoke(ctx, req)
	if err != nil {
		var inv *llm.InvocationError
		if errors.As(err, &inv) {
			return nil, err
		}
		return nil, &llm.InvocationError{Agent: agent, Attempts: 1, Err: err}
	}

	model := resp.Model
	if model == "" {
		model = cfg.Model
	}
	usage := llm.ExtractTokenUsage(resp)
	cost, ok := llm.CalculateCost(model, usage.Input, usage.Output)
	if !ok {
		r.logger.Debug("no cost rate for model", zap.String("model", model))
	}
	return &AgentReply{
		Agent:    agent,
		Task:     task,
		Content:  resp.Content,
		Model:    model,
		Usage:    usage,
		Cost:     cost,
		Duration: time.Since(start),
	}, nil
}

// trimToBudget keeps the tail of s within budget runes. Prompts put the
// oldest dialogue first, so the cut drops the oldest turns.
func trimToBudget(s string, budget int) (string, bool) {
	if budget <= 0 {
		return s, false
	}
	r := []rune(s)
	if len(r) <= budget {
		return s, false
	}
	return "...\n" + string(r[len(r)-budget:]), true
}
