package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

var testRoutable = []string{domain.AgentMethodologist, domain.AgentStructurer}

func TestParseDecision(t *testing.T) {
	t.Run("fenced explore", func(t *testing.T) {
		d, notes, err := ParseDecision("```json\n{\"reasoning\":\"vague\",\"next_step\":\"explore\",\"message\":\"What did you observe?\","+
			"\"agent_suggestion\":{\"agent\":\"structurer\",\"justification\":\"x\"},\"focal_argument\":{\"subject\":\"LLMs\"},\"reflection_prompt\":\" \"}\n```", testRoutable)
		require.NoError(t, err)
		assert.Equal(t, domain.NextStepExplore, d.NextStep)
		assert.Nil(t, d.AgentSuggestion)
		assert.Nil(t, d.ReflectionPrompt)
		assert.Len(t, notes, 1)
	})

	t.Run("malformed suggestion becomes explore", func(t *testing.T) {
		d, notes, err := ParseDecision(`{"reasoning":"r","next_step":"suggest_agent","agent_suggestion":{"agent":"statistician","justification":"stats"}}`, testRoutable)
		require.NoError(t, err)
		assert.Equal(t, domain.NextStepExplore, d.NextStep)
		assert.Nil(t, d.AgentSuggestion)
		assert.Equal(t, fallbackExploreMessage, d.MessageText())
		assert.NotEmpty(t, notes)
	})

	t.Run("valid suggestion", func(t *testing.T) {
		d, _, err := ParseDecision(`{"reasoning":"r","next_step":"suggest_agent","message":null,"agent_suggestion":{"agent":"structurer","justification":"ready"}}`, testRoutable)
		require.NoError(t, err)
		assert.Equal(t, domain.NextStepSuggestAgent, d.NextStep)
		assert.Equal(t, domain.AgentStructurer, d.AgentSuggestion.Agent)
		assert.NotNil(t, d.FocalArgument)
	})

	for name, content := range map[string]string{
		"not json":        "I think we should explore",
		"unknown step":    `{"next_step":"classify","message":"x"}`,
		"explore no text": `{"next_step":"explore","message":"  "}`,
		"clarify no text": `{"next_step":"clarify"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseDecision(content, testRoutable)
			assert.True(t, domain.IsValidationError(err), "got %v", err)
		})
	}
}

func TestApplyDecision_AccumulatesFocalArgument(t *testing.T) {
	st := domain.NewMultiAgentState("s")
	st.FocalArgument = domain.FocalArgument{"subject": "LLMs", "population": "devs"}
	msg := "Which metric?"
	ApplyDecision(st, &OrchestratorDecision{
		NextStep:      domain.NextStepClarify,
		Message:       &msg,
		FocalArgument: domain.FocalArgument{"subject": "LLMs and sprint time", "population": "", "metrics": "sprint time"},
	})
	assert.Equal(t, "LLMs and sprint time", st.FocalArgument.String("subject"))
	assert.Equal(t, "devs", st.FocalArgument.String("population"))
	assert.Equal(t, "sprint time", st.FocalArgument.String("metrics"))
	assert.Equal(t, domain.StageClarifying, st.CurrentStage)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, st.Messages[0].Role)
}

func TestOrchestrator_DecideBuildsPromptFromContext(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestratorService(h.runtime, h.telemetry, zap.NewNop())

	st := domain.NewMultiAgentState("orch-prompt")
	st.AppendMessage(domain.RoleUser, "first idea")
	st.AppendMessage(domain.RoleAssistant, "tell me more")
	st.UserInput = "teams of 3 to 5 devs"
	st.AppendMessage(domain.RoleUser, st.UserInput)

	snap := &domain.ObserverSnapshot{
		CognitiveModel: &domain.CognitiveModel{Claim: "LLMs raise productivity"},
		PendingClarification: &domain.ClarificationNeed{
			NeedsClarification: true, ClarificationType: domain.ClarificationGap, Priority: domain.PriorityLow, Description: "which metric",
		},
		Timing: &domain.ClarificationTimingDecision{Reason: "waiting for the need to persist"},
	}
	_, err := orch.Decide(context.Background(), st, snap, testRoutable)
	require.NoError(t, err)

	calls := h.mock.CallsFor(domain.AgentOrchestrator)
	require.Len(t, calls, 1)
	prompt := calls[0].Messages[0].Content
	assert.Contains(t, prompt, "first idea")
	assert.Contains(t, prompt, "Latest user message: teams of 3 to 5 devs")
	assert.Contains(t, prompt, "LLMs raise productivity")
	assert.Contains(t, prompt, "better to wait")
	assert.Contains(t, prompt, "methodologist, structurer")
	assert.Equal(t, "You are the orchestrator.", calls[0].System)
	assert.Equal(t, llm.TaskDecide, calls[0].Task)
	assert.Equal(t, 1, strings.Count(prompt, "teams of 3 to 5 devs"))
}
