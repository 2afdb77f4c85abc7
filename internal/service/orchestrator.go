package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// fallbackExploreMessage replaces a missing message when a malformed
// suggestion is turned back into exploration.
const fallbackExploreMessage = "Could you tell me a bit more about what you have in mind?"

// OrchestratorDecision is the orchestrator's directive for one step.
type OrchestratorDecision struct {
	Reasoning        string                  `json:"reasoning"`
	NextStep         domain.NextStep         `json:"next_step"`
	Message          *string                 `json:"message"`
	AgentSuggestion  *domain.AgentSuggestion `json:"agent_suggestion"`
	FocalArgument    domain.FocalArgument    `json:"focal_argument"`
	ReflectionPrompt *string                 `json:"reflection_prompt"`
}

// MessageText returns the message or "".
func (d *OrchestratorDecision) MessageText() string {
	if d.Message == nil {
		return ""
	}
	return strings.TrimSpace(*d.Message)
}

// OrchestratorService decides the next conversational move from the whole
// dialogue. It reads the observer snapshot but never commands the observer.
type OrchestratorService struct {
	runtime   *AgentRuntime
	telemetry *Telemetry
	logger    *zap.Logger
}

func NewOrchestratorService(rt *AgentRuntime, tel *Telemetry, logger *zap.Logger) *OrchestratorService {
	return &OrchestratorService{runtime: rt, telemetry: tel, logger: logger}
}

// ParseDecision decodes and validates an orchestrator reply. A suggestion that
// names an unknown agent or lacks a justification is turned into exploration.
func ParseDecision(content string, routable []string) (*OrchestratorDecision, []string, error) {
	var d OrchestratorDecision
	if err := llm.DecodeJSON(content, &d); err != nil {
		return nil, nil, domain.NewValidationError(domain.AgentOrchestrator, "response", err.Error())
	}
	if !domain.ValidNextStep(string(d.NextStep)) {
		return nil, nil, domain.NewValidationError(domain.AgentOrchestrator, "next_step", fmt.Sprintf("%q is not one of explore, clarify, suggest_agent", d.NextStep))
	}

	var notes []string
	if d.NextStep == domain.NextStepSuggestAgent {
		if !validSuggestion(d.AgentSuggestion, routable) {
			notes = append(notes, "malformed agent_suggestion; falling back to explore")
			d.NextStep = domain.NextStepExplore
			d.AgentSuggestion = nil
			if d.MessageText() == "" {
				msg := fallbackExploreMessage
				d.Message = &msg
			}
		}
	} else {
		if d.AgentSuggestion != nil {
			notes = append(notes, "agent_suggestion dropped for next_step "+string(d.NextStep))
		}
		d.AgentSuggestion = nil
		if d.MessageText() == "" {
			return nil, nil, domain.NewValidationError(domain.AgentOrchestrator, "message", "required when next_step is "+string(d.NextStep))
		}
	}
	if d.FocalArgument == nil {
		d.FocalArgument = domain.FocalArgument{}
	}
	if d.ReflectionPrompt != nil && strings.TrimSpace(*d.ReflectionPrompt) == "" {
		d.ReflectionPrompt = nil
	}
	return &d, notes, nil
}

// ApplyDecision writes a validated decision into st.
func ApplyDecision(st *domain.MultiAgentState, d *OrchestratorDecision) {
	st.NextStep = d.NextStep
	st.AgentSuggestion = d.AgentSuggestion
	st.FocalArgument = st.FocalArgument.Merge(d.FocalArgument)
	if d.ReflectionPrompt != nil {
		st.ReflectionPrompt = *d.ReflectionPrompt
	}
	if msg := d.MessageText(); msg != "" {
		st.AppendMessage(domain.RoleAssistant, msg)
	}
	switch d.NextStep {
	case domain.NextStepExplore:
		st.CurrentStage = domain.StageExploring
	case domain.NextStepClarify:
		st.CurrentStage = domain.StageClarifying
	}
}

// Decide asks the orchestrator for the next move and applies it to st.
func (s *OrchestratorService) Decide(ctx context.Context, st *domain.MultiAgentState, snap *domain.ObserverSnapshot, routable []string) (*OrchestratorDecision, error) {
	start := time.Now()
	s.telemetry.Started(st.SessionID, domain.AgentOrchestrator, domain.AgentOrchestrator, st.UserInput)

	prior := st.Messages
	if n := len(prior); n > 0 && prior[n-1].Role == domain.RoleUser && prior[n-1].Content == st.UserInput {
		prior = prior[:n-1]
	}
	focal, _ := json.Marshal(st.FocalArgument)
	prompt := fmt.Sprintf(llm.OrchestratorPrompt,
		domain.FormatTranscript(prior),
		st.UserInput,
		string(focal),
		ObserverNotes(snap),
		RefinementStatus(st),
		strings.Join(routable, ", "),
	)

	reply, err := s.runtime.Call(ctx, domain.AgentOrchestrator, llm.TaskDecide, prompt)
	if err != nil {
		s.telemetry.Failed(st.SessionID, domain.AgentOrchestrator, domain.AgentOrchestrator, err)
		return nil, err
	}
	d, notes, err := ParseDecision(reply.Content, routable)
	if err != nil {
		s.telemetry.Record(st.SessionID, reply.Execution("invalid decision", nil))
		s.telemetry.Failed(st.SessionID, domain.AgentOrchestrator, domain.AgentOrchestrator, err)
		return nil, err
	}
	for _, n := range notes {
		s.logger.Warn("orchestrator decision normalized", zap.String("session_id", st.SessionID), zap.String("note", n))
	}

	ApplyDecision(st, d)

	summary := string(d.NextStep)
	if d.AgentSuggestion != nil {
		summary += " -> " + d.AgentSuggestion.Agent
	}
	if msg := d.MessageText(); msg != "" {
		summary += ": " + msg
	}
	s.telemetry.Decision(st.SessionID, domain.AgentOrchestrator, domain.AgentOrchestrator, "next move decided",
		map[string]any{"next_step": d.NextStep, "agent_suggestion": d.AgentSuggestion, "focal_argument": d.FocalArgument},
		d.Reasoning)
	s.telemetry.Step(st.SessionID, domain.AgentOrchestrator,
		reply.Execution(summary, map[string]any{"next_step": string(d.NextStep)}), time.Since(start))
	return d, nil
}

// ObserverNotes renders the observer snapshot for the orchestrator prompt.
func ObserverNotes(snap *domain.ObserverSnapshot) string {
	if snap == nil || snap.CognitiveModel == nil {
		return "(no analysis yet)"
	}
	var sb strings.Builder
	sb.WriteString(snap.CognitiveModel.Summary())
	if snap.Metrics != nil {
		fmt.Fprintf(&sb, "Solidez %.2f, completude %.2f\n", snap.Metrics.Solidez, snap.Metrics.Completude)
	}
	if snap.Maturity != nil {
		fmt.Fprintf(&sb, "Maturity: %v (%s)\n", snap.Maturity.IsMature, snap.Maturity.Reason)
	}
	if snap.Clarity != nil {
		fmt.Fprintf(&sb, "Clarity: %s (%d/5)", snap.Clarity.ClarityLevel, snap.Clarity.ClarityScore)
		if snap.Clarity.NeedsCheckpoint {
			sb.WriteString(", checkpoint suggested")
		}
		sb.WriteString("\n")
	}
	if snap.Variation != nil {
		fmt.Fprintf(&sb, "Last claim change: %s\n", snap.Variation.Classification)
	}
	if p := snap.PendingClarification; p != nil && p.NeedsClarification {
		fmt.Fprintf(&sb, "Possible clarification (%s, %s priority, persisted %d turns): %s\n",
			p.ClarificationType, p.Priority, p.TurnsPersisted, p.Description)
		if snap.Timing != nil {
			if snap.Timing.ShouldAsk {
				fmt.Fprintf(&sb, "Timing: a good moment to ask (%s)\n", snap.Timing.Reason)
			} else {
				fmt.Fprintf(&sb, "Timing: better to wait (%s)\n", snap.Timing.Reason)
			}
		}
	}
	return sb.String()
}

// RefinementStatus renders the structurer and methodologist state.
func RefinementStatus(st *domain.MultiAgentState) string {
	if st.StructurerOutput == nil {
		return "no structured question yet"
	}
	var sb strings.Builder
	so := st.StructurerOutput
	fmt.Fprintf(&sb, "Structured question V%d: %s\n", so.Version, so.StructuredQuestion)
	fmt.Fprintf(&sb, "Refinement iteration: %d\n", st.RefinementIteration)
	if so.Version > st.LastVersion() {
		sb.WriteString("This version has not been evaluated yet.\n")
	} else if mo := st.MethodologistOutput; mo != nil {
		fmt.Fprintf(&sb, "Methodologist verdict: %s. %s\n", mo.Status, mo.Justification)
		for i, imp := range mo.Improvements {
			fmt.Fprintf(&sb, "%d. [%s] %s: %s\n", i+1, imp.Aspect, imp.Gap, imp.Suggestion)
		}
	}
	return sb.String()
}
