package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NextStep is the router directive produced by the orchestrator.
type NextStep string

const (
	NextStepExplore      NextStep = "explore"
	NextStepClarify      NextStep = "clarify"
	NextStepSuggestAgent NextStep = "suggest_agent"
)

func ValidNextStep(s string) bool {
	switch NextStep(s) {
	case NextStepExplore, NextStepClarify, NextStepSuggestAgent:
		return true
	}
	return false
}

// Registered agent names.
const (
	AgentOrchestrator  = "orchestrator"
	AgentStructurer    = "structurer"
	AgentMethodologist = "methodologist"
	AgentObserver      = "observer"
)

// Stage is a coarse lifecycle tag for the dialogue.
type Stage string

const (
	StageExploring   Stage = "exploring"
	StageClarifying  Stage = "clarifying"
	StageStructuring Stage = "structuring"
	StageValidating  Stage = "validating"
	StageRefining    Stage = "refining"
	StageApproved    Stage = "approved"
	StageRejected    Stage = "rejected"
)

// VerdictStatus is the methodologist's evaluation outcome.
type VerdictStatus string

const (
	VerdictApproved        VerdictStatus = "approved"
	VerdictNeedsRefinement VerdictStatus = "needs_refinement"
	VerdictRejected        VerdictStatus = "rejected"
)

func ValidVerdictStatus(s string) bool {
	switch VerdictStatus(s) {
	case VerdictApproved, VerdictNeedsRefinement, VerdictRejected:
		return true
	}
	return false
}

// FocalArgument is the free-form subject the dialogue converges on
// (intent, subject, population, metrics, ...). Fields accrete across turns.
type FocalArgument map[string]any

// Merge copies every non-empty value from next into a new map built from f.
func (f FocalArgument) Merge(next FocalArgument) FocalArgument {
	out := make(FocalArgument, len(f)+len(next))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range next {
		if isEmptyValue(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the value of key rendered as text, or "".
func (f FocalArgument) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

type QuestionElements struct {
	Context      string `json:"context"`
	Problem      string `json:"problem"`
	Contribution string `json:"contribution"`
}

type StructurerOutput struct {
	StructuredQuestion string           `json:"structured_question"`
	Elements           QuestionElements `json:"elements"`
	Version            int              `json:"version"`
	AddressedGaps      []string         `json:"addressed_gaps"`
}

type Improvement struct {
	Aspect     string `json:"aspect"`
	Gap        string `json:"gap"`
	Suggestion string `json:"suggestion"`
}

type MethodologistOutput struct {
	Status         VerdictStatus     `json:"status"`
	Justification  string            `json:"justification"`
	Improvements   []Improvement     `json:"improvements"`
	Clarifications map[string]string `json:"clarifications"`
}

type HypothesisVersion struct {
	Version  int                  `json:"version"`
	Question string               `json:"question"`
	Feedback *MethodologistOutput `json:"feedback"`
}

type AgentSuggestion struct {
	Agent         string `json:"agent"`
	Justification string `json:"justification"`
}

// MultiAgentState is the dialogue-plane state of one session.
type MultiAgentState struct {
	SessionID           string               `json:"session_id"`
	UserInput           string               `json:"user_input"`
	Messages            []Message            `json:"messages"`
	FocalArgument       FocalArgument        `json:"focal_argument"`
	StructurerOutput    *StructurerOutput    `json:"structurer_output"`
	MethodologistOutput *MethodologistOutput `json:"methodologist_output"`
	HypothesisVersions  []HypothesisVersion  `json:"hypothesis_versions"`
	RefinementIteration int                  `json:"refinement_iteration"`
	NextStep            NextStep             `json:"next_step"`
	AgentSuggestion     *AgentSuggestion     `json:"agent_suggestion"`
	CurrentStage        Stage                `json:"current_stage"`
	ReflectionPrompt    string               `json:"reflection_prompt,omitempty"`
}

func NewMultiAgentState(sessionID string) *MultiAgentState {
	return &MultiAgentState{
		SessionID:     sessionID,
		Messages:      []Message{},
		FocalArgument: FocalArgument{},
		NextStep:      NextStepExplore,
		CurrentStage:  StageExploring,
	}
}

// Clone returns a deep copy. Turns operate on clones so an aborted turn leaves
// the committed state untouched.
func (s *MultiAgentState) Clone() *MultiAgentState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.FocalArgument = cloneFocal(s.FocalArgument)
	if s.StructurerOutput != nil {
		so := *s.StructurerOutput
		so.AddressedGaps = append([]string(nil), s.StructurerOutput.AddressedGaps...)
		out.StructurerOutput = &so
	}
	out.MethodologistOutput = s.MethodologistOutput.Clone()
	out.HypothesisVersions = make([]HypothesisVersion, len(s.HypothesisVersions))
	for i, hv := range s.HypothesisVersions {
		out.HypothesisVersions[i] = HypothesisVersion{
			Version:  hv.Version,
			Question: hv.Question,
			Feedback: hv.Feedback.Clone(),
		}
	}
	if s.AgentSuggestion != nil {
		as := *s.AgentSuggestion
		out.AgentSuggestion = &as
	}
	return &out
}

func (m *MethodologistOutput) Clone() *MethodologistOutput {
	if m == nil {
		return nil
	}
	out := *m
	out.Improvements = append([]Improvement(nil), m.Improvements...)
	if m.Clarifications != nil {
		out.Clarifications = make(map[string]string, len(m.Clarifications))
		for k, v := range m.Clarifications {
			out.Clarifications[k] = v
		}
	}
	return &out
}

func cloneFocal(f FocalArgument) FocalArgument {
	if f == nil {
		return FocalArgument{}
	}
	// Values come from decoded JSON, so a JSON round trip is a faithful deep copy.
	raw, err := json.Marshal(f)
	if err != nil {
		out := make(FocalArgument, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out
	}
	out := FocalArgument{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// LastVersion returns the highest recorded hypothesis version, or 0.
func (s *MultiAgentState) LastVersion() int {
	if len(s.HypothesisVersions) == 0 {
		return 0
	}
	return s.HypothesisVersions[len(s.HypothesisVersions)-1].Version
}

// RecordVersion appends a hypothesis version and keeps RefinementIteration
// one behind the newest recorded version.
func (s *MultiAgentState) RecordVersion(hv HypothesisVersion) {
	s.HypothesisVersions = append(s.HypothesisVersions, hv)
	s.RefinementIteration = hv.Version - 1
}

// AppendMessage adds a dialogue turn.
func (s *MultiAgentState) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// CheckInvariants reports the first violated state invariant, if any.
func (s *MultiAgentState) CheckInvariants(registered []string) error {
	for i, hv := range s.HypothesisVersions {
		if hv.Version != i+1 {
			return fmt.Errorf("hypothesis_versions[%d].version = %d, want %d", i, hv.Version, i+1)
		}
	}
	if last := s.LastVersion(); last > 0 && s.RefinementIteration != last-1 {
		return fmt.Errorf("refinement_iteration = %d, want %d", s.RefinementIteration, last-1)
	}
	if s.NextStep == NextStepSuggestAgent {
		if s.AgentSuggestion == nil {
			return fmt.Errorf("next_step=suggest_agent without agent_suggestion")
		}
		found := false
		for _, name := range registered {
			if name == s.AgentSuggestion.Agent {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("agent_suggestion.agent %q is not registered", s.AgentSuggestion.Agent)
		}
	}
	return nil
}
