package domain

// Extraction limits per turn.
const (
	MaxExtractedClaims        = 3
	MaxExtractedConcepts      = 5
	MaxExtractedPropositions  = 3
	MaxExtractedOpenQuestions = 3
	ExtractionHistoryTurns    = 5
)

type ExtractedProposicao struct {
	Texto   string   `json:"texto"`
	Solidez *float64 `json:"solidez"`
}

// Extraction is the semantic content pulled from one user turn.
type Extraction struct {
	Claims         []string              `json:"claims"`
	Concepts       []string              `json:"concepts"`
	Proposicoes    []ExtractedProposicao `json:"proposicoes"`
	Contradictions []Contradiction       `json:"contradictions"`
	OpenQuestions  []string              `json:"open_questions"`
}

// ProcessOptions gates each observer substep. The zero value runs everything.
type ProcessOptions struct {
	SkipClaims         bool `json:"skip_claims"`
	SkipConcepts       bool `json:"skip_concepts"`
	SkipFundamentos    bool `json:"skip_fundamentos"`
	SkipContradictions bool `json:"skip_contradictions"`
	SkipMetrics        bool `json:"skip_metrics"`
	SkipPersistence    bool `json:"skip_persistence"`
	SkipVariation      bool `json:"skip_variation"`
	SkipClarity        bool `json:"skip_clarity"`
	SkipClarification  bool `json:"skip_clarification"`
}

type Metrics struct {
	Solidez    float64 `json:"solidez"`
	Completude float64 `json:"completude"`
}

type Maturity struct {
	IsMature   bool    `json:"is_mature"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type VariationClass string

const (
	ClassVariation  VariationClass = "variation"
	ClassRealChange VariationClass = "real_change"
)

type VariationAnalysis struct {
	Classification  VariationClass `json:"classification"`
	EssencePrevious string         `json:"essence_previous"`
	EssenceNew      string         `json:"essence_new"`
	SharedConcepts  []string       `json:"shared_concepts"`
	NewConcepts     []string       `json:"new_concepts"`
	Analysis        string         `json:"analysis"`
}

type ClarityLevel string

const (
	ClarityCristalina ClarityLevel = "cristalina"
	ClarityClara      ClarityLevel = "clara"
	ClarityNebulosa   ClarityLevel = "nebulosa"
	ClarityConfusa    ClarityLevel = "confusa"
)

func ValidClarityLevel(s string) bool {
	switch ClarityLevel(s) {
	case ClarityCristalina, ClarityClara, ClarityNebulosa, ClarityConfusa:
		return true
	}
	return false
}

// Score infers the 1..5 score of a level.
func (l ClarityLevel) Score() int {
	switch l {
	case ClarityCristalina:
		return 5
	case ClarityClara:
		return 4
	case ClarityNebulosa:
		return 3
	case ClarityConfusa:
		return 1
	}
	return 3
}

// ClarityLevelForScore maps a 1..5 score back to a level.
func ClarityLevelForScore(score int) ClarityLevel {
	switch {
	case score >= 5:
		return ClarityCristalina
	case score == 4:
		return ClarityClara
	case score >= 2:
		return ClarityNebulosa
	default:
		return ClarityConfusa
	}
}

// NeedsCheckpointByDefault is true for the two unclear levels.
func (l ClarityLevel) NeedsCheckpointByDefault() bool {
	return l == ClarityNebulosa || l == ClarityConfusa
}

type ClarityFactors struct {
	ClaimDefinition    string `json:"claim_definition"`
	Coherence          string `json:"coherence"`
	DirectionStability string `json:"direction_stability"`
}

type ClarityEvaluation struct {
	ClarityLevel    ClarityLevel   `json:"clarity_level"`
	ClarityScore    int            `json:"clarity_score"`
	Description     string         `json:"description"`
	NeedsCheckpoint bool           `json:"needs_checkpoint"`
	Factors         ClarityFactors `json:"factors"`
	Suggestion      *string        `json:"suggestion"`
}

type ClarificationType string

const (
	ClarificationContradiction   ClarificationType = "contradiction"
	ClarificationGap             ClarificationType = "gap"
	ClarificationConfusion       ClarificationType = "confusion"
	ClarificationDirectionChange ClarificationType = "direction_change"
)

func ValidClarificationType(s string) bool {
	switch ClarificationType(s) {
	case ClarificationContradiction, ClarificationGap, ClarificationConfusion, ClarificationDirectionChange:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func ValidPriority(s string) bool {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type ClarificationNeed struct {
	NeedsClarification bool              `json:"needs_clarification"`
	ClarificationType  ClarificationType `json:"clarification_type,omitempty"`
	Description        string            `json:"description"`
	RelevantContext    string            `json:"relevant_context"`
	SuggestedApproach  string            `json:"suggested_approach"`
	Priority           Priority          `json:"priority,omitempty"`
	TurnDetected       int               `json:"turn_detected"`
	TurnsPersisted     int               `json:"turns_persisted"`
}

type ClarificationTimingDecision struct {
	ShouldAsk  bool     `json:"should_ask"`
	Reason     string   `json:"reason"`
	DelayTurns int      `json:"delay_turns"`
	Urgency    Priority `json:"urgency"`
}

type ResolutionStatus string

const (
	ResolutionResolved          ResolutionStatus = "resolved"
	ResolutionPartiallyResolved ResolutionStatus = "partially_resolved"
	ResolutionUnresolved        ResolutionStatus = "unresolved"
)

func ValidResolutionStatus(s string) bool {
	switch ResolutionStatus(s) {
	case ResolutionResolved, ResolutionPartiallyResolved, ResolutionUnresolved:
		return true
	}
	return false
}

type PropositionUpdate struct {
	ID      string   `json:"id"`
	Texto   string   `json:"texto,omitempty"`
	Solidez *float64 `json:"solidez"`
}

type ClarificationUpdates struct {
	ProposicoesToAdd        []ExtractedProposicao `json:"proposicoes_to_add"`
	ProposicoesToUpdate     []PropositionUpdate   `json:"proposicoes_to_update"`
	ContradictionsToResolve []string              `json:"contradictions_to_resolve"`
	OpenQuestionsToClose    []string              `json:"open_questions_to_close"`
	ContextToAdd            []string              `json:"context_to_add"`
}

type ClarificationResponse struct {
	ResolutionStatus   ResolutionStatus     `json:"resolution_status"`
	Summary            string               `json:"summary"`
	Updates            ClarificationUpdates `json:"updates"`
	NeedsFollowup      bool                 `json:"needs_followup"`
	FollowupSuggestion *string              `json:"followup_suggestion"`
}

// ObserverInsight is advisory: the observer informs, the orchestrator decides.
type ObserverInsight struct {
	Insight    string   `json:"insight"`
	Suggestion *string  `json:"suggestion"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// TurnAnalysis is the result of one observer pass.
type TurnAnalysis struct {
	CognitiveModel   *CognitiveModel              `json:"cognitive_model"`
	Extracted        *Extraction                  `json:"extracted"`
	Metrics          *Metrics                     `json:"metrics"`
	Maturity         *Maturity                    `json:"maturity"`
	Variation        *VariationAnalysis           `json:"variation,omitempty"`
	Clarity          *ClarityEvaluation           `json:"clarity,omitempty"`
	Clarification    *ClarificationNeed           `json:"clarification,omitempty"`
	Timing           *ClarificationTimingDecision `json:"timing,omitempty"`
	Resolution       *ClarificationResponse       `json:"resolution,omitempty"`
	Concepts         *BatchPersistResult          `json:"concepts,omitempty"`
	ProcessingTimeMS int64                        `json:"processing_time_ms"`
	Skipped          []string                     `json:"skipped"`
}

// ObserverSnapshot is what the orchestrator reads each turn.
type ObserverSnapshot struct {
	CognitiveModel       *CognitiveModel              `json:"cognitive_model"`
	Metrics              *Metrics                     `json:"metrics,omitempty"`
	Maturity             *Maturity                    `json:"maturity,omitempty"`
	Clarity              *ClarityEvaluation           `json:"clarity,omitempty"`
	PendingClarification *ClarificationNeed           `json:"pending_clarification,omitempty"`
	Timing               *ClarificationTimingDecision `json:"timing,omitempty"`
	Variation            *VariationAnalysis           `json:"variation,omitempty"`
}

// ObserverState is the analytical plane of one session: the cognitive model
// plus what the observer remembers between turns.
type ObserverState struct {
	SessionID            string                       `json:"session_id"`
	IdeaID               string                       `json:"idea_id,omitempty"`
	Model                *CognitiveModel              `json:"cognitive_model"`
	Messages             []Message                    `json:"messages"`
	Metrics              *Metrics                     `json:"metrics,omitempty"`
	Maturity             *Maturity                    `json:"maturity,omitempty"`
	Clarity              *ClarityEvaluation           `json:"clarity,omitempty"`
	Variation            *VariationAnalysis           `json:"variation,omitempty"`
	PendingClarification *ClarificationNeed           `json:"pending_clarification,omitempty"`
	Timing               *ClarificationTimingDecision `json:"timing,omitempty"`
	AwaitingResponse     bool                         `json:"awaiting_response"`
	LastQuestionTurn     int                          `json:"last_question_turn"`
}

// NewObserverState starts an empty analytical plane. The idea id defaults to
// the session id.
func NewObserverState(sessionID string) *ObserverState {
	return &ObserverState{
		SessionID: sessionID,
		IdeaID:    sessionID,
		Model:     NewCognitiveModel(),
		Messages:  []Message{},
	}
}

func (s *ObserverState) Clone() *ObserverState {
	if s == nil {
		return nil
	}
	out := *s
	out.Model = s.Model.Clone()
	out.Messages = append([]Message(nil), s.Messages...)
	if s.Metrics != nil {
		m := *s.Metrics
		out.Metrics = &m
	}
	if s.Maturity != nil {
		m := *s.Maturity
		out.Maturity = &m
	}
	if s.Clarity != nil {
		c := *s.Clarity
		if s.Clarity.Suggestion != nil {
			v := *s.Clarity.Suggestion
			c.Suggestion = &v
		}
		out.Clarity = &c
	}
	if s.Variation != nil {
		v := *s.Variation
		v.SharedConcepts = append([]string(nil), s.Variation.SharedConcepts...)
		v.NewConcepts = append([]string(nil), s.Variation.NewConcepts...)
		out.Variation = &v
	}
	if s.PendingClarification != nil {
		p := *s.PendingClarification
		out.PendingClarification = &p
	}
	if s.Timing != nil {
		t := *s.Timing
		out.Timing = &t
	}
	return &out
}

// Snapshot is the read-only view handed to the orchestrator.
func (s *ObserverState) Snapshot() *ObserverSnapshot {
	c := s.Clone()
	return &ObserverSnapshot{
		CognitiveModel:       c.Model,
		Metrics:              c.Metrics,
		Maturity:             c.Maturity,
		Clarity:              c.Clarity,
		PendingClarification: c.PendingClarification,
		Timing:               c.Timing,
		Variation:            c.Variation,
	}
}
