package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

// neverAsked stands in for the distance to a clarification question that was
// never asked.
const neverAsked = 1 << 20

// ConceptPersister is the slice of the catalog the observer needs.
type ConceptPersister interface {
	PersistConcepts(ctx context.Context, labels []string, ideaID string) (*domain.BatchPersistResult, error)
}

// ObserverService is the silent analytical plane. It reads the dialogue,
// maintains the cognitive model and flags clarification needs, but never
// speaks to the user or dispatches agents.
type ObserverService struct {
	runtime   *AgentRuntime
	catalog   ConceptPersister
	telemetry *Telemetry
	logger    *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewObserverService(rt *AgentRuntime, catalog ConceptPersister, tel *Telemetry, logger *zap.Logger) *ObserverService {
	return &ObserverService{
		runtime:   rt,
		catalog:   catalog,
		telemetry: tel,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

// usageSink sums the calls of one observer pass. Evaluators run in
// parallel, so it is locked.
type usageSink struct {
	mu     sync.Mutex
	totals domain.UsageTotals
}

func (u *usageSink) add(e domain.AgentExecution) {
	u.mu.Lock()
	u.totals.Add(e)
	u.mu.Unlock()
}

// call invokes the observer for one task and records the execution.
func (s *ObserverService) call(ctx context.Context, sessionID, task, prompt string, sink *usageSink) (*AgentReply, error) {
	reply, err := s.runtime.Call(ctx, domain.AgentObserver, task, prompt)
	if err != nil {
		return nil, err
	}
	exec := reply.Execution("observer "+task, nil)
	s.telemetry.Record(sessionID, exec)
	if sink != nil {
		sink.add(exec)
	}
	return reply, nil
}

// Analyze runs the observer pipeline for one user message and updates st in
// place. Callers that need rollback pass a clone and apply the returned
// effects only once they keep it. Only a failed extraction call is an error;
// every later substep degrades to a conservative default.
func (s *ObserverService) Analyze(ctx context.Context, st *domain.ObserverState, userInput string, opts domain.ProcessOptions) (*domain.TurnAnalysis, *ObserverEffects, error) {
	start := s.now()
	if st.Model == nil {
		st.Model = domain.NewCognitiveModel()
	}
	prev := st.Model
	turn := prev.TurnCount + 1
	transcript := domain.FormatTranscript(domain.LastMessages(st.Messages, domain.ExtractionHistoryTurns))
	st.Messages = append(st.Messages, domain.Message{Role: domain.RoleUser, Content: userInput})

	s.telemetry.Started(st.SessionID, domain.AgentObserver, domain.AgentObserver, userInput)
	sink := &usageSink{}
	analysis := &domain.TurnAnalysis{Skipped: skippedSteps(opts)}
	fx := s.newEffects(st.SessionID, st.IdeaID)

	ext, parsed, err := s.extract(ctx, st.SessionID, transcript, userInput, opts, sink)
	if err != nil {
		s.telemetry.Failed(st.SessionID, domain.AgentObserver, "extract", err)
		return nil, nil, err
	}
	analysis.Extracted = &ext

	var model *domain.CognitiveModel
	if parsed {
		model = MergeExtraction(prev, ext, s.newID)
	} else {
		model = prev.Clone()
	}
	model.TurnCount = turn

	if st.AwaitingResponse && st.PendingClarification != nil && !opts.SkipClarification {
		model = s.resolveClarification(ctx, st, userInput, model, analysis, fx, sink)
	}
	st.AwaitingResponse = false

	if !opts.SkipFundamentos {
		model = s.rateFundamentos(ctx, st.SessionID, model, transcript, sink)
	}

	if !opts.SkipPersistence && !opts.SkipConcepts && len(ext.Concepts) > 0 && s.catalog != nil {
		fx.concepts = append([]string{}, ext.Concepts...)
	}

	if !opts.SkipMetrics {
		metrics := ComputeMetrics(model)
		maturity := EvaluateMaturity(model, metrics)
		st.Metrics = &metrics
		st.Maturity = &maturity
		analysis.Metrics = &metrics
		analysis.Maturity = &maturity
	}

	variation, clarity, need := s.evaluate(ctx, st, prev.Claim, model, opts, sink)
	if variation != nil {
		st.Variation = variation
		analysis.Variation = variation
		publishVariation(fx, variation)
	}
	if clarity != nil {
		st.Clarity = clarity
		analysis.Clarity = clarity
		if clarity.NeedsCheckpoint {
			publishCheckpoint(fx, clarity)
		}
	}
	if !opts.SkipClarification {
		if variation != nil && variation.Classification == domain.ClassRealChange && (need == nil || !need.NeedsClarification) {
			need = &domain.ClarificationNeed{
				NeedsClarification: true,
				ClarificationType:  domain.ClarificationDirectionChange,
				Description:        fmt.Sprintf("the claim moved from %q to %q", prev.Claim, model.Claim),
				RelevantContext:    variation.Analysis,
				SuggestedApproach:  "confirm whether the new direction replaces the previous one",
				Priority:           domain.PriorityMedium,
			}
		}
		need = UpdatePersistence(st.PendingClarification, need, turn)
		timing := ShouldAskClarification(need, TimingContext{
			TurnsSinceLastQuestion: s.turnsSinceQuestion(st, turn),
			IsUserFlowing:          IsUserFlowing(st.Messages),
		})
		analysis.Clarification = need
		analysis.Timing = &timing
		st.Timing = &timing
		if need.NeedsClarification {
			st.PendingClarification = need
		} else {
			st.PendingClarification = nil
		}
		if timing.ShouldAsk {
			fx.publish(func(b *events.Bus) error {
				return b.PublishClarificationRequested(st.SessionID, domain.ClarificationRequestedPayload{
					ClarificationType: need.ClarificationType,
					Description:       need.Description,
					Priority:          timing.Urgency,
					TurnsPersisted:    need.TurnsPersisted,
					Reason:            timing.Reason,
				})
			})
		}
	}

	st.Model = model
	analysis.CognitiveModel = model.Clone()
	analysis.ProcessingTimeMS = s.now().Sub(start).Milliseconds()

	payload := domain.CognitiveModelUpdatedPayload{CognitiveModel: model.Clone(), TurnCount: model.TurnCount}
	if st.Metrics != nil {
		payload.Solidez = st.Metrics.Solidez
		payload.Completude = st.Metrics.Completude
	}
	fx.publish(func(b *events.Bus) error {
		return b.PublishCognitiveModelUpdated(st.SessionID, payload)
	})

	s.telemetry.Completed(st.SessionID, domain.AgentObserver, domain.AgentObserver,
		fmt.Sprintf("turn %d: claim %q, %d propositions", turn, domain.TruncateRunes(model.Claim, 80), len(model.Proposicoes)),
		sink.totals, s.now().Sub(start), map[string]any{"skipped": analysis.Skipped})
	return analysis, fx, nil
}

func (s *ObserverService) turnsSinceQuestion(st *domain.ObserverState, turn int) int {
	if st.LastQuestionTurn <= 0 {
		return neverAsked
	}
	return turn - st.LastQuestionTurn
}

// MarkClarificationAsked records that the dialogue asked the pending
// clarification on turn, so the next user message is analyzed as its answer.
func (s *ObserverService) MarkClarificationAsked(st *domain.ObserverState) {
	if st.PendingClarification == nil {
		return
	}
	st.AwaitingResponse = true
	st.LastQuestionTurn = st.Model.TurnCount
}

// AddAssistantMessage keeps the observer's transcript in step with the dialogue.
func (s *ObserverService) AddAssistantMessage(st *domain.ObserverState, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	st.Messages = append(st.Messages, domain.Message{Role: domain.RoleAssistant, Content: content})
}

func skippedSteps(o domain.ProcessOptions) []string {
	out := []string{}
	for _, f := range []struct {
		skip bool
		name string
	}{
		{o.SkipClaims, "claims"},
		{o.SkipConcepts, "concepts"},
		{o.SkipFundamentos, "fundamentos"},
		{o.SkipContradictions, "contradictions"},
		{o.SkipMetrics, "metrics"},
		{o.SkipPersistence, "persistence"},
		{o.SkipVariation, "variation"},
		{o.SkipClarity, "clarity"},
		{o.SkipClarification, "clarification"},
	} {
		if f.skip {
			out = append(out, f.name)
		}
	}
	return out
}

// extract asks for the turn's semantic content. parsed is false when the
// reply could not be decoded; the model is then left as it was.
func (s *ObserverService) extract(ctx context.Context, sessionID, transcript, input string, opts domain.ProcessOptions, sink *usageSink) (domain.Extraction, bool, error) {
	reply, err := s.call(ctx, sessionID, llm.TaskExtract, fmt.Sprintf(llm.ObserverExtractPrompt, transcript, input), sink)
	if err != nil {
		return domain.Extraction{}, false, err
	}
	var raw domain.Extraction
	if err := llm.DecodeJSON(reply.Content, &raw); err != nil {
		s.logger.Warn("failed to parse observer extraction",
			zap.String("session_id", sessionID),
			zap.Error(domain.NewValidationError(domain.AgentObserver, "extraction", err.Error())))
		return SanitizeExtraction(domain.Extraction{}, opts), false, nil
	}
	return SanitizeExtraction(raw, opts), true, nil
}

type fundamentoRating struct {
	ID      string   `json:"id"`
	Texto   string   `json:"texto"`
	Solidez *float64 `json:"solidez"`
}

// rateFundamentos scores propositions that are still unrated.
func (s *ObserverService) rateFundamentos(ctx context.Context, sessionID string, m *domain.CognitiveModel, transcript string, sink *usageSink) *domain.CognitiveModel {
	var unrated []domain.Proposicao
	for _, p := range m.Proposicoes {
		if p.Solidez == nil {
			unrated = append(unrated, p)
		}
	}
	if len(unrated) == 0 {
		return m
	}
	list, _ := json.Marshal(unrated)
	reply, err := s.call(ctx, sessionID, llm.TaskFundamentos,
		fmt.Sprintf(llm.ObserverFundamentosPrompt, m.Claim, transcript, string(list)), sink)
	if err != nil {
		s.logger.Warn("fundamentos evaluation failed", zap.String("session_id", sessionID), zap.Error(err))
		return m
	}
	var out struct {
		Ratings []fundamentoRating `json:"ratings"`
	}
	if err := llm.DecodeJSON(reply.Content, &out); err != nil {
		s.logger.Warn("failed to parse fundamentos ratings", zap.String("session_id", sessionID), zap.Error(err))
		return m
	}
	rated := m.Clone()
	for _, r := range out.Ratings {
		if r.Solidez == nil {
			continue
		}
		for i := range rated.Proposicoes {
			p := &rated.Proposicoes[i]
			if p.Solidez != nil {
				continue
			}
			if p.ID == r.ID || (r.ID == "" && domain.NormalizeText(p.Texto) == domain.NormalizeText(r.Texto)) {
				p.Solidez = clampPtr(r.Solidez)
			}
		}
	}
	return rated
}

// evaluate runs the variation, clarity and clarification-need evaluators
// concurrently. None of them fails the turn.
func (s *ObserverService) evaluate(ctx context.Context, st *domain.ObserverState, prevClaim string, m *domain.CognitiveModel, opts domain.ProcessOptions, sink *usageSink) (*domain.VariationAnalysis, *domain.ClarityEvaluation, *domain.ClarificationNeed) {
	var (
		variation *domain.VariationAnalysis
		clarity   *domain.ClarityEvaluation
		need      *domain.ClarificationNeed
	)
	dialogue := domain.FormatTranscript(domain.LastMessages(st.Messages, domain.ExtractionHistoryTurns))
	summary := m.Summary()

	g, gctx := errgroup.WithContext(ctx)
	if !opts.SkipVariation && prevClaim != "" && m.Claim != "" &&
		domain.NormalizeText(prevClaim) != domain.NormalizeText(m.Claim) {
		g.Go(func() error {
			variation = s.detectVariation(gctx, st.SessionID, prevClaim, m.Claim, dialogue, sink)
			return nil
		})
	}
	if !opts.SkipClarity {
		g.Go(func() error {
			clarity = s.evaluateClarity(gctx, st.SessionID, summary, dialogue, sink)
			return nil
		})
	}
	if !opts.SkipClarification {
		g.Go(func() error {
			need = s.identifyClarificationNeed(gctx, st.SessionID, summary, dialogue, m.TurnCount, sink)
			return nil
		})
	}
	_ = g.Wait()
	return variation, clarity, need
}

// detectVariation falls back to "variation", the conservative reading.
func (s *ObserverService) detectVariation(ctx context.Context, sessionID, prevClaim, newClaim, dialogue string, sink *usageSink) *domain.VariationAnalysis {
	fallback := &domain.VariationAnalysis{
		Classification:  domain.ClassVariation,
		EssencePrevious: prevClaim,
		EssenceNew:      newClaim,
		SharedConcepts:  []string{},
		NewConcepts:     []string{},
		Analysis:        "could not evaluate; assuming the same essence",
	}
	reply, err := s.call(ctx, sessionID, llm.TaskVariation, fmt.Sprintf(llm.ObserverVariationPrompt, prevClaim, newClaim, dialogue), sink)
	if err != nil {
		s.logger.Warn("variation detection failed", zap.String("session_id", sessionID), zap.Error(err))
		return fallback
	}
	var out domain.VariationAnalysis
	if err := llm.DecodeJSON(reply.Content, &out); err != nil {
		s.logger.Warn("failed to parse variation analysis", zap.String("session_id", sessionID), zap.Error(err))
		return fallback
	}
	if out.Classification != domain.ClassVariation && out.Classification != domain.ClassRealChange {
		out.Classification = domain.ClassVariation
	}
	if out.SharedConcepts == nil {
		out.SharedConcepts = []string{}
	}
	if out.NewConcepts == nil {
		out.NewConcepts = []string{}
	}
	return &out
}

func publishVariation(fx *ObserverEffects, v *domain.VariationAnalysis) {
	sessionID := fx.sessionID
	fx.publish(func(b *events.Bus) error {
		return b.PublishVariationDetected(sessionID, domain.VariationDetectedPayload{
			Classification:  v.Classification,
			EssencePrevious: v.EssencePrevious,
			EssenceNew:      v.EssenceNew,
			Analysis:        v.Analysis,
		})
	})
}

type rawClarity struct {
	ClarityLevel    string                `json:"clarity_level"`
	ClarityScore    *int                  `json:"clarity_score"`
	Description     string                `json:"description"`
	NeedsCheckpoint *bool                 `json:"needs_checkpoint"`
	Factors         domain.ClarityFactors `json:"factors"`
	Suggestion      *string               `json:"suggestion"`
}

// NormalizeClarity fills the score from the level (or the level from the
// score) and defaults needs_checkpoint from the level.
func NormalizeClarity(r rawClarity) (*domain.ClarityEvaluation, bool) {
	level := domain.ClarityLevel(strings.ToLower(strings.TrimSpace(r.ClarityLevel)))
	validScore := r.ClarityScore != nil && *r.ClarityScore >= 1 && *r.ClarityScore <= 5
	switch {
	case domain.ValidClarityLevel(string(level)):
	case validScore:
		level = domain.ClarityLevelForScore(*r.ClarityScore)
	default:
		return nil, false
	}
	score := level.Score()
	if validScore && domain.ClarityLevelForScore(*r.ClarityScore) == level {
		score = *r.ClarityScore
	}
	needs := level.NeedsCheckpointByDefault()
	if r.NeedsCheckpoint != nil {
		needs = *r.NeedsCheckpoint
	}
	return &domain.ClarityEvaluation{
		ClarityLevel:    level,
		ClarityScore:    score,
		Description:     r.Description,
		NeedsCheckpoint: needs,
		Factors:         r.Factors,
		Suggestion:      r.Suggestion,
	}, true
}

func clarityFallback() *domain.ClarityEvaluation {
	return &domain.ClarityEvaluation{
		ClarityLevel: domain.ClarityClara,
		ClarityScore: domain.ClarityClara.Score(),
		Description:  "clarity could not be evaluated",
	}
}

func (s *ObserverService) evaluateClarity(ctx context.Context, sessionID, summary, dialogue string, sink *usageSink) *domain.ClarityEvaluation {
	reply, err := s.call(ctx, sessionID, llm.TaskClarity, fmt.Sprintf(llm.ObserverClarityPrompt, summary, dialogue), sink)
	if err != nil {
		s.logger.Warn("clarity evaluation failed", zap.String("session_id", sessionID), zap.Error(err))
		return clarityFallback()
	}
	var raw rawClarity
	if err := llm.DecodeJSON(reply.Content, &raw); err != nil {
		s.logger.Warn("failed to parse clarity evaluation", zap.String("session_id", sessionID), zap.Error(err))
		return clarityFallback()
	}
	out, ok := NormalizeClarity(raw)
	if !ok {
		s.logger.Warn("invalid clarity level", zap.String("session_id", sessionID), zap.String("level", raw.ClarityLevel))
		return clarityFallback()
	}
	return out
}

func publishCheckpoint(fx *ObserverEffects, c *domain.ClarityEvaluation) {
	sessionID := fx.sessionID
	fx.publish(func(b *events.Bus) error {
		return b.PublishClarityCheckpoint(sessionID, domain.ClarityCheckpointPayload{
			ClarityLevel: c.ClarityLevel,
			ClarityScore: c.ClarityScore,
			Description:  c.Description,
			Suggestion:   c.Suggestion,
		})
	})
}

// identifyClarificationNeed treats any failure as "no need": an unneeded
// question costs the user more than a missed one.
func (s *ObserverService) identifyClarificationNeed(ctx context.Context, sessionID, summary, dialogue string, turn int, sink *usageSink) *domain.ClarificationNeed {
	none := &domain.ClarificationNeed{TurnDetected: turn}
	reply, err := s.call(ctx, sessionID, llm.TaskClarificationNeed,
		fmt.Sprintf(llm.ObserverClarificationNeedPrompt, summary, dialogue, turn), sink)
	if err != nil {
		s.logger.Warn("clarification need failed", zap.String("session_id", sessionID), zap.Error(err))
		return none
	}
	var out domain.ClarificationNeed
	if err := llm.DecodeJSON(reply.Content, &out); err != nil {
		s.logger.Warn("failed to parse clarification need", zap.String("session_id", sessionID), zap.Error(err))
		return none
	}
	if !out.NeedsClarification {
		return none
	}
	if !domain.ValidClarificationType(string(out.ClarificationType)) {
		out.ClarificationType = domain.ClarificationGap
	}
	if !domain.ValidPriority(string(out.Priority)) {
		out.Priority = domain.PriorityMedium
	}
	out.TurnDetected = turn
	out.TurnsPersisted = 0
	return &out
}

// resolveClarification analyzes the user's answer to the pending question and
// applies its updates to m as a unit.
func (s *ObserverService) resolveClarification(ctx context.Context, st *domain.ObserverState, answer string, m *domain.CognitiveModel, analysis *domain.TurnAnalysis, fx *ObserverEffects, sink *usageSink) *domain.CognitiveModel {
	pending := st.PendingClarification
	question := pending.Description
	if pending.SuggestedApproach != "" {
		question += " (" + pending.SuggestedApproach + ")"
	}
	reply, err := s.call(ctx, st.SessionID, llm.TaskClarificationResponse,
		fmt.Sprintf(llm.ObserverClarificationResponsePrompt, question, answer, m.Summary()), sink)
	if err != nil {
		s.logger.Warn("clarification response analysis failed", zap.String("session_id", st.SessionID), zap.Error(err))
		return m
	}
	var resp domain.ClarificationResponse
	if err := llm.DecodeJSON(reply.Content, &resp); err != nil {
		s.logger.Warn("failed to parse clarification response", zap.String("session_id", st.SessionID), zap.Error(err))
		return m
	}
	if !domain.ValidResolutionStatus(string(resp.ResolutionStatus)) {
		resp.ResolutionStatus = domain.ResolutionUnresolved
	}
	analysis.Resolution = &resp
	updated := ApplyClarificationUpdates(m, resp.Updates, s.newID)

	fx.publish(func(b *events.Bus) error {
		return b.PublishClarificationResolved(st.SessionID, domain.ClarificationResolvedPayload{
			ResolutionStatus: resp.ResolutionStatus,
			Summary:          resp.Summary,
			NeedsFollowup:    resp.NeedsFollowup,
		})
	})
	if resp.ResolutionStatus == domain.ResolutionResolved {
		if pending.ClarificationType == domain.ClarificationDirectionChange && st.Variation != nil {
			fx.publish(func(b *events.Bus) error {
				return b.PublishDirectionChangeConfirmed(st.SessionID, domain.DirectionChangeConfirmedPayload{
					PreviousClaim: st.Variation.EssencePrevious,
					NewClaim:      updated.Claim,
					NewConcepts:   st.Variation.NewConcepts,
				})
			})
		}
		st.PendingClarification = nil
	}
	return updated
}

// WhatDoYouSee answers an orchestrator question about the argument. The
// answer is advisory.
func (s *ObserverService) WhatDoYouSee(ctx context.Context, st *domain.ObserverState, contextText, question string) (*domain.ObserverInsight, error) {
	metrics := ComputeMetrics(st.Model)
	reply, err := s.call(ctx, st.SessionID, llm.TaskInsight,
		fmt.Sprintf(llm.ObserverInsightPrompt, st.Model.Summary(), metrics.Solidez, metrics.Completude, contextText, question), nil)
	if err != nil {
		return nil, err
	}
	var out domain.ObserverInsight
	if err := llm.DecodeJSON(reply.Content, &out); err != nil {
		s.logger.Warn("failed to parse observer insight", zap.String("session_id", st.SessionID), zap.Error(err))
		return &domain.ObserverInsight{
			Insight:  "no insight available",
			Evidence: []string{},
		}, nil
	}
	out.Confidence = domain.Clamp01(out.Confidence)
	if out.Evidence == nil {
		out.Evidence = []string{}
	}
	return &out, nil
}
