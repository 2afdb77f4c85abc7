package service

import (
	"strings"
	"unicode/utf8"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

const (
	// minQuestionSpacing is the number of turns that must pass after a
	// clarification question before another one is asked.
	minQuestionSpacing        = 2
	contradictionPersistBar   = 2
	mediumPriorityPersistBar  = 1
	lowPriorityPersistBar     = 3
	flowingMinRunes           = 80
	flowingRecentUserMessages = 2
)

// TimingContext carries the inputs of the clarification timing decision
// besides the need itself.
type TimingContext struct {
	TurnsSinceLastQuestion int
	IsUserFlowing          bool
}

// ShouldAskClarification decides whether a pending need is raised this turn.
// It depends only on its arguments.
func ShouldAskClarification(need *domain.ClarificationNeed, tc TimingContext) domain.ClarificationTimingDecision {
	if need == nil || !need.NeedsClarification {
		return domain.ClarificationTimingDecision{Reason: "no clarification needed", Urgency: domain.PriorityLow}
	}
	urgency := need.Priority
	if !domain.ValidPriority(string(urgency)) {
		urgency = domain.PriorityMedium
	}

	if urgency == domain.PriorityHigh {
		return domain.ClarificationTimingDecision{ShouldAsk: true, Reason: "high priority", Urgency: domain.PriorityHigh}
	}
	if need.ClarificationType == domain.ClarificationContradiction && need.TurnsPersisted >= contradictionPersistBar {
		return domain.ClarificationTimingDecision{ShouldAsk: true, Reason: "contradiction persisted", Urgency: urgency}
	}
	if tc.TurnsSinceLastQuestion < minQuestionSpacing {
		delay := minQuestionSpacing - tc.TurnsSinceLastQuestion
		if delay < 1 {
			delay = 1
		}
		return domain.ClarificationTimingDecision{Reason: "asked too recently", DelayTurns: delay, Urgency: urgency}
	}
	if tc.IsUserFlowing {
		return domain.ClarificationTimingDecision{Reason: "user is flowing", DelayTurns: 1, Urgency: urgency}
	}
	switch {
	case urgency == domain.PriorityMedium && need.ClarificationType != domain.ClarificationContradiction &&
		need.TurnsPersisted >= mediumPriorityPersistBar:
		return domain.ClarificationTimingDecision{ShouldAsk: true, Reason: "need persisted", Urgency: urgency}
	case urgency == domain.PriorityLow && need.TurnsPersisted >= lowPriorityPersistBar:
		return domain.ClarificationTimingDecision{ShouldAsk: true, Reason: "low priority need persisted", Urgency: urgency}
	}
	return domain.ClarificationTimingDecision{Reason: "waiting for the need to persist", DelayTurns: 1, Urgency: urgency}
}

// UpdatePersistence carries a pending need into the current turn. A need of
// the same type stays relevant and its persistence grows; anything else
// resets the counter.
func UpdatePersistence(prev, current *domain.ClarificationNeed, turn int) *domain.ClarificationNeed {
	if current == nil || !current.NeedsClarification {
		return &domain.ClarificationNeed{NeedsClarification: false, TurnDetected: turn}
	}
	out := *current
	if prev != nil && prev.NeedsClarification && prev.ClarificationType == current.ClarificationType {
		out.TurnsPersisted = prev.TurnsPersisted + 1
		out.TurnDetected = prev.TurnDetected
		return &out
	}
	out.TurnsPersisted = 0
	out.TurnDetected = turn
	return &out
}

// IsUserFlowing reports whether the last user messages are long, question
// free contributions, which a clarification would interrupt.
func IsUserFlowing(history []domain.Message) bool {
	n := 0
	for i := len(history) - 1; i >= 0 && n < flowingRecentUserMessages; i-- {
		m := history[i]
		if m.Role != domain.RoleUser {
			continue
		}
		if utf8.RuneCountInString(m.Content) < flowingMinRunes || strings.Contains(m.Content, "?") {
			return false
		}
		n++
	}
	return n == flowingRecentUserMessages
}

// ApplyClarificationUpdates applies a clarification response to a copy of m.
// The caller swaps the copy in, so either every update lands or none does.
func ApplyClarificationUpdates(m *domain.CognitiveModel, u domain.ClarificationUpdates, newID func() string) *domain.CognitiveModel {
	out := m.Clone()
	if out == nil {
		out = domain.NewCognitiveModel()
	}

	for _, p := range u.ProposicoesToAdd {
		texto := strings.TrimSpace(p.Texto)
		if texto == "" || out.FindProposition(texto) >= 0 {
			continue
		}
		out.Proposicoes = append(out.Proposicoes, domain.Proposicao{
			ID:      newID(),
			Texto:   texto,
			Solidez: clampPtr(p.Solidez),
			Tipo:    domain.PropositionPremise,
		})
	}

	for _, upd := range u.ProposicoesToUpdate {
		idx := -1
		for i, p := range out.Proposicoes {
			if p.ID == upd.ID {
				idx = i
				break
			}
		}
		if idx < 0 && upd.Texto != "" {
			idx = out.FindProposition(upd.Texto)
		}
		if idx < 0 {
			continue
		}
		if upd.Solidez != nil {
			out.Proposicoes[idx].Solidez = clampPtr(upd.Solidez)
		}
		if t := strings.TrimSpace(upd.Texto); t != "" {
			out.Proposicoes[idx].Texto = t
		}
	}

	if len(u.ContradictionsToResolve) > 0 {
		resolve := normalizedSet(u.ContradictionsToResolve)
		kept := out.Contradictions[:0]
		for _, c := range out.Contradictions {
			if !resolve[domain.NormalizeText(c.Description)] {
				kept = append(kept, c)
			}
		}
		out.Contradictions = kept
	}

	if len(u.OpenQuestionsToClose) > 0 {
		closeSet := normalizedSet(u.OpenQuestionsToClose)
		kept := out.OpenQuestions[:0]
		for _, q := range out.OpenQuestions {
			if !closeSet[domain.NormalizeText(q)] {
				kept = append(kept, q)
			}
		}
		out.OpenQuestions = kept
	}

	for _, ctxText := range u.ContextToAdd {
		texto := strings.TrimSpace(ctxText)
		if texto == "" || out.FindProposition(texto) >= 0 {
			continue
		}
		out.Proposicoes = append(out.Proposicoes, domain.Proposicao{
			ID:    newID(),
			Texto: texto,
			Tipo:  domain.PropositionContext,
		})
	}
	return out
}

func normalizedSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[domain.NormalizeText(s)] = true
	}
	return out
}

func clampPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := domain.Clamp01(*v)
	return &c
}
