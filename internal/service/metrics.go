package service

import (
	"unicode/utf8"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// Solidez weights. Each term is capped before the total is clamped to [0,1].
const (
	solidezClaimBase         = 0.20
	solidezLongClaimBonus    = 0.05
	solidezLongClaimRunes    = 50
	solidezPerSolid          = 0.15
	solidezSolidCap          = 0.45
	solidezPerFragile        = 0.05
	solidezFragileCap        = 0.25
	solidezPerOpenQuestion   = 0.05
	solidezOpenQuestionCap   = 0.15
	solidezPerContradiction  = 0.10
	solidezContradictionCap  = 0.30
	solidezPerGround         = 0.05
	solidezGroundCap         = 0.15
	maturitySolidezThreshold = 0.60
	maturityCompleteness     = 0.50
	maturityMaxOpenQuestions = 1
)

func capped(n int, per, limit float64) float64 {
	v := float64(n) * per
	if v > limit {
		return limit
	}
	return v
}

// ComputeSolidez scores how well grounded the current claim is.
func ComputeSolidez(m *domain.CognitiveModel) float64 {
	if m == nil {
		return 0
	}
	score := 0.0
	if m.Claim != "" {
		score += solidezClaimBase
		if utf8.RuneCountInString(m.Claim) > solidezLongClaimRunes {
			score += solidezLongClaimBonus
		}
	}
	score += capped(m.SolidCount(), solidezPerSolid, solidezSolidCap)
	score -= capped(m.FragileCount(), solidezPerFragile, solidezFragileCap)
	score -= capped(len(m.OpenQuestions), solidezPerOpenQuestion, solidezOpenQuestionCap)
	score -= capped(len(m.Contradictions), solidezPerContradiction, solidezContradictionCap)
	score += capped(len(m.SolidGrounds), solidezPerGround, solidezGroundCap)
	return domain.Clamp01(score)
}

// ComputeCompletude is solid / (solid + open questions), 0 when both are 0.
func ComputeCompletude(m *domain.CognitiveModel) float64 {
	if m == nil {
		return 0
	}
	solid := m.SolidCount()
	den := solid + len(m.OpenQuestions)
	if den == 0 {
		return 0
	}
	return float64(solid) / float64(den)
}

func ComputeMetrics(m *domain.CognitiveModel) domain.Metrics {
	return domain.Metrics{Solidez: ComputeSolidez(m), Completude: ComputeCompletude(m)}
}

// EvaluateMaturity decides whether the argument is ready to be structured.
func EvaluateMaturity(m *domain.CognitiveModel, metrics domain.Metrics) domain.Maturity {
	out := domain.Maturity{Confidence: (metrics.Solidez + metrics.Completude) / 2}
	switch {
	case metrics.Solidez < maturitySolidezThreshold:
		out.Reason = "solidez below threshold"
	case metrics.Completude < maturityCompleteness:
		out.Reason = "completude below threshold"
	case m != nil && len(m.OpenQuestions) > maturityMaxOpenQuestions:
		out.Reason = "too many open questions"
	case m != nil && len(m.Contradictions) > 0:
		out.Reason = "unresolved contradictions"
	default:
		out.IsMature = true
		out.Reason = "argument is solid and complete"
	}
	return out
}
