package service

import (
	"math"
	"strings"
	"testing"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

func prop(texto string, solidez *float64) domain.Proposicao {
	return domain.Proposicao{ID: texto, Texto: texto, Solidez: solidez, Tipo: domain.PropositionPremise}
}

func TestComputeSolidez(t *testing.T) {
	tests := []struct {
		name  string
		model *domain.CognitiveModel
		want  float64
	}{
		{"nil model", nil, 0},
		{"empty model", domain.NewCognitiveModel(), 0},
		{"short claim", &domain.CognitiveModel{Claim: "LLMs help"}, 0.20},
		{"long claim", &domain.CognitiveModel{Claim: strings.Repeat("x", 51)}, 0.25},
		{
			"solid propositions are capped",
			&domain.CognitiveModel{Claim: "c", Proposicoes: []domain.Proposicao{
				prop("a", ptr(0.9)), prop("b", ptr(0.8)), prop("c", ptr(0.7)), prop("d", ptr(0.6)),
			}},
			0.65,
		},
		{
			"fragile and unrated",
			&domain.CognitiveModel{Claim: "c", Proposicoes: []domain.Proposicao{
				prop("a", ptr(0.1)), prop("b", nil), prop("c", ptr(0.5)),
			}},
			0.15,
		},
		{
			"contradictions and questions subtract",
			&domain.CognitiveModel{
				Claim:          "c",
				Proposicoes:    []domain.Proposicao{prop("a", ptr(0.9))},
				OpenQuestions:  []string{"q1"},
				Contradictions: []domain.Contradiction{{Description: "x", Confidence: 0.9}},
			},
			0.20,
		},
		{
			"clamped at zero",
			&domain.CognitiveModel{
				OpenQuestions:  []string{"1", "2", "3"},
				Contradictions: []domain.Contradiction{{Description: "x"}},
			},
			0,
		},
		{
			"grounds add",
			&domain.CognitiveModel{Claim: "c", SolidGrounds: []string{"a", "b", "c", "d"}},
			0.35,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSolidez(tt.model)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ComputeSolidez = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeSolidez_MonotonicOnStrengthening(t *testing.T) {
	bases := []*domain.CognitiveModel{
		domain.NewCognitiveModel(),
		{Claim: "teams ship faster", OpenQuestions: []string{"how much?"}},
		{Claim: "c", Proposicoes: []domain.Proposicao{prop("a", ptr(0.9)), prop("b", ptr(0.9)), prop("c", ptr(0.9))}},
		{Claim: "c", Contradictions: []domain.Contradiction{{Description: "a"}, {Description: "b"}, {Description: "c"}}},
		{Claim: "c", Proposicoes: []domain.Proposicao{prop("a", ptr(0.2))}, SolidGrounds: []string{"g"}},
	}
	for i, base := range bases {
		before := ComputeSolidez(base)

		stronger := base.Clone()
		stronger.Proposicoes = append(stronger.Proposicoes, prop("new solid", ptr(0.6)))
		if got := ComputeSolidez(stronger); got < before {
			t.Errorf("base %d: adding a solid proposition lowered solidez %v -> %v", i, before, got)
		}

		weaker := base.Clone()
		weaker.Contradictions = append(weaker.Contradictions, domain.Contradiction{Description: "new", Confidence: 0.9})
		if got := ComputeSolidez(weaker); got > before {
			t.Errorf("base %d: adding a contradiction raised solidez %v -> %v", i, before, got)
		}
	}
}

func TestComputeCompletude(t *testing.T) {
	m := &domain.CognitiveModel{
		Proposicoes:   []domain.Proposicao{prop("a", ptr(0.9)), prop("b", ptr(0.3)), prop("c", nil)},
		OpenQuestions: []string{"q1", "q2", "q3"},
	}
	if got := ComputeCompletude(m); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("ComputeCompletude = %v, want 0.25", got)
	}
	if got := ComputeCompletude(domain.NewCognitiveModel()); got != 0 {
		t.Fatalf("empty model completude = %v, want 0", got)
	}
}

func TestEvaluateMaturity(t *testing.T) {
	mature := &domain.CognitiveModel{
		Claim:       strings.Repeat("a precise claim ", 5),
		Proposicoes: []domain.Proposicao{prop("a", ptr(0.9)), prop("b", ptr(0.8)), prop("c", ptr(0.7))},
	}
	m := EvaluateMaturity(mature, ComputeMetrics(mature))
	if !m.IsMature {
		t.Fatalf("expected mature, got %+v", m)
	}

	immature := &domain.CognitiveModel{Claim: "vague"}
	m = EvaluateMaturity(immature, ComputeMetrics(immature))
	if m.IsMature || m.Reason != "solidez below threshold" {
		t.Fatalf("expected immature for solidez, got %+v", m)
	}

	contradicted := mature.Clone()
	contradicted.Contradictions = []domain.Contradiction{{Description: "x", Confidence: 0.9}}
	contradicted.SolidGrounds = []string{"a", "b"}
	m = EvaluateMaturity(contradicted, ComputeMetrics(contradicted))
	if m.IsMature {
		t.Fatalf("contradicted model should not be mature: %+v", m)
	}
}
