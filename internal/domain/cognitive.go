package domain

import (
	"fmt"
	"strings"
)

const (
	// SolidPropositionThreshold marks a proposition as solid.
	SolidPropositionThreshold = 0.6
	// FragilePropositionThreshold marks a rated proposition below it as fragile.
	FragilePropositionThreshold = 0.4
	// MinContradictionConfidence is the retention bar for contradictions.
	MinContradictionConfidence = 0.80
)

// Proposition types.
const (
	PropositionPremise  = "premissa"
	PropositionEvidence = "evidencia"
	PropositionContext  = "contexto"
)

// Proposicao is a supporting statement. Solidez nil means not yet evaluated.
type Proposicao struct {
	ID      string   `json:"id"`
	Texto   string   `json:"texto"`
	Solidez *float64 `json:"solidez"`
	Tipo    string   `json:"tipo"`
}

func (p Proposicao) IsSolid() bool {
	return p.Solidez != nil && *p.Solidez >= SolidPropositionThreshold
}

func (p Proposicao) IsFragile() bool {
	return p.Solidez != nil && *p.Solidez < FragilePropositionThreshold
}

type Contradiction struct {
	Description         string  `json:"description"`
	Confidence          float64 `json:"confidence"`
	SuggestedResolution *string `json:"suggested_resolution"`
}

// CognitiveModel is the analytical-plane picture of the user's argument.
type CognitiveModel struct {
	Claim            string          `json:"claim"`
	Proposicoes      []Proposicao    `json:"proposicoes"`
	OpenQuestions    []string        `json:"open_questions"`
	Contradictions   []Contradiction `json:"contradictions"`
	SolidGrounds     []string        `json:"solid_grounds"`
	ConceptsDetected []string        `json:"concepts_detected"`
	TurnCount        int             `json:"turn_count"`
}

func NewCognitiveModel() *CognitiveModel {
	return &CognitiveModel{
		Proposicoes:      []Proposicao{},
		OpenQuestions:    []string{},
		Contradictions:   []Contradiction{},
		SolidGrounds:     []string{},
		ConceptsDetected: []string{},
	}
}

func (m *CognitiveModel) Clone() *CognitiveModel {
	if m == nil {
		return nil
	}
	out := *m
	out.Proposicoes = make([]Proposicao, len(m.Proposicoes))
	for i, p := range m.Proposicoes {
		cp := p
		if p.Solidez != nil {
			v := *p.Solidez
			cp.Solidez = &v
		}
		out.Proposicoes[i] = cp
	}
	out.OpenQuestions = append([]string{}, m.OpenQuestions...)
	out.Contradictions = make([]Contradiction, len(m.Contradictions))
	for i, c := range m.Contradictions {
		cc := c
		if c.SuggestedResolution != nil {
			v := *c.SuggestedResolution
			cc.SuggestedResolution = &v
		}
		out.Contradictions[i] = cc
	}
	out.SolidGrounds = append([]string{}, m.SolidGrounds...)
	out.ConceptsDetected = append([]string{}, m.ConceptsDetected...)
	return &out
}

func (m *CognitiveModel) SolidCount() int {
	n := 0
	for _, p := range m.Proposicoes {
		if p.IsSolid() {
			n++
		}
	}
	return n
}

func (m *CognitiveModel) FragileCount() int {
	n := 0
	for _, p := range m.Proposicoes {
		if p.IsFragile() {
			n++
		}
	}
	return n
}

// FindProposition returns the index of the proposition with the given text, or -1.
func (m *CognitiveModel) FindProposition(texto string) int {
	key := NormalizeText(texto)
	for i, p := range m.Proposicoes {
		if NormalizeText(p.Texto) == key {
			return i
		}
	}
	return -1
}

// Summary renders the model for inclusion in agent prompts.
func (m *CognitiveModel) Summary() string {
	if m == nil {
		return "(no cognitive model yet)"
	}
	var sb strings.Builder
	claim := m.Claim
	if claim == "" {
		claim = "(undefined)"
	}
	fmt.Fprintf(&sb, "Claim: %s\n", claim)
	if len(m.Proposicoes) > 0 {
		sb.WriteString("Propositions:\n")
		for _, p := range m.Proposicoes {
			solidez := "unrated"
			if p.Solidez != nil {
				solidez = fmt.Sprintf("%.2f", *p.Solidez)
			}
			fmt.Fprintf(&sb, "- [%s] %s (solidez %s)\n", p.Tipo, p.Texto, solidez)
		}
	}
	if len(m.OpenQuestions) > 0 {
		sb.WriteString("Open questions:\n")
		for _, q := range m.OpenQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	if len(m.Contradictions) > 0 {
		sb.WriteString("Contradictions:\n")
		for _, c := range m.Contradictions {
			fmt.Fprintf(&sb, "- %s (confidence %.2f)\n", c.Description, c.Confidence)
		}
	}
	if len(m.ConceptsDetected) > 0 {
		fmt.Fprintf(&sb, "Concepts: %s\n", strings.Join(m.ConceptsDetected, ", "))
	}
	return sb.String()
}

// NormalizeText is the identity key used to deduplicate propositions,
// contradictions and questions: case-folded with collapsed whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
