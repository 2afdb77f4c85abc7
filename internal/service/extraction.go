package service

import (
	"strings"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// SanitizeExtraction trims empty entries, enforces per-turn limits, drops
// contradictions under the confidence bar and blanks skipped substeps.
// Extracted propositions come back unrated; the fundamentos step scores them.
func SanitizeExtraction(ext domain.Extraction, opts domain.ProcessOptions) domain.Extraction {
	out := domain.Extraction{
		Claims:         []string{},
		Concepts:       []string{},
		Proposicoes:    []domain.ExtractedProposicao{},
		Contradictions: []domain.Contradiction{},
		OpenQuestions:  []string{},
	}
	if !opts.SkipClaims {
		out.Claims = nonEmpty(ext.Claims, domain.MaxExtractedClaims)
	}
	if !opts.SkipConcepts {
		out.Concepts = nonEmpty(ext.Concepts, domain.MaxExtractedConcepts)
	}
	for _, p := range ext.Proposicoes {
		if len(out.Proposicoes) == domain.MaxExtractedPropositions {
			break
		}
		if t := strings.TrimSpace(p.Texto); t != "" {
			out.Proposicoes = append(out.Proposicoes, domain.ExtractedProposicao{Texto: t, Solidez: nil})
		}
	}
	if !opts.SkipContradictions {
		for _, c := range ext.Contradictions {
			if strings.TrimSpace(c.Description) == "" || c.Confidence < domain.MinContradictionConfidence {
				continue
			}
			c.Description = strings.TrimSpace(c.Description)
			c.Confidence = domain.Clamp01(c.Confidence)
			out.Contradictions = append(out.Contradictions, c)
		}
	}
	out.OpenQuestions = nonEmpty(ext.OpenQuestions, domain.MaxExtractedOpenQuestions)
	return out
}

func nonEmpty(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if len(out) == limit {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MergeExtraction folds one turn's extraction into a copy of prev. The claim
// is replaced by the newest one, propositions and contradictions accumulate
// without duplicates, open questions are replaced wholesale and concepts
// accumulate.
func MergeExtraction(prev *domain.CognitiveModel, ext domain.Extraction, newID func() string) *domain.CognitiveModel {
	m := prev.Clone()
	if m == nil {
		m = domain.NewCognitiveModel()
	}

	if len(ext.Claims) > 0 {
		m.Claim = ext.Claims[0]
	}

	for _, p := range ext.Proposicoes {
		if m.FindProposition(p.Texto) >= 0 {
			continue
		}
		m.Proposicoes = append(m.Proposicoes, domain.Proposicao{
			ID:      newID(),
			Texto:   p.Texto,
			Solidez: p.Solidez,
			Tipo:    domain.PropositionPremise,
		})
	}

	m.OpenQuestions = append([]string{}, ext.OpenQuestions...)

	known := make(map[string]bool, len(m.Contradictions))
	for _, c := range m.Contradictions {
		known[domain.NormalizeText(c.Description)] = true
	}
	for _, c := range ext.Contradictions {
		key := domain.NormalizeText(c.Description)
		if known[key] || c.Confidence < domain.MinContradictionConfidence {
			continue
		}
		known[key] = true
		m.Contradictions = append(m.Contradictions, c)
	}

	m.ConceptsDetected = append(m.ConceptsDetected, ext.Concepts...)
	return m
}
