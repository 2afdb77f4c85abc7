package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimensions is the fixed vector size of the embedding backend.
const EmbeddingDimensions = 384

// Concept is a reusable, cross-session label in the catalog.
type Concept struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Label      string    `json:"label" db:"label"`
	Essence    string    `json:"essence,omitempty" db:"essence"`
	Variations []string  `json:"variations"`
	VectorRef  string    `json:"vector_ref" db:"vector_ref"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// HasVariation reports whether v is already a recorded surface form.
func (c *Concept) HasVariation(v string) bool {
	key := NormalizeText(v)
	if NormalizeText(c.Label) == key {
		return true
	}
	for _, existing := range c.Variations {
		if NormalizeText(existing) == key {
			return true
		}
	}
	return false
}

type ConceptMatch struct {
	Concept    Concept `json:"concept"`
	Similarity float64 `json:"similarity"`
}

// VectorHit is one raw result from a vector index query.
type VectorHit struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ConceptPersistResult describes what happened to one extracted label.
type ConceptPersistResult struct {
	ConceptID  uuid.UUID  `json:"concept_id"`
	Label      string     `json:"label"`
	IsNew      bool       `json:"is_new"`
	Similarity *float64   `json:"similarity"`
	MergedWith *uuid.UUID `json:"merged_with"`
}

type BatchPersistResult struct {
	ConceptIDs  []uuid.UUID            `json:"concept_ids"`
	NewCount    int                    `json:"new_count"`
	MergedCount int                    `json:"merged_count"`
	Total       int                    `json:"total"`
	Details     []ConceptPersistResult `json:"details"`
}
