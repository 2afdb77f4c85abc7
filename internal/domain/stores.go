package domain

import (
	"context"

	"github.com/google/uuid"
)

// ConceptStore is the relational half of the catalog: labels, variations and
// idea links.
type ConceptStore interface {
	CreateConcept(ctx context.Context, c *Concept) error
	GetConcept(ctx context.Context, id uuid.UUID) (*Concept, error)
	GetConceptByLabel(ctx context.Context, label string) (*Concept, error)
	ListConcepts(ctx context.Context, limit int) ([]Concept, error)
	CountConcepts(ctx context.Context) (int, error)
	// DeleteConcept removes the row with its variations and idea links.
	DeleteConcept(ctx context.Context, id uuid.UUID) error
	// AddVariation reports whether a new variation row was inserted.
	AddVariation(ctx context.Context, id uuid.UUID, variation string) (bool, error)
	// LinkIdeaConcept reports whether a new relation was inserted.
	LinkIdeaConcept(ctx context.Context, ideaID string, conceptID uuid.UUID) (bool, error)
	ConceptsForIdea(ctx context.Context, ideaID string) ([]Concept, error)
}

// VectorIndex is the similarity half of the catalog. Distances are Euclidean
// over unit vectors.
type VectorIndex interface {
	Add(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, vector []float32, nResults int) ([]VectorHit, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLMRequest is one text-generation call.
type LLMRequest struct {
	Agent       string    `json:"agent"`
	Task        string    `json:"task,omitempty"`
	Model       string    `json:"model"`
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// LLMResponse carries the generated text. Token counts are reported either in
// UsageMetadata or under ResponseMetadata["usage"].
type LLMResponse struct {
	Content          string         `json:"content"`
	Model            string         `json:"model"`
	UsageMetadata    *TokenUsage    `json:"usage_metadata,omitempty"`
	ResponseMetadata map[string]any `json:"response_metadata,omitempty"`
}

type LLMClient interface {
	Invoke(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}
