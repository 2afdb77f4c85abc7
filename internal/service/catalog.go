package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/store"
)

var (
	ErrConceptNotFound   = errors.New("concept not found")
	ErrConceptLabelEmpty = errors.New("concept label is required")
	ErrVariationEmpty    = errors.New("variation is required")
	ErrSearchQueryEmpty  = errors.New("query is required")
)

const (
	// DefaultSearchTopK bounds FindSimilar when the caller passes no limit.
	DefaultSearchTopK = 5
	// dedupCandidates is how many neighbours SaveConcept inspects, so a
	// dangling vector entry does not hide the real nearest concept.
	dedupCandidates = 3
)

// ConfirmVariationFunc decides whether a label that matched an existing
// concept with similarity in [SameConceptThreshold, AutoVariationThreshold)
// is recorded as a variation. The match itself is never undone.
type ConfirmVariationFunc func(ctx context.Context, existing domain.Concept, label string, similarity float64) bool

// SaveResult is the outcome of one SaveConcept call.
type SaveResult struct {
	ConceptID       uuid.UUID
	IsNew           bool
	Similarity      *float64
	MergedWith      *uuid.UUID
	VariationAdded  bool
	Band            domain.SimilarityBand
	ExistingConcept *domain.Concept
}

// CatalogService is the process-wide concept library. Writers are serialized
// so the dedup check and the insert it guards happen under one lock.
type CatalogService struct {
	concepts domain.ConceptStore
	vectors  domain.VectorIndex
	embedder domain.EmbeddingClient
	confirm  ConfirmVariationFunc
	logger   *zap.Logger

	mu sync.Mutex
}

func NewCatalogService(cs domain.ConceptStore, vi domain.VectorIndex, ec domain.EmbeddingClient, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		concepts: cs,
		vectors:  vi,
		embedder: ec,
		logger:   logger,
	}
}

// SetConfirmVariation installs the hook consulted for matches in the
// confirmation band. With no hook every match is recorded.
func (s *CatalogService) SetConfirmVariation(fn ConfirmVariationFunc) {
	s.confirm = fn
}

func (s *CatalogService) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed %q: %w", text, err)
	}
	if len(vec) != domain.EmbeddingDimensions {
		return nil, fmt.Errorf("embed %q: got %d dimensions, want %d", text, len(vec), domain.EmbeddingDimensions)
	}
	return domain.Normalize(vec), nil
}

// SaveConcept stores label unless a concept with similarity >= 0.80 already
// exists, in which case the existing id is returned and label is recorded as
// one of its variations. vector may be nil, in which case label is embedded.
func (s *CatalogService) SaveConcept(ctx context.Context, label, essence string, vector []float32) (*SaveResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrConceptLabelEmpty
	}
	if vector == nil {
		v, err := s.embed(ctx, label)
		if err != nil {
			return nil, err
		}
		vector = v
	} else {
		vector = domain.Normalize(append([]float32(nil), vector...))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, sim, err := s.nearest(ctx, vector)
	if err != nil {
		return nil, err
	}

	if existing != nil && sim >= domain.SameConceptThreshold {
		res := &SaveResult{
			ConceptID:       existing.ID,
			Similarity:      &sim,
			MergedWith:      &existing.ID,
			Band:            domain.ComputeBand(sim),
			ExistingConcept: existing,
		}
		if existing.HasVariation(label) {
			return res, nil
		}
		record := sim >= domain.AutoVariationThreshold || s.confirm == nil || s.confirm(ctx, *existing, label, sim)
		if !record {
			s.logger.Info("variation not confirmed",
				zap.String("concept_id", existing.ID.String()),
				zap.String("label", label),
				zap.Float64("similarity", sim))
			return res, nil
		}
		added, err := s.concepts.AddVariation(ctx, existing.ID, label)
		if err != nil {
			return nil, fmt.Errorf("add variation: %w", err)
		}
		res.VariationAdded = added
		s.logger.Debug("concept merged",
			zap.String("concept_id", existing.ID.String()),
			zap.String("label", label),
			zap.Float64("similarity", sim),
			zap.String("reason", domain.BandReason(sim)))
		return res, nil
	}

	c := &domain.Concept{
		ID:         uuid.New(),
		Label:      label,
		Essence:    strings.TrimSpace(essence),
		Variations: []string{},
	}
	c.VectorRef = c.ID.String()
	if err := s.concepts.CreateConcept(ctx, c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Same label with a different caller-supplied vector.
			byLabel, lerr := s.concepts.GetConceptByLabel(ctx, label)
			if lerr == nil {
				one := 1.0
				return &SaveResult{ConceptID: byLabel.ID, Similarity: &one, MergedWith: &byLabel.ID, Band: domain.BandSame, ExistingConcept: byLabel}, nil
			}
		}
		return nil, fmt.Errorf("create concept: %w", err)
	}
	if err := s.vectors.Add(ctx, c.VectorRef, vector, map[string]any{"label": label}); err != nil {
		// Keep both halves consistent: no row without a vector.
		if derr := s.concepts.DeleteConcept(ctx, c.ID); derr != nil {
			s.logger.Error("failed to roll back concept row",
				zap.String("concept_id", c.ID.String()),
				zap.Error(derr))
		}
		return nil, fmt.Errorf("index concept: %w", err)
	}

	s.logger.Debug("concept created", zap.String("concept_id", c.ID.String()), zap.String("label", label))
	return &SaveResult{ConceptID: c.ID, IsNew: true, Band: domain.BandDistinct}, nil
}

// nearest returns the closest concept that has a relational row. Must be
// called with s.mu held.
func (s *CatalogService) nearest(ctx context.Context, vector []float32) (*domain.Concept, float64, error) {
	hits, err := s.vectors.Query(ctx, vector, dedupCandidates)
	if err != nil {
		return nil, 0, fmt.Errorf("query vector index: %w", err)
	}
	for _, h := range hits {
		c, err := s.resolveHit(ctx, h)
		if err != nil {
			return nil, 0, err
		}
		if c == nil {
			continue
		}
		return c, domain.SimilarityFromDistance(h.Distance), nil
	}
	return nil, 0, nil
}

// resolveHit loads the concept behind a vector hit. A hit without a row is an
// integrity problem: it is logged and skipped.
func (s *CatalogService) resolveHit(ctx context.Context, h domain.VectorHit) (*domain.Concept, error) {
	id, err := uuid.Parse(h.ID)
	if err != nil {
		s.logIntegrity(&domain.CatalogIntegrityError{ConceptID: h.ID, Reason: "vector id is not a uuid"})
		return nil, nil
	}
	c, err := s.concepts.GetConcept(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.logIntegrity(&domain.CatalogIntegrityError{ConceptID: h.ID, Reason: "vector entry has no concept row"})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load concept %s: %w", id, err)
	}
	return c, nil
}

func (s *CatalogService) logIntegrity(err *domain.CatalogIntegrityError) {
	s.logger.Warn("catalog integrity problem", zap.String("concept_id", err.ConceptID), zap.Error(err))
}

// FindSimilar returns concepts whose similarity to query is at least
// threshold, most similar first.
func (s *CatalogService) FindSimilar(ctx context.Context, query string, topK int, threshold float64) ([]domain.ConceptMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrSearchQueryEmpty
	}
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	vector, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	matches := make([]domain.ConceptMatch, 0, len(hits))
	for _, h := range hits {
		sim := domain.SimilarityFromDistance(h.Distance)
		if sim < threshold {
			continue
		}
		c, err := s.resolveHit(ctx, h)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		matches = append(matches, domain.ConceptMatch{Concept: *c, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches, nil
}

// AddVariation records an alternate surface form. It reports false when the
// form was already known.
func (s *CatalogService) AddVariation(ctx context.Context, conceptID uuid.UUID, variation string) (bool, error) {
	variation = strings.TrimSpace(variation)
	if variation == "" {
		return false, ErrVariationEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.GetConcept(ctx, conceptID)
	if err != nil {
		return false, err
	}
	if c.HasVariation(variation) {
		return false, nil
	}
	added, err := s.concepts.AddVariation(ctx, conceptID, variation)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrConceptNotFound
	}
	return added, err
}

// LinkIdeaConcept relates a concept to an idea (a session id at core scope).
func (s *CatalogService) LinkIdeaConcept(ctx context.Context, ideaID string, conceptID uuid.UUID) (bool, error) {
	if strings.TrimSpace(ideaID) == "" {
		return false, fmt.Errorf("idea id is required")
	}
	linked, err := s.concepts.LinkIdeaConcept(ctx, ideaID, conceptID)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrConceptNotFound
	}
	return linked, err
}

func (s *CatalogService) GetConcept(ctx context.Context, id uuid.UUID) (*domain.Concept, error) {
	c, err := s.concepts.GetConcept(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConceptNotFound
	}
	return c, err
}

func (s *CatalogService) GetConceptByLabel(ctx context.Context, label string) (*domain.Concept, error) {
	c, err := s.concepts.GetConceptByLabel(ctx, strings.TrimSpace(label))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConceptNotFound
	}
	return c, err
}

func (s *CatalogService) ConceptsForIdea(ctx context.Context, ideaID string) ([]domain.Concept, error) {
	return s.concepts.ConceptsForIdea(ctx, ideaID)
}

func (s *CatalogService) ListConcepts(ctx context.Context, limit int) ([]domain.Concept, error) {
	return s.concepts.ListConcepts(ctx, limit)
}

func (s *CatalogService) CountConcepts(ctx context.Context) (int, error) {
	return s.concepts.CountConcepts(ctx)
}

// DeleteConcept removes the concept row, its variations, idea links and vector.
func (s *CatalogService) DeleteConcept(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.GetConcept(ctx, id)
	if err != nil {
		return err
	}
	if err := s.concepts.DeleteConcept(ctx, id); err != nil {
		return fmt.Errorf("delete concept: %w", err)
	}
	ref := c.VectorRef
	if ref == "" {
		ref = id.String()
	}
	if err := s.vectors.Delete(ctx, ref); err != nil {
		s.logIntegrity(&domain.CatalogIntegrityError{ConceptID: id.String(), Reason: "vector delete failed: " + err.Error()})
	}
	return nil
}

// CheckIntegrity compares the two halves of the catalog by count.
func (s *CatalogService) CheckIntegrity(ctx context.Context) error {
	rows, err := s.concepts.CountConcepts(ctx)
	if err != nil {
		return err
	}
	vecs, err := s.vectors.Count(ctx)
	if err != nil {
		return err
	}
	if rows != vecs {
		return &domain.CatalogIntegrityError{
			ConceptID: "*",
			Reason:    fmt.Sprintf("%d concept rows but %d vectors", rows, vecs),
		}
	}
	return nil
}
