package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/embedding"
)

// embedConcurrency bounds parallel embedding calls in one batch.
const embedConcurrency = 4

// PersistConcept embeds and saves one extracted label, optionally linking it
// to ideaID.
func (s *CatalogService) PersistConcept(ctx context.Context, label, ideaID string) (*domain.ConceptPersistResult, error) {
	vec, err := s.embed(ctx, label)
	if err != nil {
		return nil, err
	}
	return s.persistEmbedded(ctx, label, ideaID, vec)
}

func (s *CatalogService) persistEmbedded(ctx context.Context, label, ideaID string, vec []float32) (*domain.ConceptPersistResult, error) {
	res, err := s.SaveConcept(ctx, label, "", vec)
	if err != nil {
		return nil, err
	}
	if ideaID != "" {
		if _, err := s.LinkIdeaConcept(ctx, ideaID, res.ConceptID); err != nil {
			s.logger.Warn("failed to link concept to idea",
				zap.String("idea_id", ideaID),
				zap.String("concept_id", res.ConceptID.String()),
				zap.Error(err))
		}
	}
	return &domain.ConceptPersistResult{
		ConceptID:  res.ConceptID,
		Label:      label,
		IsNew:      res.IsNew,
		Similarity: res.Similarity,
		MergedWith: res.MergedWith,
	}, nil
}

// PersistConcepts runs the persistence pipeline over a batch of labels.
// Labels are deduplicated by their folded form, embedded in parallel and saved
// in input order. A label that fails is logged and left out of the result.
func (s *CatalogService) PersistConcepts(ctx context.Context, labels []string, ideaID string) (*domain.BatchPersistResult, error) {
	unique := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		key := embedding.Fold(l)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, l)
	}

	vectors := make([][]float32, len(unique))
	embedErrs := make([]error, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, label := range unique {
		g.Go(func() error {
			vectors[i], embedErrs[i] = s.embed(gctx, label)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &domain.BatchPersistResult{
		ConceptIDs: []uuid.UUID{},
		Details:    []domain.ConceptPersistResult{},
	}
	for i, label := range unique {
		if embedErrs[i] != nil {
			s.logger.Warn("failed to embed concept", zap.String("label", label), zap.Error(embedErrs[i]))
			continue
		}
		r, err := s.persistEmbedded(ctx, label, ideaID, vectors[i])
		if err != nil {
			s.logger.Warn("failed to persist concept", zap.String("label", label), zap.Error(err))
			continue
		}
		out.ConceptIDs = append(out.ConceptIDs, r.ConceptID)
		out.Details = append(out.Details, *r)
		if r.IsNew {
			out.NewCount++
		} else {
			out.MergedCount++
		}
	}
	out.Total = len(out.Details)
	return out, nil
}
