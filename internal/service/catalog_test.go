package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/embedding"
)

// axisVector returns a unit vector at the given cosine from axis 0.
func axisVector(cos float64) []float32 {
	v := make([]float32, domain.EmbeddingDimensions)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func TestCatalog_SaveConcept_AccentVariantMerges(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	first, err := c.SaveConcept(ctx, "cooperação", "", nil)
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	second, err := c.SaveConcept(ctx, "cooperacao", "", nil)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.ConceptID, second.ConceptID)
	require.NotNil(t, second.MergedWith)
	assert.Equal(t, first.ConceptID, *second.MergedWith)
	assert.True(t, second.VariationAdded)

	got, err := c.GetConcept(ctx, first.ConceptID)
	require.NoError(t, err)
	assert.Equal(t, "cooperação", got.Label)
	assert.Contains(t, got.Variations, "cooperacao")

	n, err := c.CountConcepts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCatalog_SaveConcept_KnownVariationIsNotDuplicated(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	first, err := c.SaveConcept(ctx, "cooperação", "", nil)
	require.NoError(t, err)
	_, err = c.SaveConcept(ctx, "cooperacao", "", nil)
	require.NoError(t, err)
	again, err := c.SaveConcept(ctx, "Cooperacao", "", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ConceptID, again.ConceptID)
	assert.False(t, again.VariationAdded)
	got, err := c.GetConcept(ctx, first.ConceptID)
	require.NoError(t, err)
	assert.Len(t, got.Variations, 1)
}

func TestCatalog_DedupInvariant(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	labels := []string{
		"cooperação", "cooperacao", "Cooperação ", "produtividade", "produtividade de equipes",
		"equipes ágeis", "equipes ageis", "tempo de sprint", "sprint time", "qualidade de código",
		"qualidade do código", "LLM", "LLMs", "large language models", "métodos ágeis", "metodo agil",
	}
	for _, l := range labels {
		_, err := c.SaveConcept(ctx, l, "", nil)
		require.NoError(t, err)
	}

	stored, err := c.ListConcepts(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	embedder := embedding.NewHashClient(domain.EmbeddingDimensions)
	vecs := make([][]float32, len(stored))
	for i, sc := range stored {
		vecs[i], err = embedder.Embed(ctx, sc.Label)
		require.NoError(t, err)
	}
	for i := range stored {
		for j := i + 1; j < len(stored); j++ {
			sim := domain.CosineSimilarity(vecs[i], vecs[j])
			assert.Less(t, sim, domain.SameConceptThreshold, "%q vs %q", stored[i].Label, stored[j].Label)
		}
	}
	require.NoError(t, c.CheckIntegrity(ctx))
}

func TestCatalog_ConfirmHookGatesOnlyTheVariation(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	var asked []float64
	c.SetConfirmVariation(func(_ context.Context, existing domain.Concept, label string, sim float64) bool {
		asked = append(asked, sim)
		return false
	})

	base, err := c.SaveConcept(ctx, "base", "", axisVector(1))
	require.NoError(t, err)

	near, err := c.SaveConcept(ctx, "near", "", axisVector(0.85))
	require.NoError(t, err)
	assert.Equal(t, base.ConceptID, near.ConceptID, "a match in the confirmation band still merges")
	assert.Equal(t, domain.BandConfirm, near.Band)
	assert.False(t, near.VariationAdded)
	require.Len(t, asked, 1)
	assert.InDelta(t, 0.85, asked[0], 1e-4)

	closeRes, err := c.SaveConcept(ctx, "close", "", axisVector(0.95))
	require.NoError(t, err)
	assert.Equal(t, base.ConceptID, closeRes.ConceptID)
	assert.True(t, closeRes.VariationAdded, "high similarity is absorbed without asking")
	assert.Len(t, asked, 1)

	far, err := c.SaveConcept(ctx, "far", "", axisVector(0.5))
	require.NoError(t, err)
	assert.True(t, far.IsNew)
	assert.Equal(t, domain.BandDistinct, far.Band)
}

func TestCatalog_FindSimilar(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	for _, l := range []string{"produtividade", "qualidade de código", "tempo de sprint"} {
		_, err := c.SaveConcept(ctx, l, "", nil)
		require.NoError(t, err)
	}

	matches, err := c.FindSimilar(ctx, "produtividade", 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "produtividade", matches[0].Concept.Label)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}

	strict, err := c.FindSimilar(ctx, "produtividade", 3, 0.99)
	require.NoError(t, err)
	assert.Len(t, strict, 1)

	_, err = c.FindSimilar(ctx, "  ", 3, 0)
	assert.ErrorIs(t, err, ErrSearchQueryEmpty)
}

func TestCatalog_PersistConcepts(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	res, err := c.PersistConcepts(ctx, []string{"cooperação", "Cooperação", "produtividade", "", "cooperacao"}, "idea-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.NewCount)
	assert.Equal(t, 0, res.MergedCount)

	again, err := c.PersistConcepts(ctx, []string{"produtividade"}, "idea-2")
	require.NoError(t, err)
	assert.Equal(t, 1, again.MergedCount)
	assert.Equal(t, res.ConceptIDs[1], again.ConceptIDs[0])

	linked, err := c.ConceptsForIdea(ctx, "idea-1")
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}

func TestCatalog_DeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	res, err := c.SaveConcept(ctx, "produtividade", "output per hour", nil)
	require.NoError(t, err)
	require.NoError(t, c.DeleteConcept(ctx, res.ConceptID))

	_, err = c.GetConcept(ctx, res.ConceptID)
	assert.True(t, errors.Is(err, ErrConceptNotFound))
	assert.ErrorIs(t, c.DeleteConcept(ctx, uuid.New()), ErrConceptNotFound)
	_, err = c.AddVariation(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrConceptNotFound)
	_, err = c.SaveConcept(ctx, " ", "", nil)
	assert.ErrorIs(t, err, ErrConceptLabelEmpty)
	require.NoError(t, c.CheckIntegrity(ctx))
}
