package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cooperação", "cooperacao"},
		{"  Método   Ágil ", "metodo agil"},
		{"Café", "cafe"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), tt.in)
	}
}

func TestHashClient_Deterministic(t *testing.T) {
	c := NewHashClient(domain.EmbeddingDimensions)
	ctx := context.Background()

	a, err := c.Embed(ctx, "produtividade de desenvolvedores")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "produtividade de desenvolvedores")
	require.NoError(t, err)

	assert.Len(t, a, domain.EmbeddingDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, domain.CosineSimilarity(a, a), 1e-6)
}

func TestHashClient_AccentInsensitive(t *testing.T) {
	c := NewHashClient(domain.EmbeddingDimensions)
	ctx := context.Background()

	a, _ := c.Embed(ctx, "cooperação")
	b, _ := c.Embed(ctx, "cooperacao")
	assert.InDelta(t, 1.0, domain.CosineSimilarity(a, b), 1e-6)
}

func TestHashClient_UnrelatedLabelsAreDistinct(t *testing.T) {
	c := NewHashClient(domain.EmbeddingDimensions)
	ctx := context.Background()

	a, _ := c.Embed(ctx, "produtividade")
	b, _ := c.Embed(ctx, "qualidade de código")
	assert.Less(t, domain.CosineSimilarity(a, b), domain.SameConceptThreshold)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderLocal, "")
	require.NoError(t, err)
	assert.IsType(t, &HashClient{}, c)

	_, err = NewClient(ProviderOpenAI, "")
	assert.Error(t, err)
}
