package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// Fold lowercases text, strips diacritics and collapses whitespace, so
// "Cooperação" and "cooperacao" embed identically.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// HashClient is a deterministic local embedder: character trigrams and whole
// words are hashed into signed buckets, then L2-normalized.
type HashClient struct {
	dims int
}

func NewHashClient(dims int) *HashClient {
	if dims <= 0 {
		dims = domain.EmbeddingDimensions
	}
	return &HashClient{dims: dims}
}

func (c *HashClient) Embed(_ context.Context, text string) ([]float32, error) {
	return c.vector(Fold(text)), nil
}

func (c *HashClient) vector(text string) []float32 {
	vec := make([]float32, c.dims)
	for _, word := range strings.Fields(text) {
		c.add(vec, "w:"+word, 1.0)
		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			c.add(vec, "t:"+string(padded[i:i+3]), 0.5)
		}
	}
	return domain.Normalize(vec)
}

func (c *HashClient) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(c.dims))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
