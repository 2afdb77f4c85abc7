package domain

import "math"

// SimilarityBand classifies how close a label is to an existing concept.
type SimilarityBand string

const (
	BandSame     SimilarityBand = "same"
	BandConfirm  SimilarityBand = "confirm"
	BandDistinct SimilarityBand = "distinct"
)

const (
	// SameConceptThreshold is the similarity at which a label joins an existing concept.
	SameConceptThreshold = 0.80
	// AutoVariationThreshold is the similarity at which variations are absorbed without confirmation.
	AutoVariationThreshold = 0.90
)

func ComputeBand(similarity float64) SimilarityBand {
	switch {
	case similarity >= AutoVariationThreshold:
		return BandSame
	case similarity >= SameConceptThreshold:
		return BandConfirm
	default:
		return BandDistinct
	}
}

func BandReason(similarity float64) string {
	switch ComputeBand(similarity) {
	case BandSame:
		return "similarity >= 0.90"
	case BandConfirm:
		return "0.80 <= similarity < 0.90"
	default:
		return "similarity < 0.80"
	}
}

// SimilarityFromDistance maps a Euclidean distance between unit vectors to a
// cosine-like similarity: sim = 1 - d^2/2, clamped to [0,1].
func SimilarityFromDistance(d float64) float64 {
	return clamp01(1 - (d*d)/2)
}

// CosineSimilarity of two vectors; 0 when either is empty or zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EuclideanDistance between two vectors of equal length.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Clamp01 bounds x to [0,1].
func Clamp01(x float64) float64 { return clamp01(x) }
