package embeddings

import (
	"cmp"
	"math"
	"slices"
)

// CosineSimilarity scores two vectors in [-1, 1]. Mismatched lengths
// and zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// TopK returns the indices of the k vectors most similar to query,
// best first. Equal scores keep their original order.
func TopK(query []float32, vectors [][]float32, k int) []int {
	type scored struct {
		idx   int
		score float32
	}
	ranked := make([]scored, len(vectors))
	for i, v := range vectors {
		ranked[i] = scored{i, CosineSimilarity(query, v)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	k = min(max(k, 0), len(ranked))
	out := make([]int, k)
	for i := range out {
		out[i] = ranked[i].idx
	}
	return out
}
