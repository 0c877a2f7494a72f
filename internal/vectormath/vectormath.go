// Package vectormath provides the similarity primitives used across the
// retrieval pipeline: cosine similarity, euclidean distance, dot product,
// normalization, and batch top-k scans over in-memory vectors.
package vectormath

import (
	"math"
	"sort"

	"github.com/wavemem/waverag/internal/waverr"
)

// Cosine returns the cosine similarity between a and b.
// Returns 0 when either vector has zero norm.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, waverr.DimensionMismatch(len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, nil
	}
	return dot / denom, nil
}

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, waverr.DimensionMismatch(len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Dot returns the dot product of a and b.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, waverr.DimensionMismatch(len(a), len(b))
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot, nil
}

// Normalize returns v scaled to unit L2 norm.
// A zero vector is returned unchanged.
func Normalize(v []float64) []float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	if sumSquares == 0 {
		return v
	}

	inv := 1.0 / math.Sqrt(sumSquares)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// BatchCosine computes cosine similarity between query and each vector in vectors.
func BatchCosine(query []float64, vectors [][]float64) ([]float64, error) {
	results := make([]float64, 0, len(vectors))
	for _, v := range vectors {
		score, err := Cosine(query, v)
		if err != nil {
			return nil, err
		}
		results = append(results, score)
	}
	return results, nil
}

// Similarity pairs a vector's position with its cosine score.
type Similarity struct {
	Index int
	Score float64
}

// TopKSimilar returns the k most similar vectors to query, best first.
// Ties break toward the smaller index for deterministic output.
func TopKSimilar(query []float64, vectors [][]float64, k int) ([]Similarity, error) {
	scores, err := BatchCosine(query, vectors)
	if err != nil {
		return nil, err
	}

	indexed := make([]Similarity, len(scores))
	for i, s := range scores {
		indexed[i] = Similarity{Index: i, Score: s}
	}

	sort.SliceStable(indexed, func(i, j int) bool {
		if indexed[i].Score != indexed[j].Score {
			return indexed[i].Score > indexed[j].Score
		}
		return indexed[i].Index < indexed[j].Index
	})

	if k < len(indexed) {
		indexed = indexed[:k]
	}
	return indexed, nil
}
