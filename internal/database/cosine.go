package database

import "math"

// CosineDistance returns 1 - cosine similarity between two vectors.
// A distance of 0 means identical direction, 1 means orthogonal.
// Returns 1 for mismatched lengths or zero vectors.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
