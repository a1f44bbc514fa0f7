package matching

import "math"

// Similarity is the cosine similarity of a and b computed in float64. It is 0
// when either vector has zero norm or the lengths differ.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push parallel vectors slightly outside [-1, 1]
	return math.Max(-1, math.Min(1, s))
}
