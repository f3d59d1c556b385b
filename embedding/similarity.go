package embedding

import (
	"math"

	"github.com/smallnest/memograph/memory"
)

// CosineSimilarity returns the cosine of the angle between two vectors.
// Vectors of different lengths are an InvalidInput error. Zero vectors score
// zero.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, memory.Errorf(memory.KindInvalidInput,
			"vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
