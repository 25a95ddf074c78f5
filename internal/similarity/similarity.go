// Package similarity scores vector pairs and classifies them as equivalent
// or not against a fixed threshold.
package similarity

import "math"

// DefaultThreshold is the cosine score above which two texts are treated as
// the same query.
const DefaultThreshold = 0.81

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// mismatched length or zero magnitude score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Evaluator classifies vector pairs against a threshold.
type Evaluator struct {
	threshold float64
}

// NewEvaluator builds an evaluator. A non-positive threshold falls back to
// DefaultThreshold.
func NewEvaluator(threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{threshold: threshold}
}

// Threshold reports the configured classification threshold.
func (e *Evaluator) Threshold() float64 { return e.threshold }

// Similar reports whether the cosine score of a and b strictly exceeds the
// threshold.
func (e *Evaluator) Similar(a, b []float32) bool {
	return Cosine(a, b) > e.threshold
}
