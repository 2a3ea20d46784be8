package retrieval

import "math"

// Normalize scales v to unit L2 norm. Zero vectors are returned unchanged
// (there is no direction to preserve), so callers must rely on
// CosineSimilarity's zero-norm handling rather than structural checks.
func Normalize(v []float32) []float32 {
	n := norm(v)
	if n == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or a zero-norm operand score 0, never a division fault.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, aSq, bSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aSq += float64(a[i]) * float64(a[i])
		bSq += float64(b[i]) * float64(b[i])
	}

	aNorm := math.Sqrt(aSq)
	bNorm := math.Sqrt(bSq)
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	return float32(dot / (aNorm * bNorm))
}

func norm(v []float32) float64 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	return math.Sqrt(sq)
}
