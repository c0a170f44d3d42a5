package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm, accumulating in float64.
// A zero vector is left unchanged and reported as false.
func NormalizeL2(x []float32) bool {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return false
	}
	inv := 1 / math.Sqrt(sum)
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
	return true
}

// NormalizedL2 returns a unit-norm copy of x; x is not modified.
func NormalizedL2(x []float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	NormalizeL2(out)
	return out
}
