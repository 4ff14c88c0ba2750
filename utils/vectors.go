package util

import (
	"math"
)

// Mean of a float32 vector.
func Mean(vector []float32) float32 {
	n := 0
	sum := float32(0.0)
	for _, v := range vector {
		sum = sum + v
		n++
	}
	return sum / float32(n)
}

// Norm of a vector.
func Norm(v []float32, p int) float64 {
	sum := 0.0
	pNorm := float64(p)
	for _, e := range v {
		sum += math.Pow(float64(e), pNorm)
	}
	return math.Sqrt(sum)
}

// Normalize single vector according to: https://pytorch.org/docs/stable/generated/torch.nn.functional.normalize.html
func Normalize(embedding []float32, p int) []float32 {
	const eps = 1e-12
	normalizeDenominator := float32(max(Norm(embedding, p), eps))
	for i, v := range embedding {
		embedding[i] = v / normalizeDenominator
	}
	return embedding
}
