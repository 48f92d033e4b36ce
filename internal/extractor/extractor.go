// Package extractor defines the boundary to the external embedding service
// that maps image bytes to fixed-length face feature vectors. Detection and
// encoding are a capability this system consumes, never implements.
package extractor

import (
	"context"
	"math"
)

// Vector is one face embedding.
type Vector []float64

// Client produces zero or more embeddings for an image, one per detected
// face. An empty result means no usable face was found and is not an error.
type Client interface {
	Embeddings(ctx context.Context, image []byte) ([]Vector, error)
}

// Distance computes the Euclidean distance between two embeddings. Lower is
// closer. Mismatched or empty vectors are maximally distant so malformed
// cache entries can never win a match.
func Distance(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
