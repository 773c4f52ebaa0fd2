// Package embedding defines the pluggable text→vector interface 
// describes: the core never inspects which model produced a vector, only
// that its dimensionality matches configuration.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/aidis-project/aidis-core/internal/apierr"
)

// Vector is a dense embedding returned by Provider.Embed.
type Vector struct {
	Values     []float64
	Model      string
	Dimensions int
}

// Provider computes an embedding for text. Embed is synchronous from the
// caller's perspective and receives the caller's ctx. Deterministic hashes
// on the caller's goroutine: it checks ctx once before hashing and is not
// interrupted by cancellation after hashing has begun.
type Provider interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// Deterministic is a Provider with no external dependency: it hashes text
// into a fixed-width float vector. It exists so the core is runnable and
// testable without a live embedding backend; production deployments plug
// in a real model behind the same interface.
type Deterministic struct {
	Dimensions int
	ModelName  string
}

// NewDeterministic returns a Provider producing vectors of the given width.
func NewDeterministic(dimensions int) *Deterministic {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &Deterministic{Dimensions: dimensions, ModelName: "aidis-deterministic-hash-v1"}
}

// Embed hashes text with SHA-256, expanding the digest into Dimensions
// floats in [-1, 1] via repeated re-hashing. Identical text always yields
// an identical vector.
func (d *Deterministic) Embed(ctx context.Context, text string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return Vector{}, apierr.New(apierr.CodeEmbeddingUnavailable, "embedding request canceled")
	}
	if text == "" {
		return Vector{}, apierr.New(apierr.CodeEmbeddingUnavailable, "cannot embed empty content")
	}

	values := make([]float64, d.Dimensions)
	block := sha256.Sum256([]byte(text))
	seed := block[:]

	for i := 0; i < d.Dimensions; i++ {
		if i > 0 && i%4 == 0 {
			next := sha256.Sum256(seed)
			seed = next[:]
		}
		offset := (i % 4) * 8
		if offset+8 > len(seed) {
			next := sha256.Sum256(seed)
			seed = next[:]
			offset = 0
		}
		bits := binary.BigEndian.Uint64(seed[offset : offset+8])
		values[i] = (float64(bits%2000001) / 1000000.0) - 1.0
	}

	return Vector{Values: normalize(values), Model: d.ModelName, Dimensions: d.Dimensions}, nil
}

func normalize(v []float64) []float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// CosineSimilarity returns a value in [-1, 1]; vectors of different
// dimensionality are never compared and return 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
