package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedIsDeterministic(t *testing.T) {
	p := NewDeterministic(32)
	a, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, 32, a.Dimensions)
}

func TestEmbedDiffersForDifferentText(t *testing.T) {
	p := NewDeterministic(32)
	a, _ := p.Embed(context.Background(), "hello")
	b, _ := p.Embed(context.Background(), "goodbye")
	assert.NotEqual(t, a.Values, b.Values)
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	p := NewDeterministic(32)
	_, err := p.Embed(context.Background(), "")
	require.Error(t, err)
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	p := NewDeterministic(64)
	v, _ := p.Embed(context.Background(), "same content")
	sim := CosineSimilarity(v.Values, v.Values)
	assert.InDelta(t, 1.0, sim, 0.0001)
}

func TestCosineSimilarityMismatchedDimensionsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
}
