package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeAndNormalizeScalesToUnitRange(t *testing.T) {
	a := []Result{{ID: "1", Relevance: 0.8}}
	b := []Result{{ID: "2", Relevance: 0.4}}
	merged := mergeAndNormalize(a, b)

	assert.Len(t, merged, 2)
	assert.Equal(t, "1", merged[0].ID)
	assert.InDelta(t, 1.0, merged[0].Relevance, 0.0001)
	assert.InDelta(t, 0.5, merged[1].Relevance, 0.0001)
}

func TestMergeAndNormalizeEmptyInput(t *testing.T) {
	assert.Empty(t, mergeAndNormalize())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
}
