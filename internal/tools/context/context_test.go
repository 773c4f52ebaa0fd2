package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringArgMissingReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", stringArg(map[string]any{}, "projectId"))
}

func TestFloatArgOrUsesDefault(t *testing.T) {
	assert.Equal(t, 0.5, floatArgOr(map[string]any{}, "relevanceScore", 0.5))
	assert.Equal(t, 0.9, floatArgOr(map[string]any{"relevanceScore": 0.9}, "relevanceScore", 0.5))
}

func TestToFloat32Converts(t *testing.T) {
	out := toFloat32([]float64{1, 2.5, -3})
	assert.Equal(t, []float32{1, 2.5, -3}, out)
}

func TestSearchSchemaRejectsLimitOver100(t *testing.T) {
	s := searchSchema()
	found := false
	for _, f := range s.Fields {
		if f.Name == "limit" {
			found = true
			assert.Equal(t, 100.0, *f.Max)
		}
	}
	assert.True(t, found)
}
