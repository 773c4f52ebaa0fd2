package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatArgOrDefault(t *testing.T) {
	assert.Equal(t, 20.0, floatArgOr(map[string]any{}, "limit", 20))
}

func TestRecordSchemaLeavesImpactLevelOptional(t *testing.T) {
	// impactLevel is optional in the schema; the handler, not validation,
	// supplies the "medium" default.
	s := recordSchema()
	for _, f := range s.Fields {
		if f.Name == "impactLevel" {
			assert.False(t, f.Required)
		}
	}
}
