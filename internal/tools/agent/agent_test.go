package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringArgMissing(t *testing.T) {
	assert.Equal(t, "", stringArg(map[string]any{}, "toAgent"))
}

func TestFloatArgOrDefault(t *testing.T) {
	assert.Equal(t, 50.0, floatArgOr(map[string]any{}, "limit", 50))
}

func TestStringSliceArgMissingIsNil(t *testing.T) {
	assert.Nil(t, stringSliceArg(map[string]any{}, "taskRefs"))
}
