package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyConventionCamelCase(t *testing.T) {
	assert.Equal(t, "userProfile", applyConvention("user_profile", "camelCase"))
}

func TestApplyConventionNoRuleReturnsUnchanged(t *testing.T) {
	assert.Equal(t, "my_module", applyConvention("my_module", ""))
}

func TestHasErrorConflict(t *testing.T) {
	assert.True(t, hasErrorConflict([]Conflict{{Severity: "warning"}, {Severity: "error"}}))
	assert.False(t, hasErrorConflict([]Conflict{{Severity: "warning"}, {Severity: "info"}}))
}

func TestTopNOrdersByCountAndRespectsMinimum(t *testing.T) {
	counts := map[string]int{"get": 5, "set": 3, "once": 1}
	got := topN(counts, 2)
	assert.Equal(t, []string{"get", "set"}, got)
}

func TestConventionMapMatchesSpecRules(t *testing.T) {
	assert.Equal(t, "camelCase", conventionByEntityType["variable"])
	assert.Equal(t, "camelCase", conventionByEntityType["function"])
	assert.Equal(t, "PascalCase", conventionByEntityType["class"])
	assert.Equal(t, "PascalCase", conventionByEntityType["interface"])
	assert.Equal(t, "PascalCase", conventionByEntityType["component"])
	assert.Equal(t, "SCREAMING_SNAKE_CASE", conventionByEntityType["config_key"])
	assert.Equal(t, "SCREAMING_SNAKE_CASE", conventionByEntityType["environment_var"])
	_, hasModule := conventionByEntityType["module"]
	assert.False(t, hasModule)
}
