package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordsDropsStopwordsAndDupes(t *testing.T) {
	got := Keywords("the user authentication and the authentication flow", 3)
	assert.Equal(t, []string{"user", "authentication", "flow"}, got)
}

func TestStringSimilarityIdentical(t *testing.T) {
	assert.Equal(t, 1.0, StringSimilarity("UserService", "userservice"))
}

func TestStringSimilarityClose(t *testing.T) {
	sim := StringSimilarity("getUser", "getUsers")
	assert.Greater(t, sim, 0.6)
	assert.Less(t, sim, 1.0)
}

func TestCaseConversions(t *testing.T) {
	assert.Equal(t, "userProfile", ToCamelCase("user_profile"))
	assert.Equal(t, "UserProfile", ToPascalCase("user-profile"))
	assert.Equal(t, "MAX_RETRIES", ToScreamingSnakeCase("maxRetries"))
}
