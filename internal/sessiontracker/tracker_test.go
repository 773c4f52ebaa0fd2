package sessiontracker

import (
	"testing"

	"github.com/aidis-project/aidis-core/internal/activeproject"
	"github.com/stretchr/testify/assert"
)

func TestActiveSessionResolvesNonEmpty(t *testing.T) {
	tr := New(nil, activeproject.New())
	id, ok := tr.ActiveSession("sess-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-1", id)
}

func TestActiveSessionRejectsEmpty(t *testing.T) {
	tr := New(nil, activeproject.New())
	_, ok := tr.ActiveSession("")
	assert.False(t, ok)
}
