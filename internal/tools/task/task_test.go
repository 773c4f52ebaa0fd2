package task

import (
	"testing"

	"github.com/aidis-project/aidis-core/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestFloatArgOrDefault(t *testing.T) {
	assert.Equal(t, 50.0, floatArgOr(map[string]any{}, "limit", 50))
}

func TestTaskStatusesMatchSpec(t *testing.T) {
	assert.ElementsMatch(t, []string{"todo", "in_progress", "blocked", "completed", "cancelled"}, taskStatuses)
}

func TestUpdateIsNoOpWhenStatusUnchanged(t *testing.T) {
	existing := &models.Task{Status: models.TaskStatusInProgress}
	args := map[string]any{"status": "in_progress"}
	newStatus := existing.Status
	if v := stringArg(args, "status"); v != "" {
		newStatus = models.TaskStatus(v)
	}
	assert.Equal(t, existing.Status, newStatus)
}
