package project

import (
	"context"
	"testing"

	"github.com/aidis-project/aidis-core/internal/activeproject"
	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/tools"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
)

func TestUUIDPatternMatchesUUID(t *testing.T) {
	if !uuidPattern.MatchString("123e4567-e89b-12d3-a456-426614174000") {
		t.Fatal("expected uuid to match")
	}
	if uuidPattern.MatchString("my-project-name") {
		t.Fatal("expected plain name not to match")
	}
}

func TestProjectCurrentFailsWithNoSessionID(t *testing.T) {
	deps := tools.Deps{ActiveProjects: activeproject.New()}
	_, err := currentHandler(deps)(context.Background(), toolsdispatch.ExecContext{}, map[string]any{})
	if err == nil || err.Code != apierr.CodeProjectNotFound {
		t.Fatalf("expected ProjectNotFound, got %v", err)
	}
}

func TestProjectCurrentFailsWithNoActiveProject(t *testing.T) {
	deps := tools.Deps{ActiveProjects: activeproject.New()}
	execCtx := toolsdispatch.ExecContext{SessionID: "sess-1"}
	_, err := currentHandler(deps)(context.Background(), execCtx, map[string]any{})
	if err == nil || err.Code != apierr.CodeProjectNotFound {
		t.Fatalf("expected ProjectNotFound, got %v", err)
	}
}

func TestProjectCurrentSessionIDArgOverridesExecContext(t *testing.T) {
	store := activeproject.New()
	store.Set("sess-header", "proj-header")
	deps := tools.Deps{ActiveProjects: store}
	execCtx := toolsdispatch.ExecContext{SessionID: "sess-header"}

	// sess-explicit has no active project, but it's named by the args
	// override, so the lookup must fail on sess-explicit, not fall back
	// to sess-header's active project.
	_, err := currentHandler(deps)(context.Background(), execCtx, map[string]any{"sessionId": "sess-explicit"})
	if err == nil || err.Code != apierr.CodeProjectNotFound {
		t.Fatalf("expected ProjectNotFound for sess-explicit, got %v", err)
	}
}
