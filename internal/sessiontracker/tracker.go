// Package sessiontracker implements the best-effort activity log: the
// dispatcher's post-success hook for context_store, task_create,
// decision_record, and naming_register.
package sessiontracker

import (
	"context"

	"github.com/aidis-project/aidis-core/internal/activeproject"
	"github.com/aidis-project/aidis-core/internal/dbgateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Tracker records activity rows and resolves the currently-tracked session.
// Every write is best-effort: RecordActivity never propagates a failure to
// its caller.
type Tracker struct {
	db             *dbgateway.Gateway
	activeProjects *activeproject.Store
}

// New builds a Tracker over db, consulting activeProjects to resolve the
// session's current project for the activity row.
func New(db *dbgateway.Gateway, activeProjects *activeproject.Store) *Tracker {
	return &Tracker{db: db, activeProjects: activeProjects}
}

// ActiveSession resolves the currently-tracked session for a principal.
// Session lifecycle itself is out of core scope; the core only
// consumes whatever the session-owning caller passes as sessionId.
func (t *Tracker) ActiveSession(sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	return sessionID, true
}

// RecordActivity inserts an activity row, logging and swallowing any
// failure so the originating tool call is never affected.
func (t *Tracker) RecordActivity(ctx context.Context, sessionID, activityType string, metadata map[string]any) {
	projectID, _ := t.activeProjects.Get(sessionID)

	correlationID, _ := metadata["correlationId"].(string)

	_, err := t.db.Exec(ctx, correlationID, `
		INSERT INTO activities (id, session_id, project_id, activity_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.NewString(), sessionID, projectID, activityType, metadata)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Str("activityType", activityType).
			Msg("session tracker: failed to record activity")
	}
}
