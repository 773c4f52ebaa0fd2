// Package tools holds the shared dependency bundle every tools/<family>
// subpackage's Register function receives, plus small cross-family helpers
// (string similarity, keyword extraction) that more than one family needs.
package tools

import (
	"github.com/aidis-project/aidis-core/internal/activeproject"
	"github.com/aidis-project/aidis-core/internal/dbgateway"
	"github.com/aidis-project/aidis-core/internal/embedding"
)

// Deps bundles every external collaborator a tool handler needs. It is
// built once in cmd/aidis-server and passed to each family's Register call.
type Deps struct {
	DB             *dbgateway.Gateway
	Embeddings     embedding.Provider
	ActiveProjects *activeproject.Store
}

// ResolveProjectID returns explicitProjectID if non-empty, otherwise the
// session's active project, otherwise (false) so the caller can fail with
// a field-specific error. Every project-scoped write, including
// context_store, decision_record, and task_create, resolves its project
// this way.
func (d Deps) ResolveProjectID(sessionID, explicitProjectID string) (string, bool) {
	if explicitProjectID != "" {
		return explicitProjectID, true
	}
	if sessionID == "" {
		return "", false
	}
	return d.ActiveProjects.Get(sessionID)
}
