// Package project implements the project_switch and project_current tools.
package project

import (
	"context"
	"regexp"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/models"
	"github.com/aidis-project/aidis-core/internal/tools"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
	"github.com/aidis-project/aidis-core/internal/validation"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Register wires project_switch and project_current into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("project_switch", toolsdispatch.ToolDef{
		Description: "Resolve a project by id or name and mark it active for this session.",
		Schema: validation.Schema{
			ToolName: "project_switch",
			Fields: []validation.Field{
				{Name: "project", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
				{Name: "sessionId", Type: validation.TypeString},
			},
		},
		Handler: switchHandler(deps),
	})

	r.Register("project_current", toolsdispatch.ToolDef{
		Description: "Return the project active for this session, as last set by project_switch.",
		Schema: validation.Schema{
			ToolName: "project_current",
			Fields: []validation.Field{
				{Name: "sessionId", Type: validation.TypeString},
			},
		},
		Handler: currentHandler(deps),
	})
}

func switchHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		ref := args["project"].(string)
		sessionID := execCtx.SessionID
		if v, ok := args["sessionId"].(string); ok && v != "" {
			sessionID = v
		}

		var sql string
		if uuidPattern.MatchString(ref) {
			sql = `SELECT id, name, description, status, metadata, created_at, updated_at FROM projects WHERE id = $1`
		} else {
			sql = `SELECT id, name, description, status, metadata, created_at, updated_at FROM projects WHERE name = $1`
		}

		p, lookupErr := fetchProject(ctx, deps, execCtx.CorrelationID, sql, ref)
		if lookupErr != nil {
			return nil, lookupErr
		}

		if sessionID != "" {
			deps.ActiveProjects.Set(sessionID, p.ID)
		}

		return p, nil
	}
}

func currentHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		sessionID := execCtx.SessionID
		if v, ok := args["sessionId"].(string); ok && v != "" {
			sessionID = v
		}
		if sessionID == "" {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no session id to resolve an active project for")
		}

		projectID, ok := deps.ActiveProjects.Get(sessionID)
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no active project set for this session")
		}

		sql := `SELECT id, name, description, status, metadata, created_at, updated_at FROM projects WHERE id = $1`
		p, err := fetchProject(ctx, deps, execCtx.CorrelationID, sql, projectID)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func fetchProject(ctx context.Context, deps tools.Deps, correlationID, sql, ref string) (models.Project, *apierr.Error) {
	row, err := deps.DB.QueryRow(ctx, correlationID, sql, ref)
	if err != nil {
		return models.Project{}, apierr.Wrap(err, "project lookup failed")
	}

	var p models.Project
	if scanErr := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); scanErr != nil {
		return models.Project{}, apierr.Newf(apierr.CodeProjectNotFound, "no project matching %q", ref)
	}
	return p, nil
}
