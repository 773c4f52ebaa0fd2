// Package decision implements decision_record, decision_search,
// decision_update, and decision_stats.
package decision

import (
	"context"
	"fmt"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/models"
	"github.com/aidis-project/aidis-core/internal/tools"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
	"github.com/aidis-project/aidis-core/internal/validation"
	"github.com/google/uuid"
)

// Register wires the decision_* tools into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("decision_record", toolsdispatch.ToolDef{
		Description:  "Record a technical or product decision with its rationale.",
		Schema:       recordSchema(),
		ActivityType: "decision_recorded",
		Handler:      recordHandler(deps),
	})
	r.Register("decision_search", toolsdispatch.ToolDef{
		Description: "Search recorded decisions by keyword.",
		Schema:      searchSchema(),
		Handler:     searchHandler(deps),
	})
	r.Register("decision_update", toolsdispatch.ToolDef{
		Description: "Update a decision's status.",
		Schema:      updateSchema(),
		Handler:     updateHandler(deps),
	})
	r.Register("decision_stats", toolsdispatch.ToolDef{
		Description: "Return decision counts grouped by status for a project.",
		Schema:      statsSchema(),
		Handler:     statsHandler(deps),
	})
}

func recordSchema() validation.Schema {
	return validation.Schema{
		ToolName: "decision_record",
		Fields: []validation.Field{
			{Name: "title", Type: validation.TypeString, Required: true, MinLength: 1, MaxLength: 300, TrimString: true},
			{Name: "problem", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "decision", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "rationale", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "impactLevel", Type: validation.TypeString, Enum: []string{"low", "medium", "high", "critical"}},
			{Name: "alternatives", Type: validation.TypeArray},
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func searchSchema() validation.Schema {
	return validation.Schema{
		ToolName: "decision_search",
		Fields: []validation.Field{
			{Name: "query", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "projectId", Type: validation.TypeString},
			{Name: "status", Type: validation.TypeString, Enum: []string{"active", "under_review", "superseded", "deprecated"}},
			{Name: "limit", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(100), CoerceNumericString: true},
		},
	}
}

func updateSchema() validation.Schema {
	return validation.Schema{
		ToolName: "decision_update",
		Fields: []validation.Field{
			{Name: "id", Type: validation.TypeString, Required: true},
			{Name: "status", Type: validation.TypeString, Required: true, Enum: []string{"active", "under_review", "superseded", "deprecated"}},
		},
	}
}

func statsSchema() validation.Schema {
	return validation.Schema{
		ToolName: "decision_stats",
		Fields: []validation.Field{
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func recordHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		impact := stringArg(args, "impactLevel")
		if impact == "" {
			impact = "medium"
		}

		row := models.Decision{
			ID:           uuid.NewString(),
			ProjectID:    projectID,
			Title:        args["title"].(string),
			Problem:      args["problem"].(string),
			DecisionText: args["decision"].(string),
			Rationale:    args["rationale"].(string),
			Alternatives: alternativesArg(args, "alternatives"),
			Status:       models.DecisionStatusActive,
			ImpactLevel:  impact,
		}

		_, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, `
			INSERT INTO decisions (id, project_id, title, problem, decision_text, rationale, alternatives, status, impact_level, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
			row.ID, row.ProjectID, row.Title, row.Problem, row.DecisionText, row.Rationale, row.Alternatives, row.Status, row.ImpactLevel)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to record decision")
		}

		return row, nil
	}
}

func searchHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		limit := int(floatArgOr(args, "limit", 20))
		if limit == 0 {
			return []models.Decision{}, nil
		}

		sql := `SELECT id, project_id, title, problem, decision_text, rationale, alternatives, status, impact_level, created_at, updated_at
			FROM decisions WHERE (title ILIKE $1 OR problem ILIKE $1 OR decision_text ILIKE $1)`
		params := []any{"%" + args["query"].(string) + "%"}

		if projectID := stringArg(args, "projectId"); projectID != "" {
			params = append(params, projectID)
			sql += fmt.Sprintf(" AND project_id = $%d", len(params))
		}
		if status := stringArg(args, "status"); status != "" {
			params = append(params, status)
			sql += fmt.Sprintf(" AND status = $%d", len(params))
		}
		params = append(params, limit)
		sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(params))

		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID, sql, params...)
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "decision search failed")
		}
		defer rows.Close()

		results := make([]models.Decision, 0, limit)
		for rows.Next() {
			var d models.Decision
			if scanErr := rows.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Problem, &d.DecisionText, &d.Rationale,
				&d.Alternatives, &d.Status, &d.ImpactLevel, &d.CreatedAt, &d.UpdatedAt); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan decision row")
			}
			results = append(results, d)
		}
		return results, nil
	}
}

func updateHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		tag, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID,
			`UPDATE decisions SET status = $1, updated_at = now() WHERE id = $2`,
			args["status"].(string), args["id"].(string))
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to update decision")
		}
		if tag == 0 {
			return nil, apierr.New(apierr.CodeDecisionNotFound, "no decision with that id")
		}
		return map[string]any{"id": args["id"], "status": args["status"]}, nil
	}
}

func statsHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID,
			`SELECT status, count(*) FROM decisions WHERE project_id = $1 GROUP BY status`, projectID)
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "decision stats query failed")
		}
		defer rows.Close()

		counts := map[string]int{}
		for rows.Next() {
			var status string
			var count int
			if scanErr := rows.Scan(&status, &count); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan decision stats row")
			}
			counts[status] = count
		}
		return counts, nil
	}
}

func floatPtr(f float64) *float64 { return &f }

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArgOr(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

// alternativesArg converts the validated "alternatives" array field into
// DecisionAlternative rows, skipping any entry that isn't an object or has
// no name.
func alternativesArg(args map[string]any, key string) []models.DecisionAlternative {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]models.DecisionAlternative, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		alt := models.DecisionAlternative{
			Name:        name,
			Description: stringArg(m, "description"),
			Pros:        stringSliceArg(m, "pros"),
			Cons:        stringSliceArg(m, "cons"),
		}
		out = append(out, alt)
	}
	return out
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
