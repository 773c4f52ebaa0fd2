// Package context implements the context_store and context_search tools:
// the vector-backed project knowledge store.
package context

import (
	stdcontext "context"
	"fmt"
	"strings"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/models"
	"github.com/aidis-project/aidis-core/internal/tools"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
	"github.com/aidis-project/aidis-core/internal/validation"
	"github.com/google/uuid"
)

// Register wires context_store and context_search into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("context_store", toolsdispatch.ToolDef{
		Description:  "Store a piece of project context with a computed embedding.",
		Schema:       storeSchema(),
		ActivityType: "context_stored",
		Handler:      storeHandler(deps),
	})

	r.Register("context_search", toolsdispatch.ToolDef{
		Description: "Search stored context by semantic similarity to a query.",
		Schema:      searchSchema(),
		Handler:     searchHandler(deps),
	})
}

func storeSchema() validation.Schema {
	return validation.Schema{
		ToolName: "context_store",
		Fields: []validation.Field{
			{Name: "type", Type: validation.TypeString, Required: true, Enum: []string{
				"code", "decision", "error", "discussion", "planning", "completion",
			}},
			{Name: "content", Type: validation.TypeString, Required: true, MinLength: 1, MaxLength: 50000, TrimString: true},
			{Name: "tags", Type: validation.TypeStringArray, TrimString: true},
			{Name: "relevanceScore", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(1), CoerceNumericString: true},
			{Name: "metadata", Type: validation.TypeObject},
			{Name: "projectId", Type: validation.TypeString},
			{Name: "sessionId", Type: validation.TypeString},
		},
	}
}

func searchSchema() validation.Schema {
	return validation.Schema{
		ToolName: "context_search",
		Fields: []validation.Field{
			{Name: "query", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "projectId", Type: validation.TypeString},
			{Name: "type", Type: validation.TypeString, Enum: []string{
				"code", "decision", "error", "discussion", "planning", "completion",
			}},
			{Name: "tags", Type: validation.TypeStringArray, TrimString: true},
			{Name: "limit", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(100), CoerceNumericString: true},
			{Name: "minSimilarity", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(1), CoerceNumericString: true},
			{Name: "offset", Type: validation.TypeNumber, Min: floatPtr(0), CoerceNumericString: true},
		},
	}
}

func storeHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx stdcontext.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		content := args["content"].(string)
		vec, err := deps.Embeddings.Embed(ctx, content)
		if err != nil {
			if aerr, ok := apierr.As(err); ok {
				return nil, aerr
			}
			return nil, apierr.Wrap(err, "embedding computation failed")
		}

		row := models.Context{
			ID:             uuid.NewString(),
			ProjectID:      projectID,
			Type:           models.ContextType(args["type"].(string)),
			Content:        content,
			Tags:           stringSliceArg(args, "tags"),
			RelevanceScore: floatArgOr(args, "relevanceScore", 0.5),
			Metadata:       mapArg(args, "metadata"),
			Embedding:      toFloat32(vec.Values),
		}
		if sid := stringArg(args, "sessionId"); sid != "" {
			row.SessionID = &sid
		}

		_, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, `
			INSERT INTO contexts (id, project_id, session_id, type, content, tags, relevance_score, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			row.ID, row.ProjectID, row.SessionID, row.Type, row.Content, row.Tags, row.RelevanceScore, row.Metadata, row.Embedding)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to store context")
		}

		return row, nil
	}
}

func searchHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx stdcontext.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		limit := int(floatArgOr(args, "limit", 10))
		if limit == 0 {
			return []models.ContextSearchResult{}, nil
		}
		offset := int(floatArgOr(args, "offset", 0))
		minSimilarity := floatArgOr(args, "minSimilarity", 0)

		queryVec, err := deps.Embeddings.Embed(ctx, args["query"].(string))
		if err != nil {
			if aerr, ok := apierr.As(err); ok {
				return nil, aerr
			}
			return nil, apierr.Wrap(err, "embedding computation failed")
		}

		var conditions []string
		var params []any
		params = append(params, toFloat32(queryVec.Values))

		if projectID := stringArg(args, "projectId"); projectID != "" {
			params = append(params, projectID)
			conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(params)))
		}
		if ctype := stringArg(args, "type"); ctype != "" {
			params = append(params, ctype)
			conditions = append(conditions, fmt.Sprintf("type = $%d", len(params)))
		}
		if tags := stringSliceArg(args, "tags"); len(tags) > 0 {
			params = append(params, tags)
			conditions = append(conditions, fmt.Sprintf("tags && $%d", len(params)))
		}

		where := ""
		if len(conditions) > 0 {
			where = "WHERE " + strings.Join(conditions, " AND ")
		}

		params = append(params, limit, offset)
		sql := fmt.Sprintf(`
			SELECT id, project_id, session_id, type, content, tags, relevance_score, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM contexts
			%s
			ORDER BY embedding <=> $1 ASC
			LIMIT $%d OFFSET $%d`, where, len(params)-1, len(params))

		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID, sql, params...)
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "context search query failed")
		}
		defer rows.Close()

		results := make([]models.ContextSearchResult, 0, limit)
		for rows.Next() {
			var r models.ContextSearchResult
			var cosine float64
			if scanErr := rows.Scan(&r.ID, &r.ProjectID, &r.SessionID, &r.Type, &r.Content, &r.Tags,
				&r.RelevanceScore, &r.Metadata, &r.CreatedAt, &cosine); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan context row")
			}
			r.Similarity = cosine * 100
			if r.Similarity/100 < minSimilarity {
				continue
			}
			results = append(results, r)
		}
		return results, nil
	}
}

func floatPtr(f float64) *float64 { return &f }

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceArg(args map[string]any, key string) []string {
	if v, ok := args[key].([]string); ok {
		return v
	}
	return nil
}

func floatArgOr(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func mapArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
