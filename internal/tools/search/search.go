// Package search implements smart_search, get_recommendations, and
// project_insights: read-only analytics over several entity families.
// smart_search and project_insights run their per-family queries
// concurrently; get_recommendations runs its two queries in sequence.
package search

import (
	"context"
	"sort"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/tools"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
	"github.com/aidis-project/aidis-core/internal/validation"
	"golang.org/x/sync/errgroup"
)

// Result is one merged, relevance-normalized hit from smart_search.
type Result struct {
	Source    string  `json:"source"`
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet,omitempty"`
	Relevance float64 `json:"relevance"`
}

// Register wires smart_search, get_recommendations, and project_insights into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("smart_search", toolsdispatch.ToolDef{
		Description: "Search across contexts, decisions, naming, and code components, merged by relevance.",
		Schema:      smartSearchSchema(),
		Handler:     smartSearchHandler(deps),
	})
	r.Register("get_recommendations", toolsdispatch.ToolDef{
		Description: "Derive recommendations from recent project activity.",
		Schema:      recommendationsSchema(),
		Handler:     recommendationsHandler(deps),
	})
	r.Register("project_insights", toolsdispatch.ToolDef{
		Description: "Summarize a project's decisions, tasks, and naming registry health.",
		Schema:      insightsSchema(),
		Handler:     insightsHandler(deps),
	})
}

func smartSearchSchema() validation.Schema {
	return validation.Schema{
		ToolName: "smart_search",
		Fields: []validation.Field{
			{Name: "query", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "projectId", Type: validation.TypeString},
			{Name: "limit", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(100), CoerceNumericString: true},
		},
	}
}

func recommendationsSchema() validation.Schema {
	return validation.Schema{
		ToolName: "get_recommendations",
		Fields: []validation.Field{
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func insightsSchema() validation.Schema {
	return validation.Schema{
		ToolName: "project_insights",
		Fields: []validation.Field{
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func smartSearchHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		limit := int(floatArgOr(args, "limit", 20))
		if limit == 0 {
			return []Result{}, nil
		}
		query := args["query"].(string)
		projectID, _ := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))

		var (
			contextResults  []Result
			decisionResults []Result
			namingResults   []Result
			codeResults     []Result
		)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			results, err := searchContexts(gctx, deps, execCtx.CorrelationID, query, projectID)
			if err != nil {
				return err
			}
			contextResults = results
			return nil
		})
		g.Go(func() error {
			results, err := searchDecisionsKeyword(gctx, deps, execCtx.CorrelationID, query, projectID)
			if err != nil {
				return err
			}
			decisionResults = results
			return nil
		})
		g.Go(func() error {
			results, err := searchNaming(gctx, deps, execCtx.CorrelationID, query, projectID)
			if err != nil {
				return err
			}
			namingResults = results
			return nil
		})
		g.Go(func() error {
			results, err := searchCodeComponents(gctx, deps, execCtx.CorrelationID, query, projectID)
			if err != nil {
				return err
			}
			codeResults = results
			return nil
		})

		if err := g.Wait(); err != nil {
			if aerr, ok := apierr.As(err); ok {
				return nil, aerr
			}
			return nil, apierr.Wrap(err, "smart search failed")
		}

		merged := mergeAndNormalize(contextResults, decisionResults, namingResults, codeResults)
		if len(merged) > limit {
			merged = merged[:limit]
		}
		return merged, nil
	}
}

func searchContexts(ctx context.Context, deps tools.Deps, correlationID, query, projectID string) ([]Result, error) {
	vec, err := deps.Embeddings.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	values := toFloat32(vec.Values)
	sql := `SELECT id, content, 1 - (embedding <=> $1) AS similarity FROM contexts`
	params := []any{values}
	if projectID != "" {
		params = append(params, projectID)
		sql += ` WHERE project_id = $2`
	}
	sql += ` ORDER BY embedding <=> $1 ASC LIMIT 10`

	rows, qErr := deps.DB.Query(ctx, correlationID, sql, params...)
	if qErr != nil {
		return nil, qErr
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, content string
		var similarity float64
		if scanErr := rows.Scan(&id, &content, &similarity); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, Result{Source: "context", ID: id, Title: truncate(content, 80), Snippet: truncate(content, 200), Relevance: similarity})
	}
	return out, nil
}

func searchDecisionsKeyword(ctx context.Context, deps tools.Deps, correlationID, query, projectID string) ([]Result, error) {
	sql := `SELECT id, title, rationale FROM decisions WHERE (title ILIKE $1 OR rationale ILIKE $1)`
	params := []any{"%" + query + "%"}
	if projectID != "" {
		params = append(params, projectID)
		sql += ` AND project_id = $2`
	}
	sql += ` LIMIT 10`

	rows, qErr := deps.DB.Query(ctx, correlationID, sql, params...)
	if qErr != nil {
		return nil, qErr
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, title, rationale string
		if scanErr := rows.Scan(&id, &title, &rationale); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, Result{Source: "decision", ID: id, Title: title, Snippet: truncate(rationale, 200), Relevance: 0.6})
	}
	return out, nil
}

func searchNaming(ctx context.Context, deps tools.Deps, correlationID, query, projectID string) ([]Result, error) {
	sql := `SELECT id, canonical_name, description FROM naming_entries WHERE canonical_name ILIKE $1`
	params := []any{"%" + query + "%"}
	if projectID != "" {
		params = append(params, projectID)
		sql += ` AND project_id = $2`
	}
	sql += ` LIMIT 10`

	rows, qErr := deps.DB.Query(ctx, correlationID, sql, params...)
	if qErr != nil {
		return nil, qErr
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, name, description string
		if scanErr := rows.Scan(&id, &name, &description); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, Result{Source: "naming", ID: id, Title: name, Snippet: description, Relevance: 0.5})
	}
	return out, nil
}

// searchCodeComponents keyword-searches the title and description of all
// tasks, of any type, as a stand-in for a dedicated code-component index;
// there is no separate storage for code components.
func searchCodeComponents(ctx context.Context, deps tools.Deps, correlationID, query, projectID string) ([]Result, error) {
	sql := `SELECT id, title, description FROM tasks WHERE (title ILIKE $1 OR description ILIKE $1)`
	params := []any{"%" + query + "%"}
	if projectID != "" {
		params = append(params, projectID)
		sql += ` AND project_id = $2`
	}
	sql += ` LIMIT 10`

	rows, qErr := deps.DB.Query(ctx, correlationID, sql, params...)
	if qErr != nil {
		return nil, qErr
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, title, description string
		if scanErr := rows.Scan(&id, &title, &description); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, Result{Source: "code", ID: id, Title: title, Snippet: truncate(description, 200), Relevance: 0.4})
	}
	return out, nil
}

func mergeAndNormalize(groups ...[]Result) []Result {
	var all []Result
	maxRelevance := 0.0
	for _, g := range groups {
		all = append(all, g...)
		for _, r := range g {
			if r.Relevance > maxRelevance {
				maxRelevance = r.Relevance
			}
		}
	}
	if maxRelevance > 0 {
		for i := range all {
			all[i].Relevance = all[i].Relevance / maxRelevance
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Relevance > all[j].Relevance })
	return all
}

func recommendationsHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		var recs []string

		row, err := deps.DB.QueryRow(ctx, execCtx.CorrelationID,
			`SELECT count(*) FROM tasks WHERE project_id = $1 AND status = 'blocked'`, projectID)
		if err != nil {
			return nil, apierr.Wrap(err, "recommendations query failed")
		}
		var blocked int
		if scanErr := row.Scan(&blocked); scanErr == nil && blocked > 0 {
			recs = append(recs, "resolve blocked tasks before starting new work")
		}

		row, err = deps.DB.QueryRow(ctx, execCtx.CorrelationID,
			`SELECT count(*) FROM decisions WHERE project_id = $1 AND status = 'under_review'`, projectID)
		if err != nil {
			return nil, apierr.Wrap(err, "recommendations query failed")
		}
		var underReview int
		if scanErr := row.Scan(&underReview); scanErr == nil && underReview > 0 {
			recs = append(recs, "finalize decisions still under review")
		}

		if len(recs) == 0 {
			recs = []string{"no outstanding recommendations"}
		}
		return recs, nil
	}
}

func insightsHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		var taskCount, decisionCount, namingCount int

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return count(gctx, deps, execCtx.CorrelationID, "tasks", projectID, &taskCount) })
		g.Go(func() error { return count(gctx, deps, execCtx.CorrelationID, "decisions", projectID, &decisionCount) })
		g.Go(func() error { return count(gctx, deps, execCtx.CorrelationID, "naming_entries", projectID, &namingCount) })

		if err := g.Wait(); err != nil {
			return nil, apierr.Wrap(err, "project insights query failed")
		}

		return map[string]any{
			"projectId":     projectID,
			"taskCount":     taskCount,
			"decisionCount": decisionCount,
			"namingCount":   namingCount,
		}, nil
	}
}

func count(ctx context.Context, deps tools.Deps, correlationID, table, projectID string, dest *int) error {
	row, err := deps.DB.QueryRow(ctx, correlationID, "SELECT count(*) FROM "+table+" WHERE project_id = $1", projectID)
	if err != nil {
		return err
	}
	return row.Scan(dest)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
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

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
