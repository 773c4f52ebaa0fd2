// Package naming implements naming_register, naming_check, and
// naming_suggest: a project-scoped registry of canonical
// identifier names with convention and collision checking.
package naming

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

// Conflict is one item returned by naming_check.
type Conflict struct {
	Type           string             `json:"type"`
	Severity       string             `json:"severity"`
	ExistingEntry  *models.NamingEntry `json:"existingEntry,omitempty"`
	ConflictReason string             `json:"conflictReason"`
	Suggestion     string             `json:"suggestion,omitempty"`
}

const similarityThreshold = 0.6

var conventionByEntityType = map[string]string{
	"variable":        "camelCase",
	"function":        "camelCase",
	"class":           "PascalCase",
	"interface":       "PascalCase",
	"component":       "PascalCase",
	"config_key":      "SCREAMING_SNAKE_CASE",
	"environment_var":  "SCREAMING_SNAKE_CASE",
}

var entityTypes = []string{
	"variable", "function", "class", "interface", "component", "module",
	"package", "file", "directory", "endpoint", "table", "column",
	"config_key", "environment_var", "constant", "enum", "service",
}

// Register wires naming_register, naming_check, and naming_suggest into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("naming_register", toolsdispatch.ToolDef{
		Description:  "Register a canonical name in the project's naming registry.",
		Schema:       registerSchema(),
		ActivityType: "naming_registered",
		Handler:      registerHandler(deps),
	})

	r.Register("naming_check", toolsdispatch.ToolDef{
		Description: "Check a proposed name for conflicts with the existing registry.",
		Schema:      checkSchema(),
		Handler:     checkHandler(deps),
	})

	r.Register("naming_suggest", toolsdispatch.ToolDef{
		Description: "Suggest conflict-free names for a free-text description.",
		Schema:      suggestSchema(),
		Handler:     suggestHandler(deps),
	})
}

func registerSchema() validation.Schema {
	return validation.Schema{
		ToolName: "naming_register",
		Fields: []validation.Field{
			{Name: "entityType", Type: validation.TypeString, Required: true, Enum: entityTypes},
			{Name: "canonicalName", Type: validation.TypeString, Required: true, MinLength: 1, MaxLength: 200, TrimString: true},
			{Name: "aliases", Type: validation.TypeStringArray, TrimString: true},
			{Name: "description", Type: validation.TypeString, MaxLength: 2000, TrimString: true},
			{Name: "convention", Type: validation.TypeString},
			{Name: "contextTags", Type: validation.TypeStringArray, TrimString: true},
			{Name: "relatedEntities", Type: validation.TypeStringArray, TrimString: true},
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func checkSchema() validation.Schema {
	return validation.Schema{
		ToolName: "naming_check",
		Fields: []validation.Field{
			{Name: "entityType", Type: validation.TypeString, Required: true, Enum: entityTypes},
			{Name: "canonicalName", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func suggestSchema() validation.Schema {
	return validation.Schema{
		ToolName: "naming_suggest",
		Fields: []validation.Field{
			{Name: "entityType", Type: validation.TypeString, Required: true, Enum: entityTypes},
			{Name: "description", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func registerHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		conflicts, cErr := findConflicts(ctx, deps, execCtx.CorrelationID, projectID, args["entityType"].(string), args["canonicalName"].(string))
		if cErr != nil {
			return nil, cErr
		}

		var warnings []string
		for _, c := range conflicts {
			if c.Severity == "error" {
				return nil, apierr.New(apierr.CodeNamingConflict, c.ConflictReason)
			}
			warnings = append(warnings, c.ConflictReason)
		}

		row := models.NamingEntry{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			EntityType:      models.NamingEntityType(args["entityType"].(string)),
			CanonicalName:   args["canonicalName"].(string),
			Aliases:         stringSliceArg(args, "aliases"),
			Description:     stringArg(args, "description"),
			Convention:      conventionByEntityType[args["entityType"].(string)],
			RelatedEntities: stringSliceArg(args, "relatedEntities"),
		}

		_, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, `
			INSERT INTO naming_entries (id, project_id, entity_type, canonical_name, aliases, description, convention, related_entities, usage_count, deprecated, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, false, now(), now())`,
			row.ID, row.ProjectID, row.EntityType, row.CanonicalName, row.Aliases, row.Description, row.Convention, row.RelatedEntities)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to register naming entry")
		}

		return struct {
			models.NamingEntry
			Warnings []string `json:"warnings,omitempty"`
		}{row, warnings}, nil
	}
}

func checkHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}
		conflicts, err := findConflicts(ctx, deps, execCtx.CorrelationID, projectID, args["entityType"].(string), args["canonicalName"].(string))
		if err != nil {
			return nil, err
		}
		return conflicts, nil
	}
}

func suggestHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}
		entityType := args["entityType"].(string)
		keywords := tools.Keywords(args["description"].(string), 3)
		if len(keywords) == 0 {
			return []string{}, nil
		}

		base := ""
		for _, k := range keywords {
			base += k + "_"
		}
		base = base[:len(base)-1]

		candidates := []string{base}
		prefixes, suffixes, pErr := frequentAffixes(ctx, deps, execCtx.CorrelationID, projectID, entityType)
		if pErr != nil {
			return nil, pErr
		}
		for _, p := range prefixes {
			candidates = append(candidates, p+"_"+base)
		}
		for _, s := range suffixes {
			candidates = append(candidates, base+"_"+s)
		}

		convention := conventionByEntityType[entityType]
		suggestions := make([]string, 0, 8)
		for _, c := range candidates {
			formatted := applyConvention(c, convention)
			conflicts, cErr := findConflicts(ctx, deps, execCtx.CorrelationID, projectID, entityType, formatted)
			if cErr != nil {
				return nil, cErr
			}
			if hasErrorConflict(conflicts) {
				continue
			}
			suggestions = append(suggestions, formatted)
			if len(suggestions) >= 8 {
				break
			}
		}
		return suggestions, nil
	}
}

func applyConvention(name, convention string) string {
	switch convention {
	case "camelCase":
		return tools.ToCamelCase(name)
	case "PascalCase":
		return tools.ToPascalCase(name)
	case "SCREAMING_SNAKE_CASE":
		return tools.ToScreamingSnakeCase(name)
	default:
		return name
	}
}

func hasErrorConflict(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == "error" {
			return true
		}
	}
	return false
}

func findConflicts(ctx context.Context, deps tools.Deps, correlationID, projectID, entityType, name string) ([]Conflict, *apierr.Error) {
	var conflicts []Conflict

	rows, qErr := deps.DB.Query(ctx, correlationID, `
		SELECT id, project_id, entity_type, canonical_name, aliases, description, convention, usage_count, deprecated, deprecated_reason, related_entities, created_at, updated_at
		FROM naming_entries WHERE project_id = $1 AND entity_type = $2`, projectID, entityType)
	if qErr != nil {
		return nil, apierr.Wrap(qErr, "naming lookup failed")
	}
	defer rows.Close()

	for rows.Next() {
		var e models.NamingEntry
		if scanErr := rows.Scan(&e.ID, &e.ProjectID, &e.EntityType, &e.CanonicalName, &e.Aliases, &e.Description,
			&e.Convention, &e.UsageCount, &e.Deprecated, &e.DeprecatedReason, &e.RelatedEntities, &e.CreatedAt, &e.UpdatedAt); scanErr != nil {
			return nil, apierr.Wrap(scanErr, "failed to scan naming entry")
		}

		entry := e
		if e.CanonicalName == name {
			conflicts = append(conflicts, Conflict{
				Type: "exact_match", Severity: "error", ExistingEntry: &entry,
				ConflictReason: fmt.Sprintf("%q is already registered as a %s", name, entityType),
			})
			continue
		}
		for _, alias := range e.Aliases {
			if alias == name {
				conflicts = append(conflicts, Conflict{
					Type: "alias_conflict", Severity: "error", ExistingEntry: &entry,
					ConflictReason: fmt.Sprintf("%q is already registered as an alias of %q", name, e.CanonicalName),
				})
			}
		}
		if sim := tools.StringSimilarity(name, e.CanonicalName); sim >= similarityThreshold && sim < 1 {
			conflicts = append(conflicts, Conflict{
				Type: "similar_name", Severity: "warning", ExistingEntry: &entry,
				ConflictReason: fmt.Sprintf("%q is similar to existing name %q", name, e.CanonicalName),
				Suggestion:     e.CanonicalName,
			})
		}
	}

	if expected, ok := conventionByEntityType[entityType]; ok {
		if formatted := applyConvention(name, expected); formatted != name {
			conflicts = append(conflicts, Conflict{
				Type: "convention_violation", Severity: "info",
				ConflictReason: fmt.Sprintf("%q does not follow %s convention for %s (suggest %q)", name, expected, entityType, formatted),
				Suggestion:     formatted,
			})
		}
	}

	return conflicts, nil
}

func frequentAffixes(ctx context.Context, deps tools.Deps, correlationID, projectID, entityType string) ([]string, []string, *apierr.Error) {
	rows, qErr := deps.DB.Query(ctx, correlationID, `
		SELECT canonical_name FROM naming_entries WHERE project_id = $1 AND entity_type = $2 LIMIT 200`, projectID, entityType)
	if qErr != nil {
		return nil, nil, apierr.Wrap(qErr, "naming affix lookup failed")
	}
	defer rows.Close()

	prefixCount := map[string]int{}
	suffixCount := map[string]int{}
	for rows.Next() {
		var name string
		if scanErr := rows.Scan(&name); scanErr != nil {
			return nil, nil, apierr.Wrap(scanErr, "failed to scan naming entry")
		}
		parts := tools.Keywords(name, 4)
		if len(parts) > 1 {
			prefixCount[parts[0]]++
			suffixCount[parts[len(parts)-1]]++
		}
	}

	return topN(prefixCount, 2), topN(suffixCount, 2), nil
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for k, c := range counts {
		if c >= 2 {
			kvs = append(kvs, kv{k, c})
		}
	}
	for i := 0; i < len(kvs); i++ {
		for j := i + 1; j < len(kvs); j++ {
			if kvs[j].count > kvs[i].count {
				kvs[i], kvs[j] = kvs[j], kvs[i]
			}
		}
	}
	out := make([]string, 0, n)
	for i := 0; i < len(kvs) && i < n; i++ {
		out = append(out, kvs[i].key)
	}
	return out
}

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
