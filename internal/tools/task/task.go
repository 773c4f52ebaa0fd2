// Package task implements task_create, task_list, task_update, and
// task_details.
package task

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

// Register wires the task_* tools into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("task_create", toolsdispatch.ToolDef{
		Description:  "Create a new task within a project.",
		Schema:       createSchema(),
		ActivityType: "task_created",
		Handler:      createHandler(deps),
	})
	r.Register("task_list", toolsdispatch.ToolDef{
		Description: "List tasks for a project, optionally filtered by status.",
		Schema:      listSchema(),
		Handler:     listHandler(deps),
	})
	r.Register("task_update", toolsdispatch.ToolDef{
		Description: "Update a task's status, setting startedAt/completedAt as appropriate.",
		Schema:      updateSchema(),
		Handler:     updateHandler(deps),
	})
	r.Register("task_details", toolsdispatch.ToolDef{
		Description: "Fetch a single task by id.",
		Schema:      detailsSchema(),
		Handler:     detailsHandler(deps),
	})
}

var taskStatuses = []string{"todo", "in_progress", "blocked", "completed", "cancelled"}

func createSchema() validation.Schema {
	return validation.Schema{
		ToolName: "task_create",
		Fields: []validation.Field{
			{Name: "title", Type: validation.TypeString, Required: true, MinLength: 1, MaxLength: 300, TrimString: true},
			{Name: "description", Type: validation.TypeString, MaxLength: 5000, TrimString: true},
			{Name: "type", Type: validation.TypeString, TrimString: true},
			{Name: "priority", Type: validation.TypeString, Enum: []string{"low", "medium", "high", "urgent"}},
			{Name: "assignee", Type: validation.TypeString, TrimString: true},
			{Name: "dependencies", Type: validation.TypeStringArray},
			{Name: "tags", Type: validation.TypeStringArray, TrimString: true},
			{Name: "metadata", Type: validation.TypeObject},
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func listSchema() validation.Schema {
	return validation.Schema{
		ToolName: "task_list",
		Fields: []validation.Field{
			{Name: "projectId", Type: validation.TypeString},
			{Name: "status", Type: validation.TypeString, Enum: taskStatuses},
			{Name: "assignee", Type: validation.TypeString},
			{Name: "limit", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(200), CoerceNumericString: true},
		},
	}
}

func updateSchema() validation.Schema {
	return validation.Schema{
		ToolName: "task_update",
		Fields: []validation.Field{
			{Name: "id", Type: validation.TypeString, Required: true},
			{Name: "status", Type: validation.TypeString, Enum: taskStatuses},
			{Name: "priority", Type: validation.TypeString, Enum: []string{"low", "medium", "high", "urgent"}},
			{Name: "assignee", Type: validation.TypeString, TrimString: true},
		},
	}
}

func detailsSchema() validation.Schema {
	return validation.Schema{
		ToolName: "task_details",
		Fields: []validation.Field{
			{Name: "id", Type: validation.TypeString, Required: true},
		},
	}
}

func createHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId"))
		if !ok {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no project specified and no active project for this session")
		}

		priority := stringArg(args, "priority")
		if priority == "" {
			priority = "medium"
		}

		row := models.Task{
			ID:           uuid.NewString(),
			ProjectID:    projectID,
			Title:        args["title"].(string),
			Description:  stringArg(args, "description"),
			Type:         stringArg(args, "type"),
			Status:       models.TaskStatusTodo,
			Priority:     models.TaskPriority(priority),
			Assignee:     stringArg(args, "assignee"),
			Dependencies: stringSliceArg(args, "dependencies"),
			Tags:         stringSliceArg(args, "tags"),
			Metadata:     mapArg(args, "metadata"),
		}

		_, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, `
			INSERT INTO tasks (id, project_id, title, description, type, status, priority, assignee, dependencies, tags, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())`,
			row.ID, row.ProjectID, row.Title, row.Description, row.Type, row.Status, row.Priority,
			row.Assignee, row.Dependencies, row.Tags, row.Metadata)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to create task")
		}

		return row, nil
	}
}

func listHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		limit := int(floatArgOr(args, "limit", 50))
		if limit == 0 {
			return []models.Task{}, nil
		}

		sql := `SELECT id, project_id, title, description, type, status, priority, assignee, dependencies, tags, metadata, created_at, updated_at, started_at, completed_at FROM tasks WHERE 1=1`
		var params []any

		if projectID, ok := deps.ResolveProjectID(execCtx.SessionID, stringArg(args, "projectId")); ok {
			params = append(params, projectID)
			sql += fmt.Sprintf(" AND project_id = $%d", len(params))
		}
		if status := stringArg(args, "status"); status != "" {
			params = append(params, status)
			sql += fmt.Sprintf(" AND status = $%d", len(params))
		}
		if assignee := stringArg(args, "assignee"); assignee != "" {
			params = append(params, assignee)
			sql += fmt.Sprintf(" AND assignee = $%d", len(params))
		}
		params = append(params, limit)
		sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(params))

		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID, sql, params...)
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "task list query failed")
		}
		defer rows.Close()

		tasks := make([]models.Task, 0, limit)
		for rows.Next() {
			var t models.Task
			if scanErr := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Type, &t.Status, &t.Priority,
				&t.Assignee, &t.Dependencies, &t.Tags, &t.Metadata, &t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan task row")
			}
			tasks = append(tasks, t)
		}
		return tasks, nil
	}
}

func updateHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		id := args["id"].(string)

		existing, getErr := fetchTask(ctx, deps, execCtx.CorrelationID, id)
		if getErr != nil {
			return nil, getErr
		}

		newStatus := existing.Status
		if v := stringArg(args, "status"); v != "" {
			newStatus = models.TaskStatus(v)
		}

		// task_update with an identical status is a documented no-op
		//.
		if newStatus == existing.Status && stringArg(args, "priority") == "" && stringArg(args, "assignee") == "" {
			return existing, nil
		}

		sql := `UPDATE tasks SET status = $1, updated_at = now()`
		params := []any{newStatus}

		if newStatus == models.TaskStatusInProgress && existing.StartedAt == nil {
			sql += ", started_at = now()"
		}
		if newStatus == models.TaskStatusCompleted && existing.CompletedAt == nil {
			sql += ", completed_at = now()"
		}
		if priority := stringArg(args, "priority"); priority != "" {
			params = append(params, priority)
			sql += fmt.Sprintf(", priority = $%d", len(params))
		}
		if assignee := stringArg(args, "assignee"); assignee != "" {
			params = append(params, assignee)
			sql += fmt.Sprintf(", assignee = $%d", len(params))
		}
		params = append(params, id)
		sql += fmt.Sprintf(" WHERE id = $%d", len(params))

		if _, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, sql, params...); execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to update task")
		}

		return fetchTask(ctx, deps, execCtx.CorrelationID, id)
	}
}

func detailsHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		return fetchTask(ctx, deps, execCtx.CorrelationID, args["id"].(string))
	}
}

func fetchTask(ctx context.Context, deps tools.Deps, correlationID, id string) (*models.Task, *apierr.Error) {
	row, err := deps.DB.QueryRow(ctx, correlationID, `
		SELECT id, project_id, title, description, type, status, priority, assignee, dependencies, tags, metadata, created_at, updated_at, started_at, completed_at
		FROM tasks WHERE id = $1`, id)
	if err != nil {
		return nil, apierr.Wrap(err, "task lookup failed")
	}

	var t models.Task
	if scanErr := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Type, &t.Status, &t.Priority,
		&t.Assignee, &t.Dependencies, &t.Tags, &t.Metadata, &t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt); scanErr != nil {
		return nil, apierr.New(apierr.CodeTaskNotFound, "no task with that id")
	}
	return &t, nil
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
