// Package agent implements agent_register, agent_list, agent_join,
// agent_leave, agent_sessions, agent_message, and agent_messages:
// per-project agent presence and a message log.
package agent

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

// Register wires the agent_* tools into r.
func Register(r *toolsdispatch.Registry, deps tools.Deps) {
	r.Register("agent_register", toolsdispatch.ToolDef{
		Description: "Register a new agent (AI or human worker).",
		Schema:      registerSchema(),
		Handler:     registerHandler(deps),
	})
	r.Register("agent_list", toolsdispatch.ToolDef{
		Description: "List registered agents, optionally filtered by status.",
		Schema:      listSchema(),
		Handler:     listHandler(deps),
	})
	r.Register("agent_join", toolsdispatch.ToolDef{
		Description: "Mark an agent active and associate it with a project session.",
		Schema:      joinSchema(),
		Handler:     joinHandler(deps),
	})
	r.Register("agent_leave", toolsdispatch.ToolDef{
		Description: "Mark an agent offline.",
		Schema:      leaveSchema(),
		Handler:     leaveHandler(deps),
	})
	r.Register("agent_sessions", toolsdispatch.ToolDef{
		Description: "List sessions an agent has participated in.",
		Schema:      sessionsSchema(),
		Handler:     sessionsHandler(deps),
	})
	r.Register("agent_message", toolsdispatch.ToolDef{
		Description: "Send a message from one agent to another, or broadcast.",
		Schema:      messageSchema(),
		Handler:     messageHandler(deps),
	})
	r.Register("agent_messages", toolsdispatch.ToolDef{
		Description: "List messages addressed to an agent plus broadcast messages, or every message when no agentId is given.",
		Schema:      messagesSchema(),
		Handler:     messagesHandler(deps),
	})
}

func registerSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_register",
		Fields: []validation.Field{
			{Name: "name", Type: validation.TypeString, Required: true, MinLength: 1, MaxLength: 200, TrimString: true},
			{Name: "type", Type: validation.TypeString, Required: true, TrimString: true},
			{Name: "capabilities", Type: validation.TypeStringArray, TrimString: true},
		},
	}
}

func listSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_list",
		Fields: []validation.Field{
			{Name: "status", Type: validation.TypeString, Enum: []string{"active", "busy", "offline", "error"}},
		},
	}
}

func joinSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_join",
		Fields: []validation.Field{
			{Name: "agentId", Type: validation.TypeString, Required: true},
			{Name: "projectId", Type: validation.TypeString},
		},
	}
}

func leaveSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_leave",
		Fields: []validation.Field{
			{Name: "agentId", Type: validation.TypeString, Required: true},
		},
	}
}

func sessionsSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_sessions",
		Fields: []validation.Field{
			{Name: "agentId", Type: validation.TypeString, Required: true},
		},
	}
}

func messageSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_message",
		Fields: []validation.Field{
			{Name: "fromAgent", Type: validation.TypeString, Required: true},
			{Name: "toAgent", Type: validation.TypeString},
			{Name: "type", Type: validation.TypeString, Required: true, TrimString: true},
			{Name: "title", Type: validation.TypeString, MaxLength: 300, TrimString: true},
			{Name: "content", Type: validation.TypeString, Required: true, MinLength: 1, TrimString: true},
			{Name: "taskRefs", Type: validation.TypeStringArray},
		},
	}
}

func messagesSchema() validation.Schema {
	return validation.Schema{
		ToolName: "agent_messages",
		Fields: []validation.Field{
			{Name: "agentId", Type: validation.TypeString},
			{Name: "limit", Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(200), CoerceNumericString: true},
		},
	}
}

func registerHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		row := models.Agent{
			ID:           uuid.NewString(),
			Name:         args["name"].(string),
			Type:         args["type"].(string),
			Capabilities: stringSliceArg(args, "capabilities"),
			Status:       models.AgentStatusOffline,
		}

		_, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, `
			INSERT INTO agents (id, name, type, capabilities, status, last_seen)
			VALUES ($1, $2, $3, $4, $5, now())`,
			row.ID, row.Name, row.Type, row.Capabilities, row.Status)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to register agent")
		}
		return row, nil
	}
}

func listHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		sql := `SELECT id, name, type, capabilities, status, last_seen FROM agents`
		var params []any
		if status := stringArg(args, "status"); status != "" {
			params = append(params, status)
			sql += ` WHERE status = $1`
		}
		sql += ` ORDER BY name`

		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID, sql, params...)
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "agent list query failed")
		}
		defer rows.Close()

		agents := make([]models.Agent, 0)
		for rows.Next() {
			var a models.Agent
			if scanErr := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Capabilities, &a.Status, &a.LastSeen); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan agent row")
			}
			agents = append(agents, a)
		}
		return agents, nil
	}
}

func joinHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		agentID := args["agentId"].(string)
		tag, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID,
			`UPDATE agents SET status = $1, last_seen = now() WHERE id = $2`, models.AgentStatusActive, agentID)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to join agent")
		}
		if tag == 0 {
			return nil, apierr.New(apierr.CodeAgentNotFound, "no agent with that id")
		}
		if projectID := stringArg(args, "projectId"); projectID != "" {
			deps.ActiveProjects.Set(agentID, projectID)
		}
		return map[string]any{"agentId": agentID, "status": models.AgentStatusActive}, nil
	}
}

func leaveHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		agentID := args["agentId"].(string)
		tag, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID,
			`UPDATE agents SET status = $1, last_seen = now() WHERE id = $2`, models.AgentStatusOffline, agentID)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to mark agent offline")
		}
		if tag == 0 {
			return nil, apierr.New(apierr.CodeAgentNotFound, "no agent with that id")
		}
		deps.ActiveProjects.Clear(agentID)
		return map[string]any{"agentId": agentID, "status": models.AgentStatusOffline}, nil
	}
}

func sessionsHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID, `
			SELECT DISTINCT s.id, s.project_id, s.started_at, s.ended_at, s.productivity_score
			FROM sessions s
			JOIN agent_messages m ON m.from_agent = $1
			ORDER BY s.started_at DESC`, args["agentId"].(string))
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "agent sessions query failed")
		}
		defer rows.Close()

		sessions := make([]models.Session, 0)
		for rows.Next() {
			var s models.Session
			if scanErr := rows.Scan(&s.ID, &s.ProjectID, &s.StartedAt, &s.EndedAt, &s.ProductivityScore); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan session row")
			}
			sessions = append(sessions, s)
		}
		return sessions, nil
	}
}

func messageHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		row := models.AgentMessage{
			ID:        uuid.NewString(),
			FromAgent: args["fromAgent"].(string),
			Type:      args["type"].(string),
			Title:     stringArg(args, "title"),
			Content:   args["content"].(string),
			TaskRefs:  stringSliceArg(args, "taskRefs"),
		}
		if to := stringArg(args, "toAgent"); to != "" {
			row.ToAgent = &to
		}

		_, execErr := deps.DB.Exec(ctx, execCtx.CorrelationID, `
			INSERT INTO agent_messages (id, from_agent, to_agent, type, title, content, task_refs, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			row.ID, row.FromAgent, row.ToAgent, row.Type, row.Title, row.Content, row.TaskRefs)
		if execErr != nil {
			return nil, apierr.Wrap(execErr, "failed to send agent message")
		}
		return row, nil
	}
}

func messagesHandler(deps tools.Deps) toolsdispatch.Handler {
	return func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
		limit := int(floatArgOr(args, "limit", 50))
		sql := `SELECT id, from_agent, to_agent, type, title, content, task_refs, created_at FROM agent_messages`
		var params []any
		if agentID := stringArg(args, "agentId"); agentID != "" {
			params = append(params, agentID)
			sql += ` WHERE to_agent = $1 OR to_agent IS NULL`
		}
		params = append(params, limit)
		sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(params))

		rows, qErr := deps.DB.Query(ctx, execCtx.CorrelationID, sql, params...)
		if qErr != nil {
			return nil, apierr.Wrap(qErr, "agent messages query failed")
		}
		defer rows.Close()

		msgs := make([]models.AgentMessage, 0)
		for rows.Next() {
			var m models.AgentMessage
			if scanErr := rows.Scan(&m.ID, &m.FromAgent, &m.ToAgent, &m.Type, &m.Title, &m.Content, &m.TaskRefs, &m.CreatedAt); scanErr != nil {
				return nil, apierr.Wrap(scanErr, "failed to scan agent message row")
			}
			msgs = append(msgs, m)
		}
		return msgs, nil
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
