// Package models defines the entities the AIDIS core reads and writes.
// The database is authoritative; these types are the in-process shape of
// its rows and are kept deliberately small.
package models

import "time"

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusInactive ProjectStatus = "inactive"
	ProjectStatusArchived ProjectStatus = "archived"
)

// Project is a top-level unit of work scoping contexts, decisions, tasks,
// and naming entries.
type Project struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Description string         `json:"description,omitempty" db:"description"`
	Status      ProjectStatus  `json:"status" db:"status"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}

// Session represents one working session against a project.
type Session struct {
	ID                string     `json:"id" db:"id"`
	ProjectID         string     `json:"projectId" db:"project_id"`
	StartedAt         time.Time  `json:"startedAt" db:"started_at"`
	EndedAt           *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	ProductivityScore *float64   `json:"productivityScore,omitempty" db:"productivity_score"`
}

// ContextType enumerates the kinds of context entries the core stores.
type ContextType string

const (
	ContextTypeCode        ContextType = "code"
	ContextTypeDecision    ContextType = "decision"
	ContextTypeError       ContextType = "error"
	ContextTypeDiscussion  ContextType = "discussion"
	ContextTypePlanning    ContextType = "planning"
	ContextTypeCompletion  ContextType = "completion"
)

// Context is a stored, embedded piece of project knowledge.
type Context struct {
	ID             string         `json:"id" db:"id"`
	ProjectID      string         `json:"projectId" db:"project_id"`
	SessionID      *string        `json:"sessionId,omitempty" db:"session_id"`
	Type           ContextType    `json:"type" db:"type"`
	Content        string         `json:"content" db:"content"`
	Tags           []string       `json:"tags,omitempty" db:"tags"`
	RelevanceScore float64        `json:"relevanceScore" db:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
	Embedding      []float32      `json:"-" db:"embedding"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
}

// ContextSearchResult is a Context annotated with its match similarity.
type ContextSearchResult struct {
	Context
	Similarity float64 `json:"similarity"`
}

// DecisionStatus is the lifecycle state of a Decision.
type DecisionStatus string

const (
	DecisionStatusActive       DecisionStatus = "active"
	DecisionStatusUnderReview  DecisionStatus = "under_review"
	DecisionStatusSuperseded   DecisionStatus = "superseded"
	DecisionStatusDeprecated   DecisionStatus = "deprecated"
)

// DecisionAlternative is one option considered when a Decision was made.
type DecisionAlternative struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Pros        []string `json:"pros,omitempty"`
	Cons        []string `json:"cons,omitempty"`
}

// Decision records a technical or product decision and its rationale.
type Decision struct {
	ID           string                `json:"id" db:"id"`
	ProjectID    string                `json:"projectId" db:"project_id"`
	Title        string                `json:"title" db:"title"`
	Problem      string                `json:"problem" db:"problem"`
	DecisionText string                `json:"decision" db:"decision_text"`
	Rationale    string                `json:"rationale" db:"rationale"`
	Alternatives []DecisionAlternative `json:"alternatives,omitempty" db:"alternatives"`
	Status       DecisionStatus        `json:"status" db:"status"`
	ImpactLevel  string                `json:"impactLevel" db:"impact_level"`
	CreatedAt    time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time             `json:"updatedAt" db:"updated_at"`
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority is the urgency of a Task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Task is a unit of coordinated work within a project.
type Task struct {
	ID           string         `json:"id" db:"id"`
	ProjectID    string         `json:"projectId" db:"project_id"`
	Title        string         `json:"title" db:"title"`
	Description  string         `json:"description,omitempty" db:"description"`
	Type         string         `json:"type,omitempty" db:"type"`
	Status       TaskStatus     `json:"status" db:"status"`
	Priority     TaskPriority   `json:"priority" db:"priority"`
	Assignee     string         `json:"assignee,omitempty" db:"assignee"`
	Dependencies []string       `json:"dependencies,omitempty" db:"dependencies"`
	Tags         []string       `json:"tags,omitempty" db:"tags"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
	StartedAt    *time.Time     `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
}

// AgentStatus is the presence state of an Agent.
type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusError   AgentStatus = "error"
)

// Agent is a registered AI or human worker.
type Agent struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Type         string      `json:"type" db:"type"`
	Capabilities []string    `json:"capabilities,omitempty" db:"capabilities"`
	Status       AgentStatus `json:"status" db:"status"`
	LastSeen     time.Time   `json:"lastSeen" db:"last_seen"`
}

// AgentMessage is one message exchanged between agents.
type AgentMessage struct {
	ID        string    `json:"id" db:"id"`
	FromAgent string    `json:"fromAgent" db:"from_agent"`
	ToAgent   *string   `json:"toAgent,omitempty" db:"to_agent"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title,omitempty" db:"title"`
	Content   string    `json:"content" db:"content"`
	TaskRefs  []string  `json:"taskRefs,omitempty" db:"task_refs"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// NamingEntityType enumerates the closed set of naming-registry entity kinds.
type NamingEntityType string

const (
	NamingEntityVariable      NamingEntityType = "variable"
	NamingEntityFunction      NamingEntityType = "function"
	NamingEntityClass         NamingEntityType = "class"
	NamingEntityInterface     NamingEntityType = "interface"
	NamingEntityComponent     NamingEntityType = "component"
	NamingEntityModule        NamingEntityType = "module"
	NamingEntityPackage       NamingEntityType = "package"
	NamingEntityFile          NamingEntityType = "file"
	NamingEntityDirectory     NamingEntityType = "directory"
	NamingEntityEndpoint      NamingEntityType = "endpoint"
	NamingEntityTable         NamingEntityType = "table"
	NamingEntityColumn        NamingEntityType = "column"
	NamingEntityConfigKey     NamingEntityType = "config_key"
	NamingEntityEnvironmentVar NamingEntityType = "environment_var"
	NamingEntityConstant      NamingEntityType = "constant"
	NamingEntityEnum          NamingEntityType = "enum"
	NamingEntityService       NamingEntityType = "service"
)

// NamingEntry is one entry in a project's naming registry.
type NamingEntry struct {
	ID              string           `json:"id" db:"id"`
	ProjectID       string           `json:"projectId" db:"project_id"`
	EntityType      NamingEntityType `json:"entityType" db:"entity_type"`
	CanonicalName   string           `json:"canonicalName" db:"canonical_name"`
	Aliases         []string         `json:"aliases,omitempty" db:"aliases"`
	Description     string           `json:"description,omitempty" db:"description"`
	Convention      string           `json:"convention,omitempty" db:"convention"`
	UsageCount      int              `json:"usageCount" db:"usage_count"`
	Deprecated      bool             `json:"deprecated" db:"deprecated"`
	DeprecatedReason *string         `json:"deprecatedReason,omitempty" db:"deprecated_reason"`
	RelatedEntities []string         `json:"relatedEntities,omitempty" db:"related_entities"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time        `json:"updatedAt" db:"updated_at"`
}
