// Package toolsdispatch implements the tool registry and dispatcher: the
// single point every HTTP surface routes a tool call through to resolve,
// validate, invoke, and envelope it.
package toolsdispatch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/validation"
)

// Handler executes one tool given its validated arguments and the
// per-dispatch execution context.
type Handler func(ctx context.Context, execCtx ExecContext, args map[string]any) (any, *apierr.Error)

// ExecContext carries the per-dispatch values every handler receives:
// correlation id, session id, calling principal, and API version.
type ExecContext struct {
	CorrelationID string
	SessionID     string
	Principal     string
	// RequestVersion is "v1" or "v2" depending on which HTTP surface the
	// call arrived through; handlers rarely need it, but it is threaded
	// through for handlers that want to vary behavior by API version.
	RequestVersion string
}

// ToolDef bundles everything the registry needs to resolve, validate, and
// describe one tool.
type ToolDef struct {
	Description string
	Schema      validation.Schema
	Handler     Handler
	Examples    []json.RawMessage

	// ActivityType marks tools whose successful completion must be
	// reported to the session tracker. Empty means no
	// activity is recorded.
	ActivityType string
}

// Descriptor is the public, client-facing view of a registered tool
// returned by `GET /mcp/tools`.
type Descriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      validation.Schema `json:"schema"`
	Endpoint    string            `json:"endpoint"`
}

// Registry is the compile-time tool name → ToolDef map. It is built once
// at startup by each tools/... subpackage's Register function and is safe
// for concurrent read access thereafter.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolDef
}

// NewRegistry returns an empty registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolDef)}
}

// Register adds a tool definition under name, overwriting any previous
// definition of the same name (used by tests to stub a handler).
func (r *Registry) Register(name string, def ToolDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = def
}

// Lookup returns the tool definition for name, or ok=false.
func (r *Registry) Lookup(name string) (ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the client-facing listing for /mcp/tools, in the
// same sorted order as Names.
func (r *Registry) Descriptors(endpointPrefix string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		def := r.tools[name]
		out = append(out, Descriptor{
			Name:        name,
			Description: def.Description,
			Schema:      def.Schema,
			Endpoint:    endpointPrefix + "/" + name,
		})
	}
	return out
}
