// Package registry holds the gateway's tool registry: the single source of
// truth mapping tool names to descriptions, input schemas, and routing
// metadata. Both protocol front ends and the discovery documents read from
// exactly this registry, so the set of discoverable tools can never drift
// between surfaces.
package registry

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidTool indicates a tool definition failed validation.
var ErrInvalidTool = errors.New("invalid tool definition")

// ToolDefinition describes one named, schema-described operation.
type ToolDefinition struct {
	// Name is the unique tool identifier.
	Name string

	// Description is shown to clients in tools/list and the OpenAPI doc.
	Description string

	// InputSchema is a JSON Schema object describing the arguments.
	// Its "type" must be "object"; both protocol surfaces rely on that.
	InputSchema map[string]any

	// IsConsequential marks tools that mutate state (cart changes,
	// checkout). Surfaced as x-openai-isConsequential in the OpenAPI doc.
	IsConsequential bool
}

// Properties returns the schema's properties map, or nil.
func (t *ToolDefinition) Properties() map[string]any {
	props, _ := t.InputSchema["properties"].(map[string]any)
	return props
}

// Required returns the schema's required field names.
func (t *ToolDefinition) Required() []string {
	switch req := t.InputSchema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Registry is the static, immutable tool list resolved at process start.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	tools map[string]ToolDefinition
	order []string
}

// New builds a registry from the given definitions. Duplicate names and
// non-object input schemas are rejected: every consumer of the registry
// (MCP tools/list, REST routing, OpenAPI generation) assumes object-typed
// argument schemas.
func New(tools ...ToolDefinition) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]ToolDefinition, len(tools)),
		order: make([]string, 0, len(tools)),
	}
	for _, tool := range tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("%w: empty tool name", ErrInvalidTool)
		}
		if _, exists := r.tools[tool.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate tool %q", ErrInvalidTool, tool.Name)
		}
		if schemaType, _ := tool.InputSchema["type"].(string); schemaType != "object" {
			return nil, fmt.Errorf("%w: tool %q input schema type must be \"object\"", ErrInvalidTool, tool.Name)
		}
		r.tools[tool.Name] = tool
		r.order = append(r.order, tool.Name)
	}
	return r, nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	names = append(names, r.order...)
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
