// Package tools provides the built-in tool set: file reads and writes,
// exact-string edits, shell execution and directory listing. Mutating tools
// identify themselves so the dispatcher can checkpoint before running them.
package tools

import (
	"sort"

	"github.com/aide-dev/aide/pkg/agent"
	"github.com/aide-dev/aide/pkg/llm"
)

// Registry manages tool registration and lookup. It implements
// agent.ToolResolver.
type Registry struct {
	tools map[string]agent.Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]agent.Tool)}
}

// Register registers a tool, replacing any previous tool of the same name.
func (r *Registry) Register(tool agent.Tool) {
	r.tools[tool.Name()] = tool
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (agent.Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []agent.Tool {
	tools := make([]agent.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Schemas converts the registered tools to the wire schema list sent with
// every model request.
func (r *Registry) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(r.tools))
	for _, tool := range r.All() {
		schemas = append(schemas, llm.ToolSchema{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return schemas
}
