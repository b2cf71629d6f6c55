package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTool creates or overwrites a file.
type WriteTool struct {
	cwd string
}

// NewWriteTool creates a new write tool.
func NewWriteTool(cwd string) *WriteTool {
	return &WriteTool{cwd: cwd}
}

// Name returns the tool name.
func (t *WriteTool) Name() string {
	return "write"
}

// Description returns the tool description.
func (t *WriteTool) Description() string {
	return "Write content to a file, creating it if needed and overwriting any existing content."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *WriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write (relative or absolute)",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

// Mutating reports whether the tool writes persisted state.
func (t *WriteTool) Mutating() bool {
	return true
}

// TouchedPaths names the file this call will modify, before it runs.
func (t *WriteTool) TouchedPaths(args map[string]any) []string {
	if path, ok := args["path"].(string); ok && path != "" {
		return []string{resolvePath(t.cwd, path)}
	}
	return nil
}

// Execute writes the file.
func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("invalid path argument")
	}
	content, ok := args["content"].(string)
	if !ok {
		return "", fmt.Errorf("invalid content argument")
	}
	path = resolvePath(t.cwd, path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}
