package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditTool performs an exact string replacement inside a file. The old
// string must appear exactly once; ambiguity is an error rather than a
// guess.
type EditTool struct {
	cwd string
}

// NewEditTool creates a new edit tool.
func NewEditTool(cwd string) *EditTool {
	return &EditTool{cwd: cwd}
}

// Name returns the tool name.
func (t *EditTool) Name() string {
	return "edit"
}

// Description returns the tool description.
func (t *EditTool) Description() string {
	return "Replace an exact string in a file with a new string. The old string must occur exactly once."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *EditTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to edit (relative or absolute)",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "Exact text to replace",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

// Mutating reports whether the tool writes persisted state.
func (t *EditTool) Mutating() bool {
	return true
}

// TouchedPaths names the file this call will modify, before it runs.
func (t *EditTool) TouchedPaths(args map[string]any) []string {
	if path, ok := args["path"].(string); ok && path != "" {
		return []string{resolvePath(t.cwd, path)}
	}
	return nil
}

// Execute applies the replacement.
func (t *EditTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("invalid path argument")
	}
	oldStr, ok := args["old_string"].(string)
	if !ok || oldStr == "" {
		return "", fmt.Errorf("invalid old_string argument")
	}
	newStr, ok := args["new_string"].(string)
	if !ok {
		return "", fmt.Errorf("invalid new_string argument")
	}
	path = resolvePath(t.cwd, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	content := string(data)

	switch n := strings.Count(content, oldStr); n {
	case 0:
		return "", fmt.Errorf("old_string not found in %s", path)
	case 1:
	default:
		return "", fmt.Errorf("old_string occurs %d times in %s, must be unique", n, path)
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return fmt.Sprintf("edited %s", path), nil
}
