package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ListDirTool lists directory entries.
type ListDirTool struct {
	cwd string
}

// NewListDirTool creates a new list_dir tool.
func NewListDirTool(cwd string) *ListDirTool {
	return &ListDirTool{cwd: cwd}
}

// Name returns the tool name.
func (t *ListDirTool) Name() string {
	return "list_dir"
}

// Description returns the tool description.
func (t *ListDirTool) Description() string {
	return "List the entries of a directory. Directories are suffixed with a slash."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list; defaults to the working directory",
			},
		},
	}
}

// Mutating reports whether the tool writes persisted state.
func (t *ListDirTool) Mutating() bool {
	return false
}

// Execute lists the directory, directories first.
func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	path = resolvePath(t.cwd, path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("failed to list directory %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di := strings.HasSuffix(names[i], "/")
		dj := strings.HasSuffix(names[j], "/")
		if di != dj {
			return di
		}
		return names[i] < names[j]
	})

	if len(names) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(names, "\n"), nil
}
