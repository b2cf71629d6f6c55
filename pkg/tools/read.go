package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ReadTool reads file contents.
type ReadTool struct {
	cwd string
}

// NewReadTool creates a new read tool.
func NewReadTool(cwd string) *ReadTool {
	return &ReadTool{cwd: cwd}
}

// Name returns the tool name.
func (t *ReadTool) Name() string {
	return "read"
}

// Description returns the tool description.
func (t *ReadTool) Description() string {
	return "Read the contents of a text file."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *ReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read (relative or absolute)",
			},
		},
		"required": []string{"path"},
	}
}

// Mutating reports whether the tool writes persisted state.
func (t *ReadTool) Mutating() bool {
	return false
}

// Execute reads the file and returns its contents.
func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("invalid path argument")
	}
	path = resolvePath(t.cwd, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if isBinary(data) {
		return "", fmt.Errorf("file %s appears to be binary", path)
	}

	content := string(data)
	const maxSize = 100 * 1024
	if len(content) > maxSize {
		content = content[:maxSize] + "\n\n... (file truncated, too large)"
	}
	return content, nil
}

func resolvePath(cwd, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}

// isBinary checks for NUL bytes in the leading chunk of a file.
func isBinary(data []byte) bool {
	const probe = 8192
	if len(data) > probe {
		data = data[:probe]
	}
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}
