package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	cwd string
}

// NewGrepTool creates a new grep tool.
func NewGrepTool(cwd string) *GrepTool {
	return &GrepTool{cwd: cwd}
}

// Name returns the tool name.
func (t *GrepTool) Name() string {
	return "grep"
}

// Description returns the tool description.
func (t *GrepTool) Description() string {
	return "Search files recursively for a regular expression and return matching lines with locations."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *GrepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Go regular expression to search for",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search; defaults to the working directory",
			},
		},
		"required": []string{"pattern"},
	}
}

// Mutating reports whether the tool writes persisted state.
func (t *GrepTool) Mutating() bool {
	return false
}

const maxGrepMatches = 200

// Execute walks the tree and collects matching lines. Hidden directories
// and binary files are skipped.
func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return "", fmt.Errorf("invalid pattern argument")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}
	root = resolvePath(t.cwd, root)

	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxGrepMatches {
			return filepath.SkipAll
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		data, err := os.ReadFile(path)
		if err != nil || isBinary(data) {
			return nil
		}
		rel, relErr := filepath.Rel(t.cwd, path)
		if relErr != nil {
			rel = path
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxGrepMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "(no matches)", nil
	}
	out := strings.Join(matches, "\n")
	if len(matches) >= maxGrepMatches {
		out += "\n... (results truncated)"
	}
	return out, nil
}
