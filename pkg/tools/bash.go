package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BashTool executes shell commands in the working directory.
type BashTool struct {
	cwd     string
	timeout time.Duration
}

// NewBashTool creates a new bash tool.
func NewBashTool(cwd string) *BashTool {
	return &BashTool{
		cwd:     cwd,
		timeout: 60 * time.Second,
	}
}

// Name returns the tool name.
func (t *BashTool) Name() string {
	return "bash"
}

// Description returns the tool description.
func (t *BashTool) Description() string {
	return "Execute a bash command in the current working directory."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *BashTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Bash command to execute",
			},
		},
		"required": []string{"command"},
	}
}

// Mutating reports whether the tool writes persisted state. Shell commands
// can touch anything, so they always checkpoint.
func (t *BashTool) Mutating() bool {
	return true
}

// Execute runs the command with a timeout and returns combined output.
func (t *BashTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return "", fmt.Errorf("invalid command argument")
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = t.cwd

	output, err := cmd.CombinedOutput()
	text := strings.TrimRight(string(output), "\n")

	if execCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s: %s", t.timeout, command)
	}
	if err != nil {
		if text != "" {
			return "", fmt.Errorf("command failed: %w\n%s", err, text)
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	if text == "" {
		return "(no output)", nil
	}
	return text, nil
}
