package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubTool struct {
	name string
	desc string
}

func (t stubTool) Name() string        { return t.name }
func (t stubTool) Description() string { return t.desc }

func TestBuildMinimal(t *testing.T) {
	out := NewBuilder("/work/project").Build()
	assert.Contains(t, out, "You are aide")
	assert.Contains(t, out, "Working directory: /work/project")
	assert.NotContains(t, out, "# Tooling")
	assert.NotContains(t, out, "# Project History")
}

func TestBuildWithTools(t *testing.T) {
	out := NewBuilder("/work").
		WithTools([]ToolInfo{
			stubTool{name: "read", desc: "Read the contents of a text file."},
			stubTool{name: "bash", desc: "Execute a bash command.\nSecond line detail."},
		}).
		Build()

	assert.Contains(t, out, "# Tooling")
	assert.Contains(t, out, "- read: Read the contents of a text file.")
	// Multi-line descriptions collapse to their first line.
	assert.Contains(t, out, "- bash: Execute a bash command.")
	assert.NotContains(t, out, "Second line detail")
}

func TestBuildWithRecentChanges(t *testing.T) {
	out := NewBuilder("/work").
		WithRecentChanges("- edited main.go\n- ran tests\n").
		Build()

	assert.Contains(t, out, "# Project History")
	assert.Contains(t, out, "- edited main.go")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestBuildEmptySectionsOmitted(t *testing.T) {
	out := NewBuilder("/work").
		WithRecentChanges("   ").
		WithNotes("").
		Build()
	assert.NotContains(t, out, "# Project History")
	assert.NotContains(t, out, "# Notes")
}
