// Package prompt assembles the system prompt from structured sections.
package prompt

import (
	"fmt"
	"strings"
)

// ToolInfo describes a tool for prompt generation.
type ToolInfo interface {
	Name() string
	Description() string
}

const basePrompt = `You are aide, a coding assistant working inside the user's project.

Use the available tools to inspect and modify the project. Prefer small,
targeted edits over rewriting whole files. When a command or tool fails,
read the error and adjust rather than repeating the same call. Answer
directly once the work is done.`

// Builder constructs the system prompt section by section.
type Builder struct {
	cwd           string
	tools         []ToolInfo
	recentChanges string
	notes         string
}

// NewBuilder creates a builder for the given working directory.
func NewBuilder(cwd string) *Builder {
	return &Builder{cwd: cwd}
}

// WithTools adds a Tooling section listing the available tools.
func (b *Builder) WithTools(tools []ToolInfo) *Builder {
	b.tools = tools
	return b
}

// WithRecentChanges adds a section describing what changed in earlier
// sessions. Empty input omits the section.
func (b *Builder) WithRecentChanges(summary string) *Builder {
	b.recentChanges = strings.TrimSpace(summary)
	return b
}

// WithNotes adds free-form workspace notes.
func (b *Builder) WithNotes(notes string) *Builder {
	b.notes = strings.TrimSpace(notes)
	return b
}

// Build renders the prompt.
func (b *Builder) Build() string {
	var sections []string
	sections = append(sections, basePrompt)
	sections = append(sections, "# Environment\n\nWorking directory: "+b.cwd)

	if len(b.tools) > 0 {
		var sb strings.Builder
		sb.WriteString("# Tooling\n")
		for _, tool := range b.tools {
			fmt.Fprintf(&sb, "\n- %s: %s", tool.Name(), firstLine(tool.Description()))
		}
		sections = append(sections, sb.String())
	}

	if b.recentChanges != "" {
		sections = append(sections, "# Project History\n\n"+b.recentChanges)
	}
	if b.notes != "" {
		sections = append(sections, "# Notes\n\n"+b.notes)
	}

	return strings.Join(sections, "\n\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
