package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-dev/aide/pkg/llm"
)

// fakeTool is a scriptable tool for dispatcher tests.
type fakeTool struct {
	name     string
	mutating bool
	execute  func(ctx context.Context, args map[string]any) (string, error)
}

func (t *fakeTool) Name() string               { return t.name }
func (t *fakeTool) Description() string        { return "fake tool" }
func (t *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *fakeTool) Mutating() bool             { return t.mutating }
func (t *fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.execute(ctx, args)
}

// touchingTool additionally names its target paths before execution.
type touchingTool struct {
	fakeTool
	paths []string
}

func (t *touchingTool) TouchedPaths(args map[string]any) []string { return t.paths }

// fakeResolver is a map-backed ToolResolver.
type fakeResolver struct {
	tools map[string]Tool
}

func newFakeResolver(tools ...Tool) *fakeResolver {
	r := &fakeResolver{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *fakeResolver) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *fakeResolver) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, llm.ToolSchema{
			Type:     "function",
			Function: llm.ToolFunction{Name: t.Name(), Parameters: t.Parameters()},
		})
	}
	return schemas
}

type fakeCheckpointer struct {
	tracked       []string
	trackedAtAuto int
	calls         []string
	err           error
}

func (c *fakeCheckpointer) TrackFile(path string) {
	c.tracked = append(c.tracked, path)
}

func (c *fakeCheckpointer) AutoCheckpoint(description string) error {
	c.trackedAtAuto = len(c.tracked)
	c.calls = append(c.calls, description)
	return c.err
}

type fakeJournal struct {
	entries []string
}

func (j *fakeJournal) RecordChange(description string) {
	j.entries = append(j.entries, description)
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := NewDispatcher(newFakeResolver(), nil, nil)
	result := d.Execute(context.Background(), "frobnicate", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool not found: frobnicate")
}

func TestDispatcherSuccess(t *testing.T) {
	tool := &fakeTool{
		name: "read",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "file contents", nil
		},
	}
	d := NewDispatcher(newFakeResolver(tool), nil, nil)
	result := d.Execute(context.Background(), "read", map[string]any{"path": "a.txt"})

	assert.True(t, result.Success)
	assert.Equal(t, "file contents", result.Output)
}

func TestDispatcherToolError(t *testing.T) {
	tool := &fakeTool{
		name: "read",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("no such file")
		},
	}
	d := NewDispatcher(newFakeResolver(tool), nil, nil)
	result := d.Execute(context.Background(), "read", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool error (read)")
	assert.Contains(t, result.Error, "no such file")
}

func TestDispatcherPanicRecovery(t *testing.T) {
	tool := &fakeTool{
		name: "bash",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			panic("boom")
		},
	}
	d := NewDispatcher(newFakeResolver(tool), nil, nil)
	result := d.Execute(context.Background(), "bash", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panicked")
	assert.Contains(t, result.Error, "boom")
}

func TestDispatcherCheckpointBeforeMutatingTool(t *testing.T) {
	cp := &fakeCheckpointer{}
	tool := &fakeTool{
		name:     "write",
		mutating: true,
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			// The checkpoint must land before the tool body runs.
			require.Len(t, cp.calls, 1)
			return "ok", nil
		},
	}
	d := NewDispatcher(newFakeResolver(tool), cp, nil)
	result := d.Execute(context.Background(), "write", map[string]any{"path": "a.txt"})

	assert.True(t, result.Success)
	require.Len(t, cp.calls, 1)
	assert.Contains(t, cp.calls[0], "before write")
	assert.Contains(t, cp.calls[0], "path=a.txt")
}

func TestDispatcherTracksTargetBeforeCheckpoint(t *testing.T) {
	cp := &fakeCheckpointer{}
	tool := &touchingTool{
		fakeTool: fakeTool{
			name:     "write",
			mutating: true,
			execute: func(ctx context.Context, args map[string]any) (string, error) {
				return "ok", nil
			},
		},
		paths: []string{"/work/a.txt"},
	}
	d := NewDispatcher(newFakeResolver(tool), cp, nil)
	result := d.Execute(context.Background(), "write", map[string]any{"path": "a.txt"})

	assert.True(t, result.Success)
	require.Equal(t, []string{"/work/a.txt"}, cp.tracked)
	// The target was registered before the snapshot fired.
	assert.Equal(t, 1, cp.trackedAtAuto)
}

func TestDispatcherCheckpointFailureDoesNotBlockTool(t *testing.T) {
	cp := &fakeCheckpointer{err: errors.New("disk full")}
	tool := &fakeTool{
		name:     "write",
		mutating: true,
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
	d := NewDispatcher(newFakeResolver(tool), cp, nil)
	result := d.Execute(context.Background(), "write", nil)

	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Output)
}

func TestDispatcherNoCheckpointForReadOnlyTool(t *testing.T) {
	cp := &fakeCheckpointer{}
	tool := &fakeTool{
		name: "read",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
	d := NewDispatcher(newFakeResolver(tool), cp, nil)
	d.Execute(context.Background(), "read", nil)

	assert.Empty(t, cp.calls)
}

func TestDispatcherRecordsChangeOnSuccess(t *testing.T) {
	journal := &fakeJournal{}
	tool := &fakeTool{
		name:     "edit",
		mutating: true,
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "edited", nil
		},
	}
	d := NewDispatcher(newFakeResolver(tool), nil, journal)
	d.Execute(context.Background(), "edit", map[string]any{"path": "main.go"})

	require.Len(t, journal.entries, 1)
	assert.Contains(t, journal.entries[0], "edit")
	assert.Contains(t, journal.entries[0], "main.go")
}

func TestDispatcherNoChangeRecordOnFailure(t *testing.T) {
	journal := &fakeJournal{}
	tool := &fakeTool{
		name:     "edit",
		mutating: true,
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("old_string not found")
		},
	}
	d := NewDispatcher(newFakeResolver(tool), nil, journal)
	d.Execute(context.Background(), "edit", nil)

	assert.Empty(t, journal.entries)
}
