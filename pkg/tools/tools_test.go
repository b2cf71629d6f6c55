package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupAndSchemas(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()
	r.Register(NewReadTool(dir))
	r.Register(NewWriteTool(dir))
	r.Register(NewBashTool(dir))

	_, ok := r.Lookup("read")
	assert.True(t, ok)
	_, ok = r.Lookup("frobnicate")
	assert.False(t, ok)

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		assert.Equal(t, "function", s.Type)
		names = append(names, s.Function.Name)
	}
	assert.Equal(t, []string{"bash", "read", "write"}, names)
}

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteTool(dir)
	read := NewReadTool(dir)
	ctx := context.Background()

	out, err := write.Execute(ctx, map[string]any{
		"path":    "sub/hello.txt",
		"content": "hello world\n",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "hello.txt")

	content, err := read.Execute(ctx, map[string]any{"path": "sub/hello.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", content)
}

func TestTouchedPaths(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteTool(dir)
	edit := NewEditTool(dir)

	assert.Equal(t, []string{filepath.Join(dir, "sub", "a.txt")},
		write.TouchedPaths(map[string]any{"path": "sub/a.txt"}))
	assert.Equal(t, []string{filepath.Join(dir, "b.go")},
		edit.TouchedPaths(map[string]any{"path": "b.go"}))
	assert.Nil(t, write.TouchedPaths(map[string]any{}))
	assert.Nil(t, edit.TouchedPaths(map[string]any{"path": ""}))
}

func TestReadMissingFile(t *testing.T) {
	read := NewReadTool(t.TempDir())
	_, err := read.Execute(context.Background(), map[string]any{"path": "nope.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestReadRejectsBinary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin"), []byte{0x7f, 0x45, 0x4c, 0x46, 0x00, 0x01}, 0o644))

	read := NewReadTool(dir)
	_, err := read.Execute(context.Background(), map[string]any{"path": "bin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary")
}

func TestEditExactReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("func old() {}\n"), 0o644))

	edit := NewEditTool(dir)
	_, err := edit.Execute(context.Background(), map[string]any{
		"path":       "main.go",
		"old_string": "func old()",
		"new_string": "func renamed()",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "func renamed() {}\n", string(data))
}

func TestEditRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("dup\ndup\n"), 0o644))

	edit := NewEditTool(dir)
	_, err := edit.Execute(context.Background(), map[string]any{
		"path":       "a.txt",
		"old_string": "dup",
		"new_string": "other",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be unique")
}

func TestEditMissingOldString(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content"), 0o644))

	edit := NewEditTool(dir)
	_, err := edit.Execute(context.Background(), map[string]any{
		"path":       "a.txt",
		"old_string": "absent",
		"new_string": "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestBashCapturesOutput(t *testing.T) {
	bash := NewBashTool(t.TempDir())
	out, err := bash.Execute(context.Background(), map[string]any{"command": "echo hi; echo err >&2"})
	require.NoError(t, err)
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, "err")
}

func TestBashFailureIncludesOutput(t *testing.T) {
	bash := NewBashTool(t.TempDir())
	_, err := bash.Execute(context.Background(), map[string]any{"command": "echo diag; exit 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diag")
}

func TestBashRunsInWorkDir(t *testing.T) {
	dir := t.TempDir()
	bash := NewBashTool(dir)
	out, err := bash.Execute(context.Background(), map[string]any{"command": "pwd"})
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{dir, resolved}, strings.TrimSpace(out))
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	list := NewListDirTool(dir)
	out, err := list.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	// Directories first, then files, each group sorted.
	assert.Equal(t, "src/\ngo.mod\nmain.go", out)
}

func TestListDirEmpty(t *testing.T) {
	list := NewListDirTool(t.TempDir())
	out, err := list.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "(empty directory)", out)
}

func TestGrepFindsMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc Target() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package main\n"), 0o644))

	grep := NewGrepTool(dir)
	out, err := grep.Execute(context.Background(), map[string]any{"pattern": `func Target`})
	require.NoError(t, err)
	assert.Contains(t, out, "a.go:2")
	assert.NotContains(t, out, "b.go")
}

func TestGrepNoMatches(t *testing.T) {
	grep := NewGrepTool(t.TempDir())
	out, err := grep.Execute(context.Background(), map[string]any{"pattern": "absent"})
	require.NoError(t, err)
	assert.Equal(t, "(no matches)", out)
}

func TestGrepInvalidPattern(t *testing.T) {
	grep := NewGrepTool(t.TempDir())
	_, err := grep.Execute(context.Background(), map[string]any{"pattern": "("})
	require.Error(t, err)
}

func TestMutatingFlags(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, NewReadTool(dir).Mutating())
	assert.False(t, NewListDirTool(dir).Mutating())
	assert.False(t, NewGrepTool(dir).Mutating())
	assert.True(t, NewWriteTool(dir).Mutating())
	assert.True(t, NewEditTool(dir).Mutating())
	assert.True(t, NewBashTool(dir).Mutating())
}
