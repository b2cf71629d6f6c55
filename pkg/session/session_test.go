package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-dev/aide/pkg/agent"
)

func TestSessionAppendAndLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())

	require.NoError(t, s.Append(
		agent.NewUserMessage("hello"),
		agent.NewAssistantMessage("hi there", nil),
	))

	loaded, err := Load(s.Path())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), loaded.ID())

	msgs := loaded.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, agent.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi there", msgs[1].Content)
}

func TestSessionPreservesToolCalls(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	call := agent.ToolCallRequest{ID: "c1", Name: "read", RawArgs: `{"path":"a.txt"}`}
	require.NoError(t, s.Append(
		agent.NewAssistantMessage("", []agent.ToolCallRequest{call}),
		agent.NewToolResultMessage("c1", "read", agent.ToolExecutionResult{Success: true, Output: "contents"}),
	))

	loaded, err := Load(s.Path())
	require.NoError(t, err)
	msgs := loaded.Messages()
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "read", msgs[0].ToolCalls[0].Name)
	assert.Equal(t, agent.RoleTool, msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
}

func TestLatestPicksNewestSession(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, first.Append(agent.NewUserMessage("old")))

	time.Sleep(20 * time.Millisecond)
	second, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, second.Append(agent.NewUserMessage("new")))

	latest, err := Latest(dir)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID(), latest.ID())
}

func TestLatestNoSessions(t *testing.T) {
	latest, err := Latest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestLoadToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append(agent.NewUserMessage("intact")))

	// Simulate a crash mid-write.
	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"message","mess`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	loaded, err := Load(s.Path())
	require.NoError(t, err)
	msgs := loaded.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "intact", msgs[0].Content)
}

func TestLoadRejectsMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bogus.jsonl"
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"message"}`+"\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
