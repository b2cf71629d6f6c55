package compact

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-dev/aide/pkg/agent"
	"github.com/aide-dev/aide/pkg/llm"
)

// summaryProvider answers every ChatStream call with a fixed summary text.
type summaryProvider struct {
	mu       sync.Mutex
	summary  string
	err      error
	requests []llm.Request
}

func (p *summaryProvider) ChatStream(ctx context.Context, req llm.Request) *llm.EventStream[llm.Event, llm.Message] {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	stream := llm.NewEventStream[llm.Event, llm.Message](
		func(ev llm.Event) bool {
			_, done := ev.(llm.DoneEvent)
			_, failed := ev.(llm.ErrorEvent)
			return done || failed
		},
		func(ev llm.Event) llm.Message { return llm.Message{} },
	)
	if p.err != nil {
		stream.Push(llm.ErrorEvent{Err: p.err})
		return stream
	}
	stream.Push(llm.TextDeltaEvent{Delta: p.summary})
	stream.Push(llm.DoneEvent{StopReason: "stop"})
	return stream
}

func history(n int) []agent.Message {
	msgs := []agent.Message{agent.NewSystemMessage("you are a coding assistant")}
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			msgs = append(msgs, agent.NewUserMessage("do something"))
		} else {
			msgs = append(msgs, agent.NewAssistantMessage("doing it", nil))
		}
	}
	return msgs
}

func TestCompactStructure(t *testing.T) {
	provider := &summaryProvider{summary: "We fixed the parser and touched main.go."}
	c := NewCompactor(&Config{KeepRecent: 4, MaxSummaryInputChars: 24000, ReductionFactor: 0.3}, provider)

	msgs := history(20)
	result, err := c.Compact(context.Background(), msgs)
	require.NoError(t, err)

	// System message survives untouched in position 0, the summary takes
	// position 1, and the tail leads with a user message.
	require.GreaterOrEqual(t, len(result), 3)
	assert.Equal(t, agent.RoleSystem, result[0].Role)
	assert.Equal(t, msgs[0].Content, result[0].Content)
	assert.Equal(t, agent.RoleAssistant, result[1].Role)
	assert.Contains(t, result[1].Content, "[Conversation summary]")
	assert.Contains(t, result[1].Content, "We fixed the parser")
	assert.Equal(t, agent.RoleUser, result[2].Role)

	assert.Less(t, len(result), len(msgs))
}

func TestCompactTailTrimsToUserMessage(t *testing.T) {
	provider := &summaryProvider{summary: "summary"}
	c := NewCompactor(&Config{KeepRecent: 3, MaxSummaryInputChars: 24000, ReductionFactor: 0.3}, provider)

	// Arrange the naive split point to land on an assistant message, so
	// trimming must advance it.
	msgs := []agent.Message{
		agent.NewSystemMessage("sys"),
		agent.NewUserMessage("u1"),
		agent.NewAssistantMessage("a1", nil),
		agent.NewUserMessage("u2"),
		agent.NewAssistantMessage("a2", nil),
		agent.NewAssistantMessage("a3", nil),
		agent.NewUserMessage("u3"),
		agent.NewAssistantMessage("a4", nil),
	}

	result, err := c.Compact(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, agent.RoleUser, result[2].Role)
	assert.Equal(t, "u3", result[2].Content)
}

func TestCompactNothingToCompactShortHistory(t *testing.T) {
	provider := &summaryProvider{summary: "summary"}
	c := NewCompactor(DefaultConfig(), provider)

	_, err := c.Compact(context.Background(), history(4))
	assert.ErrorIs(t, err, ErrNothingToCompact)
	assert.Empty(t, provider.requests)
}

func TestCompactNothingToCompactNoUserInTail(t *testing.T) {
	provider := &summaryProvider{summary: "summary"}
	c := NewCompactor(&Config{KeepRecent: 2, MaxSummaryInputChars: 24000, ReductionFactor: 0.3}, provider)

	// No user message at or after the split point: trimming exhausts the
	// tail.
	msgs := []agent.Message{
		agent.NewSystemMessage("sys"),
		agent.NewUserMessage("u1"),
		agent.NewAssistantMessage("a1", nil),
		agent.NewAssistantMessage("a2", nil),
		agent.NewAssistantMessage("a3", nil),
	}
	_, err := c.Compact(context.Background(), msgs)
	assert.ErrorIs(t, err, ErrNothingToCompact)
}

func TestCompactSummarizationFailure(t *testing.T) {
	provider := &summaryProvider{err: errors.New("rate limited")}
	c := NewCompactor(&Config{KeepRecent: 4, MaxSummaryInputChars: 24000, ReductionFactor: 0.3}, provider)

	_, err := c.Compact(context.Background(), history(20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarization failed")
}

func TestCompactInputTruncatedToCharBudget(t *testing.T) {
	provider := &summaryProvider{summary: "summary"}
	c := NewCompactor(&Config{KeepRecent: 2, MaxSummaryInputChars: 500, ReductionFactor: 0.3}, provider)

	big := strings.Repeat("x", 2000)
	msgs := []agent.Message{
		agent.NewSystemMessage("sys"),
		agent.NewUserMessage(big),
		agent.NewAssistantMessage(big, nil),
		agent.NewUserMessage("recent question"),
		agent.NewAssistantMessage("recent answer", nil),
	}
	_, err := c.Compact(context.Background(), msgs)
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	prompt := provider.requests[0].Messages[1].Content
	// Instruction plus at most the char budget of rendered span.
	assert.LessOrEqual(t, len(prompt), len(summaryInstruction)+2+500)
}

func TestShouldCompactGate(t *testing.T) {
	c := NewCompactor(&Config{MaxContextTokens: 1000, Threshold: 0.8, KeepRecent: 4, ReductionFactor: 0.3}, nil)

	assert.False(t, c.ShouldCompact(nil, agent.TokenUsage{PromptTokens: 700}))
	assert.True(t, c.ShouldCompact(nil, agent.TokenUsage{PromptTokens: 900}))
}

func TestShouldCompactFallsBackToEstimate(t *testing.T) {
	c := NewCompactor(&Config{MaxContextTokens: 100, Threshold: 0.5, KeepRecent: 4, ReductionFactor: 0.3}, nil)

	// No usage reported yet; the char-based estimate must carry the gate.
	msgs := []agent.Message{agent.NewUserMessage(strings.Repeat("word ", 200))}
	assert.True(t, c.ShouldCompact(msgs, agent.TokenUsage{}))
	assert.False(t, c.ShouldCompact(nil, agent.TokenUsage{}))
}

func TestReduceEstimate(t *testing.T) {
	c := NewCompactor(&Config{ReductionFactor: 0.3}, nil)
	assert.Equal(t, 300, c.ReduceEstimate(1000))
}

func TestRenderSpanElidesToolOutput(t *testing.T) {
	msgs := []agent.Message{
		agent.NewUserMessage("list the files"),
		agent.NewAssistantMessage("", []agent.ToolCallRequest{{ID: "c1", Name: "list_dir"}}),
		agent.NewToolResultMessage("c1", "list_dir", agent.ToolExecutionResult{
			Success: true,
			Output:  "first line\nsecond line\nthird line",
		}),
	}
	rendered := RenderSpan(msgs)
	assert.Contains(t, rendered, "list the files")
	assert.Contains(t, rendered, "Assistant called list_dir")
	assert.Contains(t, rendered, "first line")
	assert.NotContains(t, rendered, "second line")
}
