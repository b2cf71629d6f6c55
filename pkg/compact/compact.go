package compact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aide-dev/aide/pkg/agent"
	"github.com/aide-dev/aide/pkg/llm"
)

// ErrNothingToCompact means the history has no compactable span right now.
// The engine treats it as "skip this turn", not as a failure.
var ErrNothingToCompact = errors.New("nothing to compact")

// summaryInstruction is the fixed summarization prompt. The span text is
// appended below it.
const summaryInstruction = `Summarize the conversation below in 3-5 points.
Preserve decisions that were made and files that were touched.
Keep the summary under 300 words.`

// Config contains compaction configuration.
type Config struct {
	// MaxContextTokens is the provider's context window size.
	MaxContextTokens int `yaml:"maxContextTokens" json:"maxContextTokens"`
	// Threshold is the fraction of MaxContextTokens at which compaction
	// fires.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// KeepRecent is the length of the retained tail before trimming.
	KeepRecent int `yaml:"keepRecent" json:"keepRecent"`
	// MaxSummaryInputChars bounds the rendered span sent to the provider.
	MaxSummaryInputChars int `yaml:"maxSummaryInputChars" json:"maxSummaryInputChars"`
	// ReductionFactor is the heuristic multiplier applied to the prompt
	// token estimate after compaction. Approximate, never recomputed from
	// real usage.
	ReductionFactor float64 `yaml:"reductionFactor" json:"reductionFactor"`
}

// DefaultConfig returns the default compaction configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxContextTokens:     128000,
		Threshold:            0.8,
		KeepRecent:           6,
		MaxSummaryInputChars: 24000,
		ReductionFactor:      0.3,
	}
}

// Compactor replaces an aging span of history with a model-generated
// summary. It implements agent.Compactor.
type Compactor struct {
	cfg      *Config
	provider agent.Provider
}

// NewCompactor creates a compactor that summarizes through the given
// provider.
func NewCompactor(cfg *Config, provider agent.Provider) *Compactor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Compactor{cfg: cfg, provider: provider}
}

// ShouldCompact reports whether the prompt-token estimate exceeds the
// configured fraction of the context window. When the provider has not
// reported usage yet, a character-based estimate stands in.
func (c *Compactor) ShouldCompact(messages []agent.Message, usage agent.TokenUsage) bool {
	limit := int(float64(c.cfg.MaxContextTokens) * c.cfg.Threshold)
	estimate := usage.PromptTokens
	if estimate == 0 {
		estimate = EstimateTokens(messages)
	}
	return estimate > limit
}

// Compact splits the history into [system] + [old span] + [recent tail],
// summarizes the old span with one dedicated provider call, and returns
// [system, synthetic summary, tail]. The tail is trimmed forward until it
// starts with a user message; if trimming empties it, ErrNothingToCompact
// is returned and the caller skips compaction for this turn.
func (c *Compactor) Compact(ctx context.Context, messages []agent.Message) ([]agent.Message, error) {
	var head []agent.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == agent.RoleSystem {
		head = messages[:1]
		rest = messages[1:]
	}

	if len(rest) <= c.cfg.KeepRecent {
		return nil, ErrNothingToCompact
	}

	split := len(rest) - c.cfg.KeepRecent
	// A tail must never start mid tool-response: advance past leading
	// tool and assistant messages until a user message leads it.
	for split < len(rest) && rest[split].Role != agent.RoleUser {
		split++
	}
	if split >= len(rest) {
		return nil, ErrNothingToCompact
	}
	if split == 0 {
		return nil, ErrNothingToCompact
	}

	old := rest[:split]
	tail := rest[split:]

	rendered := RenderSpan(old)
	if len(rendered) > c.cfg.MaxSummaryInputChars {
		rendered = rendered[:c.cfg.MaxSummaryInputChars]
	}

	summary, err := c.summarize(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	slog.Info("[Compact] span summarized", "messages", len(old), "summaryChars", len(summary))

	result := make([]agent.Message, 0, len(head)+1+len(tail))
	result = append(result, head...)
	result = append(result, agent.NewAssistantMessage("[Conversation summary]\n\n"+summary, nil))
	result = append(result, tail...)
	return result, nil
}

// ReduceEstimate applies the fixed heuristic reduction to the prompt-token
// counter.
func (c *Compactor) ReduceEstimate(promptTokens int) int {
	return int(float64(promptTokens) * c.cfg.ReductionFactor)
}

// summarize issues the dedicated summarization call and collects the text.
func (c *Compactor) summarize(ctx context.Context, rendered string) (string, error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You summarize coding-assistant conversations."},
			{Role: "user", Content: summaryInstruction + "\n\n" + rendered},
		},
	}

	stream := c.provider.ChatStream(ctx, req)

	var b strings.Builder
	for item := range stream.Iterator(ctx) {
		switch ev := item.Value.(type) {
		case llm.TextDeltaEvent:
			b.WriteString(ev.Delta)
		case llm.ErrorEvent:
			return "", ev.Err
		}
	}

	summary := strings.TrimSpace(b.String())
	if summary == "" {
		return "", errors.New("empty summary generated")
	}
	return summary, nil
}

// RenderSpan renders a message span as plain text for summarization. Tool
// results are elided to their first line; the summary cares about what was
// done, not full tool output.
func RenderSpan(messages []agent.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleUser:
			b.WriteString("User: " + msg.Content + "\n")
		case agent.RoleAssistant:
			if msg.Content != "" {
				b.WriteString("Assistant: " + msg.Content + "\n")
			}
			for _, tc := range msg.ToolCalls {
				b.WriteString(fmt.Sprintf("Assistant called %s\n", tc.Name))
			}
		case agent.RoleTool:
			line := msg.Content
			if i := strings.IndexByte(line, '\n'); i >= 0 {
				line = line[:i]
			}
			if len(line) > 120 {
				line = line[:120] + "..."
			}
			b.WriteString(fmt.Sprintf("[%s] %s\n", msg.ToolName, line))
		}
	}
	return b.String()
}

// EstimateTokens gives a rough token estimate for a message span. Roughly
// four characters per token plus per-message overhead.
func EstimateTokens(messages []agent.Message) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content) + 50
		for _, tc := range msg.ToolCalls {
			totalChars += len(tc.Name) + len(tc.RawArgs)
		}
	}
	return totalChars / 4
}
