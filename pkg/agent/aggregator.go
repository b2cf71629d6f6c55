package agent

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/aide-dev/aide/pkg/llm"
)

// Aggregator reconstructs one complete assistant message from the provider's
// incremental event stream. Text fragments accumulate; tool-call deltas merge
// by stream index; usage snapshots add to the running total.
type Aggregator struct {
	text       strings.Builder
	builders   map[int]*callBuilder
	usage      llm.Usage
	stopReason string
}

// callBuilder accumulates one tool call identified by its stream index.
// The index is the call's identity until finalization.
type callBuilder struct {
	id   string
	name string
	args strings.Builder
}

// NewAggregator creates an empty aggregator for one assistant response.
func NewAggregator() *Aggregator {
	return &Aggregator{builders: make(map[int]*callBuilder)}
}

// Feed consumes one stream event. Unknown event kinds are ignored.
func (a *Aggregator) Feed(event llm.Event) {
	switch e := event.(type) {
	case llm.TextDeltaEvent:
		a.text.WriteString(e.Delta)

	case llm.ToolCallDeltaEvent:
		b, ok := a.builders[e.Index]
		if !ok {
			b = &callBuilder{}
			a.builders[e.Index] = b
		}
		// Deltas may repeat id and name across chunks; the last
		// non-empty value wins. Argument text always concatenates.
		if e.ToolCall.ID != "" {
			b.id = e.ToolCall.ID
		}
		if e.ToolCall.Function.Name != "" {
			b.name = e.ToolCall.Function.Name
		}
		if e.ToolCall.Function.Arguments != "" {
			b.args.WriteString(e.ToolCall.Function.Arguments)
		}

	case llm.DoneEvent:
		a.usage.PromptTokens += e.Usage.PromptTokens
		a.usage.CompletionTokens += e.Usage.CompletionTokens
		a.usage.TotalTokens += e.Usage.TotalTokens
		a.stopReason = e.StopReason
	}
}

// Finalize returns the accumulated text and the finalized tool-call
// requests in stream-index order. An argument buffer that fails to parse
// yields an empty argument set; the call is still surfaced so the model can
// be told its arguments were malformed.
func (a *Aggregator) Finalize() (string, []ToolCallRequest) {
	if len(a.builders) == 0 {
		return a.text.String(), nil
	}

	indexes := make([]int, 0, len(a.builders))
	for idx := range a.builders {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCallRequest, 0, len(indexes))
	for _, idx := range indexes {
		b := a.builders[idx]
		raw := b.args.String()
		args := make(map[string]any)
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = make(map[string]any)
			}
		}
		calls = append(calls, ToolCallRequest{
			ID:      b.id,
			Name:    b.name,
			Args:    args,
			RawArgs: raw,
		})
	}
	return a.text.String(), calls
}

// Usage returns the usage totals observed so far.
func (a *Aggregator) Usage() llm.Usage { return a.usage }

// StopReason returns the finish reason of the terminal event, if any.
func (a *Aggregator) StopReason() string { return a.stopReason }

// Text returns the text accumulated so far, without finalizing.
func (a *Aggregator) Text() string { return a.text.String() }
