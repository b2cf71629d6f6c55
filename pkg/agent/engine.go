package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aide-dev/aide/pkg/llm"
)

// State is the engine's lifecycle state.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingModel     State = "awaiting_model"
	StateStreamingResponse State = "streaming_response"
	StateDispatchingTools  State = "dispatching_tools"
	StateExhausted         State = "exhausted"
)

// DefaultMaxIterations caps provider calls per user turn.
const DefaultMaxIterations = 15

// ErrEngineBusy is returned when a turn is already in flight.
var ErrEngineBusy = errors.New("engine is busy")

// Provider is the LLM collaborator consumed by the engine. llm.Client
// implements it; tests substitute scripted streams.
type Provider interface {
	ChatStream(ctx context.Context, req llm.Request) *llm.EventStream[llm.Event, llm.Message]
}

// Compactor decides when and how to shrink the history. The engine invokes
// it conditionally after each completed turn.
type Compactor interface {
	ShouldCompact(messages []Message, usage TokenUsage) bool
	Compact(ctx context.Context, messages []Message) ([]Message, error)
	// ReduceEstimate maps the pre-compaction prompt-token estimate to the
	// post-compaction one. A fixed heuristic, not a recomputation.
	ReduceEstimate(promptTokens int) int
}

// Config holds engine configuration.
type Config struct {
	MaxIterations int
	SystemPrompt  string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{MaxIterations: DefaultMaxIterations}
}

// Engine is the top-level conversation state machine. It owns the message
// history and token accounting, drives iterations against the provider, and
// composes the aggregator, dispatcher and compactor.
//
// One engine serves one conversation against one working directory; callers
// must not share a working directory between concurrent engines.
type Engine struct {
	mu       sync.Mutex
	provider Provider
	resolver ToolResolver
	dispatch *Dispatcher
	compact  Compactor
	cfg      Config

	messages []Message
	usage    TokenUsage
	state    State

	busy chan struct{}
}

// NewEngine creates an engine with explicitly injected collaborators.
// compactor may be nil to disable compaction.
func NewEngine(provider Provider, resolver ToolResolver, dispatcher *Dispatcher, compactor Compactor, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	e := &Engine{
		provider: provider,
		resolver: resolver,
		dispatch: dispatcher,
		compact:  compactor,
		cfg:      cfg,
		state:    StateIdle,
		busy:     make(chan struct{}, 1),
	}
	if cfg.SystemPrompt != "" {
		e.messages = append(e.messages, NewSystemMessage(cfg.SystemPrompt))
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// History returns a copy of the conversation history.
func (e *Engine) History() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := make([]Message, len(e.messages))
	copy(h, e.messages)
	return h
}

// Usage returns the running token counters.
func (e *Engine) Usage() TokenUsage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage
}

// Reset clears the history back to the system message and zeroes the
// counters.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = e.messages[:0]
	if e.cfg.SystemPrompt != "" {
		e.messages = append(e.messages, NewSystemMessage(e.cfg.SystemPrompt))
	}
	e.usage = TokenUsage{}
	e.state = StateIdle
}

// CompactNow forces one compaction immediately, bypassing the token gate.
// It fails with ErrEngineBusy while a turn is in flight.
func (e *Engine) CompactNow(ctx context.Context) error {
	if e.compact == nil {
		return nil
	}
	select {
	case e.busy <- struct{}{}:
	default:
		return ErrEngineBusy
	}
	defer func() { <-e.busy }()

	compacted, err := e.compact.Compact(ctx, e.History())
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.messages = compacted
	e.usage.PromptTokens = e.compact.ReduceEstimate(e.usage.PromptTokens)
	e.mu.Unlock()
	return nil
}

// Submit starts one user turn. It returns the turn's event stream, driven
// by the engine's worker goroutine; the caller consumes it without blocking
// its own loop. A second Submit while a turn is in flight fails with
// ErrEngineBusy.
func (e *Engine) Submit(ctx context.Context, userInput string) (*llm.EventStream[Event, []Message], error) {
	select {
	case e.busy <- struct{}{}:
	default:
		return nil, ErrEngineBusy
	}

	stream := llm.NewEventStream[Event, []Message](
		func(ev Event) bool { return ev.Type == EventTurnComplete },
		func(ev Event) []Message { return ev.Messages },
	)

	go func() {
		defer func() { <-e.busy }()
		newMessages := e.runTurn(ctx, userInput, stream)
		stream.Push(newTurnCompleteEvent(newMessages))
		stream.End(newMessages)
	}()

	return stream, nil
}

// runTurn drives one user turn through the iteration loop and returns the
// messages appended during it.
func (e *Engine) runTurn(ctx context.Context, userInput string, stream *llm.EventStream[Event, []Message]) []Message {
	stream.Push(newEvent(EventTurnStart))

	var newMessages []Message
	appendMsg := func(m Message) {
		e.mu.Lock()
		e.messages = append(e.messages, m)
		e.mu.Unlock()
		newMessages = append(newMessages, m)
	}

	// A prior turn interrupted mid-dispatch leaves a tool message last.
	// Bridge with a synthetic assistant message so role alternation holds.
	e.mu.Lock()
	needBridge := len(e.messages) > 0 && e.messages[len(e.messages)-1].Role == RoleTool
	e.mu.Unlock()
	if needBridge {
		bridge := NewAssistantMessage("(resuming after interruption)", nil)
		appendMsg(bridge)
		stream.Push(newMessageEvent(EventAssistantEnd, bridge))
	}

	user := NewUserMessage(userInput)
	appendMsg(user)
	stream.Push(newMessageEvent(EventUserMessage, user))

	exhausted := true
	for iteration := 0; iteration < e.cfg.MaxIterations; iteration++ {
		// Cancellation is honoured only at iteration boundaries.
		if ctx.Err() != nil {
			stream.Push(newNoticeEvent("cancelled"))
			exhausted = false
			break
		}

		assistantMsg, calls, provErr := e.streamResponse(ctx, stream)
		appendMsg(assistantMsg)
		stream.Push(newMessageEvent(EventAssistantEnd, assistantMsg))
		stream.Push(newUsageEvent(e.Usage()))

		if provErr != nil {
			// The partial content was already made final; no retry.
			slog.Error("[Engine] provider stream failed", "error", provErr)
			exhausted = false
			break
		}

		if len(calls) == 0 {
			exhausted = false
			break
		}

		e.setState(StateDispatchingTools)
		cancelled := false
		for _, call := range calls {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			stream.Push(newToolStartEvent(call.ID, call.Name))
			result := e.dispatch.Execute(ctx, call.Name, call.Args)
			toolMsg := NewToolResultMessage(call.ID, call.Name, result)
			appendMsg(toolMsg)
			stream.Push(newToolEndEvent(call.ID, call.Name, result))
		}
		if cancelled {
			stream.Push(newNoticeEvent("cancelled"))
			exhausted = false
			break
		}
	}

	if exhausted {
		e.setState(StateExhausted)
		notice := fmt.Sprintf("iteration limit reached (%d); stopping this turn", e.cfg.MaxIterations)
		slog.Warn("[Engine] " + notice)
		stream.Push(newNoticeEvent(notice))
	}

	e.maybeCompact(ctx, stream)

	if !exhausted {
		e.setState(StateIdle)
	}
	return newMessages
}

// streamResponse performs one provider call, forwards text deltas for live
// display, and returns the finalized assistant message. A provider error is
// surfaced inline as an error fragment appended to the partial content,
// which is then treated as final.
func (e *Engine) streamResponse(ctx context.Context, stream *llm.EventStream[Event, []Message]) (Message, []ToolCallRequest, error) {
	e.setState(StateAwaitingModel)

	req := llm.Request{Messages: ToWire(e.History())}
	if e.resolver != nil {
		req.Tools = e.resolver.Schemas()
	}

	provStream := e.provider.ChatStream(ctx, req)
	e.setState(StateStreamingResponse)

	agg := NewAggregator()
	var provErr error
	for item := range provStream.Iterator(ctx) {
		switch ev := item.Value.(type) {
		case llm.TextDeltaEvent:
			agg.Feed(ev)
			stream.Push(newDeltaEvent(ev.Delta))
		case llm.ErrorEvent:
			provErr = ev.Err
		default:
			agg.Feed(item.Value)
		}
	}

	text, calls := agg.Finalize()
	e.mu.Lock()
	e.usage.Add(agg.Usage())
	e.mu.Unlock()

	if provErr != nil {
		fragment := fmt.Sprintf("\n[provider error: %v]", provErr)
		stream.Push(newErrorFragmentEvent(fragment))
		// The turn ends with whatever was accumulated; tool calls from a
		// broken stream are not dispatched.
		return NewAssistantMessage(text+fragment, nil), nil, provErr
	}

	return NewAssistantMessage(text, calls), calls, nil
}

// maybeCompact runs the compactor after a completed turn when the token
// estimate is over budget. Any failure skips compaction for this turn; the
// conversation continues uncompacted.
func (e *Engine) maybeCompact(ctx context.Context, stream *llm.EventStream[Event, []Message]) {
	if e.compact == nil {
		return
	}

	e.mu.Lock()
	messages := make([]Message, len(e.messages))
	copy(messages, e.messages)
	usage := e.usage
	e.mu.Unlock()

	if !e.compact.ShouldCompact(messages, usage) {
		return
	}

	before := len(messages)
	stream.Push(newCompactionEvent(EventCompactStart, CompactionInfo{Before: before}))

	compacted, err := e.compact.Compact(ctx, messages)
	if err != nil {
		slog.Warn("[Engine] compaction skipped", "error", err)
		stream.Push(newCompactionEvent(EventCompactEnd, CompactionInfo{Before: before, Error: err.Error()}))
		return
	}

	e.mu.Lock()
	e.messages = compacted
	e.usage.PromptTokens = e.compact.ReduceEstimate(e.usage.PromptTokens)
	e.mu.Unlock()

	slog.Info("[Engine] history compacted", "before", before, "after", len(compacted))
	stream.Push(newCompactionEvent(EventCompactEnd, CompactionInfo{Before: before, After: len(compacted)}))
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}
