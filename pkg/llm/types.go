package llm

import "sync"

// Model identifies a provider model endpoint.
type Model struct {
	ID       string `yaml:"id" json:"id"`
	Provider string `yaml:"provider" json:"provider"`
	BaseURL  string `yaml:"baseUrl" json:"baseUrl"`
}

// Message is a chat message in provider wire format.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its raw JSON argument text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes a tool made available to the model.
type ToolSchema struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function portion of a tool schema.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token counts for one completed response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is one streaming chat request.
type Request struct {
	Messages []Message
	Tools    []ToolSchema
}

// Event is an event from the provider stream.
type Event interface {
	EventType() string
}

// StartEvent is emitted when the provider starts generating.
type StartEvent struct{}

func (e StartEvent) EventType() string { return "start" }

// TextDeltaEvent carries one text fragment.
type TextDeltaEvent struct {
	Delta string
}

func (e TextDeltaEvent) EventType() string { return "text_delta" }

// ToolCallDeltaEvent carries one tool-call fragment tagged with its stream
// index. Any of the call's fields may be empty in a given fragment.
type ToolCallDeltaEvent struct {
	Index    int
	ToolCall ToolCall
}

func (e ToolCallDeltaEvent) EventType() string { return "tool_call_delta" }

// DoneEvent is the terminal event of a successful stream. Usage may be
// reported only here and must not be assumed to arrive earlier.
type DoneEvent struct {
	Usage      Usage
	StopReason string
}

func (e DoneEvent) EventType() string { return "done" }

// ErrorEvent terminates the stream on transport or provider failure.
type ErrorEvent struct {
	Err error
}

func (e ErrorEvent) EventType() string { return "error" }

// PartialMessage accumulates an assistant message as deltas arrive.
type PartialMessage struct {
	mu        sync.Mutex
	content   []byte
	toolCalls map[int]*ToolCall
}

// NewPartialMessage creates an empty partial message.
func NewPartialMessage() *PartialMessage {
	return &PartialMessage{toolCalls: make(map[int]*ToolCall)}
}

// AppendText appends a text fragment.
func (pm *PartialMessage) AppendText(delta string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.content = append(pm.content, delta...)
}

// AppendToolCall merges a tool-call fragment by stream index. A non-empty
// id, type or name overwrites the previous value; argument text concatenates.
func (pm *PartialMessage) AppendToolCall(index int, tc ToolCall) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	existing, ok := pm.toolCalls[index]
	if !ok {
		copied := tc
		pm.toolCalls[index] = &copied
		return
	}
	if tc.ID != "" {
		existing.ID = tc.ID
	}
	if tc.Type != "" {
		existing.Type = tc.Type
	}
	if tc.Function.Name != "" {
		existing.Function.Name = tc.Function.Name
	}
	if tc.Function.Arguments != "" {
		existing.Function.Arguments += tc.Function.Arguments
	}
}

// ToMessage converts the partial message to a finalized assistant Message.
func (pm *PartialMessage) ToMessage() Message {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	msg := Message{
		Role:    "assistant",
		Content: string(pm.content),
	}
	if len(pm.toolCalls) == 0 {
		return msg
	}
	for i := 0; i < len(pm.toolCalls); i++ {
		if tc, ok := pm.toolCalls[i]; ok {
			msg.ToolCalls = append(msg.ToolCalls, *tc)
		}
	}
	return msg
}
