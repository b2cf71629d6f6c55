package agent

import (
	"encoding/json"
	"time"

	"github.com/aide-dev/aide/pkg/llm"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversation history. History is append-only
// except during explicit reset or compaction.
type Message struct {
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	ToolCalls   []ToolCallRequest `json:"toolCalls,omitempty"`
	ToolCallID  string            `json:"toolCallId,omitempty"`
	ToolName    string            `json:"toolName,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	Timestamp   int64             `json:"timestamp"`
}

// ToolCallRequest is a finalized tool invocation request from the model.
// RawArgs keeps the argument text exactly as streamed; Args is the parsed
// form (empty when the buffer did not parse).
type ToolCallRequest struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Args    map[string]any `json:"args"`
	RawArgs string         `json:"rawArgs,omitempty"`
}

// ToolExecutionResult is the outcome of one tool dispatch. It is produced
// by the Dispatcher and consumed once by the Engine to build a tool-role
// message.
type ToolExecutionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Text returns the result content fed back to the model.
func (r ToolExecutionResult) Text() string {
	if r.Success {
		return r.Output
	}
	return r.Error
}

// TokenUsage holds running token counters. The counts are an approximate
// gate for compaction, not an exact accounting ledger.
type TokenUsage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// Add accumulates one provider usage report.
func (u *TokenUsage) Add(usage llm.Usage) {
	u.PromptTokens += usage.PromptTokens
	u.CompletionTokens += usage.CompletionTokens
	u.TotalTokens += usage.PromptTokens + usage.CompletionTokens
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text, Timestamp: time.Now().UnixMilli()}
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Timestamp: time.Now().UnixMilli()}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(text string, calls []ToolCallRequest) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls, Timestamp: time.Now().UnixMilli()}
}

// NewToolResultMessage builds the tool-role message answering one call.
func NewToolResultMessage(callID, toolName string, result ToolExecutionResult) Message {
	return Message{
		Role:       RoleTool,
		Content:    result.Text(),
		ToolCallID: callID,
		ToolName:   toolName,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// ToWire converts history to provider wire format.
func ToWire(messages []Message) []llm.Message {
	wire := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		wm := llm.Message{Role: m.Role, Content: m.Content}
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, llm.ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: llm.FunctionCall{
						Name:      tc.Name,
						Arguments: wireArguments(tc),
					},
				})
			}
		case RoleTool:
			wm.ToolCallID = m.ToolCallID
			wm.Name = m.ToolName
		}
		wire = append(wire, wm)
	}
	return wire
}

// wireArguments renders a call's arguments back to JSON text. The raw
// streamed buffer is preferred when it parsed; otherwise the parsed map is
// re-marshaled so the provider sees well-formed JSON.
func wireArguments(tc ToolCallRequest) string {
	if tc.RawArgs != "" && len(tc.Args) > 0 {
		return tc.RawArgs
	}
	data, err := json.Marshal(tc.Args)
	if err != nil || string(data) == "null" {
		return "{}"
	}
	return string(data)
}
