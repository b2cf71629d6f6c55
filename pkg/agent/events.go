package agent

import "time"

// Event type constants for the engine's outward stream.
const (
	EventTurnStart     = "turn_start"
	EventUserMessage   = "user_message"
	EventTextDelta     = "text_delta"
	EventAssistantEnd  = "assistant_message"
	EventToolStart     = "tool_start"
	EventToolEnd       = "tool_end"
	EventUsage         = "usage"
	EventCompactStart  = "compaction_start"
	EventCompactEnd    = "compaction_end"
	EventNotice        = "notice"
	EventErrorFragment = "error_fragment"
	EventTurnComplete  = "turn_complete"
)

// Event is one item of the stream a Submit call returns. The outward
// contract is "submit a user turn, receive text and tool-status events
// back"; everything else here is supporting detail for hosts that want it.
type Event struct {
	Type    string `json:"type"`
	EventAt int64  `json:"eventAt,omitempty"`

	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"` // turn_complete: new entries this turn

	Delta string `json:"delta,omitempty"` // text_delta

	ToolCallID string               `json:"toolCallId,omitempty"`
	ToolName   string               `json:"toolName,omitempty"`
	Result     *ToolExecutionResult `json:"result,omitempty"`

	Usage *TokenUsage `json:"usage,omitempty"`

	Compaction *CompactionInfo `json:"compaction,omitempty"`

	Notice string `json:"notice,omitempty"`
}

// CompactionInfo describes one compaction attempt.
type CompactionInfo struct {
	Before int    `json:"before,omitempty"` // message count before
	After  int    `json:"after,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newEvent(kind string) Event {
	return Event{Type: kind, EventAt: time.Now().UnixNano()}
}

func newMessageEvent(kind string, msg Message) Event {
	e := newEvent(kind)
	e.Message = &msg
	return e
}

func newDeltaEvent(delta string) Event {
	e := newEvent(EventTextDelta)
	e.Delta = delta
	return e
}

func newToolStartEvent(callID, name string) Event {
	e := newEvent(EventToolStart)
	e.ToolCallID = callID
	e.ToolName = name
	return e
}

func newToolEndEvent(callID, name string, result ToolExecutionResult) Event {
	e := newEvent(EventToolEnd)
	e.ToolCallID = callID
	e.ToolName = name
	e.Result = &result
	return e
}

func newUsageEvent(usage TokenUsage) Event {
	e := newEvent(EventUsage)
	e.Usage = &usage
	return e
}

func newNoticeEvent(notice string) Event {
	e := newEvent(EventNotice)
	e.Notice = notice
	return e
}

func newErrorFragmentEvent(fragment string) Event {
	e := newEvent(EventErrorFragment)
	e.Delta = fragment
	return e
}

func newCompactionEvent(kind string, info CompactionInfo) Event {
	e := newEvent(kind)
	e.Compaction = &info
	return e
}

func newTurnCompleteEvent(newMessages []Message) Event {
	e := newEvent(EventTurnComplete)
	e.Messages = newMessages
	return e
}
