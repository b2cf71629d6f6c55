package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxSSELineBytes bounds a single SSE line. Providers have been observed to
// send whole tool-call argument payloads in one chunk.
const maxSSELineBytes = 4 * 1024 * 1024

// Client is a streaming chat client for OpenAI-compatible endpoints.
type Client struct {
	model      Model
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the given model and API key.
func NewClient(model Model, apiKey string) *Client {
	return &Client{
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// Model returns the configured model.
func (c *Client) Model() Model { return c.model }

// ChatStream issues one streaming chat completion request and returns the
// event stream. The stream terminates with either a DoneEvent or an
// ErrorEvent; transport failures never escape as panics or bare errors.
func (c *Client) ChatStream(ctx context.Context, req Request) *EventStream[Event, Message] {
	partial := NewPartialMessage()
	stream := NewEventStream[Event, Message](
		func(e Event) bool {
			t := e.EventType()
			return t == "done" || t == "error"
		},
		func(e Event) Message { return partial.ToMessage() },
	)

	go func() {
		defer stream.End(partial.ToMessage())
		c.run(ctx, req, stream, partial)
	}()

	return stream
}

func (c *Client) run(ctx context.Context, req Request, stream *EventStream[Event, Message], partial *PartialMessage) {
	if c.apiKey == "" {
		stream.Push(ErrorEvent{Err: fmt.Errorf("API key not set for provider %q", c.model.Provider)})
		return
	}

	reqBody := map[string]any{
		"model":    c.model.ID,
		"messages": req.Messages,
		"stream":   true,
		"stream_options": map[string]any{
			"include_usage": true,
		},
	}
	if len(req.Tools) > 0 {
		reqBody["tools"] = req.Tools
		reqBody["tool_choice"] = "auto"
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		stream.Push(ErrorEvent{Err: err})
		return
	}
	slog.Debug("[LLM] request", "model", c.model.ID, "messages", len(req.Messages), "bytes", len(jsonBody))

	url := strings.TrimSuffix(c.model.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		stream.Push(ErrorEvent{Err: err})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		stream.Push(ErrorEvent{Err: fmt.Errorf("connection error: %w", err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		stream.Push(ErrorEvent{Err: ClassifyAPIError(resp.StatusCode, string(body))})
		return
	}

	stream.Push(StartEvent{})

	var usage Usage
	sawUsage := false
	stopReason := ""
	finished := false

	reader := newSSEReader(resp.Body)
	for {
		data, err := reader.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			stream.Push(ErrorEvent{Err: err})
			return
		}
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   string            `json:"content,omitempty"`
					ToolCalls []json.RawMessage `json:"tool_calls,omitempty"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
			Usage *Usage `json:"usage"`
			Error *struct {
				Message string `json:"message,omitempty"`
				Type    string `json:"type,omitempty"`
			} `json:"error,omitempty"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.Error != nil {
			msg := strings.TrimSpace(chunk.Error.Message)
			if msg == "" {
				msg = strings.TrimSpace(chunk.Error.Type)
			}
			stream.Push(ErrorEvent{Err: ClassifyAPIError(resp.StatusCode, msg)})
			return
		}

		if chunk.Usage != nil {
			usage = *chunk.Usage
			sawUsage = true
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			partial.AppendText(choice.Delta.Content)
			stream.Push(TextDeltaEvent{Delta: choice.Delta.Content})
		}

		for _, tcRaw := range choice.Delta.ToolCalls {
			var tcDelta struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Type     string `json:"type,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function,omitempty"`
			}
			if err := json.Unmarshal(tcRaw, &tcDelta); err != nil {
				continue
			}

			tc := ToolCall{
				ID:   tcDelta.ID,
				Type: tcDelta.Type,
				Function: FunctionCall{
					Name:      tcDelta.Function.Name,
					Arguments: tcDelta.Function.Arguments,
				},
			}
			partial.AppendToolCall(tcDelta.Index, tc)
			stream.Push(ToolCallDeltaEvent{Index: tcDelta.Index, ToolCall: tc})
		}

		if choice.FinishReason != nil {
			stopReason = *choice.FinishReason
			finished = true
			// Usage often trails the finish_reason chunk; keep reading
			// until [DONE] or EOF before emitting the terminal event.
		}
	}

	if !finished && stopReason == "" {
		stopReason = "stop"
	}
	if !sawUsage {
		slog.Debug("[LLM] stream ended without usage report", "model", c.model.ID)
	}
	stream.Push(DoneEvent{Usage: usage, StopReason: stopReason})
}

// sseReader yields the payload of "data:" lines from an SSE body.
type sseReader struct {
	body io.Reader
	buf  []byte
	line []byte
}

func newSSEReader(body io.Reader) *sseReader {
	return &sseReader{body: body, buf: make([]byte, 64*1024)}
}

func (r *sseReader) next() (string, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return "", err
		}
		s := strings.TrimRight(string(line), "\r")
		if !strings.HasPrefix(s, "data: ") {
			continue
		}
		return strings.TrimPrefix(s, "data: "), nil
	}
}

func (r *sseReader) readLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(r.line, '\n'); i >= 0 {
			line := r.line[:i]
			r.line = r.line[i+1:]
			return line, nil
		}
		if len(r.line) > maxSSELineBytes {
			return nil, fmt.Errorf("SSE line exceeds %d bytes", maxSSELineBytes)
		}
		n, err := r.body.Read(r.buf)
		if n > 0 {
			r.line = append(r.line, r.buf[:n]...)
			continue
		}
		if err != nil {
			if err == io.EOF && len(r.line) > 0 {
				line := r.line
				r.line = nil
				return line, nil
			}
			return nil, err
		}
	}
}
