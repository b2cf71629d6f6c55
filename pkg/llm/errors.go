package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError represents a generic non-200 API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "unknown API error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
	}
	return "API error: " + msg
}

// ContextLengthExceededError indicates the request exceeded the model's
// context window.
type ContextLengthExceededError struct {
	StatusCode int
	Message    string
}

func (e *ContextLengthExceededError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "context length exceeded"
	}
	return fmt.Sprintf("context length exceeded (%d): %s", e.StatusCode, msg)
}

// RateLimitError indicates request throttling by the provider.
type RateLimitError struct {
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "rate limit exceeded"
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
}

// ClassifyAPIError converts an API response payload into a typed error.
func ClassifyAPIError(statusCode int, payload string) error {
	payload = strings.TrimSpace(payload)
	message := extractAPIErrorMessage(payload)
	if message == "" {
		message = payload
	}

	lower := strings.ToLower(message)
	switch {
	case looksLikeContextLengthExceeded(lower):
		return &ContextLengthExceededError{StatusCode: statusCode, Message: message}
	case statusCode == 429 || strings.Contains(lower, "rate limit"):
		return &RateLimitError{StatusCode: statusCode, Message: message}
	default:
		return &APIError{StatusCode: statusCode, Message: message}
	}
}

// IsContextLengthExceeded reports whether err is a context-window overflow.
func IsContextLengthExceeded(err error) bool {
	var cle *ContextLengthExceededError
	return errors.As(err, &cle)
}

// IsRateLimit reports whether err is a provider throttling error.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// extractAPIErrorMessage pulls a human-readable message out of a JSON error
// payload. Providers wrap the message in several shapes; try the common ones.
func extractAPIErrorMessage(payload string) string {
	if payload == "" || payload[0] != '{' {
		return ""
	}

	var wrapped struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(payload), &wrapped); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(wrapped.Error.Message); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(wrapped.Error.Type); msg != "" {
		return msg
	}
	return strings.TrimSpace(wrapped.Message)
}

func looksLikeContextLengthExceeded(lower string) bool {
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "context window") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "too many tokens")
}
