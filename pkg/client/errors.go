package client

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/tidwall/gjson"
)

// APIError is returned for any non-2xx response of the chat or models
// endpoint. It is never retried.
type APIError struct {
	URL        string
	StatusCode int
	StatusText string
	// Message is the best effort explanation taken from the body.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.URL, e.StatusCode, e.Message)
}

// newAPIError extracts error.message from body, falling back to the raw body
// and then to the status text.
func newAPIError(url string, statusCode int, statusText string, body []byte) *APIError {
	message := ""
	if gjson.ValidBytes(body) {
		message = gjson.GetBytes(body, "error.message").String()
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = statusText
	}
	return &APIError{
		URL:        url,
		StatusCode: statusCode,
		StatusText: statusText,
		Message:    message,
	}
}

// StreamError reports a streamed delta that could not be decoded. Partial
// holds the assistant message as accumulated up to that point; it is not
// persisted.
type StreamError struct {
	Partial conversation.Message
	Payload string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("malformed stream payload %q: %v", e.Payload, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
