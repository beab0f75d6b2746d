// Package events carries the progress of a chat completion as JSON events,
// published through watermill so that printers and UIs can follow a request
// without being wired into the client.
package events

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

type EventType string

const (
	EventTypeStart   EventType = "start"
	EventTypePartial EventType = "partial"
	EventTypeFinal   EventType = "final"
	EventTypeError   EventType = "error"
	// EventTypeInterrupt is sent when a request was canceled or timed out.
	EventTypeInterrupt EventType = "interrupt"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	// Payload is the JSON the event was decoded from, nil for events built
	// in process.
	Payload() []byte
}

// Usage is the token accounting reported by the server, when it reports any.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" yaml:"total_tokens"`
}

// EventMetadata identifies the turn an event belongs to. Fields that are
// only known once the reply is complete are set on the final event.
type EventMetadata struct {
	// MessageID is the id of the assistant message being produced. It is
	// empty until the server has sent one.
	MessageID string `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	ParentID  string `json:"parent_message_id,omitempty" yaml:"parent_message_id,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// PromptTokens is the local estimate used for budgeting, Usage holds
	// what the server counted.
	PromptTokens int    `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty" yaml:"usage,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	if em.MessageID != "" {
		e.Str("message_id", em.MessageID)
	}
	if em.ParentID != "" {
		e.Str("parent_message_id", em.ParentID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.MaxTokens > 0 {
		e.Int("max_tokens", em.MaxTokens)
	}
	if em.PromptTokens > 0 {
		e.Int("prompt_tokens", em.PromptTokens)
	}
	if em.StopReason != "" {
		e.Str("stop_reason", em.StopReason)
	}
	if em.Usage != nil {
		e.Int("usage_prompt_tokens", em.Usage.PromptTokens)
		e.Int("usage_completion_tokens", em.Usage.CompletionTokens)
	}
	if em.DurationMs > 0 {
		e.Int64("duration_ms", em.DurationMs)
	}
}

// EventBase is embedded by every event and provides the Event methods.
type EventBase struct {
	Kind EventType     `json:"type"`
	Meta EventMetadata `json:"meta"`

	payload []byte
}

func (e *EventBase) Type() EventType         { return e.Kind }
func (e *EventBase) Metadata() EventMetadata { return e.Meta }
func (e *EventBase) Payload() []byte         { return e.payload }

// EventStart is published once the request is about to be sent.
type EventStart struct {
	EventBase
}

func NewStartEvent(meta EventMetadata) *EventStart {
	return &EventStart{EventBase{Kind: EventTypeStart, Meta: meta}}
}

// EventPartial is published for every streamed delta that changed the
// assistant text.
type EventPartial struct {
	EventBase
	Delta string `json:"delta"`
	// Completion is the whole assistant text accumulated so far.
	Completion string `json:"completion"`
}

func NewPartialEvent(meta EventMetadata, delta string, completion string) *EventPartial {
	return &EventPartial{
		EventBase:  EventBase{Kind: EventTypePartial, Meta: meta},
		Delta:      delta,
		Completion: completion,
	}
}

type ToolCall struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

// EventFinal carries the reply as it was stored.
type EventFinal struct {
	EventBase
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func NewFinalEvent(meta EventMetadata, text string, toolCalls ...ToolCall) *EventFinal {
	return &EventFinal{
		EventBase: EventBase{Kind: EventTypeFinal, Meta: meta},
		Text:      text,
		ToolCalls: toolCalls,
	}
}

type EventError struct {
	EventBase
	Error string `json:"error"`
}

func NewErrorEvent(meta EventMetadata, err error) *EventError {
	return &EventError{
		EventBase: EventBase{Kind: EventTypeError, Meta: meta},
		Error:     err.Error(),
	}
}

type EventInterrupt struct {
	EventBase
	// Text is the partial assistant text received before the interruption.
	Text string `json:"text"`
	// Reason is "timeout" or "canceled".
	Reason string `json:"reason"`
	// Message is the timeout message or the reason given to Cancel.
	Message string `json:"message,omitempty"`
}

func NewInterruptEvent(meta EventMetadata, text string, reason string, message string) *EventInterrupt {
	return &EventInterrupt{
		EventBase: EventBase{Kind: EventTypeInterrupt, Meta: meta},
		Text:      text,
		Reason:    reason,
		Message:   message,
	}
}

var (
	_ Event = (*EventStart)(nil)
	_ Event = (*EventPartial)(nil)
	_ Event = (*EventFinal)(nil)
	_ Event = (*EventError)(nil)
	_ Event = (*EventInterrupt)(nil)
)

// NewEventFromJson decodes a published event back into its typed form.
func NewEventFromJson(b []byte) (Event, error) {
	if !gjson.ValidBytes(b) {
		return nil, errors.New("event is not valid json")
	}

	var (
		ret  Event
		base *EventBase
	)
	t := EventType(gjson.GetBytes(b, "type").String())
	switch t {
	case EventTypeStart:
		e := &EventStart{}
		ret, base = e, &e.EventBase
	case EventTypePartial:
		e := &EventPartial{}
		ret, base = e, &e.EventBase
	case EventTypeFinal:
		e := &EventFinal{}
		ret, base = e, &e.EventBase
	case EventTypeError:
		e := &EventError{}
		ret, base = e, &e.EventBase
	case EventTypeInterrupt:
		e := &EventInterrupt{}
		ret, base = e, &e.EventBase
	default:
		return nil, errors.Errorf("unknown event type %q", t)
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "decoding %s event", t)
	}
	base.payload = b
	return ret, nil
}
