package client

import (
	"github.com/go-go-golems/convo/pkg/conversation"
	go_openai "github.com/sashabaranov/go-openai"
)

// ProgressFunc receives a snapshot of the assistant message after every
// streamed delta. The snapshot is a copy, the callback may keep it.
type ProgressFunc func(partial conversation.Message)

type sendOptions struct {
	parentMessageID string
	messageID       string
	role            conversation.Role
	name            string
	toolCallID      string
	systemMessage   *string
	stream          *bool
	onProgress      ProgressFunc
	requestParams   map[string]interface{}
	tools           []go_openai.Tool
	toolChoice      interface{}
}

type SendOption func(*sendOptions)

// WithParentMessageID continues the conversation after the given message,
// usually Reply.ParentMessageID of the previous turn.
func WithParentMessageID(id string) SendOption {
	return func(o *sendOptions) {
		o.parentMessageID = id
	}
}

// WithMessageID sets the id of the message being sent instead of generating
// one.
func WithMessageID(id string) SendOption {
	return func(o *sendOptions) {
		o.messageID = id
	}
}

// WithRole sends the text as a system, tool or function message. Assistant
// is not accepted and falls back to user.
func WithRole(role conversation.Role) SendOption {
	return func(o *sendOptions) {
		o.role = role
	}
}

func WithName(name string) SendOption {
	return func(o *sendOptions) {
		o.name = name
	}
}

// WithToolCallID marks the message as the answer to a tool call. It implies
// the tool role unless WithRole says otherwise.
func WithToolCallID(id string) SendOption {
	return func(o *sendOptions) {
		o.toolCallID = id
	}
}

// WithSystemMessage overrides the configured system message for one call.
func WithSystemMessage(systemMessage string) SendOption {
	return func(o *sendOptions) {
		o.systemMessage = &systemMessage
	}
}

func WithStream(stream bool) SendOption {
	return func(o *sendOptions) {
		o.stream = &stream
	}
}

// WithOnProgress registers a progress callback. It turns streaming on unless
// WithStream(false) is given as well.
func WithOnProgress(f ProgressFunc) SendOption {
	return func(o *sendOptions) {
		o.onProgress = f
	}
}

// WithRequestParams overrides body parameters for one call. messages,
// stream and max_tokens are always computed and cannot be overridden.
func WithRequestParams(params map[string]interface{}) SendOption {
	return func(o *sendOptions) {
		if o.requestParams == nil {
			o.requestParams = map[string]interface{}{}
		}
		for k, v := range params {
			o.requestParams[k] = v
		}
	}
}

func WithTools(tools []go_openai.Tool) SendOption {
	return func(o *sendOptions) {
		o.tools = tools
	}
}

// WithToolChoice sets tool_choice, a string such as "auto" or a
// go_openai.ToolChoice.
func WithToolChoice(choice interface{}) SendOption {
	return func(o *sendOptions) {
		o.toolChoice = choice
	}
}

func newSendOptions(options []SendOption) *sendOptions {
	o := &sendOptions{}
	for _, option := range options {
		option(o)
	}
	if o.role == "" || o.role == conversation.RoleAssistant || !o.role.Valid() {
		o.role = conversation.RoleUser
		if o.toolCallID != "" {
			o.role = conversation.RoleTool
		}
	}
	return o
}

func (o *sendOptions) streaming() bool {
	if o.stream != nil {
		return *o.stream
	}
	return o.onProgress != nil
}

// question builds the message node sent by this call.
func (o *sendOptions) question(text string) *conversation.Message {
	kind, _ := conversation.KindForRole(o.role)
	return conversation.NewMessage(kind, text,
		conversation.WithID(o.messageID),
		conversation.WithParentID(o.parentMessageID),
		conversation.WithName(o.name),
		conversation.WithToolCallID(o.toolCallID),
	)
}
