package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	go_openai "github.com/sashabaranov/go-openai"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleFunction:
		return true
	}
	return false
}

// Message is a node in the conversation graph. Nodes point backwards to the
// message they answer or follow through ParentID; a thread root has an empty
// ParentID.
type Message struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Role     Role   `json:"role"`
	// Content is empty while an assistant reply only carries tool calls.
	Content    string               `json:"content"`
	Name       string               `json:"name,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCalls  []go_openai.ToolCall `json:"tool_calls,omitempty"`
	// Detail is the last raw server payload associated with this node. It is
	// kept for diagnostics only.
	Detail json.RawMessage `json:"detail,omitempty"`
	Time   time.Time       `json:"time"`
}

// Clone returns a deep copy that shares no memory with m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	return clone.Clone(m).(*Message)
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Kind selects which shape of message NewMessage builds.
type Kind int

const (
	KindUser Kind = iota
	KindSystem
	KindTool
	KindFunction
	KindAssistant
)

// KindForRole maps a role to the construction kind, for callers that receive
// the role as data (flags, config). Unknown roles are reported as false.
func KindForRole(role Role) (Kind, bool) {
	switch role {
	case RoleUser:
		return KindUser, true
	case RoleSystem:
		return KindSystem, true
	case RoleTool:
		return KindTool, true
	case RoleFunction:
		return KindFunction, true
	case RoleAssistant:
		return KindAssistant, true
	}
	return KindUser, false
}

type MessageOption func(*Message)

func WithID(id string) MessageOption {
	return func(m *Message) {
		if id != "" {
			m.ID = id
		}
	}
}

func WithParentID(parentID string) MessageOption {
	return func(m *Message) {
		m.ParentID = parentID
	}
}

func WithName(name string) MessageOption {
	return func(m *Message) {
		m.Name = name
	}
}

func WithToolCallID(id string) MessageOption {
	return func(m *Message) {
		m.ToolCallID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func NewID() string {
	return uuid.NewString()
}

// NewMessage builds a message of the given kind. Initiator-side kinds (user,
// system, tool, function) get a fresh id unless WithID overrides it. The
// assistant kind is a placeholder: its id stays empty until the server
// assigns one.
func NewMessage(kind Kind, content string, options ...MessageOption) *Message {
	var ret *Message
	switch kind {
	case KindAssistant:
		ret = &Message{Role: RoleAssistant, Content: content}
	case KindSystem:
		ret = &Message{ID: NewID(), Role: RoleSystem, Content: content}
	case KindTool:
		ret = &Message{ID: NewID(), Role: RoleTool, Content: content}
	case KindFunction:
		ret = &Message{ID: NewID(), Role: RoleFunction, Content: content}
	default:
		ret = &Message{ID: NewID(), Role: RoleUser, Content: content}
	}
	ret.Time = time.Now()

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewUserMessage(content string, options ...MessageOption) *Message {
	return NewMessage(KindUser, content, options...)
}

func NewSystemMessage(content string, options ...MessageOption) *Message {
	return NewMessage(KindSystem, content, options...)
}

// NewToolMessage answers the tool call toolCallID.
func NewToolMessage(toolCallID string, content string, options ...MessageOption) *Message {
	return NewMessage(KindTool, content, append([]MessageOption{WithToolCallID(toolCallID)}, options...)...)
}

func NewFunctionMessage(name string, content string, options ...MessageOption) *Message {
	return NewMessage(KindFunction, content, append([]MessageOption{WithName(name)}, options...)...)
}

// NewAssistantPlaceholder creates the empty reply node linked to parentID.
func NewAssistantPlaceholder(parentID string) *Message {
	return NewMessage(KindAssistant, "", WithParentID(parentID))
}

// ToChatCompletionMessage converts the node to the wire shape sent to the
// chat completions endpoint.
func (m *Message) ToChatCompletionMessage() go_openai.ChatCompletionMessage {
	ret := go_openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if len(m.ToolCalls) > 0 {
		ret.ToolCalls = clone.Clone(m.ToolCalls).([]go_openai.ToolCall)
	}
	return ret
}

// GetToolCallString concatenates names and arguments of all tool calls, used
// when estimating what the calls cost in the prompt.
func GetToolCallString(toolCalls []go_openai.ToolCall) string {
	msg := ""
	for _, call := range toolCalls {
		msg += call.Function.Name
		msg += call.Function.Arguments
	}

	return msg
}

type Conversation []*Message
