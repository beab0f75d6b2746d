// Package ui runs a conversation in the bobatea chat TUI. The Backend sends
// what the user submits through a client, and ForwardFunc turns the chat
// events of the reply into the stream messages the chat model renders.
package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/bobatea/pkg/chat"
	"github.com/go-go-golems/bobatea/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/client"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/toolbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Backend struct {
	client  *client.Client
	sink    events.EventSink
	tools   *toolbox.Toolbox
	options []client.SendOption

	mu       sync.Mutex
	cancel   context.CancelFunc
	parentID string
}

var _ chat.Backend = (*Backend)(nil)

type BackendOption func(*Backend)

// WithToolbox lets the model call the tools of tb during a reply.
func WithToolbox(tb *toolbox.Toolbox) BackendOption {
	return func(b *Backend) {
		b.tools = tb
	}
}

// WithSendOptions adds options to every message sent.
func WithSendOptions(options ...client.SendOption) BackendOption {
	return func(b *Backend) {
		b.options = append(b.options, options...)
	}
}

// NewBackend sends through c and publishes the chat events of every reply to
// sink.
func NewBackend(c *client.Client, sink events.EventSink, options ...BackendOption) *Backend {
	b := &Backend{
		client: c,
		sink:   sink,
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Start sends the last user message of msgs. The conversation held by the
// client decides what history goes with it, msgs is only read for the
// question.
func (b *Backend) Start(ctx context.Context, msgs []*conversation.Message) (tea.Cmd, error) {
	question, ok := lastUserText(msgs)
	if !ok {
		return nil, errors.New("no user message to send")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return nil, errors.New("a reply is already streaming")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	options := make([]client.SendOption, 0, len(b.options)+2)
	options = append(options, b.options...)
	options = append(options, client.WithParentMessageID(b.parentID), client.WithStream(true))

	return func() tea.Msg {
		defer cancel()
		if ctx.Err() != nil {
			b.mu.Lock()
			b.cancel = nil
			b.mu.Unlock()
			return chat.BackendFinishedMsg{}
		}

		sendCtx := events.WithEventSinks(ctx, b.sink)
		var reply *client.Reply
		var err error
		if b.tools != nil {
			reply, err = b.client.SendWithTools(sendCtx, question, b.tools, 0, options...)
		} else {
			reply, err = b.client.SendMessage(sendCtx, question, options...)
		}

		b.mu.Lock()
		b.cancel = nil
		if reply != nil {
			b.parentID = reply.ParentMessageID
		}
		b.mu.Unlock()

		if err != nil {
			// the error already reached the ui as an error or interrupt event
			log.Debug().Err(err).Msg("reply failed")
		}
		return chat.BackendFinishedMsg{}
	}, nil
}

// Interrupt cancels the reply being received, the conversation continues
// from the last completed reply.
func (b *Backend) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		log.Debug().Msg("no reply is streaming")
		return
	}
	b.cancel()
}

func (b *Backend) Kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *Backend) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel == nil
}

// ParentMessageID is the id the next message continues from.
func (b *Backend) ParentMessageID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parentID
}

func lastUserText(msgs []*conversation.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		content, ok := msgs[i].Content.(*conversation.ChatMessageContent)
		if ok && content.Role == conversation.RoleUser && content.Text != "" {
			return content.Text, true
		}
	}
	return "", false
}
