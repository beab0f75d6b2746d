package ui

import (
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	conversation2 "github.com/go-go-golems/bobatea/pkg/chat/conversation"
	"github.com/go-go-golems/bobatea/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/pkg/errors"
)

// forwarder tracks the ui message a reply streams into. Events of a reply
// only carry the server's message id once it is known, so every reply gets
// a node id of its own when it starts.
type forwarder struct {
	send func(tea.Msg)

	mu      sync.Mutex
	current conversation.NodeID
	parent  conversation.NodeID
	started bool
}

// ForwardFunc returns a router handler sending the chat events of a topic to
// the chat model running in p.
func ForwardFunc(p *tea.Program) func(msg *message.Message) error {
	f := &forwarder{send: p.Send}
	return f.handle
}

func (f *forwarder) handle(msg *message.Message) error {
	msg.Ack()

	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		return err
	}
	return f.forward(e)
}

func (f *forwarder) forward(e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.Type() == events.EventTypeStart || !f.started {
		f.current = conversation.NewNodeID()
		f.started = true
		f.send(conversation2.StreamStartMsg{StreamMetadata: f.metadata()})
		if e.Type() == events.EventTypeStart {
			return nil
		}
	}

	metadata := f.metadata()
	switch e_ := e.(type) {
	case *events.EventPartial:
		f.send(conversation2.StreamCompletionMsg{
			StreamMetadata: metadata,
			Delta:          e_.Delta,
			Completion:     e_.Completion,
		})
		return nil

	case *events.EventFinal:
		f.send(conversation2.StreamDoneMsg{
			StreamMetadata: metadata,
			Completion:     e_.Text,
		})

	case *events.EventInterrupt:
		f.send(conversation2.StreamDoneMsg{
			StreamMetadata: metadata,
			Completion:     interruptedText(e_),
		})

	case *events.EventError:
		f.send(conversation2.StreamCompletionError{
			StreamMetadata: metadata,
			Err:            errors.New(e_.Error),
		})

	default:
		return errors.Errorf("unknown event type %s", e.Type())
	}

	f.parent = f.current
	f.started = false
	return nil
}

func (f *forwarder) metadata() conversation2.StreamMetadata {
	return conversation2.StreamMetadata{
		ID:       f.current,
		ParentID: f.parent,
	}
}

func interruptedText(e *events.EventInterrupt) string {
	note := "[" + e.Reason + "]"
	if e.Message != "" {
		note = "[" + e.Reason + ": " + e.Message + "]"
	}
	if e.Text == "" {
		return note
	}
	return e.Text + "\n\n" + note
}
