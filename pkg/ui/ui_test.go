package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/bobatea/pkg/chat"
	conversation2 "github.com/go-go-golems/bobatea/pkg/chat/conversation"
	"github.com/go-go-golems/bobatea/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/client"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *collector) send(msg tea.Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) PublishEvent(e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	ret := []events.EventType{}
	for _, e := range l.events {
		ret = append(ret, e.Type())
	}
	return ret
}

func chunk(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"choices": []interface{}{map[string]interface{}{"index": 0, "delta": map[string]interface{}{"content": content}}},
	})
	return string(b)
}

func newStreamingClient(t *testing.T, parts ...string) *client.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range parts {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk(p))
			w.(http.Flusher).Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	s := settings.NewSettings()
	s.Client.APIKey = "sk-test"
	s.Client.BaseURL = srv.URL
	s.Client.AllowHTTP = true
	s.Client.AllowLocalNetworks = true
	c, err := client.New(s)
	require.NoError(t, err)
	return c
}

func userMessages(texts ...string) []*conversation.Message {
	ret := []*conversation.Message{}
	for _, text := range texts {
		ret = append(ret, conversation.NewChatMessage(conversation.RoleUser, text))
	}
	return ret
}

func TestBackendStreamsReply(t *testing.T) {
	c := newStreamingClient(t, "Hel", "lo")
	sink := &eventLog{}
	b := NewBackend(c, sink)
	require.True(t, b.IsFinished())

	cmd, err := b.Start(context.Background(), userMessages("hi"))
	require.NoError(t, err)
	assert.False(t, b.IsFinished())

	msg := cmd()
	assert.IsType(t, chat.BackendFinishedMsg{}, msg)
	assert.True(t, b.IsFinished())

	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypePartial,
		events.EventTypePartial,
		events.EventTypeFinal,
	}, sink.types())

	reply, ok := c.GetMessage(context.Background(), b.ParentMessageID())
	require.True(t, ok)
	assert.Equal(t, "Hello", reply.Content)
}

func TestBackendContinuesConversation(t *testing.T) {
	c := newStreamingClient(t, "ok")
	b := NewBackend(c, &eventLog{})

	cmd, err := b.Start(context.Background(), userMessages("first"))
	require.NoError(t, err)
	cmd()
	first := b.ParentMessageID()
	require.NotEmpty(t, first)

	cmd, err = b.Start(context.Background(), userMessages("first", "second"))
	require.NoError(t, err)
	cmd()

	thread := c.Thread(context.Background(), b.ParentMessageID())
	require.Len(t, thread, 4)
	assert.Equal(t, "first", thread[0].Content)
	assert.Equal(t, first, thread[1].ID)
	assert.Equal(t, "second", thread[2].Content)
}

func TestBackendRejectsSecondStart(t *testing.T) {
	b := NewBackend(newStreamingClient(t, "x"), &eventLog{})

	_, err := b.Start(context.Background(), userMessages("hi"))
	require.NoError(t, err)
	_, err = b.Start(context.Background(), userMessages("again"))
	assert.Error(t, err)

	b.Kill()
	assert.True(t, b.IsFinished())
}

func TestBackendNeedsUserMessage(t *testing.T) {
	b := NewBackend(newStreamingClient(t, "x"), &eventLog{})

	_, err := b.Start(context.Background(), []*conversation.Message{
		conversation.NewChatMessage(conversation.RoleAssistant, "hello"),
	})
	assert.Error(t, err)
	assert.True(t, b.IsFinished())
}

func TestBackendInterruptedBeforeSending(t *testing.T) {
	sink := &eventLog{}
	b := NewBackend(newStreamingClient(t, "x"), sink)

	cmd, err := b.Start(context.Background(), userMessages("hi"))
	require.NoError(t, err)
	b.Interrupt()

	assert.IsType(t, chat.BackendFinishedMsg{}, cmd())
	assert.Empty(t, sink.types())
	assert.Empty(t, b.ParentMessageID())
}

func TestForwardStream(t *testing.T) {
	col := &collector{}
	f := &forwarder{send: col.send}
	meta := events.EventMetadata{}

	require.NoError(t, f.forward(events.NewStartEvent(meta)))
	require.NoError(t, f.forward(events.NewPartialEvent(meta, "Hel", "Hel")))
	require.NoError(t, f.forward(events.NewPartialEvent(meta, "lo", "Hello")))
	require.NoError(t, f.forward(events.NewFinalEvent(meta, "Hello")))

	require.Len(t, col.msgs, 4)
	start, ok := col.msgs[0].(conversation2.StreamStartMsg)
	require.True(t, ok)
	id := start.ID

	partial, ok := col.msgs[2].(conversation2.StreamCompletionMsg)
	require.True(t, ok)
	assert.Equal(t, id, partial.ID)
	assert.Equal(t, "lo", partial.Delta)
	assert.Equal(t, "Hello", partial.Completion)

	done, ok := col.msgs[3].(conversation2.StreamDoneMsg)
	require.True(t, ok)
	assert.Equal(t, id, done.ID)
	assert.Equal(t, "Hello", done.Completion)

	// the next reply streams into a new message below the first one
	require.NoError(t, f.forward(events.NewStartEvent(meta)))
	next, ok := col.msgs[4].(conversation2.StreamStartMsg)
	require.True(t, ok)
	assert.NotEqual(t, id, next.ID)
	assert.Equal(t, id, next.ParentID)
}

func TestForwardInterruptAndError(t *testing.T) {
	col := &collector{}
	f := &forwarder{send: col.send}
	meta := events.EventMetadata{}

	require.NoError(t, f.forward(events.NewStartEvent(meta)))
	require.NoError(t, f.forward(events.NewInterruptEvent(meta, "partial", "timeout", "took too long")))
	done, ok := col.msgs[1].(conversation2.StreamDoneMsg)
	require.True(t, ok)
	assert.Equal(t, "partial\n\n[timeout: took too long]", done.Completion)

	require.NoError(t, f.forward(events.NewStartEvent(meta)))
	require.NoError(t, f.forward(events.NewErrorEvent(meta, assert.AnError)))
	failed, ok := col.msgs[3].(conversation2.StreamCompletionError)
	require.True(t, ok)
	assert.EqualError(t, failed.Err, assert.AnError.Error())
}

func TestForwardWithoutStart(t *testing.T) {
	col := &collector{}
	f := &forwarder{send: col.send}

	require.NoError(t, f.forward(events.NewFinalEvent(events.EventMetadata{}, "late")))
	require.Len(t, col.msgs, 2)
	assert.IsType(t, conversation2.StreamStartMsg{}, col.msgs[0])
	assert.IsType(t, conversation2.StreamDoneMsg{}, col.msgs[1])
}

func TestForwardDecodesMessages(t *testing.T) {
	col := &collector{}
	f := &forwarder{send: col.send}

	payload, err := json.Marshal(events.NewPartialEvent(events.EventMetadata{}, "a", "a"))
	require.NoError(t, err)
	require.NoError(t, f.handle(message.NewMessage(watermill.NewUUID(), payload)))
	require.Len(t, col.msgs, 2)
	assert.IsType(t, conversation2.StreamCompletionMsg{}, col.msgs[1])

	assert.Error(t, f.handle(message.NewMessage(watermill.NewUUID(), []byte("not json"))))
}
