package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/convo/pkg/events"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idx(i int) *int {
	return &i
}

func TestToolCallMergerAppendsArguments(t *testing.T) {
	m := NewToolCallMerger()
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(0), ID: "c1", Type: go_openai.ToolTypeFunction, Function: go_openai.FunctionCall{Name: "f", Arguments: `{"a":`}}})
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(0), Function: go_openai.FunctionCall{Arguments: `1}`}}})

	calls := m.GetToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "f", calls[0].Function.Name)
	assert.Equal(t, `{"a":1}`, calls[0].Function.Arguments)
	assert.Nil(t, calls[0].Index)
}

func TestToolCallMergerNameSetOnce(t *testing.T) {
	m := NewToolCallMerger()
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(0), Function: go_openai.FunctionCall{Name: "f"}}})
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(0), Function: go_openai.FunctionCall{Name: "g", Arguments: "{}"}}})

	calls := m.GetToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "f", calls[0].Function.Name)
	assert.Equal(t, "{}", calls[0].Function.Arguments)
}

func TestToolCallMergerKeepsFirstAppearanceOrder(t *testing.T) {
	m := NewToolCallMerger()
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(1), Function: go_openai.FunctionCall{Name: "second"}}})
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(0), Function: go_openai.FunctionCall{Name: "first"}}})
	m.AddToolCalls([]go_openai.ToolCall{{Index: idx(1), Function: go_openai.FunctionCall{Arguments: "x"}}})

	calls := m.GetToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "second", calls[0].Function.Name)
	assert.Equal(t, "x", calls[0].Function.Arguments)
	assert.Equal(t, "first", calls[1].Function.Name)
	assert.Equal(t, 2, m.Len())
}

func TestToolCallMergerWithoutIndexUsesPosition(t *testing.T) {
	m := NewToolCallMerger()
	m.AddToolCalls([]go_openai.ToolCall{
		{Function: go_openai.FunctionCall{Name: "a"}},
		{Function: go_openai.FunctionCall{Name: "b"}},
	})
	m.AddToolCalls([]go_openai.ToolCall{
		{Function: go_openai.FunctionCall{Arguments: "1"}},
		{Function: go_openai.FunctionCall{Arguments: "2"}},
	})

	calls := m.GetToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "1", calls[0].Function.Arguments)
	assert.Equal(t, "2", calls[1].Function.Arguments)
}

func TestToolCallMergerEmpty(t *testing.T) {
	assert.Nil(t, NewToolCallMerger().GetToolCalls())
}

func TestWithPublisherSendsWatermillMessages(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(jsonHandler(t, rec, completionJSON("w1", "hello")))
	defer srv.Close()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := pubSub.Subscribe(ctx, "chat")
	require.NoError(t, err)

	c := newTestClient(t, testSettings(srv.URL), WithPublisher(pubSub, "chat"))
	_, err = c.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	var got []events.EventType
	var seqs []string
	var final *events.EventFinal
	for len(got) < 2 {
		select {
		case msg := <-ch:
			msg.Ack()
			seqs = append(seqs, msg.Metadata.Get(events.MetadataSequence))
			e, err := events.NewEventFromJson(msg.Payload)
			require.NoError(t, err)
			got = append(got, e.Type())
			if f, ok := e.(*events.EventFinal); ok {
				final = f
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	assert.ElementsMatch(t, []events.EventType{events.EventTypeStart, events.EventTypeFinal}, got)
	assert.ElementsMatch(t, []string{"0", "1"}, seqs)
	require.NotNil(t, final)
	assert.Equal(t, "hello", final.Text)
	assert.Equal(t, "w1", final.Metadata().MessageID)
	require.NotNil(t, final.Metadata().Usage)
	assert.Equal(t, 5, final.Metadata().Usage.TotalTokens)
}
