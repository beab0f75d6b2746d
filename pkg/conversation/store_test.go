package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	m, ok := s.Get(context.Background(), "nope")
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	idx := 0
	msg := &Message{
		ID:       "abc",
		ParentID: "parent",
		Role:     RoleAssistant,
		Content:  "hello",
		ToolCalls: []go_openai.ToolCall{{
			Index:    &idx,
			ID:       "call_1",
			Type:     go_openai.ToolTypeFunction,
			Function: go_openai.FunctionCall{Name: "f", Arguments: `{"a":1}`},
		}},
		Detail: json.RawMessage(`{"id":"abc"}`),
	}
	s.Upsert(ctx, msg)

	got, ok := s.Get(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.ParentID, got.ParentID)
	assert.Equal(t, msg.Role, got.Role)
	assert.Equal(t, msg.Content, got.Content)
	assert.Equal(t, msg.ToolCalls, got.ToolCalls)
	assert.JSONEq(t, string(msg.Detail), string(got.Detail))
}

func TestMemoryStoreDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	msg := NewUserMessage("original")
	msg.ToolCalls = []go_openai.ToolCall{{ID: "c", Function: go_openai.FunctionCall{Arguments: "x"}}}
	s.Upsert(ctx, msg)

	msg.Content = "mutated"
	msg.ToolCalls[0].Function.Arguments = "mutated"

	got, ok := s.Get(ctx, msg.ID)
	require.True(t, ok)
	assert.Equal(t, "original", got.Content)
	assert.Equal(t, "x", got.ToolCalls[0].Function.Arguments)

	// mutating what Get returned does not leak back either
	got.Content = "changed"
	again, _ := s.Get(ctx, msg.ID)
	assert.Equal(t, "original", again.Content)
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		s.Upsert(ctx, &Message{ID: "same", Role: RoleUser, Content: fmt.Sprintf("v%d", i)})
	}
	got, ok := s.Get(ctx, "same")
	require.True(t, ok)
	assert.Equal(t, "v4", got.Content)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Upsert(ctx, NewUserMessage("a"))
	s.Upsert(ctx, NewUserMessage("b"))
	require.Equal(t, 2, s.Len())
	s.Clear(ctx)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreUpsertNil(t *testing.T) {
	s := NewMemoryStore()
	s.Upsert(context.Background(), nil)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("m%d", i%4)
			s.Upsert(ctx, &Message{ID: id, Role: RoleUser, Content: "x"})
			_, _ = s.Get(ctx, id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, s.Len())
}
