package sse

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(chunks ...string) []Event {
	var events []Event
	p := NewParser(func(ev Event) {
		events = append(events, ev)
	})
	for _, c := range chunks {
		p.Feed([]byte(c))
	}
	return events
}

func TestParserSingleEvent(t *testing.T) {
	events := collect("data: {\"a\":1}\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, `{"a":1}`, events[0].Data)
}

func TestParserSplitAtEveryBoundary(t *testing.T) {
	stream := "event: delta\ndata: {\"id\":\"abc\",\"choices\":[]}\n\n"
	whole := collect(stream)
	require.Len(t, whole, 1)

	for i := 1; i < len(stream); i++ {
		split := collect(stream[:i], stream[i:])
		require.Len(t, split, 1, "split at %d", i)
		assert.Equal(t, whole[0], split[0], "split at %d", i)
	}
}

func TestParserTwoEventsInOneChunk(t *testing.T) {
	events := collect("data: first\n\ndata: second\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Data)
	assert.Equal(t, "second", events[1].Data)
}

func TestParserLineEndings(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{name: "crlf", chunks: []string{"data: x\r\n\r\n"}},
		{name: "cr", chunks: []string{"data: x\r\r"}},
		{name: "crlf split between cr and lf", chunks: []string{"data: x\r", "\n\r", "\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := collect(tt.chunks...)
			require.Len(t, events, 1)
			assert.Equal(t, "x", events[0].Data)
		})
	}
}

func TestParserFields(t *testing.T) {
	events := collect(
		": keep-alive comment\n",
		"id: 7\n",
		"event: update\n",
		"retry: 1500\n",
		"foo: ignored\n",
		"data: line one\n",
		"data:line two\n",
		"\n",
		"data: next\n\n",
	)
	require.Len(t, events, 2)
	assert.Equal(t, Event{ID: "7", Type: "update", Data: "line one\nline two", Retry: 1500}, events[0])
	// id and retry persist, event type does not
	assert.Equal(t, Event{ID: "7", Type: "", Data: "next", Retry: 1500}, events[1])
}

func TestParserIgnoresEventsWithoutData(t *testing.T) {
	events := collect("event: ping\n\n: comment\n\n\n\n")
	assert.Empty(t, events)
}

func TestParserInvalidRetryIgnored(t *testing.T) {
	events := collect("retry: 12a\ndata: x\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Retry)
}

func TestParserStripsBOM(t *testing.T) {
	events := collect("\xEF\xBB\xBFdata: x\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Data)
}

func TestParserArbitraryBytesDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		collect("\x00\xff\xfe::::\n\r\x01data\n\n", "data: \xff\n\n")
	})
}

func TestParserFlushDispatchesTrailingEvent(t *testing.T) {
	var events []Event
	p := NewParser(func(ev Event) { events = append(events, ev) })
	p.Feed([]byte("data: [DONE]"))
	assert.Empty(t, events)
	p.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "[DONE]", events[0].Data)
}

func TestParserReset(t *testing.T) {
	var events []Event
	p := NewParser(func(ev Event) { events = append(events, ev) })
	p.Feed([]byte("id: 1\ndata: partial"))
	p.Reset()
	p.Feed([]byte("data: fresh\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Data: "fresh"}, events[0])
}

type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestConsumeDeliversInOrder(t *testing.T) {
	r := &chunkReader{chunks: []string{"data: a\n", "\ndata: b\n\nda", "ta: c\n\n"}}
	var got []string
	err := Consume(context.Background(), r, func(ev Event) error {
		got = append(got, ev.Data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestConsumeStopsOnHandlerError(t *testing.T) {
	boom := errors.New("boom")
	var got []string
	err := Consume(context.Background(), strings.NewReader("data: a\n\ndata: b\n\n"), func(ev Event) error {
		got = append(got, ev.Data)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, got)
}

func TestConsumeErrStop(t *testing.T) {
	err := Consume(context.Background(), strings.NewReader("data: [DONE]\n\ndata: late\n\n"), func(ev Event) error {
		return ErrStop
	})
	assert.NoError(t, err)
}

func TestConsumeCanceledContext(t *testing.T) {
	cause := errors.New("user cancelled")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)
	err := Consume(ctx, strings.NewReader("data: a\n\n"), func(ev Event) error {
		t.Fatal("no event expected")
		return nil
	})
	assert.ErrorIs(t, err, cause)
}
