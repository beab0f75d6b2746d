package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/convo/pkg/client"
	"github.com/go-go-golems/convo/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"choices": []interface{}{map[string]interface{}{"index": 0, "delta": map[string]interface{}{"content": content}}},
	})
	return string(b)
}

func newServerClient(t *testing.T, h http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(h)
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

func TestRunTurnPrintsStream(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range []string{chunk("Hel"), chunk("lo"), "[DONE]"} {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
			w.(http.Flusher).Flush()
		}
	})

	var buf bytes.Buffer
	reply, err := runTurn(context.Background(), c, &buf, "hi", turnOptions{stream: true})
	require.NoError(t, err)

	assert.Equal(t, "Hello", reply.Message.Content)
	assert.Equal(t, "Hello\n", buf.String())
}

func TestRunTurnNonStreaming(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-2","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}]}`)
	})

	var buf bytes.Buffer
	reply, err := runTurn(context.Background(), c, &buf, "hi", turnOptions{})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-2", reply.ParentMessageID)
	assert.Equal(t, "Hi there\n", buf.String())
}

func TestRunTurnDumpsEvents(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-3","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)
	})

	var buf bytes.Buffer
	_, err := runTurn(context.Background(), c, &buf, "hi", turnOptions{dumpEvents: true})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"type":"start"`)
	assert.Contains(t, out, `"type":"final"`)
	assert.Contains(t, out, `"text":"ok"`)
	assert.Contains(t, out, `"message_id":"chatcmpl-3"`)
}

func TestRunTurnAPIError(t *testing.T) {
	c := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	})

	var buf bytes.Buffer
	_, err := runTurn(context.Background(), c, &buf, "hi", turnOptions{})
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, buf.String(), "[error]")
}
