package client

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/markdown"
	"github.com/go-go-golems/convo/pkg/sse"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	go_openai "github.com/sashabaranov/go-openai"
)

const doneSentinel = "[DONE]"

// accumulator is the in-flight state of one reply: the raw text received so
// far and the tool calls being merged. msg is only ever handed out as a copy.
type accumulator struct {
	msg      *conversation.Message
	text     strings.Builder
	merger   *ToolCallMerger
	renderer markdown.Renderer

	finishReason string
	usage        *go_openai.Usage
}

func newAccumulator(placeholder *conversation.Message, renderer markdown.Renderer) *accumulator {
	return &accumulator{
		msg:      placeholder,
		merger:   NewToolCallMerger(),
		renderer: renderer,
	}
}

func (a *accumulator) snapshot() conversation.Message {
	return *a.msg.Clone()
}

// applyDelta folds one streamed record into the message and returns the text
// it added. Content is rendered from the whole text so far, partial markdown
// renders differently once it is completed.
func (a *accumulator) applyDelta(delta *go_openai.ChatCompletionStreamResponse, raw []byte) string {
	if delta.ID != "" {
		a.msg.ID = delta.ID
	}
	a.msg.Detail = append(json.RawMessage(nil), raw...)

	if len(delta.Choices) == 0 {
		return ""
	}
	choice := delta.Choices[0]
	if choice.Delta.Role != "" {
		a.msg.Role = conversation.Role(choice.Delta.Role)
	}
	if choice.FinishReason != "" {
		a.finishReason = string(choice.FinishReason)
	}
	if len(choice.Delta.ToolCalls) > 0 {
		a.merger.AddToolCalls(choice.Delta.ToolCalls)
		a.msg.ToolCalls = a.merger.GetToolCalls()
	}
	if choice.Delta.Content != "" {
		a.text.WriteString(choice.Delta.Content)
		a.msg.Content = a.renderer.Render(a.text.String())
	}
	return choice.Delta.Content
}

func (a *accumulator) finish() {
	a.msg.Content = strings.TrimSpace(a.msg.Content)
}

// applyResponse adopts a complete, non-streamed response.
func (a *accumulator) applyResponse(resp *go_openai.ChatCompletionResponse, raw []byte) {
	if resp.ID != "" {
		a.msg.ID = resp.ID
	}
	a.msg.Detail = append(json.RawMessage(nil), raw...)
	a.usage = &resp.Usage

	if len(resp.Choices) == 0 {
		return
	}
	choice := resp.Choices[0]
	if choice.Message.Role != "" {
		a.msg.Role = conversation.Role(choice.Message.Role)
	}
	a.finishReason = string(choice.FinishReason)
	a.text.WriteString(choice.Message.Content)
	if choice.Message.Content != "" {
		a.msg.Content = a.renderer.Render(choice.Message.Content)
	}
	if len(choice.Message.ToolCalls) > 0 {
		a.msg.ToolCalls = choice.Message.ToolCalls
	}
}

// readStream consumes an event stream until [DONE] or EOF. Every decoded
// delta is published and handed to onProgress, in arrival order.
func (c *Client) readStream(
	ctx context.Context,
	body io.Reader,
	acc *accumulator,
	meta events.EventMetadata,
	onProgress ProgressFunc,
	logger zerolog.Logger,
) error {
	sawDone := false
	err := sse.Consume(ctx, body, func(ev sse.Event) error {
		data := ev.Data
		if strings.TrimSpace(data) == doneSentinel {
			sawDone = true
			return sse.ErrStop
		}

		var delta go_openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			return &StreamError{
				Partial: acc.snapshot(),
				Payload: data,
				Err:     errors.Wrap(err, "decoding delta"),
			}
		}

		added := acc.applyDelta(&delta, []byte(data))
		logger.Trace().Str("delta", added).Int("tool_calls", acc.merger.Len()).Msg("applied delta")

		meta.MessageID = acc.msg.ID
		c.publish(ctx, events.NewPartialEvent(meta, added, acc.text.String()))
		if onProgress != nil {
			onProgress(acc.snapshot())
		}
		return nil
	})
	if err != nil {
		var streamErr *StreamError
		if errors.As(err, &streamErr) {
			return err
		}
		if cause := abort.FromContext(ctx); cause != nil {
			return cause
		}
		return err
	}

	if !sawDone {
		logger.Debug().Msg("event stream ended without [DONE]")
	}
	acc.finish()
	return nil
}

func (c *Client) readResponse(ctx context.Context, body io.Reader, acc *accumulator) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		if cause := abort.FromContext(ctx); cause != nil {
			return cause
		}
		return errors.Wrap(err, "reading response")
	}

	var resp go_openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	acc.applyResponse(&resp, raw)
	return nil
}
