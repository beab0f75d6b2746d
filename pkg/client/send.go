package client

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/history"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Reply is the outcome of a successful SendMessage.
type Reply struct {
	// Message is the persisted assistant message.
	Message conversation.Message
	// ParentMessageID is where the next turn continues from, the id of the
	// assistant message.
	ParentMessageID string
}

// SendMessage sends text as a new message and waits for the full reply.
//
// The question is persisted before anything is sent. The reply is persisted
// only when it completed: on an API error, a malformed stream, a timeout or
// a Cancel, the store holds the question but no answer. Timeouts and
// cancellation are reported as *abort.TimeoutError and *abort.CanceledError,
// use abort.Kind or errors.Is with abort.ErrTimeout / abort.ErrCanceled to
// tell them apart. A reply is stored if and only if it is returned: a timeout
// expiring while a completed reply is being stored is ignored.
func (c *Client) SendMessage(ctx context.Context, text string, options ...SendOption) (*Reply, error) {
	o := newSendOptions(options)

	// bound before the timer is armed, so a timeout always reaches this call
	reqCtx, release := abort.Bind(ctx, c.scope)
	defer release()

	return abort.Run(reqCtx, c.scope, abort.Options{
		Timeout: c.settings.TimeoutDuration(),
		Message: c.settings.Client.TimeoutMessage,
	}, func(ctx context.Context) (*Reply, error) {
		return c.sendMessage(ctx, text, o)
	})
}

func (c *Client) sendMessage(ctx context.Context, text string, o *sendOptions) (*Reply, error) {
	question := o.question(text)
	c.store.Upsert(ctx, question)

	placeholder := conversation.NewAssistantPlaceholder(question.ID)

	systemMessage := c.settings.Chat.SystemMessage
	if o.systemMessage != nil {
		systemMessage = *o.systemMessage
	}
	prompt, err := c.historyBuilder().Build(ctx, history.Request{
		SystemMessage: systemMessage,
		Question:      question,
		ParentID:      o.parentMessageID,
	})
	if err != nil {
		if cause := abort.FromContext(ctx); cause != nil {
			return nil, cause
		}
		return nil, errors.Wrap(err, "building prompt")
	}

	stream := o.streaming()
	body := c.requestBody(o, prompt, stream)

	logger := c.logger.With().
		Str("question_id", question.ID).
		Bool("stream", stream).
		Logger()
	logger.Debug().
		Int("messages", len(prompt.Messages)).
		Int("prompt_tokens", prompt.TokenCount).
		Int("max_tokens", prompt.MaxTokens).
		Msg("sending chat completion")

	meta := events.EventMetadata{
		ParentID:     question.ID,
		PromptTokens: prompt.TokenCount,
		MaxTokens:    prompt.MaxTokens,
	}
	if model, ok := body["model"].(string); ok {
		meta.Model = model
	}

	acc := newAccumulator(placeholder, c.renderer)
	start := time.Now()
	c.publish(ctx, events.NewStartEvent(meta))

	err = c.complete(ctx, body, stream, acc, meta, o.onProgress, logger)
	if err == nil {
		// a reply finishing while the call is being aborted is not kept, and
		// once committed a late timeout can no longer discard it
		err = abort.Commit(ctx)
	}
	if err != nil {
		meta.MessageID = acc.msg.ID
		if kind := abort.Kind(err); kind != "" {
			c.publish(ctx, events.NewInterruptEvent(meta, acc.text.String(), kind, interruptMessage(err)))
		} else {
			c.publish(ctx, events.NewErrorEvent(meta, err))
		}
		logger.Debug().Err(err).Msg("chat completion failed")
		return nil, err
	}

	msg := acc.msg
	if msg.ID == "" {
		msg.ID = conversation.NewID()
	}
	msg.Time = time.Now()
	c.store.Upsert(ctx, msg)

	meta.MessageID = msg.ID
	meta.DurationMs = time.Since(start).Milliseconds()
	meta.StopReason = acc.finishReason
	if acc.usage != nil {
		meta.Usage = &events.Usage{
			PromptTokens:     acc.usage.PromptTokens,
			CompletionTokens: acc.usage.CompletionTokens,
			TotalTokens:      acc.usage.TotalTokens,
		}
	}
	c.publish(ctx, events.NewFinalEvent(meta, msg.Content, eventToolCalls(msg)...))

	logger.Debug().Object("meta", meta).Msg("chat completion done")

	return &Reply{
		Message:         *msg.Clone(),
		ParentMessageID: msg.ID,
	}, nil
}

func (c *Client) complete(
	ctx context.Context,
	body map[string]interface{},
	stream bool,
	acc *accumulator,
	meta events.EventMetadata,
	onProgress ProgressFunc,
	logger zerolog.Logger,
) error {
	req, err := c.newRequest(ctx, http.MethodPost, chatCompletionsPath, body, stream)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if stream {
		return c.readStream(ctx, resp.Body, acc, meta, onProgress, logger)
	}
	return c.readResponse(ctx, resp.Body, acc)
}

// interruptMessage is the cancel reason or the timeout message of err.
func interruptMessage(err error) string {
	var canceled *abort.CanceledError
	if errors.As(err, &canceled) {
		return canceled.Reason
	}
	var timeout *abort.TimeoutError
	if errors.As(err, &timeout) {
		return timeout.Message
	}
	return ""
}

func eventToolCalls(msg *conversation.Message) []events.ToolCall {
	var ret []events.ToolCall
	for _, call := range msg.ToolCalls {
		ret = append(ret, events.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return ret
}
