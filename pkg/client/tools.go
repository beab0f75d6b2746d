package client

import (
	"context"
	"encoding/json"

	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/toolbox"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxToolRounds = 5

// ErrToolRoundsExhausted is returned, along with the last reply, when the
// model still asks for tools after the allowed number of rounds.
var ErrToolRoundsExhausted = errors.New("tool calls still pending")

// SendWithTools sends text with the tools of tb attached, runs the tool calls
// of every reply and sends their results back, until a reply comes without
// tool calls. maxRounds bounds the number of follow-up requests, zero or less
// means DefaultMaxToolRounds.
//
// options apply to the first request. Follow-ups keep its system message,
// streaming, progress callback and request params, but not its tool choice.
func (c *Client) SendWithTools(
	ctx context.Context,
	text string,
	tb *toolbox.Toolbox,
	maxRounds int,
	options ...SendOption,
) (*Reply, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	tools := tb.Tools()

	first := newSendOptions(options)
	followUp := func(fo *sendOptions) {
		fo.systemMessage = first.systemMessage
		fo.stream = first.stream
		fo.onProgress = first.onProgress
		fo.requestParams = first.requestParams
		fo.tools = tools
	}

	reply, err := c.SendMessage(ctx, text, append(append([]SendOption(nil), options...), WithTools(tools))...)
	if err != nil {
		return nil, err
	}

	for round := 0; len(reply.Message.ToolCalls) > 0; round++ {
		if round == maxRounds {
			return reply, errors.Wrapf(ErrToolRoundsExhausted, "after %d rounds", maxRounds)
		}

		results, err := c.runToolCalls(ctx, tb, reply.Message.ToolCalls)
		if err != nil {
			return nil, err
		}

		// all results but the last are stored directly, the last one is sent
		// and carries the whole chain with it
		parentID := reply.ParentMessageID
		for _, r := range results[:len(results)-1] {
			msg := conversation.NewToolMessage(r.callID, r.content, conversation.WithParentID(parentID))
			c.store.Upsert(ctx, msg)
			parentID = msg.ID
		}
		last := results[len(results)-1]

		reply, err = c.SendMessage(ctx, last.content,
			followUp,
			WithToolCallID(last.callID),
			WithParentMessageID(parentID),
		)
		if err != nil {
			return nil, err
		}
	}

	return reply, nil
}

type toolResult struct {
	callID  string
	content string
}

// runToolCalls executes calls concurrently. A failing tool does not fail the
// round, its error is reported to the model as the result.
func (c *Client) runToolCalls(ctx context.Context, tb *toolbox.Toolbox, calls []go_openai.ToolCall) ([]toolResult, error) {
	ctx, release := abort.Bind(ctx, c.scope)
	defer release()

	results := make([]toolResult, len(calls))
	g := errgroup.Group{}
	g.SetLimit(4)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			content, err := tb.Execute(ctx, call)
			if err != nil {
				c.logger.Debug().Err(err).Str("tool", call.Function.Name).Str("call_id", call.ID).Msg("tool call failed")
				content = toolErrorContent(err)
			}
			results[i] = toolResult{callID: call.ID, content: content}
			return nil
		})
	}
	_ = g.Wait()

	if cause := abort.FromContext(ctx); cause != nil {
		return nil, cause
	}
	return results, nil
}

func toolErrorContent(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
