// Package history reconstructs the prompt for a chat turn by walking the
// parent chain of the conversation store backwards under a token budget.
package history

import (
	"context"

	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	go_openai "github.com/sashabaranov/go-openai"
)

type Builder struct {
	Store     conversation.Store
	Estimator tokens.Estimator

	MaxModelTokens    int
	MaxResponseTokens int
	// IncludeHistory disables the walk when false; only the system message
	// and the new question are sent.
	IncludeHistory bool

	Logger zerolog.Logger
}

// Request describes the turn to build a prompt for.
type Request struct {
	SystemMessage string
	// Question is the new message, sent last.
	Question *conversation.Message
	// ParentID is where the walk starts, usually the id of the previous
	// assistant reply. Empty means no history.
	ParentID string
}

type Prompt struct {
	// Messages is the system message, then history in chronological order,
	// then the question.
	Messages []go_openai.ChatCompletionMessage
	// MaxTokens is the response budget, always in [1, MaxResponseTokens].
	MaxTokens int
	// TokenCount is the estimated cost of Messages.
	TokenCount int
	// HistoryIDs lists the ids of the included history messages, oldest first.
	HistoryIDs []string
}

func (b *Builder) Validate() error {
	if b.Store == nil {
		return errors.New("history builder has no store")
	}
	if b.Estimator == nil {
		return errors.New("history builder has no token estimator")
	}
	if b.MaxResponseTokens < 1 {
		return errors.Errorf("max response tokens must be at least 1, got %d", b.MaxResponseTokens)
	}
	if b.MaxModelTokens <= b.MaxResponseTokens {
		return errors.Errorf("max model tokens (%d) must exceed max response tokens (%d)",
			b.MaxModelTokens, b.MaxResponseTokens)
	}
	return nil
}

// MessageCost estimates what one message adds to the prompt: its role and
// content, plus the names and arguments of its tool calls.
func MessageCost(e tokens.Estimator, role conversation.Role, content string, toolCalls []go_openai.ToolCall) int {
	n := e.Count(string(role) + content)
	if len(toolCalls) > 0 {
		n += e.Count(conversation.GetToolCallString(toolCalls))
	}
	return n
}

// Build assembles the prompt. The system message and the question are always
// included, even when they alone exceed the budget. History is added one
// message at a time, newest first, and the walk stops at the first message
// that would push the running total over MaxModelTokens-MaxResponseTokens.
func (b *Builder) Build(ctx context.Context, req Request) (*Prompt, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if req.Question == nil {
		return nil, errors.New("no question to build a prompt for")
	}

	budget := b.MaxModelTokens - b.MaxResponseTokens

	question := req.Question.ToChatCompletionMessage()
	system := go_openai.ChatCompletionMessage{
		Role:    string(conversation.RoleSystem),
		Content: req.SystemMessage,
	}

	tokenCount := MessageCost(b.Estimator, conversation.RoleSystem, system.Content, nil) +
		MessageCost(b.Estimator, req.Question.Role, question.Content, req.Question.ToolCalls)

	var history []go_openai.ChatCompletionMessage
	var historyIDs []string

	parentID := req.ParentID
	steps := 0
	seen := map[string]bool{}
	for b.IncludeHistory {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tokenCount > budget {
			b.Logger.Debug().Int("token_count", tokenCount).Int("budget", budget).
				Msg("mandatory messages exceed budget, not walking history")
			break
		}
		if parentID == "" {
			break
		}
		if seen[parentID] {
			break
		}
		seen[parentID] = true
		parent, ok := b.Store.Get(ctx, parentID)
		if !ok {
			break
		}

		cost := MessageCost(b.Estimator, parent.Role, parent.Content, parent.ToolCalls)
		if tokenCount+cost > budget {
			b.Logger.Debug().
				Str("message_id", parent.ID).
				Int("cost", cost).
				Int("token_count", tokenCount).
				Int("budget", budget).
				Msg("history message does not fit, stopping walk")
			break
		}

		tokenCount += cost
		// prepended: oldest messages end up right after the system message
		history = append([]go_openai.ChatCompletionMessage{parent.ToChatCompletionMessage()}, history...)
		historyIDs = append([]string{parent.ID}, historyIDs...)
		parentID = parent.ParentID
		steps++
	}

	messages := make([]go_openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, question)

	b.Logger.Trace().
		Int("history_messages", steps).
		Int("token_count", tokenCount).
		Msg("built prompt")

	return &Prompt{
		Messages:   messages,
		MaxTokens:  ResponseBudget(b.MaxModelTokens, b.MaxResponseTokens, tokenCount),
		TokenCount: tokenCount,
		HistoryIDs: historyIDs,
	}, nil
}

// ResponseBudget is max(1, min(maxModelTokens-used, maxResponseTokens)).
func ResponseBudget(maxModelTokens, maxResponseTokens, used int) int {
	n := maxModelTokens - used
	if maxResponseTokens < n {
		n = maxResponseTokens
	}
	if n < 1 {
		n = 1
	}
	return n
}
