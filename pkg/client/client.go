// Package client talks to an OpenAI compatible chat completions endpoint and
// keeps the conversation on the client side. Every SendMessage persists the
// question, rebuilds the prompt from the stored parent chain under a token
// budget, and persists the assistant reply once it has fully arrived.
package client

import (
	"context"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/helpers"
	"github.com/go-go-golems/convo/pkg/history"
	"github.com/go-go-golems/convo/pkg/markdown"
	"github.com/go-go-golems/convo/pkg/security"
	"github.com/go-go-golems/convo/pkg/settings"
	"github.com/go-go-golems/convo/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	settings   *settings.Settings
	store      conversation.Store
	estimator  tokens.Estimator
	transport  Doer
	renderer   markdown.Renderer
	sinks      []events.EventSink
	publishers *events.PublisherManager
	logger     zerolog.Logger
	endpoints  security.Policy

	// scope is the cancellation signal shared by all requests of the client
	scope *abort.Scope
}

type Option func(*Client)

func WithStore(store conversation.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

func WithEstimator(estimator tokens.Estimator) Option {
	return func(c *Client) {
		c.estimator = estimator
	}
}

func WithTransport(transport Doer) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithRenderer replaces the markdown transform applied to assistant content.
// It takes effect regardless of the Markdown2HTML setting.
func WithRenderer(renderer markdown.Renderer) Option {
	return func(c *Client) {
		c.renderer = renderer
	}
}

// WithPublisher publishes chat events as JSON on topic. Messages carry a
// sequence_number metadata key counting the client's events.
func WithPublisher(publisher message.Publisher, topic string) Option {
	return func(c *Client) {
		c.publishers.AddPublisher(topic, publisher)
	}
}

func WithEventSink(sink events.EventSink) Option {
	return func(c *Client) {
		c.sinks = append(c.sinks, sink)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New validates s and builds a client. s is copied, later changes to it have
// no effect on the client.
func New(s *settings.Settings, options ...Option) (*Client, error) {
	if s == nil {
		s = settings.NewSettings()
	}
	s = s.Clone()
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}

	c := &Client{
		settings:  s,
		endpoints: security.Policy{
			AllowHTTP:          s.Client.AllowHTTP,
			AllowLocalNetworks: s.Client.AllowLocalNetworks,
		},
		publishers: events.NewPublisherManager(),
		scope:      abort.NewScope(),
	}
	if _, err := c.endpoints.Check(s.Client.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid base url")
	}

	if s.Client.Debug {
		c.logger = log.With().Str("component", "convo.client").Logger()
	} else {
		c.logger = zerolog.Nop()
	}

	for _, option := range options {
		option(c)
	}

	if c.store == nil {
		c.store = conversation.NewMemoryStore()
	}
	if c.estimator == nil {
		if s.Chat.Encoding != "" {
			c.estimator = tokens.NewTiktokenEstimator(s.Chat.Encoding)
		} else {
			c.estimator = tokens.ForModel(helpers.Deref(s.Chat.Engine, settings.DefaultModel))
		}
	}
	if c.transport == nil {
		if s.Client.HTTPClient != nil {
			c.transport = s.Client.HTTPClient
		} else {
			// no client-level timeout, SendMessage bounds the whole call
			c.transport = &http.Client{}
		}
	}
	if c.renderer == nil {
		if s.Chat.Markdown2HTML {
			c.renderer = markdown.NewHTML()
		} else {
			c.renderer = markdown.Identity
		}
	}

	return c, nil
}

// Settings returns a copy of the settings the client runs with.
func (c *Client) Settings() *settings.Settings {
	return c.settings.Clone()
}

func (c *Client) GetMessage(ctx context.Context, id string) (*conversation.Message, bool) {
	return c.store.Get(ctx, id)
}

// Thread returns the stored conversation that ends at leafID, root first.
func (c *Client) Thread(ctx context.Context, leafID string) conversation.Conversation {
	return conversation.Thread(ctx, c.store, leafID)
}

// ClearMessages removes every stored message.
func (c *Client) ClearMessages(ctx context.Context) {
	c.store.Clear(ctx)
}

// Cancel aborts every request of this client that is currently in flight
// and lets later requests start normally. The aborted calls fail with an
// *abort.CanceledError carrying reason.
func (c *Client) Cancel(reason string) {
	c.logger.Debug().Str("reason", reason).Msg("canceling in-flight requests")
	c.scope.Cancel(&abort.CanceledError{Reason: reason})
}

func (c *Client) historyBuilder() *history.Builder {
	return &history.Builder{
		Store:             c.store,
		Estimator:         c.estimator,
		MaxModelTokens:    c.settings.Chat.MaxModelTokens,
		MaxResponseTokens: c.settings.Chat.MaxResponseTokens,
		IncludeHistory:    c.settings.Chat.IncludeHistory,
		Logger:            c.logger,
	}
}

// publish hands event to the client's sinks and publishers, then to the
// sinks of ctx. Delivery failures never fail the call.
func (c *Client) publish(ctx context.Context, event events.Event) {
	for _, sink := range c.sinks {
		if err := sink.PublishEvent(event); err != nil {
			c.logger.Debug().Err(err).Str("event_type", string(event.Type())).Msg("event sink failed")
		}
	}
	if c.publishers.Len() > 0 {
		if err := c.publishers.PublishEvent(event); err != nil {
			c.logger.Debug().Err(err).Str("event_type", string(event.Type())).Msg("event publisher failed")
		}
	}
	events.PublishToContext(ctx, event)
}
