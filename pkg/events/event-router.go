package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventRouter owns an in-process gochannel pub/sub and a watermill router
// running handlers over it. Publishing blocks until every subscriber has
// acked the message, so a handler has seen an event once the publishing
// call returns.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

// WithVerbose logs watermill internals through the global zerolog logger and
// keeps the metadata in DumpRawEvents output.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating watermill router")
	}
	ret.router = router

	return ret, nil
}

// Sink publishes events to topic on the router's pub/sub.
func (e *EventRouter) Sink(topic string) EventSink {
	return NewWatermillSink(e.Publisher, topic)
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// AddEventHandler registers f for the decoded events of topic. Messages are
// acked whether or not f fails, a chat event is never redelivered.
func (e *EventRouter) AddEventHandler(name string, topic string, f func(event Event) error) {
	e.AddHandler(name, topic, func(msg *message.Message) error {
		defer msg.Ack()
		event, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		return f(event)
	})
}

// DumpRawEvents returns a handler writing every event to w as one line of
// JSON. Unless the router is verbose, the metadata is reduced to the
// message id.
func (e *EventRouter) DumpRawEvents(w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		var fields map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &fields); err != nil {
			return errors.Wrap(err, "decoding event")
		}
		if e.verbose {
			fields["watermill"] = msg.Metadata
		} else {
			meta, _ := fields["meta"].(map[string]interface{})
			delete(fields, "meta")
			if id, ok := meta["message_id"]; ok {
				fields["message_id"] = id
			}
		}

		line, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(line))
		return err
	}
}

// Running is closed once all handlers are subscribed.
func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

// Run blocks until ctx is done or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Close() error {
	var firstErr error
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close pubsub")
		firstErr = err
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close router")
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
