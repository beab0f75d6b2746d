package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSink is a destination for chat events.
type EventSink interface {
	PublishEvent(event Event) error
}

// SinkFunc adapts a plain function to EventSink.
type SinkFunc func(event Event) error

func (f SinkFunc) PublishEvent(event Event) error {
	return f(event)
}

// Metadata keys set on every watermill message carrying an event.
const (
	MetadataEventType = "event_type"
	MetadataMessageID = "message_id"
	MetadataSequence  = "sequence_number"
)

func newEventMessage(event Event) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %s event", event.Type())
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataEventType, string(event.Type()))
	if id := event.Metadata().MessageID; id != "" {
		msg.Metadata.Set(MetadataMessageID, id)
	}
	return msg, nil
}

// WatermillSink publishes events as JSON messages on a single topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ EventSink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	msg, err := newEventMessage(event)
	if err != nil {
		return err
	}
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		return errors.Wrapf(err, "publishing event to %s", w.topic)
	}
	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("published event")
	return nil
}
