package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

type sinksKey struct{}

// WithEventSinks returns a context carrying sinks in addition to those ctx
// already carries. The client publishes every event of a call to the sinks
// found in the call's context, which lets one call be observed without
// configuring the client.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := EventSinksFromContext(ctx)
	combined := make([]EventSink, 0, len(existing)+len(sinks))
	combined = append(combined, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, sinksKey{}, combined)
}

func EventSinksFromContext(ctx context.Context) []EventSink {
	sinks, _ := ctx.Value(sinksKey{}).([]EventSink)
	return sinks
}

// PublishToContext publishes event to the sinks of ctx. A failing sink is
// logged and skipped.
func PublishToContext(ctx context.Context, event Event) {
	for _, sink := range EventSinksFromContext(ctx) {
		if err := sink.PublishEvent(event); err != nil {
			log.Debug().Err(err).Str("event_type", string(event.Type())).Msg("context event sink failed")
		}
	}
}
