package hostctx

import (
	"context"
	"log/slog"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/event/topic"
)

// EventPrefix namespaces plugin events on the host bus.
const EventPrefix topic.Topic = "plughost"

// Events is the publish/subscribe capability given to plugins.
type Events struct {
	bus    *event.Bus
	logger *slog.Logger
}

// Topic returns the namespaced bus topic for a plugin event name.
func Topic(name string) topic.Topic {
	return EventPrefix.Child(name)
}

// Emit publishes payload under name. Invalid names are dropped.
func (e *Events) Emit(ctx context.Context, name string, payload any) {
	if err := e.bus.Publish(ctx, Topic(name), payload); err != nil {
		e.logger.Debug("Plugin event dropped.", "event", name, "error", err)
	}
}

// On subscribes handler to name. Names Emit would drop, such as wildcard
// patterns or names with empty segments, are rejected with a no-op. The
// returned function unsubscribes and is safe to call any number of times.
func (e *Events) On(name string, handler func(payload any)) func() {
	if handler == nil {
		return func() {}
	}
	t := Topic(name)
	if !t.IsValid() || t.IsWildcard() {
		e.logger.Debug("Plugin subscription rejected.", "event", name, "error", event.ErrInvalidTopic)
		return func() {}
	}
	sub, err := e.bus.Subscribe(t, func(_ context.Context, ev event.Event) {
		handler(ev.Payload)
	})
	if err != nil {
		e.logger.Debug("Plugin subscription rejected.", "event", name, "error", err)
		return func() {}
	}
	return sub.Cancel
}

// Bus returns the underlying host bus.
func (e *Events) Bus() *event.Bus {
	return e.bus
}
