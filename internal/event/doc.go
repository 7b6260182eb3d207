// Package event provides the host's ambient publish/subscribe bus.
//
// Events are addressed by hierarchical topics with dot notation:
//
//	plughost.poll.voted        - emitted by a plugin through its host context
//	host.plugin.loaded         - emitted by the plugin manager
//
// Subscriptions accept wildcard patterns:
//
//	plughost.*.voted           - "*" matches one segment
//	plughost.**                - "**" matches zero or more segments
//
// Delivery is synchronous: Publish calls every matching handler, in
// subscription order, before returning. A panicking handler is recovered
// and counted; it never prevents delivery to the remaining handlers.
//
//	bus := event.NewBus()
//	sub, _ := bus.Subscribe("plughost.**", func(ctx context.Context, ev event.Event) {
//	    fmt.Println(ev.Topic, ev.Payload)
//	})
//	defer sub.Cancel()
//
//	_ = bus.Publish(ctx, "plughost.poll.voted", map[string]any{"option": 2})
package event
