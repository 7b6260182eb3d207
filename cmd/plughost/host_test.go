package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

func TestNavigatorPublishesOnBus(t *testing.T) {
	bus := event.NewBus()
	var got []any
	if _, err := bus.Subscribe(NavigateTopic, func(_ context.Context, ev event.Event) {
		got = append(got, ev.Payload)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	hc := hostctx.New(
		hostctx.WithBus(bus),
		hostctx.WithNavigator(navigator(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))),
	)
	hc.Navigate("/polls?id=7")

	if len(got) != 1 {
		t.Fatalf("navigation events = %v", got)
	}
	p, ok := got[0].(map[string]any)
	if !ok || p["path"] != "/polls?id=7" {
		t.Errorf("payload = %#v", got[0])
	}
}
