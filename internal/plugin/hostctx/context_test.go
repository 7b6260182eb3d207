package hostctx

import (
	"context"
	"testing"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/kv"
)

func TestNavigateDelegates(t *testing.T) {
	var got []string
	hc := New(WithNavigator(NavigatorFunc(func(path string) { got = append(got, path) })))

	hc.Navigate("/polls/1")

	if len(got) != 1 || got[0] != "/polls/1" {
		t.Errorf("navigator received %v, want [/polls/1]", got)
	}
}

func TestNavigateWithoutNavigatorIsNoop(t *testing.T) {
	hc := New()
	hc.Navigate("/anywhere")
	hc.InsertText("text")
}

func TestInsertTextOverride(t *testing.T) {
	var got string
	hc := New(WithTextInserter(func(text string) { got = text }))
	hc.InsertText("hello")
	if got != "hello" {
		t.Errorf("inserted %q, want hello", got)
	}
}

func TestThemeIsSnapshot(t *testing.T) {
	scheme := Dark
	hc := New(WithColorSchemeSource(func() ColorScheme { return scheme }))

	scheme = Light
	if hc.Theme.ColorScheme != Dark {
		t.Errorf("ColorScheme = %q, want dark snapshot", hc.Theme.ColorScheme)
	}
}

func TestThemeDefaults(t *testing.T) {
	if got := New().Theme.ColorScheme; got != Light {
		t.Errorf("default ColorScheme = %q, want light", got)
	}
	if got := New(WithColorScheme("purple")).Theme.ColorScheme; got != Light {
		t.Errorf("unknown ColorScheme = %q, want light", got)
	}
}

func TestSessionIDUnique(t *testing.T) {
	a, b := New(), New()
	if a.SessionID == "" || a.SessionID == b.SessionID {
		t.Errorf("session IDs %q and %q should be distinct and non-empty", a.SessionID, b.SessionID)
	}
}

func TestStorageNamespacesKeys(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	hc := New(WithStore(store))

	if err := hc.Storage.Set(ctx, "draft", map[string]any{"text": "hi"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, err := store.Get(ctx, StoragePrefix+"draft")
	if err != nil {
		t.Fatalf("backing store missing namespaced key: %v", err)
	}
	if string(raw) != `{"text":"hi"}` {
		t.Errorf("stored %s", raw)
	}

	got, ok := hc.Storage.Get(ctx, "draft").(map[string]any)
	if !ok || got["text"] != "hi" {
		t.Errorf("Get() = %#v", hc.Storage.Get(ctx, "draft"))
	}
}

func TestStorageGetTolerantOfBadData(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	hc := New(WithStore(store))

	_ = store.Set(ctx, StoragePrefix+"corrupt", []byte("{nope"))

	if v := hc.Storage.Get(ctx, "corrupt"); v != nil {
		t.Errorf("Get(corrupt) = %v, want nil", v)
	}
	if v := hc.Storage.Get(ctx, "missing"); v != nil {
		t.Errorf("Get(missing) = %v, want nil", v)
	}

	_ = store.Close()
	if v := hc.Storage.Get(ctx, "corrupt"); v != nil {
		t.Errorf("Get() on closed store = %v, want nil", v)
	}
}

func TestStorageSetRejectsUnencodable(t *testing.T) {
	hc := New()
	if err := hc.Storage.Set(context.Background(), "fn", func() {}); err == nil {
		t.Error("Set(func) error = nil, want encode error")
	}
}

func TestEventsNamespacedOverHostBus(t *testing.T) {
	ctx := context.Background()
	bus := event.NewBus()
	hc := New(WithBus(bus))

	var hostSaw, pluginSaw any
	_, _ = bus.Subscribe("plughost.poll:voted", func(_ context.Context, ev event.Event) { hostSaw = ev.Payload })
	unsub := hc.Events.On("poll:voted", func(p any) { pluginSaw = p })

	hc.Events.Emit(ctx, "poll:voted", 3)

	if hostSaw != 3 || pluginSaw != 3 {
		t.Errorf("host saw %v, plugin saw %v; want 3 and 3", hostSaw, pluginSaw)
	}

	// Unrelated host topics do not reach plugin handlers.
	pluginSaw = nil
	_ = bus.Publish(ctx, "poll:voted", 4)
	if pluginSaw != nil {
		t.Errorf("plugin handler received un-namespaced event %v", pluginSaw)
	}

	unsub()
	unsub()
	hc.Events.Emit(ctx, "poll:voted", 5)
	if pluginSaw != nil {
		t.Errorf("handler called after unsubscribe with %v", pluginSaw)
	}
}

func TestEventsOnInvalid(t *testing.T) {
	hc := New()
	unsub := hc.Events.On("", func(any) {})
	unsub()
	unsub = hc.Events.On("x", nil)
	unsub()
	hc.Events.Emit(context.Background(), "", nil)
}

func TestEventsOnRejectsNamesEmitDrops(t *testing.T) {
	bus := event.NewBus()
	hc := New(WithBus(bus))

	for _, name := range []string{"", "*", "poll.*", "**", "a..b", "poll."} {
		called := false
		unsub := hc.Events.On(name, func(any) { called = true })
		if n := bus.Stats().Subscriptions; n != 0 {
			t.Errorf("On(%q) subscribed, subscriptions = %d", name, n)
		}
		hc.Events.Emit(context.Background(), "poll.voted", 1)
		if called {
			t.Errorf("On(%q) handler received poll.voted", name)
		}
		unsub()
	}

	unsub := hc.Events.On("poll.voted", func(any) {})
	defer unsub()
	if n := bus.Stats().Subscriptions; n != 1 {
		t.Errorf("valid name subscriptions = %d, want 1", n)
	}
}
