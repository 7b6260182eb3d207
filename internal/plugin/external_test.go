package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dshills/plughost/internal/plugin/hostctx"
)

type closingModule struct {
	d      Descriptor
	closed *int
}

func (m closingModule) Descriptor() Descriptor { return m.d }
func (m closingModule) Close() error {
	*m.closed++
	return nil
}

// fakeModules serves descriptors by URL. Unknown URLs fail.
func fakeModules(byURL map[string]Descriptor, closed *int) ModuleLoader {
	return ModuleLoaderFunc(func(ctx context.Context, url string) (Module, error) {
		d, ok := byURL[url]
		if !ok {
			return nil, fmt.Errorf("GET %s: 404", url)
		}
		return closingModule{d: d, closed: closed}, nil
	})
}

func TestExternalLoaderSkipsFailingURL(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	closed := 0
	reg := NewRegistry()
	l := NewExternalLoader(reg, hostctx.New(), fakeModules(map[string]Descriptor{
		"https://a.example/plugin.lua": routesPlugin("a", "/a"),
		"https://c.example/plugin.lua": routesPlugin("c", "/c"),
	}, &closed), WithLoaderLogger(logger))

	rep := l.Load(context.Background(), []string{
		"https://a.example/plugin.lua",
		"https://b.example/missing.lua",
		"https://c.example/plugin.lua",
	})

	if len(rep.Plugins) != 3 {
		t.Fatalf("len(report) = %d, want 3", len(rep.Plugins))
	}
	if rep.Plugins[1].State != StateFailed || !errors.Is(rep.Plugins[1].Err, ErrModuleLoad) {
		t.Errorf("middle URL status = %+v", rep.Plugins[1])
	}
	if _, ok := reg.Route("/a"); !ok {
		t.Error("/a missing")
	}
	if _, ok := reg.Route("/c"); !ok {
		t.Error("/c missing")
	}
	if !strings.Contains(logs.String(), "https://b.example/missing.lua") || !strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("expected a warning naming the URL, got:\n%s", logs.String())
	}
	if l.Retained() != 2 {
		t.Errorf("Retained() = %d, want 2", l.Retained())
	}
}

func TestExternalLoaderTimeout(t *testing.T) {
	reg := NewRegistry()
	slow := ModuleLoaderFunc(func(ctx context.Context, url string) (Module, error) {
		if url == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return NewModule(routesPlugin("fast", "/fast")), nil
	})
	l := NewExternalLoader(reg, hostctx.New(), slow, WithTimeout(20*time.Millisecond))

	start := time.Now()
	rep := l.Load(context.Background(), []string{"slow", "fast"})

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("load took %v, timeout not applied", elapsed)
	}
	if !errors.Is(rep.Plugins[0].Err, context.DeadlineExceeded) {
		t.Errorf("slow error = %v, want deadline exceeded", rep.Plugins[0].Err)
	}
	if rep.Plugins[1].State != StateLoaded {
		t.Errorf("fast state = %v", rep.Plugins[1].State)
	}
}

func TestExternalLoaderVersionGateClosesModule(t *testing.T) {
	closed := 0
	d := routesPlugin("old", "/old")
	d.APIVersion = "0.9"
	l := NewExternalLoader(NewRegistry(), hostctx.New(), fakeModules(map[string]Descriptor{"u": d}, &closed))

	rep := l.Load(context.Background(), []string{"u"})

	if rep.Plugins[0].State != StateSkipped {
		t.Errorf("state = %v, want skipped", rep.Plugins[0].State)
	}
	if closed != 1 || l.Retained() != 0 {
		t.Errorf("closed = %d retained = %d", closed, l.Retained())
	}
}

func TestExternalLoaderAllowList(t *testing.T) {
	reg := NewRegistry()
	d := Descriptor{
		ID:           "remote",
		APIVersion:   "1.2",
		Capabilities: []Capability{CapabilityRoutes, CapabilityModals},
		Setup: func(args SetupArgs) error {
			args.Register(Exports{
				Routes: []Route{{Path: "/remote"}},
				Modals: map[string]Renderable{"m": text("m")},
			})
			return nil
		},
	}
	l := NewExternalLoader(reg, hostctx.New(), ModuleLoaderFunc(func(context.Context, string) (Module, error) {
		return NewModule(d), nil
	}), WithAllow(NewCapabilitySet(CapabilityModals)))

	l.Load(context.Background(), []string{"x"})

	if _, ok := reg.Route("/remote"); ok {
		t.Error("route should be denied by allow list")
	}
	if _, ok := reg.Modal("m"); !ok {
		t.Error("modal should be allowed")
	}
}

func TestExternalLoaderSetupFailureAndPanic(t *testing.T) {
	reg := NewRegistry()
	failing := Descriptor{ID: "err", APIVersion: "1.0", Setup: func(SetupArgs) error { return errors.New("nope") }}
	panicking := Descriptor{ID: "panic", APIVersion: "1.0", Setup: func(SetupArgs) error { panic("boom") }}
	mods := map[string]Descriptor{
		"err":   failing,
		"panic": panicking,
		"ok":    routesPlugin("ok", "/ok"),
	}
	closed := 0
	l := NewExternalLoader(reg, hostctx.New(), fakeModules(mods, &closed))

	rep := l.Load(context.Background(), []string{"err", "panic", "ok"})

	if rep.Count(StateFailed) != 2 || rep.Count(StateLoaded) != 1 {
		t.Errorf("report = %+v", rep.Plugins)
	}
	if _, ok := reg.Route("/ok"); !ok {
		t.Error("/ok missing")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed != 3 || l.Retained() != 0 {
		t.Errorf("closed = %d retained = %d, want 3 and 0", closed, l.Retained())
	}
}

func TestExternalLoaderLoaderPanicAndNil(t *testing.T) {
	l := NewExternalLoader(NewRegistry(), hostctx.New(), ModuleLoaderFunc(func(_ context.Context, url string) (Module, error) {
		if url == "panic" {
			panic("loader")
		}
		return nil, nil
	}))
	rep := l.Load(context.Background(), []string{"panic", "nil"})
	if rep.Count(StateFailed) != 2 {
		t.Errorf("report = %+v", rep.Plugins)
	}

	none := NewExternalLoader(NewRegistry(), hostctx.New(), nil)
	rep = none.Load(context.Background(), []string{"u"})
	if !errors.Is(rep.Plugins[0].Err, ErrNoModuleLoader) {
		t.Errorf("error = %v, want ErrNoModuleLoader", rep.Plugins[0].Err)
	}
}
