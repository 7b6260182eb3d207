package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin"
)

func html(format string) plugin.RenderFunc {
	return func(_ context.Context, props plugin.Props) (string, error) {
		return fmt.Sprintf(format, props["name"]), nil
	}
}

type fixture struct {
	handler http.Handler
	manager *plugin.Manager
	ran     atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	catalog, err := i18n.NewCatalog("en")
	if err != nil {
		t.Fatal(err)
	}

	demo := plugin.Descriptor{
		ID:           "demo",
		Name:         "Demo",
		APIVersion:   "1.0",
		Capabilities: plugin.AllCapabilities(),
		Translations: map[string]i18n.Resources{"en": {"title": "Demo"}},
		Setup: func(args plugin.SetupArgs) error {
			args.Register(plugin.Exports{
				Feed: &plugin.FeedRenderer{Kind: "poll", Renderer: html("<poll>%v</poll>")},
				Composer: &plugin.ComposerAction{ID: "new-poll", Label: "Poll", Run: func(context.Context, plugin.Props) error {
					f.ran.Add(1)
					return nil
				}},
				ItemActions: func(item plugin.Item) []plugin.ItemAction {
					if item.Kind != "poll" {
						return nil
					}
					return []plugin.ItemAction{{ID: "close", Label: "Close", Run: func(context.Context) error {
						f.ran.Add(1)
						return nil
					}}}
				},
				Routes: []plugin.Route{
					{Path: "/polls", Element: html("<h1>%v</h1>")},
					{Path: "/broken", Element: plugin.RenderFunc(func(context.Context, plugin.Props) (string, error) {
						panic("bad element")
					})},
				},
				Modals:      map[string]plugin.Renderable{"vote": html("<dialog>%v</dialog>")},
				Menu:        []plugin.NavItem{{ID: "polls", Label: "Polls", Path: "/polls"}},
				Attachments: func() []plugin.AttachmentSpec { return []plugin.AttachmentSpec{{ID: "poll", Label: "Poll"}} },
			})
			return nil
		},
	}
	failing := plugin.Descriptor{
		ID:         "failing",
		APIVersion: "1.0",
		Setup:      func(plugin.SetupArgs) error { return errors.New("nope") },
	}

	f.manager = plugin.NewManager(plugin.DefaultManagerConfig(),
		plugin.WithManagerCatalog(catalog),
		plugin.WithLocalPlugins(demo, failing),
	)
	f.manager.Load(context.Background())

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("metrics"))
	})
	f.handler = NewHandlers(f.manager, WithTranslator(catalog), WithMetrics(metrics)).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPluginsReport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/plugins", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rep := decode[struct {
		Plugins []struct {
			ID    string `json:"id"`
			State string `json:"state"`
			Error string `json:"error"`
		} `json:"plugins"`
	}](t, rec)
	if len(rep.Plugins) != 2 {
		t.Fatalf("plugins = %+v", rep.Plugins)
	}
	if rep.Plugins[1].State != "failed" || !strings.Contains(rep.Plugins[1].Error, "nope") {
		t.Errorf("failing plugin = %+v", rep.Plugins[1])
	}

	if rec := f.do(t, "GET", "/api/plugins/demo", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /api/plugins/demo = %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/api/plugins/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/plugins/missing = %d", rec.Code)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		target string
		want   string
	}{
		{"/api/feed", `"kind":"poll"`},
		{"/api/composer", `"id":"new-poll"`},
		{"/api/routes", `"path":"/polls"`},
		{"/api/modals", `"name":"vote"`},
		{"/api/menu", `"label":"Polls"`},
		{"/api/attachments", `"id":"poll"`},
		{"/api/capabilities", `"name":"item-actions"`},
		{"/api/registry", `"routes":2`},
		{"/healthz", `"ok"`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(t, "GET", tt.target, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %s missing %s", rec.Body.String(), tt.want)
			}
			if !strings.Contains(rec.Body.String(), `"pluginId":"demo"`) && strings.HasPrefix(tt.target, "/api/") &&
				tt.target != "/api/capabilities" && tt.target != "/api/registry" {
				t.Errorf("body %s missing plugin provenance", rec.Body.String())
			}
		})
	}
}

func TestRenderRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/ui/polls?name=Lunch", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "<h1>Lunch</h1>" {
		t.Errorf("GET /ui/polls = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	if rec := f.do(t, "GET", "/ui/nowhere", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/ui/broken", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("panicking route = %d", rec.Code)
	}
}

func TestRenderModalAndFeed(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "GET", "/api/modals/vote?name=A", ""); rec.Body.String() != "<dialog>A</dialog>" {
		t.Errorf("GET modal = %q", rec.Body.String())
	}
	if rec := f.do(t, "POST", "/api/modals/vote", `{"name":"B"}`); rec.Body.String() != "<dialog>B</dialog>" {
		t.Errorf("POST modal = %q", rec.Body.String())
	}
	if rec := f.do(t, "GET", "/api/modals/none", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown modal = %d", rec.Code)
	}

	if rec := f.do(t, "POST", "/api/feed/poll", `{"name":"Q"}`); rec.Body.String() != "<poll>Q</poll>" {
		t.Errorf("feed render = %d %q", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, "POST", "/api/feed/poll", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad props = %d", rec.Code)
	}
	if rec := f.do(t, "POST", "/api/feed/other", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown feed kind = %d", rec.Code)
	}
}

func TestItemActions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/items/actions?id=1&kind=poll", "")
	actions := decode[[]map[string]any](t, rec)
	if len(actions) != 1 || actions[0]["id"] != "close" || actions[0]["pluginId"] != "demo" {
		t.Errorf("actions = %v", actions)
	}

	rec = f.do(t, "GET", "/api/items/actions?id=1&kind=note", "")
	if got := decode[[]map[string]any](t, rec); len(got) != 0 {
		t.Errorf("actions for other kind = %v", got)
	}
	if rec := f.do(t, "GET", "/api/items/actions", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing kind = %d", rec.Code)
	}

	if rec := f.do(t, "POST", "/api/items/actions/close?id=1&kind=poll", ""); rec.Code != http.StatusNoContent {
		t.Errorf("run item action = %d", rec.Code)
	}
	if rec := f.do(t, "POST", "/api/items/actions/open?id=1&kind=poll", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown item action = %d", rec.Code)
	}
	if rec := f.do(t, "POST", "/api/composer/new-poll", `{"q":"x"}`); rec.Code != http.StatusNoContent {
		t.Errorf("run composer = %d", rec.Code)
	}
	if f.ran.Load() != 2 {
		t.Errorf("actions ran %d times, want 2", f.ran.Load())
	}
}

func TestTranslations(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/i18n/en-GB/demo/title", "")
	if got := decode[map[string]string](t, rec); got["text"] != "Demo" {
		t.Errorf("translate = %d %v", rec.Code, got)
	}
	if rec := f.do(t, "GET", "/api/i18n/en/demo/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing key = %d", rec.Code)
	}
	rec = f.do(t, "GET", "/api/i18n/en", "")
	if got := decode[[]string](t, rec); len(got) != 1 || got[0] != "demo" {
		t.Errorf("namespaces = %v", got)
	}
}

func TestReloadAndMetrics(t *testing.T) {
	f := newFixture(t)
	first := f.manager.LastReport().Started

	rec := f.do(t, "POST", "/api/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload = %d", rec.Code)
	}
	if !f.manager.LastReport().Started.After(first) {
		t.Error("reload did not run a new cycle")
	}
	if _, ok := f.manager.Registry().Route("/polls"); !ok {
		t.Error("routes missing after reload")
	}

	if rec := f.do(t, "GET", "/metrics", ""); rec.Body.String() != "metrics" {
		t.Errorf("metrics = %q", rec.Body.String())
	}
	if rec := f.do(t, "GET", "/api/reload", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/reload = %d, want 405", rec.Code)
	}
}
