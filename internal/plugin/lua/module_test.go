package lua

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

const pollsModule = `
local M = {
  id = "polls",
  name = "Polls",
  version = "0.3.0",
  apiVersion = "1.0",
  description = "Polls in the feed",
  capabilities = { "feed", "composer", "item-actions", "routes", "modals" },
  translations = {
    en = { title = "Polls", vote = { cta = "Vote" } },
    de = { title = "Umfragen" },
  },
}

function M.setup(host, register)
  local votes = 0
  host.events.on("poll.voted", function(payload)
    votes = votes + 1
    host.storage.set("votes", { count = votes, last = payload.option })
  end)

  register({
    feed = { kind = "poll", render = function(props)
      return "<poll>" .. props.question .. "</poll>"
    end },
    composer = { id = "poll.new", label = "Poll", icon = "chart", run = function(input)
      host.insertText("[poll:" .. input.question .. "]")
    end },
    itemActions = function(item)
      if item.kind ~= "poll" then return {} end
      return { { id = "vote", label = "Vote", run = function()
        host.events.emit("poll.voted", { option = item.data.option })
      end } }
    end,
    routes = { { path = "/polls", element = function(props)
      host.navigate("/polls/" .. (props.id or "all"))
      return "<polls theme='" .. host.theme.colorScheme .. "'/>"
    end } },
    modals = { ["poll.create"] = function() return "<dialog/>" end },
    menu = { { id = "polls", label = "Polls", icon = "chart", path = "/polls" } },
    attachments = function()
      return { { id = "poll", label = "Poll", accept = { "application/json" } } }
    end,
  })
end

return { default = M }
`

func serve(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/x-lua")
		w.Write([]byte(src))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModuleLoaderEndToEnd(t *testing.T) {
	srv := serve(t, map[string]string{"/polls.lua": pollsModule})

	var navigated []string
	var inserted []string
	host := hostctx.New(
		hostctx.WithColorScheme(hostctx.Dark),
		hostctx.WithNavigator(hostctx.NavigatorFunc(func(p string) { navigated = append(navigated, p) })),
		hostctx.WithTextInserter(func(s string) { inserted = append(inserted, s) }),
	)
	cat, err := i18n.NewCatalog("en")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	reg := plugin.NewRegistry()
	ext := plugin.NewExternalLoader(reg, host, NewModuleLoader(), plugin.WithCatalog(cat))
	defer ext.Close()

	rep := ext.Load(context.Background(), []string{srv.URL + "/polls.lua"})
	if rep.Count(plugin.StateLoaded) != 1 {
		t.Fatalf("report = %+v", rep.Plugins)
	}
	st := rep.Plugins[0]
	if st.ID != "polls" || st.Version != "0.3.0" {
		t.Errorf("status = %+v", st)
	}

	ctx := context.Background()

	feed, ok := reg.Feed("poll")
	if !ok {
		t.Fatal("feed renderer missing")
	}
	out, err := feed.Renderer.Render(ctx, plugin.Props{"question": "Lunch?"})
	if err != nil || out != "<poll>Lunch?</poll>" {
		t.Errorf("feed render = %q, %v", out, err)
	}

	route, ok := reg.Route("/polls")
	if !ok {
		t.Fatal("route missing")
	}
	out, err = route.Element.Render(ctx, plugin.Props{"id": "7"})
	if err != nil || out != "<polls theme='dark'/>" {
		t.Errorf("route render = %q, %v", out, err)
	}
	if len(navigated) != 1 || navigated[0] != "/polls/7" {
		t.Errorf("navigated = %v", navigated)
	}

	if modal, ok := reg.Modal("poll.create"); !ok || modal.PluginID != "polls" {
		t.Errorf("modal = %+v, %v", modal, ok)
	}
	if menu := reg.Menu(); len(menu) != 1 || menu[0].Value.Path != "/polls" {
		t.Errorf("menu = %+v", menu)
	}
	if att := reg.Attachments(); len(att) != 1 || att[0].Value.Accept[0] != "application/json" {
		t.Errorf("attachments = %+v", att)
	}

	composer := reg.Composer()
	if len(composer) != 1 || composer[0].Value.Run == nil {
		t.Fatalf("composer = %+v", composer)
	}
	if err := composer[0].Value.Run(ctx, plugin.Props{"question": "Q"}); err != nil {
		t.Fatalf("composer run: %v", err)
	}
	if len(inserted) != 1 || inserted[0] != "[poll:Q]" {
		t.Errorf("inserted = %v", inserted)
	}

	actions := reg.ItemActions(plugin.Item{ID: "1", Kind: "poll", Data: plugin.Props{"option": "pizza"}})
	if len(actions) != 1 || actions[0].Value.ID != "vote" {
		t.Fatalf("actions = %+v", actions)
	}
	if err := actions[0].Value.Run(ctx); err != nil {
		t.Fatalf("vote: %v", err)
	}

	// The event handler runs asynchronously on the module executor.
	deadline := time.Now().Add(2 * time.Second)
	var stored any
	for time.Now().Before(deadline) {
		if stored = host.Storage.Get(ctx, "votes"); stored != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	votes, ok := stored.(map[string]any)
	if !ok || votes["last"] != "pizza" {
		t.Errorf("stored votes = %#v", stored)
	}

	if got, _ := cat.Translate("de", "polls", "title"); got != "Umfragen" {
		t.Errorf("de title = %q", got)
	}
	if got, _ := cat.Translate("en", "polls", "vote.cta"); got != "Vote" {
		t.Errorf("en vote.cta = %q", got)
	}
}

func TestModuleCloseStopsRendersAndHandlers(t *testing.T) {
	srv := serve(t, map[string]string{"/polls.lua": pollsModule})
	host := hostctx.New()
	reg := plugin.NewRegistry()
	ext := plugin.NewExternalLoader(reg, host, NewModuleLoader())

	ext.Load(context.Background(), []string{srv.URL + "/polls.lua"})
	feed, _ := reg.Feed("poll")

	before := host.Events.Bus().Stats().Subscriptions
	if err := ext.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if after := host.Events.Bus().Stats().Subscriptions; after != before-1 {
		t.Errorf("subscriptions = %d, want %d", after, before-1)
	}

	if _, err := feed.Renderer.Render(context.Background(), plugin.Props{"question": "x"}); !IsClosedErr(err) {
		t.Errorf("render after close = %v, want ErrExecutorClosed", err)
	}
}

func TestModuleLoaderErrors(t *testing.T) {
	srv := serve(t, map[string]string{
		"/syntax.lua": `return {`,
		"/number.lua": `return 42`,
		"/noid.lua":   `return { name = "anon", apiVersion = "1.0" }`,
		"/raises.lua": `error("kaboom")`,
		"/big.lua":    `return {}` + strings.Repeat(" ", 64),
		"/badreg.lua": `return { id = "bad", apiVersion = "1.0", capabilities = { "routes" }, setup = function(h, register) register({ routes = { { path = "/x" } } }) end }`,
	})

	tests := []struct {
		name string
		url  string
		opts []LoaderOption
		want error
	}{
		{"not found", srv.URL + "/missing.lua", nil, ErrFetch},
		{"syntax", srv.URL + "/syntax.lua", nil, ErrCompile},
		{"not a table", srv.URL + "/number.lua", nil, ErrNotDescriptor},
		{"missing id", srv.URL + "/noid.lua", nil, ErrMissingID},
		{"too large", srv.URL + "/big.lua", []LoaderOption{WithMaxModuleSize(16)}, ErrModuleTooLarge},
		{"scheme", "ftp://example.com/p.lua", nil, ErrUnsupportedScheme},
		{"file disabled", "file:///tmp/p.lua", nil, ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModuleLoader(tt.opts...).Load(context.Background(), tt.url)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load(%s) error = %v, want %v", tt.url, err, tt.want)
			}
		})
	}

	if _, err := NewModuleLoader().Load(context.Background(), srv.URL+"/raises.lua"); err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("runtime error = %v", err)
	}

	// An invalid export is skipped; the plugin still loads with nothing registered.
	reg := plugin.NewRegistry()
	ext := plugin.NewExternalLoader(reg, hostctx.New(), NewModuleLoader())
	defer ext.Close()
	rep := ext.Load(context.Background(), []string{srv.URL + "/badreg.lua"})
	if rep.Plugins[0].State != plugin.StateLoaded {
		t.Errorf("bad register = %+v", rep.Plugins[0])
	}
	if reg.Counts().Total() != 0 {
		t.Errorf("registry should be empty, got %v", reg.Counts())
	}
}

func TestModuleLoaderFileURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.lua")
	src := `return { id = "hello", apiVersion = "1.1", capabilities = { "routes" },
	  setup = function(host, register)
	    register({ routes = { { path = "/hello", element = function() return "hi" end } } })
	  end }`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mod, err := NewModuleLoader(WithFileURLs(true)).Load(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer mod.Close()

	d := mod.Descriptor()
	if d.ID != "hello" || !d.Compatible() || d.Setup == nil {
		t.Fatalf("descriptor = %+v", d)
	}
	if m, ok := mod.(*Module); !ok || m.URL() != "file://"+path {
		t.Errorf("module URL mismatch")
	}

	reg := plugin.NewRegistry()
	err = d.Setup(plugin.SetupArgs{
		Context: context.Background(),
		Host:    hostctx.New(),
		Register: func(ex plugin.Exports) {
			reg.Merge(d.ID, d.Claimed(), 0, ex)
		},
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	rt, ok := reg.Route("/hello")
	if !ok {
		t.Fatal("route missing")
	}
	if out, _ := rt.Element.Render(context.Background(), nil); out != "hi" {
		t.Errorf("render = %q", out)
	}
}

func TestModuleLoaderHonorsContext(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewModuleLoader().Load(ctx, slow.URL+"/p.lua")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestRenderRejectsNonString(t *testing.T) {
	srv := serve(t, map[string]string{"/p.lua": `return { id = "p", apiVersion = "1.0", capabilities = { "modals" },
	  setup = function(h, register) register({ modals = { m = function() return {} end } }) end }`})

	reg := plugin.NewRegistry()
	ext := plugin.NewExternalLoader(reg, hostctx.New(), NewModuleLoader())
	defer ext.Close()
	ext.Load(context.Background(), []string{srv.URL + "/p.lua"})

	m, ok := reg.Modal("m")
	if !ok {
		t.Fatal("modal missing")
	}
	if _, err := m.Value.Render(context.Background(), nil); !errors.Is(err, ErrRenderResult) {
		t.Errorf("error = %v, want ErrRenderResult", err)
	}
}

func TestAttachmentsProviderSkippedWithoutComposer(t *testing.T) {
	src := `
local M = { id = "links", version = "1.0.0", apiVersion = "1.0", capabilities = { "routes" } }
function M.setup(host, register)
  register({
    routes = { { path = "/links", element = function() return "<links/>" end } },
    attachments = function()
      host.storage.set("attachments-ran", true)
      return { { id = "link", label = "Link" } }
    end,
  })
end
return { default = M }
`
	srv := serve(t, map[string]string{"/links.lua": src})
	host := hostctx.New()
	reg := plugin.NewRegistry()
	ext := plugin.NewExternalLoader(reg, host, NewModuleLoader())
	defer ext.Close()

	rep := ext.Load(context.Background(), []string{srv.URL + "/links.lua"})
	if rep.Count(plugin.StateLoaded) != 1 {
		t.Fatalf("report = %+v", rep.Plugins)
	}
	if _, ok := reg.Route("/links"); !ok {
		t.Error("route missing")
	}
	if att := reg.Attachments(); len(att) != 0 {
		t.Errorf("attachments = %+v", att)
	}
	if v := host.Storage.Get(context.Background(), "attachments-ran"); v != nil {
		t.Errorf("attachments provider ran without composer: %v", v)
	}
}

func TestMalformedExportKeepsRestOfBundle(t *testing.T) {
	src := `
local M = { id = "mixed", version = "1.0.0", apiVersion = "1.0", capabilities = { "feed", "routes" } }
function M.setup(host, register)
  register({
    feed = { kind = "broken" },
    routes = {
      "not a table",
      { path = "/ok", element = function() return "ok" end },
      { path = "/no-element" },
    },
  })
end
return { default = M }
`
	srv := serve(t, map[string]string{"/mixed.lua": src})
	reg := plugin.NewRegistry()
	ext := plugin.NewExternalLoader(reg, hostctx.New(), NewModuleLoader())
	defer ext.Close()

	rep := ext.Load(context.Background(), []string{srv.URL + "/mixed.lua"})
	if rep.Count(plugin.StateLoaded) != 1 {
		t.Fatalf("report = %+v", rep.Plugins)
	}
	if _, ok := reg.Feed("broken"); ok {
		t.Error("malformed feed was registered")
	}
	route, ok := reg.Route("/ok")
	if !ok {
		t.Fatal("valid route dropped")
	}
	if out, err := route.Element.Render(context.Background(), nil); err != nil || out != "ok" {
		t.Errorf("route render = %q, %v", out, err)
	}
	if routes := reg.Routes(); len(routes) != 1 {
		t.Errorf("routes = %+v", routes)
	}
}
