package lua

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin"
)

// DefaultMaxModuleSize caps the size of a fetched module source.
const DefaultMaxModuleSize = 1 << 20

// ModuleLoader fetches Lua plugins over http(s) or from file URLs and
// evaluates them in a fresh sandboxed state. It implements plugin.ModuleLoader.
//
// A module chunk must return its descriptor table, either directly or under
// a "default" field:
//
//	return {
//	  id = "hello", name = "Hello", version = "1.0.0", apiVersion = "1.0",
//	  capabilities = { "routes" },
//	  setup = function(host, register)
//	    register({ routes = { { path = "/hello", element = function(props) return "hi" end } } })
//	  end,
//	}
type ModuleLoader struct {
	client    *http.Client
	maxSize   int64
	allowFile bool
	stateOpts []StateOption
	logger    *slog.Logger
}

// LoaderOption configures a ModuleLoader.
type LoaderOption func(*ModuleLoader)

// WithHTTPClient sets the client used for http(s) URLs.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(ml *ModuleLoader) {
		if c != nil {
			ml.client = c
		}
	}
}

// WithMaxModuleSize caps the module source size in bytes.
func WithMaxModuleSize(n int64) LoaderOption {
	return func(ml *ModuleLoader) {
		if n > 0 {
			ml.maxSize = n
		}
	}
}

// WithFileURLs enables file:// URLs.
func WithFileURLs(allow bool) LoaderOption {
	return func(ml *ModuleLoader) {
		ml.allowFile = allow
	}
}

// WithStateOptions sets options for every state the loader creates.
func WithStateOptions(opts ...StateOption) LoaderOption {
	return func(ml *ModuleLoader) {
		ml.stateOpts = append(ml.stateOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ml *ModuleLoader) {
		if l != nil {
			ml.logger = l
		}
	}
}

// NewModuleLoader creates a loader.
func NewModuleLoader(opts ...LoaderOption) *ModuleLoader {
	ml := &ModuleLoader{
		client:  http.DefaultClient,
		maxSize: DefaultMaxModuleSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(ml)
	}
	ml.logger = ml.logger.With("subsystem", "plugin.lua")
	return ml
}

// Load fetches the source at rawURL, runs it and reads the descriptor.
func (ml *ModuleLoader) Load(ctx context.Context, rawURL string) (plugin.Module, error) {
	src, err := ml.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	logger := ml.logger.With("url", rawURL)
	opts := append([]StateOption{WithStateLogger(logger)}, ml.stateOpts...)
	st, err := NewState(opts...)
	if err != nil {
		return nil, err
	}

	m := &Module{
		url:    rawURL,
		state:  st,
		bridge: NewBridge(st.L),
		logger: logger,
	}

	ret, err := st.DoChunk(ctx, rawURL, string(src))
	if err != nil {
		st.Close()
		return nil, err
	}

	err = st.Execute(ctx, func(L *lua.LState) error {
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: got %s", ErrNotDescriptor, ret.Type())
		}
		if inner, ok := t.RawGetString("default").(*lua.LTable); ok {
			t = inner
		}
		d, err := m.describe(t)
		if err != nil {
			return err
		}
		m.desc = d
		return nil
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return m, nil
}

func (ml *ModuleLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		resp, err := ml.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s", ErrFetch, resp.Status)
		}
		return ml.readLimited(resp.Body)
	case "file":
		if !ml.allowFile {
			return nil, fmt.Errorf("%w: %q (file URLs disabled)", ErrUnsupportedScheme, u.Scheme)
		}
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		defer f.Close()
		return ml.readLimited(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func (ml *ModuleLoader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, ml.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if int64(len(data)) > ml.maxSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrModuleTooLarge, ml.maxSize)
	}
	return data, nil
}

// Module is a loaded Lua plugin. Every renderable it registers runs on the
// module's executor.
type Module struct {
	url    string
	state  *State
	bridge *Bridge
	desc   plugin.Descriptor
	logger *slog.Logger

	mu           sync.Mutex
	unsubscribes []func()
}

// Descriptor returns the plugin descriptor read from the module table.
func (m *Module) Descriptor() plugin.Descriptor {
	return m.desc
}

// URL returns the URL the module was loaded from.
func (m *Module) URL() string {
	return m.url
}

// Close drops the module's event subscriptions and stops its state.
func (m *Module) Close() error {
	m.mu.Lock()
	unsubs := m.unsubscribes
	m.unsubscribes = nil
	m.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	return m.state.Close()
}

func (m *Module) track(unsubscribe func()) {
	m.mu.Lock()
	m.unsubscribes = append(m.unsubscribes, unsubscribe)
	m.mu.Unlock()
}

// describe reads a descriptor table. Must run on the executor.
func (m *Module) describe(t *lua.LTable) (plugin.Descriptor, error) {
	str := func(key string) string {
		s, _ := m.bridge.GetTableString(t, key)
		return s
	}

	d := plugin.Descriptor{
		ID:          str("id"),
		Name:        str("name"),
		Version:     str("version"),
		APIVersion:  str("apiVersion"),
		Description: str("description"),
		Author:      str("author"),
		Homepage:    str("homepage"),
	}
	if d.ID == "" {
		return d, ErrMissingID
	}

	for _, name := range m.bridge.GetStringList(t, "capabilities") {
		d.Capabilities = append(d.Capabilities, plugin.Capability(strings.ToLower(strings.TrimSpace(name))))
	}

	if tr, ok := m.bridge.GetTableTable(t, "translations"); ok {
		d.Translations = m.translations(tr)
	}

	if fn, ok := m.bridge.GetTableFunc(t, "setup"); ok {
		d.Setup = m.setup(fn)
	}
	return d, nil
}

// translations reads locale -> {key = text}. Nested tables flatten to
// dotted keys.
func (m *Module) translations(t *lua.LTable) map[string]i18n.Resources {
	out := make(map[string]i18n.Resources)
	t.ForEach(func(k, v lua.LValue) {
		locale, ok := k.(lua.LString)
		if !ok {
			return
		}
		bundle, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		res := make(i18n.Resources)
		flatten(res, "", bundle)
		out[string(locale)] = res
	})
	return out
}

func flatten(dst i18n.Resources, prefix string, t *lua.LTable) {
	t.ForEach(func(k, v lua.LValue) {
		key := prefix + k.String()
		switch val := v.(type) {
		case lua.LString:
			dst[key] = string(val)
		case lua.LNumber:
			dst[key] = val.String()
		case *lua.LTable:
			flatten(dst, key+".", val)
		}
	})
}

// setup adapts the Lua setup(host, register) function.
func (m *Module) setup(fn *lua.LFunction) plugin.SetupFunc {
	return func(args plugin.SetupArgs) error {
		return m.state.Execute(args.Context, func(L *lua.LState) error {
			host := m.hostTable(L, args.Host)
			register := L.NewFunction(func(L *lua.LState) int {
				args.Register(m.exports(L.CheckTable(1)))
				return 0
			})
			return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, host, register)
		})
	}
}
