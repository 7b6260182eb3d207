package hostctx

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/kv"
)

// Navigator performs host navigation. How a path is interpreted is the
// host's concern.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// TextInserter inserts text into whatever input the host has focused.
type TextInserter func(text string)

// ColorScheme is the host theme mode.
type ColorScheme string

// Color schemes.
const (
	Light ColorScheme = "light"
	Dark  ColorScheme = "dark"
)

// ParseColorScheme maps s to a ColorScheme. Anything but "dark" is light.
func ParseColorScheme(s string) ColorScheme {
	if ColorScheme(s) == Dark {
		return Dark
	}
	return Light
}

// Theme is the theme snapshot handed to plugins.
type Theme struct {
	ColorScheme ColorScheme
}

// Context is the object passed to every plugin's setup.
type Context struct {
	// SessionID identifies the host session that built this context.
	SessionID string

	// Storage is the host-namespaced persistent key-value store.
	Storage *Storage

	// Theme is a snapshot taken at construction time.
	Theme Theme

	// Events is the host-namespaced publish/subscribe channel.
	Events *Events

	navigator Navigator
	inserter  TextInserter
}

// Option configures New.
type Option func(*options)

type options struct {
	navigator   Navigator
	inserter    TextInserter
	store       kv.Store
	bus         *event.Bus
	colorScheme func() ColorScheme
	logger      *slog.Logger
}

// WithNavigator sets the navigation delegate.
func WithNavigator(n Navigator) Option {
	return func(o *options) { o.navigator = n }
}

// WithTextInserter overrides the default no-op InsertText.
func WithTextInserter(fn TextInserter) Option {
	return func(o *options) { o.inserter = fn }
}

// WithStore sets the backing store for Storage. Defaults to kv.NewMemory.
func WithStore(s kv.Store) Option {
	return func(o *options) { o.store = s }
}

// WithBus sets the host event bus. Defaults to a private bus.
func WithBus(b *event.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithColorScheme fixes the theme snapshot.
func WithColorScheme(cs ColorScheme) Option {
	return func(o *options) { o.colorScheme = func() ColorScheme { return cs } }
}

// WithColorSchemeSource reads the theme from fn once, inside New.
func WithColorSchemeSource(fn func() ColorScheme) Option {
	return func(o *options) { o.colorScheme = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a host context.
func New(opts ...Option) *Context {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = kv.NewMemory()
	}
	if o.bus == nil {
		o.bus = event.NewBus(event.WithLogger(o.logger))
	}

	scheme := Light
	if o.colorScheme != nil {
		scheme = ParseColorScheme(string(o.colorScheme()))
	}

	logger := o.logger.With("subsystem", "plugin.hostctx")
	return &Context{
		SessionID: uuid.NewString(),
		Storage:   &Storage{store: o.store, logger: logger},
		Theme:     Theme{ColorScheme: scheme},
		Events:    &Events{bus: o.bus, logger: logger},
		navigator: o.navigator,
		inserter:  o.inserter,
	}
}

// Navigate asks the host to navigate to path. Without a navigator it does nothing.
func (c *Context) Navigate(path string) {
	if c.navigator != nil {
		c.navigator.Navigate(path)
	}
}

// InsertText inserts text when the host provided an inserter. Plugins must
// not assume any effect.
func (c *Context) InsertText(text string) {
	if c.inserter != nil {
		c.inserter(text)
	}
}
