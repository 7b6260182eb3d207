package plugin

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dshills/plughost/internal/event/topic"
	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// ManagerEventPrefix is the bus topic prefix for manager events. It lies
// outside the plugin event namespace so plugins cannot forge it.
const ManagerEventPrefix topic.Topic = "host.plugin"

// Manager orchestrates load cycles: local plugins first, then external ones.
// Cycles never overlap.
type Manager struct {
	// cycleMu serializes load, reload and reset.
	cycleMu sync.Mutex

	mu            sync.RWMutex
	eventHandlers []EventHandler
	last          Report

	config      ManagerConfig
	descriptors []Descriptor

	registry *Registry
	host     *hostctx.Context
	catalog  *i18n.Catalog
	modules  ModuleLoader
	logger   *slog.Logger

	local    *LocalLoader
	external *ExternalLoader
}

// ManagerConfig configures the plugin manager.
type ManagerConfig struct {
	// Production disables the registry reset before each local load.
	Production bool

	// Allow restricts local plugins. Empty allows everything claimed.
	Allow CapabilitySet

	// ExternalAllow restricts external plugins. Empty allows everything claimed.
	ExternalAllow CapabilitySet

	// ExternalURLs are fetched in order after local plugins.
	ExternalURLs []string

	// ExternalTimeout bounds each external URL.
	ExternalTimeout time.Duration

	// Disabled lists local plugin IDs that are not loaded.
	Disabled []string
}

// DefaultManagerConfig returns the development defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ExternalTimeout: DefaultExternalTimeout,
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRegistry sets the registry to load into.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithHost sets the host context handed to plugins.
func WithHost(h *hostctx.Context) ManagerOption {
	return func(m *Manager) {
		if h != nil {
			m.host = h
		}
	}
}

// WithManagerCatalog sets the translation catalog.
func WithManagerCatalog(c *i18n.Catalog) ManagerOption {
	return func(m *Manager) {
		m.catalog = c
	}
}

// WithModuleLoader sets the loader for external URLs.
func WithModuleLoader(ml ModuleLoader) ManagerOption {
	return func(m *Manager) {
		m.modules = ml
	}
}

// WithLocalPlugins sets the bundled plugins.
func WithLocalPlugins(ds ...Descriptor) ManagerOption {
	return func(m *Manager) {
		m.descriptors = append(m.descriptors, ds...)
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// EventHandler handles plugin manager events.
// Handlers must not call back into the Manager. Panics in handlers are recovered.
type EventHandler func(event ManagerEvent)

// ManagerEvent represents a plugin manager event.
type ManagerEvent struct {
	Type ManagerEventType

	// Status is set for plugin events.
	Status Status

	// Report is set for EventCycleCompleted.
	Report *Report
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted when a plugin's setup completed.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginSkipped is emitted when a plugin targets another API version.
	EventPluginSkipped
	// EventPluginFailed is emitted when a plugin could not be fetched or set up.
	EventPluginFailed
	// EventRegistryReset is emitted after the registry is emptied.
	EventRegistryReset
	// EventCycleCompleted is emitted at the end of a load cycle.
	EventCycleCompleted
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginSkipped:
		return "skipped"
	case EventPluginFailed:
		return "failed"
	case EventRegistryReset:
		return "reset"
	case EventCycleCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// NewManager creates a plugin manager.
func NewManager(config ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	if m.host == nil {
		m.host = hostctx.New(hostctx.WithLogger(m.logger))
	}
	m.logger = m.logger.With("subsystem", "plugin.manager")
	m.buildLoaders()
	return m
}

// buildLoaders replaces both loaders. Writes happen under mu so Retained can
// read the external loader outside a cycle.
func (m *Manager) buildLoaders() {
	local := NewLocalLoader(m.registry, m.host,
		WithAllow(m.config.Allow),
		WithCatalog(m.catalog),
		WithLoaderLogger(m.logger),
		WithObserver(m.observe),
		WithDevelopment(!m.config.Production),
		WithOnReset(m.afterReset),
	)
	external := NewExternalLoader(m.registry, m.host, m.modules,
		WithAllow(m.config.ExternalAllow),
		WithCatalog(m.catalog),
		WithLoaderLogger(m.logger),
		WithObserver(m.observe),
		WithTimeout(m.config.ExternalTimeout),
	)

	m.mu.Lock()
	m.local, m.external = local, external
	m.mu.Unlock()
}

// Load runs a load cycle. Plugin failures are recorded in the report and
// never abort the cycle.
func (m *Manager) Load(ctx context.Context) Report {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.load(ctx, false)
}

// Reload empties the registry, closes external modules, and runs a load
// cycle, in production mode too.
func (m *Manager) Reload(ctx context.Context) Report {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.load(ctx, true)
}

// Reconfigure replaces the configuration and reloads.
func (m *Manager) Reconfigure(ctx context.Context, config ManagerConfig) Report {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.reset()
	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	m.buildLoaders()
	return m.load(ctx, false)
}

// Reset empties the registry and closes external modules.
func (m *Manager) Reset() {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	m.reset()
}

// Close releases external modules. The registry is left as is.
func (m *Manager) Close() error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.external.Close()
}

// Must be called with cycleMu held.
func (m *Manager) load(ctx context.Context, forceReset bool) Report {
	// The local loader resets on its own in development mode.
	if forceReset && m.config.Production {
		m.reset()
	}

	rep := m.local.Load(ctx, m.enabled())
	if urls := m.config.ExternalURLs; len(urls) > 0 {
		rep.merge(m.external.Load(ctx, urls))
	}
	rep.Duration = time.Since(rep.Started)

	m.mu.Lock()
	m.last = rep
	m.mu.Unlock()

	m.logger.Info("Load cycle completed.",
		"loaded", rep.Count(StateLoaded),
		"skipped", rep.Count(StateSkipped),
		"failed", rep.Count(StateFailed),
		"duration", rep.Duration,
	)
	m.emitEvent(ManagerEvent{Type: EventCycleCompleted, Report: &rep})
	return rep
}

func (m *Manager) enabled() []Descriptor {
	if len(m.config.Disabled) == 0 {
		return m.descriptors
	}
	out := make([]Descriptor, 0, len(m.descriptors))
	for _, d := range m.descriptors {
		if !slices.Contains(m.config.Disabled, d.ID) {
			out = append(out, d)
		}
	}
	return out
}

// Must be called with cycleMu held.
func (m *Manager) reset() {
	m.registry.Reset()
	m.afterReset()
}

func (m *Manager) afterReset() {
	if err := m.external.Close(); err != nil {
		m.logger.Warn("Failed to close external modules.", "error", err)
	}
	m.emitEvent(ManagerEvent{Type: EventRegistryReset})
}

func (m *Manager) observe(st Status) {
	ev := ManagerEvent{Status: st}
	switch st.State {
	case StateLoaded:
		ev.Type = EventPluginLoaded
	case StateSkipped:
		ev.Type = EventPluginSkipped
	default:
		ev.Type = EventPluginFailed
	}
	m.emitEvent(ev)
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Nil out instead of removing so other indexes stay valid.
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

// emitEvent sends an event to all handlers, then publishes it on the host bus.
// Handlers are called outside any locks and panics are recovered.
func (m *Manager) emitEvent(event ManagerEvent) {
	m.mu.RLock()
	handlers := make([]EventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.Debug("Manager event handler panicked.", "event", event.Type.String(), "panic", rec)
				}
			}()
			handler(event)
		}()
	}

	if bus := m.host.Events.Bus(); bus != nil {
		t := ManagerEventPrefix.Child(event.Type.String())
		if err := bus.Publish(context.Background(), t, event); err != nil {
			m.logger.Debug("Failed to publish manager event.", "topic", t.String(), "error", err)
		}
	}
}

// Registry returns the registry plugins load into.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Host returns the host context handed to plugins.
func (m *Manager) Host() *hostctx.Context {
	return m.host
}

// Catalog returns the translation catalog, which may be nil.
func (m *Manager) Catalog() *i18n.Catalog {
	return m.catalog
}

// Config returns the current configuration.
func (m *Manager) Config() ManagerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// LastReport returns the report of the most recent load cycle.
func (m *Manager) LastReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Retained returns the number of external modules held open.
func (m *Manager) Retained() int {
	m.mu.RLock()
	external := m.external
	m.mu.RUnlock()
	return external.Retained()
}
