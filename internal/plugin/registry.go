package plugin

import (
	"log/slog"
	"sort"
	"sync"
)

// Entry is a registry value together with the plugin that contributed it.
type Entry[T any] struct {
	PluginID string
	Value    T
}

// Registry holds everything plugins have contributed to one host instance.
// It is safe for concurrent use. Accessors return copies, so callers may
// iterate while a load or reset is in progress.
type Registry struct {
	mu sync.RWMutex

	feeds       []Entry[FeedRenderer]
	composer    []Entry[ComposerAction]
	itemActions []Entry[ItemActionProvider]
	routes      []Entry[Route]
	modals      map[string]Entry[Renderable]
	menu        []Entry[NavItem]
	attachments []Entry[AttachmentSpec]

	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modals: make(map[string]Entry[Renderable]),
		logger: slog.Default().With("subsystem", "plugin.registry"),
	}
}

// Reset empties every collection.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.feeds = nil
	r.composer = nil
	r.itemActions = nil
	r.routes = nil
	r.modals = make(map[string]Entry[Renderable])
	r.menu = nil
	r.attachments = nil
}

func snapshot[T any](src []Entry[T]) []Entry[T] {
	out := make([]Entry[T], len(src))
	copy(out, src)
	return out
}

// Feeds returns all feed renderers in registration order.
func (r *Registry) Feeds() []Entry[FeedRenderer] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.feeds)
}

// Feed returns the first registered renderer for kind.
func (r *Registry) Feed(kind string) (FeedRenderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.feeds {
		if e.Value.Kind == kind {
			return e.Value, true
		}
	}
	return FeedRenderer{}, false
}

// Composer returns all composer actions in registration order.
func (r *Registry) Composer() []Entry[ComposerAction] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.composer)
}

// ItemActionProviders returns all item action providers in registration order.
func (r *Registry) ItemActionProviders() []Entry[ItemActionProvider] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.itemActions)
}

// ItemActions asks every provider for the actions applicable to item.
// A panicking provider is logged and skipped.
func (r *Registry) ItemActions(item Item) []Entry[ItemAction] {
	providers := r.ItemActionProviders()
	out := make([]Entry[ItemAction], 0, len(providers))
	for _, p := range providers {
		for _, a := range r.callProvider(p, item) {
			out = append(out, Entry[ItemAction]{PluginID: p.PluginID, Value: a})
		}
	}
	return out
}

func (r *Registry) callProvider(p Entry[ItemActionProvider], item Item) (actions []ItemAction) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("Item action provider panicked.", "plugin", p.PluginID, "panic", rec)
			actions = nil
		}
	}()
	return p.Value(item)
}

// Routes returns all routes in registration order.
func (r *Registry) Routes() []Entry[Route] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.routes)
}

// Route returns the route registered for path.
func (r *Registry) Route(path string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.routes {
		if e.Value.Path == path {
			return e.Value, true
		}
	}
	return Route{}, false
}

// Modals returns a copy of the modal registry.
func (r *Registry) Modals() map[string]Entry[Renderable] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry[Renderable], len(r.modals))
	for k, v := range r.modals {
		out[k] = v
	}
	return out
}

// ModalNames returns the registered modal names, sorted.
func (r *Registry) ModalNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modals))
	for k := range r.modals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Modal returns the modal registered under name.
func (r *Registry) Modal(name string) (Entry[Renderable], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.modals[name]
	return e, ok
}

// Menu returns all navigation entries in registration order.
func (r *Registry) Menu() []Entry[NavItem] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.menu)
}

// Attachments returns all attachment specs in registration order.
func (r *Registry) Attachments() []Entry[AttachmentSpec] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.attachments)
}

// Counts returns the number of entries per kind.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Counts{
		KindFeed:        len(r.feeds),
		KindComposer:    len(r.composer),
		KindItemActions: len(r.itemActions),
		KindRoutes:      len(r.routes),
		KindModals:      len(r.modals),
		KindMenu:        len(r.menu),
		KindAttachments: len(r.attachments),
	}
}
