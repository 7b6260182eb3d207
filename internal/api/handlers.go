// Package api serves the plugin registries over HTTP.
//
// It is the boundary to the UI: listings of every registry, rendering of
// routes, modals and feed items, the load report and a reload trigger.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dshills/plughost/internal/httputil"
	"github.com/dshills/plughost/internal/plugin"
)

// Manager is the subset of *plugin.Manager the handlers use.
type Manager interface {
	Registry() *plugin.Registry
	LastReport() plugin.Report
	Reload(ctx context.Context) plugin.Report
}

// Translator resolves translated strings. *i18n.Catalog satisfies it.
type Translator interface {
	Translate(locale, namespace, key string) (string, bool)
	Namespaces(locale string) []string
}

// Handlers serves the registry API.
type Handlers struct {
	manager    Manager
	translator Translator
	metrics    http.Handler
	logger     *slog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithTranslator enables the /api/i18n endpoints.
func WithTranslator(t Translator) Option {
	return func(h *Handlers) { h.translator = t }
}

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handlers) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandlers creates the API handlers.
func NewHandlers(m Manager, opts ...Option) *Handlers {
	h := &Handlers{manager: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("subsystem", "api")
	return h
}

// Router returns a router with every route registered.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the API on r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/plugins", h.handlePlugins).Methods("GET")
	api.HandleFunc("/plugins/{id}", h.handlePlugin).Methods("GET")
	api.HandleFunc("/capabilities", h.handleCapabilities).Methods("GET")
	api.HandleFunc("/registry", h.handleCounts).Methods("GET")
	api.HandleFunc("/reload", h.handleReload).Methods("POST")

	api.HandleFunc("/feed", h.handleFeeds).Methods("GET")
	api.HandleFunc("/feed/{kind}", h.handleRenderFeed).Methods("POST")
	api.HandleFunc("/composer", h.handleComposer).Methods("GET")
	api.HandleFunc("/composer/{id}", h.handleRunComposer).Methods("POST")
	api.HandleFunc("/items/actions", h.handleItemActions).Methods("GET")
	api.HandleFunc("/items/actions/{action}", h.handleRunItemAction).Methods("POST")
	api.HandleFunc("/routes", h.handleRoutes).Methods("GET")
	api.HandleFunc("/modals", h.handleModals).Methods("GET")
	api.HandleFunc("/modals/{name}", h.handleRenderModal).Methods("GET", "POST")
	api.HandleFunc("/menu", h.handleMenu).Methods("GET")
	api.HandleFunc("/attachments", h.handleAttachments).Methods("GET")

	if h.translator != nil {
		api.HandleFunc("/i18n/{locale}", h.handleNamespaces).Methods("GET")
		api.HandleFunc("/i18n/{locale}/{namespace}/{key}", h.handleTranslate).Methods("GET")
	}

	r.PathPrefix("/ui/").HandlerFunc(h.handleRenderRoute).Methods("GET")
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handlePlugins(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.manager.LastReport())
}

func (h *Handlers) handlePlugin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ok := h.manager.LastReport().Lookup(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "plugin not found: "+id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

type capabilityInfo struct {
	Name        plugin.Capability `json:"name"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description"`
	Risk        string            `json:"risk"`
}

func (h *Handlers) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	out := make([]capabilityInfo, 0, len(plugin.AllCapabilities()))
	for _, c := range plugin.AllCapabilities() {
		info, _ := plugin.Info(c)
		out = append(out, capabilityInfo{
			Name:        c,
			DisplayName: info.DisplayName,
			Description: info.Description,
			Risk:        info.RiskLevel.String(),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleCounts(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.manager.Registry().Counts())
}

func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	rep := h.manager.Reload(r.Context())
	h.logger.Info("Reload requested over HTTP.",
		"loaded", rep.Count(plugin.StateLoaded),
		"failed", rep.Count(plugin.StateFailed),
	)
	httputil.WriteJSON(w, http.StatusOK, rep)
}

// renderError maps a render failure to a response.
func (h *Handlers) renderError(w http.ResponseWriter, what string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	h.logger.Warn("Render failed.", "target", what, "error", err)
	httputil.WriteError(w, status, err.Error())
}

func (h *Handlers) handleRenderRoute(w http.ResponseWriter, r *http.Request) {
	path := "/" + strings.TrimPrefix(r.URL.Path, "/ui/")
	route, ok := h.manager.Registry().Route(path)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "no route for "+path)
		return
	}

	html, err := plugin.SafeRender(r.Context(), route.Element, queryProps(r))
	if err != nil {
		h.renderError(w, "route "+path, err)
		return
	}
	httputil.WriteHTML(w, http.StatusOK, html)
}

func (h *Handlers) handleRenderModal(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	modal, ok := h.manager.Registry().Modal(name)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "no modal named "+name)
		return
	}

	props := queryProps(r)
	if r.Method == http.MethodPost {
		if err := httputil.DecodeJSON(r, &props); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid props: "+err.Error())
			return
		}
	}
	html, err := plugin.SafeRender(r.Context(), modal.Value, props)
	if err != nil {
		h.renderError(w, "modal "+name, err)
		return
	}
	httputil.WriteHTML(w, http.StatusOK, html)
}

func (h *Handlers) handleRenderFeed(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	feed, ok := h.manager.Registry().Feed(kind)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "no renderer for feed kind "+kind)
		return
	}

	props := plugin.Props{}
	if err := httputil.DecodeJSON(r, &props); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid props: "+err.Error())
		return
	}
	html, err := plugin.SafeRender(r.Context(), feed.Renderer, props)
	if err != nil {
		h.renderError(w, "feed "+kind, err)
		return
	}
	httputil.WriteHTML(w, http.StatusOK, html)
}

// queryProps turns query parameters into props. Repeated keys keep the first value.
func queryProps(r *http.Request) plugin.Props {
	props := plugin.Props{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			props[k] = vs[0]
		}
	}
	return props
}
