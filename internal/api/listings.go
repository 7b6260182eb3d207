package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dshills/plughost/internal/httputil"
	"github.com/dshills/plughost/internal/plugin"
)

type feedEntry struct {
	Kind     string `json:"kind"`
	PluginID string `json:"pluginId"`
}

type composerEntry struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Icon     string `json:"icon,omitempty"`
	PluginID string `json:"pluginId"`
}

type itemActionEntry struct {
	plugin.ItemAction
	PluginID string `json:"pluginId"`
}

type routeEntry struct {
	Path     string `json:"path"`
	PluginID string `json:"pluginId"`
}

type modalEntry struct {
	Name     string `json:"name"`
	PluginID string `json:"pluginId"`
}

type menuEntry struct {
	plugin.NavItem
	PluginID string `json:"pluginId"`
}

type attachmentEntry struct {
	plugin.AttachmentSpec
	PluginID string `json:"pluginId"`
}

func (h *Handlers) handleFeeds(w http.ResponseWriter, r *http.Request) {
	feeds := h.manager.Registry().Feeds()
	out := make([]feedEntry, 0, len(feeds))
	for _, e := range feeds {
		out = append(out, feedEntry{Kind: e.Value.Kind, PluginID: e.PluginID})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleComposer(w http.ResponseWriter, r *http.Request) {
	actions := h.manager.Registry().Composer()
	out := make([]composerEntry, 0, len(actions))
	for _, e := range actions {
		out = append(out, composerEntry{ID: e.Value.ID, Label: e.Value.Label, Icon: e.Value.Icon, PluginID: e.PluginID})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleRunComposer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, e := range h.manager.Registry().Composer() {
		if e.Value.ID != id {
			continue
		}
		if e.Value.Run == nil {
			httputil.WriteError(w, http.StatusConflict, "composer action has no handler: "+id)
			return
		}
		input := plugin.Props{}
		if err := httputil.DecodeJSON(r, &input); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid input: "+err.Error())
			return
		}
		if err := e.Value.Run(r.Context(), input); err != nil {
			h.renderError(w, "composer "+id, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteError(w, http.StatusNotFound, "no composer action "+id)
}

// itemFromQuery reads an item from id and kind query parameters. Other
// parameters become item data.
func itemFromQuery(r *http.Request) plugin.Item {
	q := r.URL.Query()
	item := plugin.Item{ID: q.Get("id"), Kind: q.Get("kind"), Data: plugin.Props{}}
	for k, vs := range q {
		if k == "id" || k == "kind" || len(vs) == 0 {
			continue
		}
		item.Data[k] = vs[0]
	}
	return item
}

func (h *Handlers) handleItemActions(w http.ResponseWriter, r *http.Request) {
	item := itemFromQuery(r)
	if item.Kind == "" {
		httputil.WriteError(w, http.StatusBadRequest, "kind is required")
		return
	}
	actions := h.manager.Registry().ItemActions(item)
	out := make([]itemActionEntry, 0, len(actions))
	for _, e := range actions {
		out = append(out, itemActionEntry{ItemAction: e.Value, PluginID: e.PluginID})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleRunItemAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["action"]
	item := itemFromQuery(r)
	if item.Kind == "" {
		httputil.WriteError(w, http.StatusBadRequest, "kind is required")
		return
	}
	for _, e := range h.manager.Registry().ItemActions(item) {
		if e.Value.ID != id {
			continue
		}
		if e.Value.Run == nil {
			httputil.WriteError(w, http.StatusConflict, "item action has no handler: "+id)
			return
		}
		if err := e.Value.Run(r.Context()); err != nil {
			h.renderError(w, "item action "+id, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteError(w, http.StatusNotFound, "no item action "+id)
}

func (h *Handlers) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.manager.Registry().Routes()
	out := make([]routeEntry, 0, len(routes))
	for _, e := range routes {
		out = append(out, routeEntry{Path: e.Value.Path, PluginID: e.PluginID})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleModals(w http.ResponseWriter, r *http.Request) {
	reg := h.manager.Registry()
	modals := reg.Modals()
	out := make([]modalEntry, 0, len(modals))
	for _, name := range reg.ModalNames() {
		if e, ok := modals[name]; ok {
			out = append(out, modalEntry{Name: name, PluginID: e.PluginID})
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleMenu(w http.ResponseWriter, r *http.Request) {
	menu := h.manager.Registry().Menu()
	out := make([]menuEntry, 0, len(menu))
	for _, e := range menu {
		out = append(out, menuEntry{NavItem: e.Value, PluginID: e.PluginID})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleAttachments(w http.ResponseWriter, r *http.Request) {
	specs := h.manager.Registry().Attachments()
	out := make([]attachmentEntry, 0, len(specs))
	for _, e := range specs {
		out = append(out, attachmentEntry{AttachmentSpec: e.Value, PluginID: e.PluginID})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	ns := h.translator.Namespaces(mux.Vars(r)["locale"])
	if ns == nil {
		ns = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, ns)
}

func (h *Handlers) handleTranslate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	text, ok := h.translator.Translate(vars["locale"], vars["namespace"], vars["key"])
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "no translation for "+vars["namespace"]+":"+vars["key"])
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"text": text})
}
