// Package plugin provides the plugin system for plughost.
//
// Plugins contribute behavior to a running host through seven registries:
//   - Feed renderers, looked up by item kind
//   - Composer actions and attachment providers
//   - Item action providers
//   - Routes and navigation menu entries
//   - Named modal dialogs
//
// Every plugin is described by a Descriptor. Its Setup receives the host
// context and a Register callback; each call to Register merges an Exports
// bundle into the Registry, gated by the plugin's claimed capabilities
// intersected with the host allow list.
//
// # Quick Start
//
//	reg := plugin.NewRegistry()
//	mgr := plugin.NewManager(plugin.DefaultManagerConfig(),
//	    plugin.WithRegistry(reg),
//	    plugin.WithLocalPlugins(bundled.All()...),
//	)
//	report := mgr.Load(ctx)
//	for _, st := range report.Plugins {
//	    fmt.Println(st.ID, st.State)
//	}
//
// # Merge Rules
//
// Routes and menu entries are unique by key and the first writer wins. Modals
// are keyed by name and the last writer wins. Feeds, composer actions, item
// action providers and attachments are appended in load order. Menu entries
// and attachments have no capability of their own: they ride on "routes" and
// "composer" respectively.
//
// # Failure Handling
//
// A plugin targeting an API version outside "1." is skipped. A setup that
// returns an error or panics is recorded as failed; whatever it registered
// before failing stays merged. An external URL that cannot be fetched within
// its timeout is logged and skipped. None of these abort a load cycle.
package plugin
