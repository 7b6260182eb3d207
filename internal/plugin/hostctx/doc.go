// Package hostctx builds the context object every plugin receives in its
// setup call.
//
// A Context is created once per host session and shared by all plugins:
//
//	hc := hostctx.New(
//	    hostctx.WithNavigator(router),
//	    hostctx.WithStore(store),
//	    hostctx.WithBus(bus),
//	    hostctx.WithColorScheme(hostctx.Dark),
//	)
//
// Storage keys and event names are namespaced under fixed host prefixes,
// not per plugin. Two plugins that pick the same key or event name share it.
//
// The theme is a snapshot taken by New. Plugins that need to follow theme
// changes must subscribe to the host's theme events separately.
package hostctx
