// Package config loads the plughost configuration.
//
// Values come from three layers, later ones winning:
//
//  1. built-in defaults (Default)
//  2. a TOML file, which may pull in others with "@include"
//  3. PLUGHOST_* environment variables, e.g. PLUGHOST_EXTERNAL_TIMEOUT=5s
//     or PLUGHOST_PLUGINS_ALLOW=feed,routes
//
// A Reloader watches the file and reconfigures the plugin manager when it
// changes. An invalid edit is logged and the running configuration kept.
//
// Example file:
//
//	production = false
//	locale = "en"
//	theme = "dark"
//
//	[plugins]
//	allow = ["feed", "routes", "modals"]
//
//	[external]
//	urls = ["https://plugins.example.com/greeter.lua"]
//	allow = ["routes"]
//	timeout = "10s"
//
//	[storage]
//	backend = "sqlite"
//	path = "plughost.db"
package config
