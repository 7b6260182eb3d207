// Package lua runs external plugins written in Lua.
//
// This package wraps the gopher-lua library to provide:
//   - Sandboxed Lua state management
//   - A per-state executor goroutine that serializes every Lua call
//   - Go-Lua type conversion bridge
//   - A plugin.ModuleLoader fetching modules over http(s) or file URLs
//
// # Modules
//
// A module is a Lua chunk returning a descriptor table. Its setup function
// receives a host table and a register function:
//
//	return {
//	  id = "greeter",
//	  name = "Greeter",
//	  version = "0.1.0",
//	  apiVersion = "1.0",
//	  capabilities = { "routes", "modals" },
//	  translations = { en = { hello = "Hello" } },
//	  setup = function(host, register)
//	    register({
//	      routes = { { path = "/greet", element = function(props) return "<p>hi</p>" end } },
//	      menu = { { id = "greet", label = "Greet", path = "/greet" } },
//	    })
//	  end,
//	}
//
// Malformed export kinds or entries are logged and skipped; the rest of the
// bundle still registers. An attachments function only runs when the plugin
// is granted the composer capability.
//
// The host table exposes navigate, insertText, storage.get/set,
// events.on/emit and theme.colorScheme. Event names are dot-separated
// segments without wildcards, for example "poll.voted"; events.on ignores
// other names the same way events.emit drops them.
//
// # Executor
//
// gopher-lua states are single-threaded. Renders and actions invoked from Go
// block on Execute; event handlers are queued with ExecuteAsync so a Lua
// render that emits an event never waits on itself.
//
// # Sandbox
//
// The sandbox removes dofile, loadfile, load and loadstring, never opens io,
// debug or package, trims os to its clock functions and routes print to the
// structured logger. Every call runs under a deadline enforced by the VM.
package lua
