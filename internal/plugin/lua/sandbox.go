package lua

import (
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts what plugin Lua code can reach. Plugins get the base,
// string, table and math libraries and a clock-only os table. They cannot
// load code, touch the filesystem or spawn processes.
type Sandbox struct {
	L      *lua.LState
	logger *slog.Logger
}

// safeOSFuncs are the os functions left in place.
var safeOSFuncs = map[string]bool{
	"time":     true,
	"clock":    true,
	"date":     true,
	"difftime": true,
}

// safeModules may be passed to require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
	"os":     true,
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{L: L, logger: logger}
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.trimOS()
	s.installPrint()
	s.installRequire()
}

// trimOS replaces os with a table holding only the clock functions.
func (s *Sandbox) trimOS() {
	full, ok := s.L.GetGlobal("os").(*lua.LTable)
	if !ok {
		return
	}
	safe := s.L.NewTable()
	full.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok && safeOSFuncs[string(ks)] {
			safe.RawSetString(string(ks), v)
		}
	})
	s.L.SetGlobal("os", safe)
}

// installPrint routes print to the structured logger.
func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		s.logger.Info("Lua print.", "message", strings.Join(parts, "\t"))
		return 0
	}))
}

// installRequire allows requiring the already opened safe libraries and
// nothing else.
func (s *Sandbox) installRequire() {
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(L.GetGlobal(name))
		return 1
	}))
}
