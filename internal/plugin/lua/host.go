package lua

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// hostTable exposes the host context to Lua:
//
//	host.sessionId
//	host.navigate(path)
//	host.insertText(text)
//	host.storage.get(key)          -> value or nil
//	host.storage.set(key, value)   -> true | false, message
//	host.theme.colorScheme         -> "light" | "dark"
//	host.events.emit(name, payload)
//	host.events.on(name, fn)       -> unsubscribe()
//
// Must run on the executor.
func (m *Module) hostTable(L *lua.LState, h *hostctx.Context) *lua.LTable {
	t := L.NewTable()
	if h == nil {
		return t
	}

	t.RawSetString("sessionId", lua.LString(h.SessionID))

	t.RawSetString("navigate", L.NewFunction(func(L *lua.LState) int {
		h.Navigate(L.CheckString(1))
		return 0
	}))

	t.RawSetString("insertText", L.NewFunction(func(L *lua.LState) int {
		h.InsertText(L.CheckString(1))
		return 0
	}))

	storage := L.NewTable()
	storage.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
		v := h.Storage.Get(callContext(L), L.CheckString(1))
		L.Push(m.bridge.ToLuaValue(v))
		return 1
	}))
	storage.RawSetString("set", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		if err := h.Storage.Set(callContext(L), key, m.bridge.ToGoValue(L.Get(2))); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))
	t.RawSetString("storage", storage)

	theme := L.NewTable()
	theme.RawSetString("colorScheme", lua.LString(h.Theme.ColorScheme))
	t.RawSetString("theme", theme)

	events := L.NewTable()
	events.RawSetString("emit", L.NewFunction(func(L *lua.LState) int {
		h.Events.Emit(callContext(L), L.CheckString(1), m.bridge.ToGoValue(L.Get(2)))
		return 0
	}))
	events.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		unsubscribe := h.Events.On(name, func(payload any) {
			// Publishers may be on any goroutine, including this
			// module's executor, so handlers are always queued.
			err := m.state.ExecuteAsync(func(L *lua.LState) error {
				_, err := m.bridge.Call(fn, payload)
				return err
			})
			if err != nil {
				m.logger.Debug("Dropped Lua event handler call.", "event", name, "error", err)
			}
		})
		m.track(unsubscribe)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			unsubscribe()
			return 0
		}))
		return 1
	}))
	t.RawSetString("events", events)

	return t
}

func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
