package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plughost/internal/plugin"
)

// exports converts a Lua export table. Must run on the executor.
// Malformed kinds are logged and left out.
//
//	{
//	  feed        = { kind = "poll", render = function(props) end },
//	  composer    = { id = "c", label = "Poll", icon = "chart", run = function(input) end },
//	  itemActions = function(item) return { { id = "vote", label = "Vote", run = function() end } } end,
//	  routes      = { { path = "/polls", element = function(props) end } },
//	  modals      = { ["poll.new"] = function(props) end },
//	  menu        = { { id = "polls", label = "Polls", icon = "chart", path = "/polls" } },
//	  attachments = function() return { { id = "poll", label = "Poll", accept = { "application/json" } } } end,
//	}
func (m *Module) exports(t *lua.LTable) plugin.Exports {
	var ex plugin.Exports
	b := m.bridge

	// A malformed kind or entry is skipped; the rest of the bundle still merges.
	skip := func(err error) {
		m.logger.Warn("Skipping invalid export.", "url", m.url, "error", err)
	}

	if ft, ok := b.GetTableTable(t, "feed"); ok {
		kind, _ := b.GetTableString(ft, "kind")
		fn, hasFn := b.GetTableFunc(ft, "render")
		if kind == "" || !hasFn {
			skip(fmt.Errorf("%w: feed needs kind and render", ErrInvalidExport))
		} else {
			ex.Feed = &plugin.FeedRenderer{Kind: kind, Renderer: m.renderable(fn)}
		}
	}

	if ct, ok := b.GetTableTable(t, "composer"); ok {
		id, _ := b.GetTableString(ct, "id")
		if id == "" {
			skip(fmt.Errorf("%w: composer needs id", ErrInvalidExport))
		} else {
			action := &plugin.ComposerAction{ID: id}
			action.Label, _ = b.GetTableString(ct, "label")
			action.Icon, _ = b.GetTableString(ct, "icon")
			if fn, ok := b.GetTableFunc(ct, "run"); ok {
				action.Run = func(ctx context.Context, input plugin.Props) error {
					return m.call(ctx, fn, map[string]any(input))
				}
			}
			ex.Composer = action
		}
	}

	if fn, ok := b.GetTableFunc(t, "itemActions"); ok {
		ex.ItemActions = m.itemActions(fn)
	}

	if rt, ok := b.GetTableTable(t, "routes"); ok {
		for i := 1; i <= rt.Len(); i++ {
			r, ok := rt.RawGetInt(i).(*lua.LTable)
			if !ok {
				skip(fmt.Errorf("%w: routes[%d] is not a table", ErrInvalidExport, i))
				continue
			}
			path, _ := b.GetTableString(r, "path")
			fn, hasFn := b.GetTableFunc(r, "element")
			if path == "" || !hasFn {
				skip(fmt.Errorf("%w: routes[%d] needs path and element", ErrInvalidExport, i))
				continue
			}
			ex.Routes = append(ex.Routes, plugin.Route{Path: path, Element: m.renderable(fn)})
		}
	}

	if mt, ok := b.GetTableTable(t, "modals"); ok {
		ex.Modals = make(map[string]plugin.Renderable)
		mt.ForEach(func(k, v lua.LValue) {
			name, ok1 := k.(lua.LString)
			fn, ok2 := v.(*lua.LFunction)
			if !ok1 || !ok2 {
				skip(fmt.Errorf("%w: modal %s must map a name to a function", ErrInvalidExport, k.String()))
				return
			}
			ex.Modals[string(name)] = m.renderable(fn)
		})
	}

	if nt, ok := b.GetTableTable(t, "menu"); ok {
		for i := 1; i <= nt.Len(); i++ {
			n, ok := nt.RawGetInt(i).(*lua.LTable)
			if !ok {
				skip(fmt.Errorf("%w: menu[%d] is not a table", ErrInvalidExport, i))
				continue
			}
			item := plugin.NavItem{}
			item.ID, _ = b.GetTableString(n, "id")
			item.Label, _ = b.GetTableString(n, "label")
			item.Icon, _ = b.GetTableString(n, "icon")
			item.Path, _ = b.GetTableString(n, "path")
			if item.ID == "" {
				skip(fmt.Errorf("%w: menu[%d] needs id", ErrInvalidExport, i))
				continue
			}
			ex.Menu = append(ex.Menu, item)
		}
	}

	if v := t.RawGetString("attachments"); v != lua.LNil {
		ex.Attachments = m.attachments(v)
	}

	return ex
}

// attachments returns a factory over a Lua list or provider function. The
// provider only runs when the merge engine invokes the factory, which happens
// synchronously inside register, on this executor.
func (m *Module) attachments(v lua.LValue) plugin.AttachmentFactory {
	return func() []plugin.AttachmentSpec {
		list := v
		if fn, ok := v.(*lua.LFunction); ok {
			ret, err := m.bridge.Call(fn)
			if err != nil {
				m.logger.Debug("Attachment provider failed.", "url", m.url, "error", err)
				return nil
			}
			list = ret
		}

		t, ok := list.(*lua.LTable)
		if !ok {
			return nil
		}
		var specs []plugin.AttachmentSpec
		for i := 1; i <= t.Len(); i++ {
			at, ok := t.RawGetInt(i).(*lua.LTable)
			if !ok {
				continue
			}
			spec := plugin.AttachmentSpec{Accept: m.bridge.GetStringList(at, "accept")}
			spec.ID, _ = m.bridge.GetTableString(at, "id")
			spec.Label, _ = m.bridge.GetTableString(at, "label")
			spec.Icon, _ = m.bridge.GetTableString(at, "icon")
			specs = append(specs, spec)
		}
		return specs
	}
}

func (m *Module) itemActions(fn *lua.LFunction) plugin.ItemActionProvider {
	return func(item plugin.Item) []plugin.ItemAction {
		var actions []plugin.ItemAction
		err := m.state.Execute(context.Background(), func(L *lua.LState) error {
			arg := map[string]any{"id": item.ID, "kind": item.Kind, "data": map[string]any(item.Data)}
			ret, err := m.bridge.Call(fn, arg)
			if err != nil {
				return err
			}
			t, ok := ret.(*lua.LTable)
			if !ok {
				return nil
			}
			for i := 1; i <= t.Len(); i++ {
				at, ok := t.RawGetInt(i).(*lua.LTable)
				if !ok {
					continue
				}
				a := plugin.ItemAction{}
				a.ID, _ = m.bridge.GetTableString(at, "id")
				a.Label, _ = m.bridge.GetTableString(at, "label")
				a.Icon, _ = m.bridge.GetTableString(at, "icon")
				if run, ok := m.bridge.GetTableFunc(at, "run"); ok {
					a.Run = func(ctx context.Context) error {
						return m.call(ctx, run, arg)
					}
				}
				actions = append(actions, a)
			}
			return nil
		})
		if err != nil {
			m.logger.Debug("Item action provider failed.", "error", err)
			return nil
		}
		return actions
	}
}

// call runs fn with one argument on the executor, discarding results.
func (m *Module) call(ctx context.Context, fn *lua.LFunction, arg any) error {
	return m.state.Execute(ctx, func(L *lua.LState) error {
		_, err := m.bridge.Call(fn, arg)
		return err
	})
}

type renderable struct {
	m  *Module
	fn *lua.LFunction
}

func (m *Module) renderable(fn *lua.LFunction) plugin.Renderable {
	return renderable{m: m, fn: fn}
}

// Render calls the Lua function with props on the module's executor.
func (r renderable) Render(ctx context.Context, props plugin.Props) (string, error) {
	var out string
	err := r.m.state.Execute(ctx, func(L *lua.LState) error {
		ret, err := r.m.bridge.Call(r.fn, map[string]any(props))
		if err != nil {
			return err
		}
		switch v := ret.(type) {
		case lua.LString:
			out = string(v)
		case lua.LNumber:
			out = v.String()
		case *lua.LNilType:
			out = ""
		default:
			return fmt.Errorf("%w: got %s", ErrRenderResult, ret.Type())
		}
		return nil
	})
	return out, err
}
