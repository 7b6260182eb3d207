package lua

import (
	"reflect"
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestBridgeToGoValue(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	tests := []struct {
		name     string
		input    glua.LValue
		expected any
	}{
		{"nil", glua.LNil, nil},
		{"true", glua.LTrue, true},
		{"integer", glua.LNumber(42), int64(42)},
		{"float", glua.LNumber(3.5), 3.5},
		{"string", glua.LString("hello"), "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridge.ToGoValue(tt.input); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ToGoValue() = %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestBridgeTables(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	if err := L.DoString(`
		arr = { "a", "b" }
		obj = { name = "poll", votes = 3, tags = { "x" } }
		empty = {}
		cyc = {}
		cyc.self = cyc
	`); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	if got := bridge.ToGoValue(L.GetGlobal("arr")); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("arr = %#v", got)
	}

	want := map[string]any{"name": "poll", "votes": int64(3), "tags": []any{"x"}}
	if got := bridge.ToGoValue(L.GetGlobal("obj")); !reflect.DeepEqual(got, want) {
		t.Errorf("obj = %#v, want %#v", got, want)
	}

	if got := bridge.ToGoValue(L.GetGlobal("empty")); !reflect.DeepEqual(got, map[string]any{}) {
		t.Errorf("empty = %#v", got)
	}

	cyc, ok := bridge.ToGoValue(L.GetGlobal("cyc")).(map[string]any)
	if !ok || cyc["self"] != nil {
		t.Errorf("cyclic reference should be cut, got %#v", cyc)
	}
}

func TestBridgeToLuaValue(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	type poll struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Open     bool     `json:"open"`
	}

	values := []any{
		nil,
		true,
		7,
		int64(8),
		2.5,
		"s",
		[]any{"a", int64(1)},
		[]string{"x", "y"},
		map[string]any{"k": "v", "n": int64(2)},
		map[string]string{"a": "b"},
	}
	for _, v := range values {
		back := bridge.ToGoValue(bridge.ToLuaValue(v))
		want := v
		switch x := v.(type) {
		case int:
			want = int64(x)
		case []string:
			want = []any{"x", "y"}
		case map[string]string:
			want = map[string]any{"a": "b"}
		}
		if !reflect.DeepEqual(back, want) {
			t.Errorf("round trip %#v = %#v", v, back)
		}
	}

	lv := bridge.ToLuaValue(poll{Question: "Lunch?", Options: []string{"pizza", "salad"}, Open: true})
	got := bridge.ToGoValue(lv)
	want := map[string]any{"question": "Lunch?", "options": []any{"pizza", "salad"}, "open": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("struct via JSON = %#v, want %#v", got, want)
	}
}

func TestBridgeTableAccessors(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	if err := L.DoString(`t = { id = "x", list = { "a", 1, "b" }, sub = {}, fn = function() return "r" end }`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	tbl := L.GetGlobal("t").(*glua.LTable)

	if s, ok := bridge.GetTableString(tbl, "id"); !ok || s != "x" {
		t.Errorf("GetTableString = %q, %v", s, ok)
	}
	if _, ok := bridge.GetTableString(tbl, "sub"); ok {
		t.Error("GetTableString on table should fail")
	}
	if _, ok := bridge.GetTableTable(tbl, "sub"); !ok {
		t.Error("GetTableTable failed")
	}
	if got := bridge.GetStringList(tbl, "list"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("GetStringList = %v", got)
	}

	fn, ok := bridge.GetTableFunc(tbl, "fn")
	if !ok {
		t.Fatal("GetTableFunc failed")
	}
	ret, err := bridge.Call(fn)
	if err != nil || ret.String() != "r" {
		t.Errorf("Call = %v, %v", ret, err)
	}
}
