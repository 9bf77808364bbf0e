package plugin

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
)

// toLua converts a Go value to its Lua shape. Command payloads become
// tables keyed by field (text, forward, id, title, anchor, focus);
// scalars map directly, slices and string-keyed maps become tables.
// Values with no sensible Lua shape become nil.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case command.TextPayload:
		t := L.NewTable()
		t.RawSetString("text", lua.LString(val.Text))
		return t
	case command.DeletePayload:
		t := L.NewTable()
		t.RawSetString("forward", lua.LBool(val.Forward))
		return t
	case command.ReferencePayload:
		t := L.NewTable()
		t.RawSetString("id", lua.LString(val.ID))
		t.RawSetString("title", lua.LString(val.Title))
		return t
	case command.SelectionPayload:
		return selectionToLua(L, val.Selection)
	case selection.Selection:
		return selectionToLua(L, val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, e := range val {
			t.RawSetInt(i+1, toLua(L, e))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range val {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case lua.LValue:
		return val
	default:
		return lua.LNil
	}
}

func selectionToLua(L *lua.LState, sel selection.Selection) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("anchor", pointToLua(L, sel.Anchor))
	t.RawSetString("focus", pointToLua(L, sel.Focus))
	return t
}

func pointToLua(L *lua.LState, p selection.Point) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("node", lua.LNumber(p.Node))
	t.RawSetString("offset", lua.LNumber(p.Offset))
	return t
}

// fromLua converts a Lua value to a plain Go value: booleans,
// numbers (int64 when integral), strings, and tables as []any or
// map[string]any. Cyclic tables are cut with nil.
func fromLua(lv lua.LValue) any {
	return fromLuaVisited(lv, make(map[*lua.LTable]bool))
}

func fromLuaVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		if f := float64(v); f == float64(int64(f)) {
			return int64(f)
		}
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return tableFromLua(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableFromLua maps a contiguous 1..n integer-keyed table to a slice
// and anything else to a string-keyed map.
func tableFromLua(t *lua.LTable, visited map[*lua.LTable]bool) any {
	maxN, count, isArray := 0, 0, true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != float64(int(n)) || int(n) < 1 {
			isArray = false
			return
		}
		if int(n) > maxN {
			maxN = int(n)
		}
	})
	if isArray && count > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = fromLuaVisited(t.RawGetInt(i), visited)
		}
		return arr
	}
	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = fromLuaVisited(v, visited)
	})
	return m
}

// payloadFromLua builds the Go payload a dispatched command expects.
// Built-in command types get their payload structs so registered
// handlers can type-assert them; anything else passes through fromLua.
func payloadFromLua(typ command.Type, lv lua.LValue) any {
	switch typ {
	case command.InsertText:
		switch v := lv.(type) {
		case lua.LString:
			return command.TextPayload{Text: string(v)}
		case *lua.LTable:
			return command.TextPayload{Text: tableString(v, "text")}
		}
		return command.TextPayload{}
	case command.DeleteCharacter:
		if t, ok := lv.(*lua.LTable); ok {
			return command.DeletePayload{Forward: tableBool(t, "forward")}
		}
		return command.DeletePayload{}
	case command.InsertReference:
		if t, ok := lv.(*lua.LTable); ok {
			return command.ReferencePayload{ID: tableString(t, "id"), Title: tableString(t, "title")}
		}
		return command.ReferencePayload{}
	case command.SetSelection:
		if t, ok := lv.(*lua.LTable); ok {
			return command.SelectionPayload{Selection: selectionFromLua(t)}
		}
		return command.SelectionPayload{}
	default:
		return fromLua(lv)
	}
}

// selectionFromLua reads {anchor=point, focus=point} where a point is
// {node=key, offset=n}. A bare point table collapses to a caret.
func selectionFromLua(t *lua.LTable) selection.Selection {
	a, aok := t.RawGetString("anchor").(*lua.LTable)
	f, fok := t.RawGetString("focus").(*lua.LTable)
	switch {
	case aok && fok:
		return selection.Selection{Anchor: pointFromLua(a), Focus: pointFromLua(f)}
	case aok:
		p := pointFromLua(a)
		return selection.Selection{Anchor: p, Focus: p}
	default:
		return selection.Caret(node.Key(tableInt(t, "node")), int(tableInt(t, "offset")))
	}
}

func pointFromLua(t *lua.LTable) selection.Point {
	return selection.Point{
		Node:   node.Key(tableInt(t, "node")),
		Offset: int(tableInt(t, "offset")),
	}
}

func tableString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func tableInt(t *lua.LTable, key string) int64 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int64(n)
	}
	return 0
}

func tableBool(t *lua.LTable, key string) bool {
	if b, ok := t.RawGetString(key).(lua.LBool); ok {
		return bool(b)
	}
	return false
}
