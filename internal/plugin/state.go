package plugin

import (
	lua "github.com/yuin/gopher-lua"
)

// newLuaState builds a sandboxed interpreter. Only the base, table,
// string, and math libraries are opened; io, os, debug, and the
// package system never exist, and the base loaders are stripped so
// scripts cannot pull in code from disk.
func newLuaState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	return L
}
