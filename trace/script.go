// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Script is a Lua trace filter.
//
// The script must define a global function filter(line) receiving a
// table with the fields index, kind, category, register, read, data,
// samples, text and bytes. The function returns a boolean to keep or
// drop the line, nil to keep it, or a string replacing its headline.
type Script struct {
	name string
	ls   *lua.LState
	fn   lua.LValue
}

// LoadScript loads the Lua filter script fname.
func LoadScript(fname string) (*Script, error) {
	ls := lua.NewState()
	err := ls.DoFile(fname)
	if err != nil {
		ls.Close()
		return nil, fmt.Errorf("trace: could not load lua script %q: %w", fname, err)
	}

	fn := ls.GetGlobal("filter")
	if fn.Type() != lua.LTFunction {
		ls.Close()
		return nil, fmt.Errorf("trace: lua script %q does not define a filter function", fname)
	}

	return &Script{name: fname, ls: ls, fn: fn}, nil
}

// Filter runs the script on l and reports whether l should be kept.
// The headline of l may be rewritten by the script.
func (s *Script) Filter(l *Line) (bool, error) {
	tbl := s.ls.NewTable()
	tbl.RawSetString("index", lua.LNumber(l.Index))
	tbl.RawSetString("kind", lua.LString(l.Kind.String()))
	tbl.RawSetString("category", lua.LString(l.Category.String()))
	tbl.RawSetString("register", lua.LString(l.Register.String()))
	tbl.RawSetString("read", lua.LBool(l.Read))
	tbl.RawSetString("data", lua.LNumber(l.Data))
	tbl.RawSetString("samples", lua.LNumber(l.Samples))
	tbl.RawSetString("text", lua.LString(l.Text))
	tbl.RawSetString("bytes", lua.LString(string(l.Bytes)))

	err := s.ls.CallByParam(lua.P{
		Fn:      s.fn,
		NRet:    1,
		Protect: true,
	}, tbl)
	if err != nil {
		return false, fmt.Errorf("trace: could not run lua filter on line %d: %w", l.Index, err)
	}

	ret := s.ls.Get(-1)
	s.ls.Pop(1)

	switch v := ret.(type) {
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		l.Text = string(v)
		return true, nil
	}
	if ret == lua.LNil {
		return true, nil
	}
	return false, fmt.Errorf("trace: lua filter %q returned a %s", s.name, ret.Type())
}

// Close releases the Lua interpreter.
func (s *Script) Close() {
	s.ls.Close()
}
