// Copyright (c) 2024 The extrond Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package script hosts a per-client embedded Lua VM (via gopher-lua) that
// may override or extend the JSON action table with hand-written session
// logic: custom login handshakes, conditional branching on device output,
// and so on. It exposes seven of core/action's eight opcodes, all but fail
// (expect/match/skip/skipall/wait/need/send), plus log, a read-only
// availableInput and getStateName, as Lua functions. An exported function runs to
// completion on whatever goroutine calls it; core/env.go's newScriptCoro
// is what actually gives it the suspend-and-resume behavior, by running
// that call inside a core/coro coroutine the same way a plain JSON action
// runs inside one.
package script

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"extrond/core/action"
	coreerrors "extrond/core/pkg/errors"
	"extrond/core/pkg/logging"
)

// VM is one client's Lua scripting host.
type VM struct {
	L        *lua.LState
	exported map[string]bool
	env      action.Env
}

// Load compiles path and collects its exported (non-underscore-prefixed,
// Lua-function-valued) globals. config is bound read-only as the Lua
// global CONFIG so a script can read per-device-type settings without a
// side channel.
func Load(path string, config map[string]interface{}) (*VM, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("script: %s: %w", path, err)
	}

	vm := &VM{L: L, exported: map[string]bool{}}
	L.SetGlobal("CONFIG", toLuaValue(L, config))
	vm.collectExports()
	return vm, nil
}

func (vm *VM) collectExports() {
	global := vm.L.Get(lua.GlobalsIndex).(*lua.LTable)
	global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if strings.HasPrefix(string(name), "_") {
			return
		}
		if fn, isFn := v.(*lua.LFunction); !isFn || fn.IsG {
			return
		}
		vm.exported[string(name)] = true
	})
}

// Exported reports whether name is a callable, non-underscore-prefixed
// global the script defines.
func (vm *VM) Exported(name string) bool {
	return vm.exported[name]
}

// ExportedNames lists every exported action name.
func (vm *VM) ExportedNames() []string {
	names := make([]string, 0, len(vm.exported))
	for n := range vm.exported {
		names = append(names, n)
	}
	return names
}

// Bind installs the expect/match/skip/skipall/wait/need/send/log/
// getStateName/availableInput primitives against env, so subsequent calls
// from any coroutine in this VM act on this client's buffer and socket.
func (vm *VM) Bind(env action.Env, getStateName func() string) {
	vm.env = env
	L := vm.L

	reg := func(name string, fn lua.LGFunction) {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	reg("expect", vm.wrapUnary(action.OpExpect))
	reg("send", vm.wrapUnary(action.OpSend))
	reg("match", vm.wrapMatch)
	reg("skip", vm.wrapN(action.OpSkip))
	reg("need", vm.wrapN(action.OpNeed))
	reg("wait", vm.wrapWait)
	reg("skipall", func(L *lua.LState) int {
		vm.env.Advance(vm.env.Available())
		return 0
	})
	reg("availableInput", func(L *lua.LState) int {
		L.Push(lua.LNumber(vm.env.Available()))
		return 1
	})
	reg("getStateName", func(L *lua.LState) int {
		L.Push(lua.LString(getStateName()))
		return 1
	})
	reg("log", func(L *lua.LState) int {
		logging.Infof("script: %s", L.CheckString(1))
		return 0
	})
}

// wrapUnary builds the Lua binding for expect/send: both take one string
// argument and run the matching single Command through core/action's
// interpreter, which waits through env.Yield for the blocking cases
// exactly as Exec does for a plain JSON action.
func (vm *VM) wrapUnary(op action.Opcode) lua.LGFunction {
	return func(L *lua.LState) int {
		arg := L.CheckString(1)
		err := runOne(L, vm.env, action.Command{Op: op, Str: arg})
		return pushResult(L, err)
	}
}

func (vm *VM) wrapN(op action.Opcode) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.CheckInt(1)
		err := runOne(L, vm.env, action.Command{Op: op, N: uint(n)})
		return pushResult(L, err)
	}
}

func (vm *VM) wrapMatch(L *lua.LState) int {
	pattern := L.CheckString(1)
	cmds, err := action.Parse("lua-match", []byte(`[{"op":"match","arg":`+luaQuote(pattern)+`}]`))
	if err != nil {
		L.RaiseError("script: bad match pattern: %v", err)
		return 0
	}
	execErr := runOne(L, vm.env, cmds.Commands[0])
	return pushResult(L, execErr)
}

func (vm *VM) wrapWait(L *lua.LState) int {
	ms := L.CheckInt(1)
	vm.env.Yield(ms)
	return 0
}

// runOne drives a single Command through the client's Env until the
// command either completes or fails. Any wait suspends through env.Yield,
// that is, through the job's core/coro coroutine, not through gopher-lua's
// own coroutine API.
func runOne(L *lua.LState, env action.Env, c action.Command) error {
	return action.Exec([]action.Command{c}, env)
}

func pushResult(L *lua.LState, err error) int {
	L.Push(lua.LBool(err == nil))
	if err != nil {
		L.Push(lua.LString(err.Error()))
		return 2
	}
	return 1
}

func luaQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func toLuaValue(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, toLuaValue(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, toLuaValue(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// Result is the Lua-side equivalent of core.Result before the engine maps
// it onto an HTTP response: a script may return up to three values, in
// any order, interpreted by type (string -> Text, number -> Status,
// boolean -> Error).
type Result struct {
	Text   string
	Status int
	Error  bool
}

// Call runs the exported Lua action name to completion, synchronously on
// the calling goroutine. params is passed in as a single Lua table
// argument. The caller must run Call from a dedicated coroutine goroutine
// (see core/env.go's newScriptCoro) and supply an env whose Yield blocks
// that goroutine on a channel receive exactly like core/coro does for a
// plain JSON action: expect/match/wait/... all resolve to calls on env,
// never to gopher-lua's own coroutine machinery, so one client-side
// suspension mechanism covers both action kinds.
func (vm *VM) Call(env action.Env, getStateName func() string, name string, params map[string]string) (Result, error) {
	if !vm.Exported(name) {
		return Result{}, coreerrors.ErrUnknownAction
	}
	fn, ok := vm.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return Result{}, coreerrors.ErrUnknownAction
	}
	vm.Bind(env, getStateName)

	L := vm.L
	argsTable := L.NewTable()
	for k, v := range params {
		argsTable.RawSetString(k, lua.LString(v))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 3, Protect: true}, argsTable); err != nil {
		return Result{Error: true, Status: 500, Text: err.Error()}, coreerrors.ErrActionFailed
	}

	vals := [3]lua.LValue{L.Get(-3), L.Get(-2), L.Get(-1)}
	L.Pop(3)
	var res Result
	for _, v := range vals {
		switch t := v.(type) {
		case lua.LString:
			res.Text = string(t)
		case lua.LNumber:
			res.Status = int(t)
		case lua.LBool:
			res.Error = bool(t)
		}
	}
	if res.Error {
		return res, coreerrors.ErrActionFailed
	}
	return res, nil
}

// Close releases the VM.
func (vm *VM) Close() {
	vm.L.Close()
}
