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

package core

import (
	"extrond/core/action"
	"extrond/core/coro"
	"extrond/core/script"
	"extrond/core/socket"
)

// clientEnv adapts a Client's buffer and socket to action.Env. It is
// created fresh for each job and is only ever touched by that job's own
// coroutine goroutine while it's running, and by whichever goroutine holds
// the client's lock while the coroutine is suspended — never both at once,
// since a suspended coroutine is, by construction, blocked on a channel
// receive and not running any code.
type clientEnv struct {
	client *Client
	yield  func(int) int
}

func (e *clientEnv) Available() int { return e.client.buf.Available() }
func (e *clientEnv) Peek() []byte   { return e.client.buf.Peek() }
func (e *clientEnv) Advance(n int)  { e.client.buf.Advance(n) }

func (e *clientEnv) Send(p []byte) (int, error) {
	n, outcome, err := socket.Write(e.client.fd, p)
	if outcome == socket.WouldBlock {
		return 0, nil
	}
	return n, err
}

func (e *clientEnv) Yield(waitMS int) int {
	return e.yield(waitMS)
}

var _ action.Env = (*clientEnv)(nil)

// newActionCoro spawns the coroutine driving cmds against env, returning 0
// on success and 1 on failure as the coroutine's final value.
func newActionCoro(cmds []action.Command, env *clientEnv) *coro.Handle {
	return coro.Spawn(func(yield func(int) int, _ int) int {
		env.yield = yield
		if err := action.Exec(cmds, env); err != nil {
			return 1
		}
		return 0
	})
}

// newScriptCoro spawns the coroutine running the Lua-exported action name,
// reusing the same goroutine-plus-channel suspend mechanism newActionCoro
// uses for a plain JSON action: vm.Call blocks on env.Yield, which blocks
// on this coroutine's channel, exactly like action.Exec does. out is
// filled in with the script's reported result before the coroutine
// returns, so the caller can read it once co.Resume reports !alive.
func newScriptCoro(vm *script.VM, name string, params map[string]string, env *clientEnv, getStateName func() string, out *Result) *coro.Handle {
	return coro.Spawn(func(yield func(int) int, _ int) int {
		env.yield = yield
		res, err := vm.Call(env, getStateName, name, params)
		out.Text = res.Text
		out.Status = res.Status
		out.Error = res.Error
		if err != nil {
			return 1
		}
		return 0
	})
}
