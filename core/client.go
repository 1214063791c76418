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
	"sync"
	"time"

	"extrond/config"
	"extrond/core/action"
	"extrond/core/buffer"
	"extrond/core/coro"
	coreerrors "extrond/core/pkg/errors"
	"extrond/core/pkg/logging"
	"extrond/core/reload"
	"extrond/core/script"
	"extrond/core/socket"
)

// errLingerBeforeRetry is how long a client stays in Error before the
// reactor demotes it back to Disconnected and lets it try again,
// matching the original's ">3000ms in ERROR" rule.
const errLingerBeforeRetry = 3000 * time.Millisecond

// Client is one configured device: its connection, its input buffer, its
// state machine, and whichever action is currently running against it.
// All mutable fields are guarded by mu; the reactor goroutine and any
// number of HTTP-bridge goroutines touch a Client, but never more than one
// at a time (single-writer discipline enforced by mu, not by goroutine
// affinity).
type Client struct {
	Name string
	host string
	port int

	dt       *config.DeviceType
	vm       *script.VM
	reloader *reload.Watcher

	mu                 sync.Mutex
	fd                 int
	buf                *buffer.Buffer
	state              State
	enteredState       time.Time
	heartbeatRemaining time.Duration
	job                *job

	reactor *Reactor
}

// NewClient builds a Client for dev against its device type. The initial
// state is Disconnected; the reactor connects it on its first tick.
func NewClient(dev *config.Device, dt *config.DeviceType, r *Reactor) *Client {
	c := &Client{
		Name:               dev.Name,
		host:               dev.Host,
		port:               dev.Port,
		dt:                 dt,
		fd:                 socket.Invalid,
		buf:                buffer.New(),
		state:              Disconnected,
		enteredState:       time.Time{},
		heartbeatRemaining: dt.Heartbeat,
		reactor:            r,
	}
	if dt.Script != "" {
		vm, err := script.Load(dt.Script, nil)
		if err != nil {
			logging.Errorf("client %s: script load failed: %v", dev.Name, err)
		} else {
			c.vm = vm
		}
	}
	return c
}

// State reports the client's current state under lock.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Host reports the configured device address, for /status.
func (c *Client) Host() string {
	return c.host
}

// Port reports the configured device port, for /status.
func (c *Client) Port() int {
	return c.port
}

// TimeInState reports how long the client has held its current state.
func (c *Client) TimeInState() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.enteredState)
}

// enterState applies the entry effects of a state transition, looping
// until it reaches a fixed point. This is the Go-native resolution of the
// original's re-entrant-lock requirement: setState(Connected) used to call
// authenticate(), which called setState(Authing) recursively while still
// holding the client's lock. Here, computeEntry tells the caller what to
// do next instead of recursing; the one exception is startJob's failure
// path (reached from Authing), which calls enterState(fail) directly.
// enterState never takes mu itself, so a single, non-reentrant mutex held
// by the caller is enough either way. mu must already be held by the
// caller.
func (c *Client) enterState(s State) {
	for {
		c.state = s
		c.enteredState = time.Now()
		next, ok := c.computeEntry(s)
		if !ok {
			return
		}
		s = next
	}
}

// computeEntry runs the side effect of entering s and returns the state to
// transition to next, if any. mu is held.
func (c *Client) computeEntry(s State) (next State, ok bool) {
	switch s {
	case Disconnected:
		c.closeSocket()
		return 0, false
	case Connecting:
		fd, outcome, err := socket.Open(c.host, c.port)
		if err != nil || outcome == socket.Failed {
			logging.Warnf("client %s: connect failed: %v", c.Name, err)
			return Error, true
		}
		c.fd = fd
		c.reactor.watchConnecting(c)
		return 0, false
	case Connected:
		c.heartbeatRemaining = c.dt.Heartbeat
		c.reloadScriptIfDirty()
		if c.hasAction("_login") {
			return Authing, true
		}
		return Idle, true
	case Authing:
		c.startJob("_login", nil, Authing, Authed, Error)
		return 0, false
	case Authed:
		return Idle, true
	case Idle:
		c.heartbeatRemaining = c.dt.Heartbeat
		return 0, false
	case Inprocess:
		return 0, false
	case Error:
		return 0, false
	}
	return 0, false
}

// SetReloader attaches the hot-reload watcher; called once at startup.
func (c *Client) SetReloader(w *reload.Watcher) {
	c.reloader = w
}

// reloadScriptIfDirty swaps in a freshly compiled VM if the reload watcher
// reports the device type dirty. The watcher clears the flag on that
// check, so only the first client of the type to connect afterwards
// reloads. mu is held.
func (c *Client) reloadScriptIfDirty() {
	if c.reloader == nil || c.dt.Script == "" || !c.reloader.IsDirty(c.dt.Name) {
		return
	}
	vm, err := script.Load(c.dt.Script, nil)
	if err != nil {
		logging.Errorf("client %s: script reload failed: %v", c.Name, err)
		return
	}
	if c.vm != nil {
		c.vm.Close()
	}
	c.vm = vm
	logging.Infof("client %s: script reloaded", c.Name)
}

func (c *Client) closeSocket() {
	if c.fd != socket.Invalid {
		c.reactor.forgetFD(c.fd)
		_ = socket.Close(c.fd)
		c.fd = socket.Invalid
	}
	c.buf.Clear()
}

// hasAction reports whether name is runnable, either as a scripted export
// or a plain JSON action.
func (c *Client) hasAction(name string) bool {
	if c.vm != nil && c.vm.Exported(name) {
		return true
	}
	_, ok := c.dt.RawAction(name)
	return ok
}

// startJob spawns the coroutine for name and records the state transitions
// to apply once it finishes. mu must be held.
func (c *Client) startJob(name string, params map[string]string, begin, end, fail State) {
	co, result, err := c.spawnJob(name, params)
	if err != nil {
		logging.Errorf("client %s: action %s: %v", c.Name, name, err)
		c.enterState(fail)
		return
	}
	c.job = &job{
		name:       name,
		co:         co,
		result:     result,
		beginState: begin,
		endState:   end,
		failState:  fail,
		deadline:   time.Now().Add(30 * time.Second),
		done:       make(chan Result, 1),
	}
	c.state = Inprocess
}

// spawnJob compiles name and starts its coroutine against a fresh
// clientEnv: a Lua-exported name runs through the script VM, otherwise it
// falls back to the JSON action table. result is non-nil only for a
// scripted action, whose Text/Status/Error fields it is filled in with
// once the coroutine finishes. mu must be held.
func (c *Client) spawnJob(name string, params map[string]string) (co *coro.Handle, result *Result, err error) {
	env := &clientEnv{client: c}
	if c.vm != nil && c.vm.Exported(name) {
		result = &Result{}
		getState := func() string { return c.state.String() }
		return newScriptCoro(c.vm, name, params, env, getState, result), result, nil
	}
	cmds, err := c.compileAction(name)
	if err != nil {
		return nil, nil, err
	}
	return newActionCoro(cmds, env), nil, nil
}

func (c *Client) compileAction(name string) ([]action.Command, error) {
	raw, ok := c.dt.RawAction(name)
	if !ok {
		return nil, coreerrors.ErrUnknownAction
	}
	a, err := action.Parse(name, raw)
	if err != nil {
		return nil, err
	}
	return a.Commands, nil
}

// pumpOnce resumes the active job exactly once with the currently
// available byte count (or -1 if the socket has closed) and applies its
// end-of-job state transition if it has finished. mu must be held.
func (c *Client) pumpOnce(closed bool) (waitMS int, finished bool) {
	if c.job == nil {
		return 0, true
	}
	arg := c.buf.Available()
	if closed {
		arg = -1
	}
	ret, alive := c.job.co.Resume(arg)
	if alive {
		return ret, false
	}
	ok := ret == 0
	j := c.job
	c.job = nil
	if ok {
		c.enterState(j.endState)
	} else {
		c.enterState(j.failState)
	}
	res := Result{Error: !ok}
	if j.result != nil {
		res = *j.result
		res.Error = !ok
	}
	select {
	case j.done <- res:
	default:
	}
	return 0, true
}
