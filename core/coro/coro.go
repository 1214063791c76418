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

// Package coro emulates a stackful coroutine on top of a goroutine and a
// pair of unbuffered int channels. Go has no native stackful coroutine; a
// goroutine parked on a channel receive is the language-native lightweight
// task facility that stands in for one here, with the same suspend/resume
// contract as a minicoro-style coroutine: a fixed-point synchronisation
// step before the body runs, and an int handed across each yield/resume.
package coro

import "sync"

// Func is the body of a coroutine. It receives a yield function it may
// call any number of times; each call blocks until the coroutine is
// resumed and returns the value passed to that Resume.
type Func func(yield func(int) int, arg int) int

// Handle is a running (or finished) coroutine.
type Handle struct {
	toCoro   chan int
	fromCoro chan int
	mu       sync.Mutex
	alive    bool
	started  bool
}

// Spawn creates a coroutine running fn. The goroutine is started
// immediately but blocks on its synchronisation yield; fn itself does not
// run until the first Resume. This mirrors the "_cothunk" pattern. The
// value handed to that first Resume becomes fn's arg.
func Spawn(fn Func) *Handle {
	h := &Handle{
		toCoro:   make(chan int),
		fromCoro: make(chan int),
		alive:    true,
	}
	go func() {
		arg := <-h.toCoro // synchronisation yield
		yield := func(v int) int {
			h.fromCoro <- v
			return <-h.toCoro
		}
		ret := fn(yield, arg)
		h.mu.Lock()
		h.alive = false
		h.mu.Unlock()
		h.fromCoro <- ret
	}()
	return h
}

// Resume hands arg to the coroutine and blocks until it yields or returns.
// alive is false once the coroutine has returned; calling Resume again
// after that panics, matching the original's "resuming a dead coroutine is
// a programming error" contract.
func (h *Handle) Resume(arg int) (ret int, alive bool) {
	h.mu.Lock()
	if !h.alive && h.started {
		h.mu.Unlock()
		panic("coro: resume of dead coroutine")
	}
	h.started = true
	h.mu.Unlock()

	h.toCoro <- arg
	ret = <-h.fromCoro

	h.mu.Lock()
	alive = h.alive
	h.mu.Unlock()
	return ret, alive
}

// Alive reports whether the coroutine has not yet returned.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

// Destroy abandons the coroutine: it only marks the handle dead. The
// underlying goroutine stays parked on its channel and is never resumed or
// unwound, so deferred calls in fn do not run; scripted actions must not
// depend on deterministic cleanup here, only on best-effort resource
// release via their own bookkeeping.
func (h *Handle) Destroy() {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
}
