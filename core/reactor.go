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

	"extrond/core/pkg/logging"
	"extrond/core/socket"
)

// tickInterval bounds how long the reactor ever blocks in a single Poll
// call, so clients waiting on a wall-clock timer (heartbeat countdown,
// scripted "wait", the Error-state linger) still make progress even with
// no socket activity at all.
const tickInterval = 50 * time.Millisecond

// Reactor is the single goroutine that owns every client's socket and
// drives its state machine and any reactor-initiated job (connect,
// _login, heartbeat) forward. An HTTP-bridge-initiated query instead takes
// the client's own lock directly (see bridge.go); the reactor's per-client
// TryLock here is what keeps the two from touching a client at once.
type Reactor struct {
	set     socket.Set
	mu      sync.Mutex
	clients []*Client
	byFD    map[int]*Client
	stopCh  chan struct{}
}

// NewReactor opens the platform poller.
func NewReactor() (*Reactor, error) {
	set, err := socket.NewSet()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		set:    set,
		byFD:   make(map[int]*Client),
		stopCh: make(chan struct{}),
	}, nil
}

func (r *Reactor) addClient(c *Client) {
	r.mu.Lock()
	r.clients = append(r.clients, c)
	r.mu.Unlock()
}

// watchConnecting registers a freshly opened, still-connecting fd for
// write-readiness so the reactor learns when the connect resolves.
func (r *Reactor) watchConnecting(c *Client) {
	r.mu.Lock()
	r.byFD[c.fd] = c
	r.mu.Unlock()
	if err := r.set.Add(c.fd, true); err != nil {
		logging.Errorf("client %s: poller add failed: %v", c.Name, err)
	}
}

func (r *Reactor) forgetFD(fd int) {
	r.mu.Lock()
	delete(r.byFD, fd)
	r.mu.Unlock()
	_ = r.set.Remove(fd)
}

func (r *Reactor) stop() {
	close(r.stopCh)
}

// run is the reactor's main loop: poll for socket events, dispatch them,
// then give every client one chance to make time-based progress
// (heartbeat countdown, Error-state expiry, a reactor-owned job's next
// step) before polling again.
func (r *Reactor) run() {
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		events, err := r.set.Poll(int(tickInterval / time.Millisecond))
		if err != nil {
			logging.Errorf("reactor: poll error: %v", err)
			continue
		}
		for _, ev := range events {
			r.dispatch(ev)
		}
		r.tick()
	}
}

func (r *Reactor) dispatch(ev socket.Event) {
	r.mu.Lock()
	c := r.byFD[ev.FD]
	r.mu.Unlock()
	if c == nil {
		return
	}

	if !c.mu.TryLock() {
		// A bridge query currently owns this client; it will pick up the
		// new data itself on its next poll-read, so dropping this event
		// is safe.
		return
	}
	defer c.mu.Unlock()

	if c.state == Inprocess && c.job != nil {
		c.pumpJobIO(ev)
		return
	}

	if c.state == Connecting {
		if ev.Flags&socket.Discard != 0 {
			c.enterState(Error)
			return
		}
		if ev.Flags&socket.JustConnected != 0 || ev.Flags&socket.Writable != 0 {
			if err := socket.ConnectError(c.fd); err != nil {
				c.enterState(Error)
				return
			}
			_ = r.set.SetWritable(c.fd, false)
			c.enterState(Connected)
		}
		return
	}

	if ev.Flags&socket.Discard != 0 {
		c.enterState(Disconnected)
		return
	}
	if ev.Flags&socket.Readable != 0 {
		c.readAvailable()
	}
}

// tick gives every client a chance to progress independent of socket
// readiness: Error-state expiry, heartbeat scheduling, and one pump step
// for any in-flight reactor-owned job (so a scripted "wait" opcode, which
// has no associated socket event, still gets woken).
func (r *Reactor) tick() {
	r.mu.Lock()
	clients := make([]*Client, len(r.clients))
	copy(clients, r.clients)
	r.mu.Unlock()

	for _, c := range clients {
		if !c.mu.TryLock() {
			continue
		}
		switch c.state {
		case Error:
			if time.Since(c.enteredState) > errLingerBeforeRetry {
				c.enterState(Disconnected)
			}
		case Disconnected:
			if GlobalStats != nil {
				GlobalStats.Reconnects.WithLabelValues(c.Name).Inc()
			}
			c.enterState(Connecting)
		case Idle:
			c.heartbeatRemaining -= tickInterval
			if c.dt.Heartbeat > 0 && c.heartbeatRemaining <= 0 {
				c.startJob("heartbeat", nil, Idle, Idle, Error)
			}
		case Inprocess:
			if c.job != nil {
				c.pumpJobIO(socket.Event{FD: c.fd})
			}
		}
		if GlobalStats != nil {
			GlobalStats.ClientState.WithLabelValues(c.Name).Set(float64(c.state))
		}
		c.mu.Unlock()
	}
}

// pumpJobIO reads whatever is newly available and resumes the active job
// once. mu is held by the caller.
func (c *Client) pumpJobIO(ev socket.Event) {
	closed := ev.Flags&socket.Discard != 0
	if ev.Flags&socket.Readable != 0 {
		c.readAvailable()
	}
	c.pumpOnce(closed)
}

// readAvailable drains whatever the socket will give up without blocking
// into the client's buffer. mu is held by the caller.
func (c *Client) readAvailable() {
	var scratch [4096]byte
	for {
		n, outcome, err := socket.Read(c.fd, scratch[:])
		if n > 0 {
			c.buf.Append(scratch[:n])
		}
		if outcome != socket.OK {
			if outcome == socket.Closed {
				c.enterState(Disconnected)
			} else if err != nil && outcome == socket.Failed {
				logging.Warnf("client %s: read error: %v", c.Name, err)
				c.enterState(Error)
			}
			return
		}
		if n < len(scratch) {
			return
		}
	}
}
