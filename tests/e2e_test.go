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

package tests

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"extrond/core"
)

func waitForState(t *testing.T, client *core.Client, want core.State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if client.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, last seen %v", want, client.State())
}

func startEngine(t *testing.T, root string) *core.Engine {
	t.Helper()
	eng, err := core.NewEngine(root)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	go eng.Run()
	t.Cleanup(eng.Shutdown)
	return eng
}

var loginAction = actionArray(
	step("expect", "login: "),
	step("send", "user\n"),
	step("expect", "pass: "),
	step("send", "pw\n"),
	step("expect", "> "),
)

// S1 — login handshake: the client must reach IDLE once the mock
// completes the scripted challenge/response exchange.
func TestS1LoginHandshake(t *testing.T) {
	mock := newMockDevice(t, func(conn net.Conn, _ int) {
		defer conn.Close()
		time.Sleep(5 * time.Millisecond)
		writeString(t, conn, "login: ")
		readExact(t, conn, "user\n")
		time.Sleep(20 * time.Millisecond)
		writeString(t, conn, "pass: ")
		readExact(t, conn, "pw\n")
		writeString(t, conn, "> ")
		time.Sleep(2 * time.Second)
	})

	root := writeTree(t, "typeA", deviceTypeFixture{
		Actions: map[string]json.RawMessage{"_login": loginAction},
	}, "127.0.0.1", mock.port)

	eng := startEngine(t, root)
	client, ok := eng.Client("dev1")
	if !ok {
		t.Fatal("client dev1 not found")
	}
	waitForState(t, client, core.Idle, 3*time.Second)
}

// S3 — expect mismatch: a script expecting "HI\n" but fed "BYE\n" must
// fail the action and drive the client to ERROR, then to DISCONNECTED
// once the error-state linger elapses.
func TestS3ExpectMismatch(t *testing.T) {
	mock := newMockDevice(t, func(conn net.Conn, connNum int) {
		defer conn.Close()
		if connNum == 1 {
			writeString(t, conn, "BYE\n")
			time.Sleep(4 * time.Second)
			return
		}
		// A later reconnect attempt after ERROR->DISCONNECTED: keep the
		// listener alive but don't bother completing a login, the test
		// only asserts the ERROR transition happened once already.
		time.Sleep(4 * time.Second)
	})

	root := writeTree(t, "typeB", deviceTypeFixture{
		Actions: map[string]json.RawMessage{
			"_login": actionArray(step("expect", "HI\n")),
		},
	}, "127.0.0.1", mock.port)

	eng := startEngine(t, root)
	client, ok := eng.Client("dev1")
	if !ok {
		t.Fatal("client dev1 not found")
	}
	waitForState(t, client, core.Error, 2*time.Second)
	waitForState(t, client, core.Disconnected, 4*time.Second)
}

// S4 — heartbeat: with heartbeat_time=100ms and a mock that always
// answers "pong\n", the mock must see at least 3 "ping\n" writes within
// 350ms of reaching IDLE.
func TestS4Heartbeat(t *testing.T) {
	var pings int32
	mock := newMockDevice(t, func(conn net.Conn, _ int) {
		defer conn.Close()
		writeString(t, conn, "> ")
		for {
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			buf := make([]byte, len("ping\n"))
			n := 0
			for n < len(buf) {
				m, err := conn.Read(buf[n:])
				if err != nil {
					return
				}
				n += m
			}
			if string(buf) == "ping\n" {
				atomic.AddInt32(&pings, 1)
				writeString(t, conn, "pong\n")
			}
		}
	})

	root := writeTree(t, "typeC", deviceTypeFixture{
		HeartbeatTime: "100ms",
		Actions: map[string]json.RawMessage{
			"_login":    actionArray(step("expect", "> ")),
			"heartbeat": actionArray(step("send", "ping\n"), step("expect", "pong\n")),
		},
	}, "127.0.0.1", mock.port)

	eng := startEngine(t, root)
	client, ok := eng.Client("dev1")
	if !ok {
		t.Fatal("client dev1 not found")
	}
	waitForState(t, client, core.Idle, 2*time.Second)
	time.Sleep(350 * time.Millisecond)
	if got := atomic.LoadInt32(&pings); got < 3 {
		t.Fatalf("expected at least 3 heartbeat pings, got %d", got)
	}
}

// S5 — concurrent queries: two HTTP-style callers querying the same
// client at once must never have overlapping send windows against the
// device, because Bridge holds the client's lock for the whole query.
func TestS5ConcurrentQueriesDoNotOverlap(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	overlapped := false

	mock := newMockDevice(t, func(conn net.Conn, _ int) {
		defer conn.Close()
		writeString(t, conn, "> ")
		for {
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			buf := make([]byte, len("status\n"))
			n := 0
			for n < len(buf) {
				m, err := conn.Read(buf[n:])
				if err != nil {
					return
				}
				n += m
			}
			if string(buf) != "status\n" {
				return
			}
			mu.Lock()
			inFlight++
			if inFlight > 1 {
				overlapped = true
			}
			mu.Unlock()

			time.Sleep(30 * time.Millisecond)
			writeString(t, conn, "OK\n")

			mu.Lock()
			inFlight--
			mu.Unlock()
		}
	})

	root := writeTree(t, "typeD", deviceTypeFixture{
		Actions: map[string]json.RawMessage{
			"_login": actionArray(step("expect", "> ")),
			"status": actionArray(step("send", "status\n"), step("expect", "OK\n")),
		},
	}, "127.0.0.1", mock.port)

	eng := startEngine(t, root)
	client, ok := eng.Client("dev1")
	if !ok {
		t.Fatal("client dev1 not found")
	}
	waitForState(t, client, core.Idle, 2*time.Second)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.Query("dev1", "status", nil, 2000)
			results[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("query %d failed: %v", i, err)
		}
	}
	if overlapped {
		t.Fatal("two queries had overlapping send windows")
	}
}

// S7 — scripted actions: a device type whose _login and status actions
// are defined purely in Lua (no JSON action table at all) must reach
// IDLE through the scripted login and answer a bridge query with the
// script's own return values, proving the scripting host actually sits
// on the dispatch path rather than just compiling.
func TestS7ScriptedLoginAndQuery(t *testing.T) {
	mock := newMockDevice(t, func(conn net.Conn, _ int) {
		defer conn.Close()
		time.Sleep(5 * time.Millisecond)
		writeString(t, conn, "login: ")
		readExact(t, conn, "user\n")
		writeString(t, conn, "pass: ")
		readExact(t, conn, "pw\n")
		writeString(t, conn, "> ")
		readExact(t, conn, "status\n")
		writeString(t, conn, "OK\n")
		time.Sleep(2 * time.Second)
	})

	scriptPath := filepath.Join(t.TempDir(), "typeF.lua")
	script := `
function _login()
	expect("login: ")
	send("user\n")
	expect("pass: ")
	send("pw\n")
	expect("> ")
end

function status(args)
	send("status\n")
	expect("OK\n")
	return "scripted-ok", 200
end
`
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	root := writeTree(t, "typeF", deviceTypeFixture{Script: scriptPath}, "127.0.0.1", mock.port)

	eng := startEngine(t, root)
	client, ok := eng.Client("dev1")
	if !ok {
		t.Fatal("client dev1 not found")
	}
	waitForState(t, client, core.Idle, 2*time.Second)

	res, err := eng.Query("dev1", "status", nil, 2000)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Text != "scripted-ok" || res.Status != 200 {
		t.Fatalf("unexpected scripted result: %+v", res)
	}
}

// S6 — reconnect: once the active connection is severed, the client
// must cycle ERROR/DISCONNECTED and come back up through a fresh
// _login on the next connection the mock accepts.
func TestS6Reconnect(t *testing.T) {
	var firstConn net.Conn
	var mu sync.Mutex
	secondLoggedIn := make(chan struct{})

	mock := newMockDevice(t, func(conn net.Conn, connNum int) {
		if connNum == 1 {
			mu.Lock()
			firstConn = conn
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			writeString(t, conn, "login: ")
			readExact(t, conn, "user\n")
			writeString(t, conn, "pass: ")
			readExact(t, conn, "pw\n")
			writeString(t, conn, "> ")
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Millisecond)
		writeString(t, conn, "login: ")
		readExact(t, conn, "user\n")
		writeString(t, conn, "pass: ")
		readExact(t, conn, "pw\n")
		writeString(t, conn, "> ")
		close(secondLoggedIn)
		time.Sleep(2 * time.Second)
	})

	root := writeTree(t, "typeE", deviceTypeFixture{
		Actions: map[string]json.RawMessage{"_login": loginAction},
	}, "127.0.0.1", mock.port)

	eng := startEngine(t, root)
	client, ok := eng.Client("dev1")
	if !ok {
		t.Fatal("client dev1 not found")
	}
	waitForState(t, client, core.Idle, 2*time.Second)

	mu.Lock()
	conn := firstConn
	mu.Unlock()
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	_ = conn.Close()

	select {
	case <-secondLoggedIn:
	case <-time.After(6 * time.Second):
		t.Fatal("mock never saw a second login cycle")
	}
	waitForState(t, client, core.Idle, 2*time.Second)
}
