// Copyright (c) 2022 The rcproxy Authors
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

//go:build linux || freebsd || dragonfly || darwin
// +build linux freebsd dragonfly darwin

package core

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"

	"extrond/config"
	coreerrors "extrond/core/pkg/errors"
	"extrond/core/pkg/logging"
	"extrond/core/reload"
)

// Engine owns every configured client and the single reactor goroutine
// that drives them all. HTTP worker goroutines read the client directory
// concurrently with the reactor goroutine mutating client state, which is
// why the directory itself is a lock-free hashmap.HashMap rather than a plain
// map guarded by a mutex: the reactor must never block on an HTTP
// request's behalf.
type Engine struct {
	clients    hashmap.HashMap
	reactor    *Reactor
	reloader   *reload.Watcher
	inShutdown int32
	once       sync.Once
	cond       *sync.Cond
	wg         sync.WaitGroup
}

// NewEngine loads every device and device type under root and builds (but
// does not yet start) the client directory and reactor.
func NewEngine(root string) (*Engine, error) {
	eng := &Engine{
		cond: sync.NewCond(&sync.Mutex{}),
	}

	typeNames, err := config.ListNames(root, "devicetypes")
	if err != nil {
		return nil, err
	}
	types := make(map[string]*config.DeviceType, len(typeNames))
	for _, name := range typeNames {
		dt, err := config.LoadDeviceType(root, name)
		if err != nil {
			logging.Errorf("skipping device type %s: %v", name, err)
			continue
		}
		types[name] = dt
	}

	deviceNames, err := config.ListNames(root, "devices")
	if err != nil {
		return nil, err
	}
	reactor, err := NewReactor()
	if err != nil {
		return nil, err
	}
	eng.reactor = reactor

	watcher, err := reload.New(root)
	if err != nil {
		logging.Warnf("hot-reload disabled: %v", err)
	} else {
		eng.reloader = watcher
	}

	for _, name := range deviceNames {
		dev, err := config.LoadDevice(root, name)
		if err != nil {
			logging.Errorf("skipping device %s: %v", name, err)
			continue
		}
		dt, ok := types[dev.Type]
		if !ok {
			logging.Errorf("device %s references unknown type %s", name, dev.Type)
			continue
		}
		client := NewClient(dev, dt, reactor)
		if eng.reloader != nil {
			client.SetReloader(eng.reloader)
		}
		eng.clients.Set(dev.Name, client)
		reactor.addClient(client)
	}
	return eng, nil
}

// Client looks a device client up by name for the HTTP control plane.
func (eng *Engine) Client(name string) (*Client, bool) {
	v, ok := eng.clients.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

// Clients returns every configured client, for /status.
func (eng *Engine) Clients() []*Client {
	out := make([]*Client, 0)
	for kv := range eng.clients.Iter() {
		out = append(out, kv.Value.(*Client))
	}
	return out
}

// Run starts the reactor goroutine and blocks until Shutdown is called.
func (eng *Engine) Run() {
	eng.wg.Add(1)
	go func() {
		defer eng.wg.Done()
		eng.reactor.run()
	}()

	eng.cond.L.Lock()
	for !eng.isInShutdown() {
		eng.cond.Wait()
	}
	eng.cond.L.Unlock()

	eng.reactor.stop()
	eng.wg.Wait()
	if eng.reloader != nil {
		_ = eng.reloader.Close()
	}
}

func (eng *Engine) isInShutdown() bool {
	return atomic.LoadInt32(&eng.inShutdown) == 1
}

// Shutdown signals Run to stop the reactor and return. Calling it more
// than once is a no-op.
func (eng *Engine) Shutdown() {
	eng.once.Do(func() {
		atomic.StoreInt32(&eng.inShutdown, 1)
		eng.cond.L.Lock()
		eng.cond.Signal()
		eng.cond.L.Unlock()
	})
}

// Query runs action against the named client and blocks until it
// completes or timeout elapses. It is the entry point the HTTP control
// plane calls; see core/bridge.go.
func (eng *Engine) Query(name, actionName string, params map[string]string, timeoutMS int) (Result, error) {
	client, ok := eng.Client(name)
	if !ok {
		return Result{}, coreerrors.ErrUnknownClient
	}
	return Bridge(client, actionName, params, timeoutMS)
}
