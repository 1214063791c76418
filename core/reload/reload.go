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

// Package reload watches the device root's devicetypes directory and, when
// a file there is written or created, marks the device type of that file
// name dirty, so the next client of that type to enter Connected reloads
// its script VM. Script files themselves, and the devices directory, are
// not watched; the reload does not re-read the device type's JSON. This is new relative to
// the original, which only ever reloaded on process restart; it's a
// natural fit for an always-on supervisor and doesn't touch any of the
// spec's non-goals (no persistence, no discovery, no horizontal scaling).
package reload

import (
	"path/filepath"

	"github.com/cornelk/hashmap"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"extrond/core/pkg/logging"
)

// Watcher tracks dirty device-type names. Callers poll IsDirty (which also
// clears the flag) from
// wherever a device type is about to be used (today: a client's
// Connected-entry script reload), rather than reacting synchronously to
// the fsnotify event itself, so a reload never races a client mid-session.
type Watcher struct {
	dirty hashmap.HashMap
	fsw   *fsnotify.Watcher
	paths map[string]string // watched path -> device type name
}

// New starts watching root/devicetypes for device type file changes.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "reload: new watcher")
	}
	w := &Watcher{fsw: fsw, paths: map[string]string{}}
	dir := filepath.Join(root, "devicetypes")
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Wrapf(err, "reload: watch %s", dir)
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			w.dirty.Set(name, struct{}{})
			logging.Infof("reload: device type %s marked dirty", name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warnf("reload: watcher error: %v", err)
		}
	}
}

// IsDirty reports and clears whether name changed since the last check.
func (w *Watcher) IsDirty(name string) bool {
	_, dirty := w.dirty.Get(name)
	if dirty {
		w.dirty.Del(name)
	}
	return dirty
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
