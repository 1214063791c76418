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

package config

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"time"

	"extrond/core/pkg/durationparse"
)

// DeviceType is a template shared by every Device that names it: what
// script drives the session, how often to send a heartbeat, and how long
// an action may block the reactor between yields.
type DeviceType struct {
	Name          string
	Script        string
	HeartbeatTime string
	IOYieldTime   string
	Heartbeat     time.Duration
	IOYield       time.Duration

	rawActions map[string]json.RawMessage
}

// Device is one configured instance of a DeviceType: where to reach it.
type Device struct {
	Name string `json:"-"`
	Host string `json:"host"`
	Port int    `json:"port"`
	Type string `json:"type"`
}

// deviceTypeFile mirrors /devicetypes/<name> on disk.
type deviceTypeFile struct {
	Script        string                     `json:"script"`
	HeartbeatTime string                     `json:"heartbeat_time"`
	IOYieldTime   string                     `json:"io_yield_time"`
	Actions       map[string]json.RawMessage `json:"actions"`
}

const defaultIOYieldTime = "10ms"
const defaultDevicePort = 23

// LoadDeviceType reads and parses a single /devicetypes/<name> JSON file.
// JSON decoding is intentionally stdlib: the generic configuration tree
// format is explicitly out of scope for anything beyond straight decoding
// (see DESIGN.md).
func LoadDeviceType(root, name string) (*DeviceType, error) {
	raw, err := ioutil.ReadFile(filepath.Join(root, "devicetypes", name))
	if err != nil {
		return nil, err
	}
	var f deviceTypeFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.IOYieldTime == "" {
		f.IOYieldTime = defaultIOYieldTime
	}

	hb, err := durationparse.Parse(f.HeartbeatTime)
	if err != nil {
		return nil, err
	}
	ioYield, err := durationparse.Parse(f.IOYieldTime)
	if err != nil {
		return nil, err
	}

	dt := &DeviceType{
		Name:          name,
		Script:        f.Script,
		HeartbeatTime: f.HeartbeatTime,
		IOYieldTime:   f.IOYieldTime,
		Heartbeat:     hb,
		IOYield:       ioYield,
		rawActions:    f.Actions,
	}
	return dt, nil
}

// RawAction returns the unparsed JSON for an action definition, parsed by
// core/action each time a client starts that action.
func (d *DeviceType) RawAction(name string) (json.RawMessage, bool) {
	raw, ok := d.rawActions[name]
	return raw, ok
}

// ActionNames lists every action this device type declares, in the order
// encoding/json happened to decode the map (callers that need a stable
// order should sort).
func (d *DeviceType) ActionNames() []string {
	names := make([]string, 0, len(d.rawActions))
	for n := range d.rawActions {
		names = append(names, n)
	}
	return names
}

// LoadDevice reads and parses a single /devices/<name> JSON file.
func LoadDevice(root, name string) (*Device, error) {
	raw, err := ioutil.ReadFile(filepath.Join(root, "devices", name))
	if err != nil {
		return nil, err
	}
	var dev Device
	if err := json.Unmarshal(raw, &dev); err != nil {
		return nil, err
	}
	dev.Name = name
	if dev.Port == 0 {
		dev.Port = defaultDevicePort
	}
	return &dev, nil
}

// ListNames lists the file names under root/sub, skipping dotfiles.
func ListNames(root, sub string) ([]string, error) {
	entries, err := ioutil.ReadDir(filepath.Join(root, sub))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) == 0 || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
