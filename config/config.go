// Copyright (c) 2022 The rcproxy Authors
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
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"extrond/core/pkg/logging"
)

// Config is the ops-level bootstrap file (extrond.yaml by default, see
// main.go's -c flag): reactor/listener tuning, logging, and where the
// device tree lives on disk. It never describes a device or a device type;
// that's LoadDeviceType's and LoadDevice's job (devices.go).
type Config struct {
	WebPort      int    `yaml:"web_port"`
	DeviceRoot   string `yaml:"device_root"`
	LogPath      string `yaml:"log_path"`
	LogLevel     string `yaml:"log_level"`
	LogExpireDay int    `yaml:"log_expire_day"`
	Reactor      ReactorConfig `yaml:"reactor"`
}

// ReactorConfig tunes the single-threaded poll/dispatch loop.
type ReactorConfig struct {
	IdleWaitTime string `yaml:"idle_wait_time"`
	ListenThreads int   `yaml:"listen_threads"`
}

func LoadConfig(fileName string) (*Config, error) {
	file, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file from %s", fileName)
	}
	var cfg Config
	if err = yaml.Unmarshal(file, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", fileName)
	}
	if err = cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config validate failed")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, ok := logging.LevelMapperRev[c.LogLevel]; !ok {
		return errors.Errorf("unknown log level %s", c.LogLevel)
	}
	if len(c.DeviceRoot) < 1 {
		return errors.Errorf("device_root must be set")
	}
	if c.Reactor.ListenThreads < 1 {
		c.Reactor.ListenThreads = 1
	}
	return nil
}
