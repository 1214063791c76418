// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2024 The extrond Authors
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"extrond/config"
	"extrond/core"
	"extrond/core/pkg/logging"
	"extrond/web"
)

var (
	configPath      = flag.String("p", "conf", "Config file path")
	basicConfigFile = flag.String("c", "extrond.yaml", "Basic config filename")
	version         = flag.Bool("v", false, "Show version")
	help            = flag.Bool("h", false, "Show usage info")
)

var (
	CommitSHA string
	Tag       string
	BuildTime string
)

func init() {
	if len(Tag) < 1 {
		Tag = "unknown"
	}
	if len(CommitSHA) < 1 {
		CommitSHA = "unknown"
	}
	if len(BuildTime) < 1 {
		BuildTime = "unknown"
	}
}

const banner string = `
___________  _________________  ________  ___
___  ____/___  /_________/ __  \/_  ___  \/  /
__  __/   __  __/_  ___/_  / / / / / / / / /
_  /___   _  /_ _  /   _  /_/ / / /_/ / /__/
/_____/   /_/  /_/    /_____/  \____/\____/

`

func parseCli() {
	flag.Parse()
	if *version {
		fmt.Printf("version: %s\ncommit: %s\ntime: %s\n", Tag, CommitSHA, BuildTime)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}
}

func main() {
	parseCli()

	cfg, err := config.LoadConfig(path.Join(*configPath, *basicConfigFile))
	if err != nil {
		logging.Errorf("parse config file err:%v", err)
		return
	}

	// Initialization Logger
	if err = logging.InitializeLogger(
		logging.WithPath(cfg.LogPath),
		logging.WithExpireDay(cfg.LogExpireDay),
		logging.WithLogLevel(cfg.LogLevel),
	); err != nil {
		logging.Errorf("failed to initialize logger, err: %s", err)
		return
	}

	fmt.Print(banner)
	fmt.Printf("extrond version: %s\n", Tag)
	fmt.Printf("extrond started with pid: %d, device root: %s\n", syscall.Getpid(), cfg.DeviceRoot)
	logging.Infof("extrond started with pid: %d, device root: %s, version: %s", syscall.Getpid(), cfg.DeviceRoot, Tag)

	eng, err := core.NewEngine(cfg.DeviceRoot)
	if err != nil {
		logging.Errorf("failed to build engine from %s, err: %s", cfg.DeviceRoot, err)
		return
	}

	core.GlobalStats = core.NewStats(prometheus.DefaultRegisterer)

	if cfg.WebPort > 0 {
		// Initialization http server
		addr := fmt.Sprintf(":%d", cfg.WebPort)
		gin.SetMode(gin.ReleaseMode)
		ginSrv := gin.New()
		web.Init(ginSrv, eng)
		httpSrv := &http.Server{Handler: ginSrv, Addr: addr}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("failed to start http server, err: %s", err)
			}
		}()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		s := <-sigc
		logging.Infof("extrond received signal %v, shutting down", s)
		eng.Shutdown()
	}()

	eng.Run()

	logging.Infof("extrond shutdown, pid: %d", syscall.Getpid())
}
