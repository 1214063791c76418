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

// Package web is the HTTP control plane: device status reporting and the
// action-query bridge into core.Engine, plus the same ops tooling the
// teacher's web package wires up (pprof, Prometheus).
package web

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"extrond/core"
)

// Handlers holds the engine every route closes over.
type Handlers struct {
	Engine *core.Engine
}

// Init registers every route on ginSrv, mirroring the teacher's web.Init.
func Init(ginSrv *gin.Engine, eng *core.Engine) {
	h := &Handlers{Engine: eng}
	pprof.Register(ginSrv)
	ginSrv.GET("/metrics", gin.WrapH(promhttp.Handler()))
	ginSrv.GET("/status", h.HandleStatus)
	ginSrv.GET("/status/*rest", h.HandleStatus)
	ginSrv.Any("/ctrl/:name", h.HandleCtrlRedirect)
	ginSrv.Any("/ctrl/:name/*action", h.HandleCtrl)
}
