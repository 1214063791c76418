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

package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the prometheus surface for the supervisor, following the same
// CounterVec/GaugeVec/HistogramVec-per-concern shape as the original
// proxy's stats, relabeled per device/action instead of per redis server.
type Stats struct {
	ActionTotal    *prometheus.CounterVec
	ActionFailures *prometheus.CounterVec
	ActionLatency  *prometheus.HistogramVec
	ClientState    *prometheus.GaugeVec
	Reconnects     *prometheus.CounterVec
}

// GlobalStats is the process-wide metrics instance, set once by main
// before the reactor starts. A nil GlobalStats (e.g. in unit tests that
// never call NewStats) is valid; callers guard every use with a nil check.
var GlobalStats *Stats

// NewStats builds and registers the metric vectors against reg.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		ActionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extrond_action_total",
			Help: "Number of action invocations started, by device and action name.",
		}, []string{"device", "action"}),
		ActionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extrond_action_failures_total",
			Help: "Number of action invocations that ended in failure.",
		}, []string{"device", "action"}),
		ActionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extrond_action_duration_seconds",
			Help:    "Wall time spent running an action to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"device", "action"}),
		ClientState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "extrond_client_state",
			Help: "Current state of each device client, as its ordinal value.",
		}, []string{"device"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extrond_reconnects_total",
			Help: "Number of times a device client has re-entered CONNECTING.",
		}, []string{"device"}),
	}
	reg.MustRegister(s.ActionTotal, s.ActionFailures, s.ActionLatency, s.ClientState, s.Reconnects)
	return s
}
