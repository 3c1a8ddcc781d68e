// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package lifecycle

import "github.com/prometheus/client_golang/prometheus"

// Lifecycle phases used as metric labels and span names.
const (
	PhaseLoad     = "load"
	PhaseActivate = "activate"
	PhaseTick     = "tick"
	PhaseReload   = "reload"
)

// Failures counts errors and panics contained by the dispatcher.
// Use RegisterMetrics to register this with a Prometheus registry.
var Failures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modhost_lifecycle_failures_total",
		Help: "Total number of mod failures contained by the lifecycle dispatcher",
	},
	[]string{"phase", "kind"},
)

// TickDuration observes how long one host tick takes.
// Use RegisterMetrics to register this with a Prometheus registry.
var TickDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "modhost_tick_duration_seconds",
		Help:    "Duration of one tick across every scripted mod",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .016, .025, .05, .1, .25},
	},
)

// Reloads counts completed reloads.
// Use RegisterMetrics to register this with a Prometheus registry.
var Reloads = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "modhost_reloads_total",
		Help: "Total number of completed script reloads",
	},
)

// LoadedMods reports registered mods by kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoadedMods = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "modhost_loaded_mods",
		Help: "Number of mods currently registered",
	},
	[]string{"kind"},
)

// RegisterMetrics registers lifecycle metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Failures)
	reg.MustRegister(TickDuration)
	reg.MustRegister(Reloads)
	reg.MustRegister(LoadedMods)
}
