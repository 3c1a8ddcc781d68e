// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package native

import "github.com/prometheus/client_golang/prometheus"

// Load results recorded by NativeLoads.
const (
	ResultLoaded    = "loaded"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

// Activation failure reasons recorded by ActivationFailures.
const (
	ReasonError = "error"
	ReasonPanic = "panic"
)

// NativeLoads counts native module load attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var NativeLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modhost_native_loads_total",
		Help: "Total number of native module load attempts",
	},
	[]string{"result"},
)

// ActivationFailures counts native entry points that failed.
// Use RegisterMetrics to register this with a Prometheus registry.
var ActivationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modhost_native_activation_failures_total",
		Help: "Total number of native mod activations that returned an error or panicked",
	},
	[]string{"reason"},
)

// RegisterMetrics registers native loader metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(NativeLoads)
	reg.MustRegister(ActivationFailures)
}
