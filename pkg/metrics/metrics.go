// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package metrics exposes the loader's operational counters and
// gauges, following Cilium's convention of instrumenting every
// subsystem with Prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bpfloader"

var (
	// MapsCreated counts maps successfully created in the kernel.
	MapsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maps_created_total",
		Help:      "Number of BPF maps successfully created.",
	})

	// MapCreateFailures counts map creation failures, after any retry.
	MapCreateFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "map_create_failures_total",
		Help:      "Number of BPF map creation failures.",
	})

	// ProgramsLoaded counts programs successfully submitted to the kernel.
	ProgramsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "programs_loaded_total",
		Help:      "Number of BPF programs successfully loaded.",
	})

	// ProgramLoadFailures counts program load failures by error kind.
	ProgramLoadFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "program_load_failures_total",
		Help:      "Number of BPF program load failures by error kind.",
	}, []string{"kind"})

	// VerifierLogBytes tracks the size of verifier logs returned by the kernel.
	VerifierLogBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "verifier_log_bytes",
		Help:      "Size in bytes of verifier logs returned on program load.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(MapsCreated, MapCreateFailures, ProgramsLoaded, ProgramLoadFailures, VerifierLogBytes)
}
