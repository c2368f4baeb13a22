// Metrics for the flux tracer host
//
// Tracks write/verify throughput, retry pressure and signal quality.
// Exposed in Prometheus format through the optional HTTP endpoint.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the tracer's metrics on top of a dedicated Prometheus
// registry so tests never collide with the process-global default.
type Registry struct {
	reg *prometheus.Registry

	// Throughput
	TracksWritten  prometheus.Counter
	TracksVerified prometheus.Counter
	TracksFailed   prometheus.Counter

	// Retry pressure
	WriteRetries   prometheus.Counter
	ReadRetries    prometheus.Counter
	HardwareFaults prometheus.Counter

	// Signal quality: worst per-track transition error in nanoseconds.
	MaxErrNanos prometheus.Histogram

	// Calibration
	CalibrationRuns prometheus.Counter

	// Device link
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
}

// NewRegistry creates a Registry with all collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		TracksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_tracks_written_total",
			Help: "Completed track write passes.",
		}),
		TracksVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_tracks_verified_total",
			Help: "Tracks that passed verification.",
		}),
		TracksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_tracks_failed_total",
			Help: "Tracks that exhausted all retries.",
		}),
		WriteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_write_retries_total",
			Help: "Write passes repeated after an error.",
		}),
		ReadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_read_retries_total",
			Help: "Verification reads repeated after a failure.",
		}),
		HardwareFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_hardware_faults_total",
			Help: "Capture overruns and emission underruns.",
		}),
		MaxErrNanos: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracer_track_max_error_nanoseconds",
			Help:    "Worst transition timing error per verified track.",
			Buckets: prometheus.ExponentialBuckets(12, 2, 8),
		}),
		CalibrationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_calibration_runs_total",
			Help: "Completed calibration sweeps.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_device_bytes_sent_total",
			Help: "Bytes sent to the device.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracer_device_bytes_received_total",
			Help: "Bytes received from the device.",
		}),
	}
	reg.MustRegister(
		r.TracksWritten, r.TracksVerified, r.TracksFailed,
		r.WriteRetries, r.ReadRetries, r.HardwareFaults,
		r.MaxErrNanos, r.CalibrationRuns,
		r.BytesSent, r.BytesReceived,
	)
	return r
}

// ObserveMaxErr records the worst transition error of a verified track.
func (r *Registry) ObserveMaxErr(nanos float64) {
	r.MaxErrNanos.Observe(nanos)
}

// Prometheus exposes the underlying registry for the HTTP endpoint.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
