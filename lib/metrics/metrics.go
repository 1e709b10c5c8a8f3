// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus collectors for the upload
// pipeline. A nil *Metrics is valid and records nothing, so the
// uploader can run without a registry.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the uploader's collectors.
type Metrics struct {
	uploads   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	bytesRead *prometheus.CounterVec
	queued    prometheus.Gauge
	inFlight  prometheus.Gauge
	rejected  prometheus.Counter
}

// New creates the collectors and registers them with registerer.
// Collectors already registered by an earlier call are reused, so New
// may be called more than once against the same registry.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bureau",
				Subsystem: "profile_upload",
				Name:      "uploads_total",
				Help:      "Completed upload attempts by recording kind and outcome.",
			}, []string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bureau",
				Subsystem: "profile_upload",
				Name:      "duration_seconds",
				Help:      "Time from dispatch to classified outcome.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"},
		),
		bytesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bureau",
				Subsystem: "profile_upload",
				Name:      "recording_bytes_total",
				Help:      "Uncompressed recording bytes sent per classified upload; resent bodies count once.",
			}, []string{"kind"},
		),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bureau",
			Subsystem: "profile_upload",
			Name:      "queued_requests",
			Help:      "Admitted uploads waiting for an in-flight slot.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bureau",
			Subsystem: "profile_upload",
			Name:      "in_flight_requests",
			Help:      "Uploads currently executing.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bureau",
			Subsystem: "profile_upload",
			Name:      "rejected_total",
			Help:      "Uploads rejected by admission control or after shutdown.",
		}),
	}

	m.uploads = register(registerer, m.uploads)
	m.duration = register(registerer, m.duration)
	m.bytesRead = register(registerer, m.bytesRead)
	m.queued = register(registerer, m.queued)
	m.inFlight = register(registerer, m.inFlight)
	m.rejected = register(registerer, m.rejected)
	if m.uploads == nil || m.duration == nil || m.bytesRead == nil ||
		m.queued == nil || m.inFlight == nil || m.rejected == nil {
		return nil, errors.New("registering profile upload metrics: conflicting collector")
	}
	return m, nil
}

// register registers collector, returning the already-registered
// collector of the same description if there is one, or the zero value
// if registration failed for another reason.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	var zero C
	return zero
}

// HandlerFor returns an http.Handler exposing gatherer in the
// Prometheus text format.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveOutcome records one classified upload.
func (m *Metrics) ObserveOutcome(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// AddBytes records the recording bytes of one classified upload.
func (m *Metrics) AddBytes(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.bytesRead.WithLabelValues(kind).Add(float64(count))
}

// IncRejected records a rejected upload.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// SetPending publishes the queued and in-flight counts.
func (m *Metrics) SetPending(queued, inFlight int64) {
	if m == nil {
		return
	}
	m.queued.Set(float64(queued))
	m.inFlight.Set(float64(inFlight))
}
