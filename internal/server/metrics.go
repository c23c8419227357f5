// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the serve-mode Prometheus collectors. Each server carries
// its own registry so tests can spin up servers without collector name
// collisions.
type metrics struct {
	registry *prometheus.Registry

	auditsTotal    *prometheus.CounterVec
	auditDuration  prometheus.Histogram
	auditsInFlight prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}

	m.auditsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dosimeter",
		Name:      "audits_total",
		Help:      "Completed audit runs by outcome.",
	}, []string{"status"})

	m.auditDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dosimeter",
		Name:      "audit_duration_seconds",
		Help:      "Wall-clock duration of audit runs.",
		// Audits rebuild the whole workspace; buckets run into minutes.
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	m.auditsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dosimeter",
		Name:      "audits_in_flight",
		Help:      "Audit runs currently executing.",
	})

	m.registry.MustRegister(m.auditsTotal, m.auditDuration, m.auditsInFlight)
	return m
}

func (m *metrics) observe(status string, seconds float64) {
	m.auditsTotal.WithLabelValues(status).Inc()
	m.auditDuration.Observe(seconds)
}
