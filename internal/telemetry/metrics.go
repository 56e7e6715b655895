/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters and gauges the core exposes on /metrics.
type Metrics struct {
	IssuesDetected          *prometheus.CounterVec
	InvestigationsDispatched *prometheus.CounterVec
	InvestigationsSealed    *prometheus.CounterVec
	InvestigationsRunning   prometheus.Gauge
	EventBusDrops           *prometheus.CounterVec
	ReportStoreSize         prometheus.Gauge
}

// NewMetrics registers and returns the metric set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IssuesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubesentry",
			Name:      "issues_detected_total",
			Help:      "Issues emitted by the detector, by kind and severity.",
		}, []string{"kind", "severity"}),
		InvestigationsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubesentry",
			Name:      "investigations_dispatched_total",
			Help:      "Investigations dispatched by the scheduler, by mode.",
		}, []string{"mode"}),
		InvestigationsSealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubesentry",
			Name:      "investigations_sealed_total",
			Help:      "Investigations sealed, by terminal status.",
		}, []string{"status"}),
		InvestigationsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kubesentry",
			Name:      "investigations_running",
			Help:      "Investigations currently running.",
		}),
		EventBusDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubesentry",
			Name:      "eventbus_drops_total",
			Help:      "Events dropped due to a lagging subscriber, by topic.",
		}, []string{"topic"}),
		ReportStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kubesentry",
			Name:      "report_store_size",
			Help:      "Sealed reports currently held in memory.",
		}),
	}

	return registerAndReturn(reg, m)
}

// IncEventBusDrop satisfies eventbus.DropCounter.
func (m *Metrics) IncEventBusDrop(topic string) {
	m.EventBusDrops.WithLabelValues(topic).Inc()
}

func registerAndReturn(reg prometheus.Registerer, m *Metrics) *Metrics {
	reg.MustRegister(
		m.IssuesDetected,
		m.InvestigationsDispatched,
		m.InvestigationsSealed,
		m.InvestigationsRunning,
		m.EventBusDrops,
		m.ReportStoreSize,
	)
	return m
}
