// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package metrics exposes pipeline and API counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records pipeline progress.
type Metrics interface {
	ObserveStage(stage string, success bool, durationSeconds float64)
	IncJobsCompleted(library, status string)
	IncBatchesCompleted(status string)
}

// APIMetrics records daemon requests.
type APIMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics and APIMetrics without emitting anything.
type Noop struct{}

func (Noop) ObserveStage(string, bool, float64)             {}
func (Noop) IncJobsCompleted(string, string)                {}
func (Noop) IncBatchesCompleted(string)                     {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Status returns the label used for an outcome.
func Status(success bool) string {
	if success {
		return "ok"
	}
	return "failed"
}

// Prom implements Metrics and APIMetrics backed by Prometheus collectors.
type Prom struct {
	stages   *prometheus.HistogramVec
	jobs     *prometheus.CounterVec
	batches  *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewProm creates the collectors and registers them with reg, or the
// default registerer when reg is nil.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration by stage and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Library jobs completed by library and status",
		}, []string{"library", "status"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Batches completed by status",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p.once.Do(func() {
		reg.MustRegister(p.stages, p.jobs, p.batches, p.requests, p.latency)
	})
	return p
}

func (p *Prom) ObserveStage(stage string, success bool, durationSeconds float64) {
	p.stages.WithLabelValues(stage, Status(success)).Observe(durationSeconds)
}

func (p *Prom) IncJobsCompleted(library, status string) {
	p.jobs.WithLabelValues(library, status).Inc()
}

func (p *Prom) IncBatchesCompleted(status string) {
	p.batches.WithLabelValues(status).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics serving g, or the default
// gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
