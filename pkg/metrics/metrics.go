// Package metrics exposes job, session and artifact activity to Prometheus.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every ytserver collector
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal          *prometheus.CounterVec
	jobsActive         prometheus.Gauge
	jobDuration        *prometheus.HistogramVec
	sessionsActive     prometheus.Gauge
	eventsDropped      *prometheus.CounterVec
	artifactsReclaimed *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytserver_jobs_total",
				Help: "Finished download jobs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		jobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ytserver_jobs_active",
				Help: "Admitted jobs that have not reached a terminal state",
			},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ytserver_job_duration_seconds",
				Help:    "Time from admission to terminal state",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"mode", "outcome"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ytserver_sessions_active",
				Help: "Connected WebSocket sessions",
			},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytserver_events_dropped_total",
				Help: "Events that could not be delivered to their session",
			},
			[]string{"type"},
		),
		artifactsReclaimed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytserver_artifacts_reclaimed_total",
				Help: "Artifact deletions by result",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytserver_http_requests_total",
				Help: "HTTP requests by method, route template and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(
		m.jobsTotal,
		m.jobsActive,
		m.jobDuration,
		m.sessionsActive,
		m.eventsDropped,
		m.artifactsReclaimed,
		m.httpRequests,
	)
	return m
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionOpened implements session.Observer
func (m *Metrics) SessionOpened() { m.sessionsActive.Inc() }

// SessionClosed implements session.Observer
func (m *Metrics) SessionClosed() { m.sessionsActive.Dec() }

// EventDropped implements session.Observer
func (m *Metrics) EventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// ArtifactReclaimed implements artifacts.Observer
func (m *Metrics) ArtifactReclaimed(result string) {
	m.artifactsReclaimed.WithLabelValues(result).Inc()
}

// JobAdmitted implements supervisor.Recorder
func (m *Metrics) JobAdmitted(mode string) { m.jobsActive.Inc() }

// JobFinished implements supervisor.Recorder
func (m *Metrics) JobFinished(mode, outcome string, d time.Duration) {
	m.jobsActive.Dec()
	m.jobsTotal.WithLabelValues(mode, outcome).Inc()
	m.jobDuration.WithLabelValues(mode, outcome).Observe(d.Seconds())
}

// Middleware counts requests by route template. Use it with mux.Router.Use
// so the matched route is known.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets WebSocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
