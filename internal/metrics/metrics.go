// Package metrics exposes Prometheus metrics for the goys HTTP server.
//
// Metrics:
//   - goys_compiles_total: compile requests by result
//   - goys_compile_duration_seconds: compile latency histogram
//   - goys_sessions_active: sessions currently open
//   - goys_sessions_total: sessions created
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/caffeineduck/goys/libys"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goys"

// Compile results used as the "result" label.
const (
	ResultOK             = "ok"
	ResultCompileError   = "compile_error"
	ResultProtocolError  = "protocol_error"
	ResultNotInitialized = "not_initialized"
	ResultError          = "error"
)

// Collector records server metrics into its own registry.
type Collector struct {
	registry *prometheus.Registry

	compilesTotal   *prometheus.CounterVec
	compileDuration prometheus.Histogram
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
}

// NewCollector creates and registers the metrics. If registry is nil a new
// one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		compilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_total",
				Help:      "Total number of compile requests",
			},
			[]string{"result"},
		),
		compileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of compile requests in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of open sessions",
			},
		),
		sessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of sessions created",
			},
		),
	}

	registry.MustRegister(
		c.compilesTotal,
		c.compileDuration,
		c.sessionsActive,
		c.sessionsTotal,
	)
	return c
}

// Result maps a compile error to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, libys.ErrCompilationFailed):
		return ResultCompileError
	case errors.Is(err, libys.ErrProtocolViolation):
		return ResultProtocolError
	case errors.Is(err, libys.ErrNotInitialized):
		return ResultNotInitialized
	default:
		return ResultError
	}
}

// RecordCompile records one compile and how long it took.
func (c *Collector) RecordCompile(err error, duration time.Duration) {
	c.compilesTotal.WithLabelValues(Result(err)).Inc()
	c.compileDuration.Observe(duration.Seconds())
}

// SessionOpened records a new session.
func (c *Collector) SessionOpened() {
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed records a closed or expired session.
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
