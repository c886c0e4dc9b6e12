// Package metrics exposes Prometheus metrics for ledger operations, the HTTP
// adapter and the background jobs. Every Metrics owns its own registry so
// tests and multiple servers in one process do not collide.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grain-ledger/internal/core"
)

const namespace = "grain_ledger"

// Metrics holds every collector of the service.
type Metrics struct {
	Registry *prometheus.Registry

	operations      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	auditViolations prometheus.Gauge
	jobRuns         *prometheus.CounterVec
}

// New registers the ledger collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		auditViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_violations",
			Help:      "Invariant violations found by the last ledger audit.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
	}
	m.Registry.MustRegister(
		m.operations,
		m.httpDuration,
		m.auditViolations,
		m.jobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveOperation counts one ledger operation. A nil receiver is a no-op.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveHTTP records the latency of one request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// SetAuditViolations publishes the result of the latest audit.
func (m *Metrics) SetAuditViolations(n int) {
	if m == nil {
		return
	}
	m.auditViolations.Set(float64(n))
}

// ObserveJob counts one scheduled job run.
func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

var outcomes = []struct {
	err   error
	label string
}{
	{core.ErrNotFound, "not_found"},
	{core.ErrInvalidState, "invalid_state"},
	{core.ErrInvalidItem, "invalid_item"},
	{core.ErrInsufficientStock, "insufficient_stock"},
	{core.ErrInsufficientFarmerBalance, "insufficient_farmer_balance"},
	{core.ErrInsufficientFunds, "insufficient_funds"},
	{core.ErrExceedsRemaining, "exceeds_remaining"},
	{core.ErrExceedsBalance, "exceeds_balance"},
	{core.ErrExceedsDebt, "exceeds_debt"},
	{core.ErrIrreversible, "irreversible"},
	{core.ErrConflict, "conflict"},
}

// Outcome maps an operation error to a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}
