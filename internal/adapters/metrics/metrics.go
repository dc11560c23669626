// Package metrics exposes Prometheus collectors for HTTP requests, database
// queries and schedule operations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "academy"

// Import row outcomes.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Store call and notice results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
	ResultQueued  = "queued"
)

var latencyBuckets = []float64{
	0.001, 0.002, 0.005,
	0.01, 0.02, 0.05,
	0.1, 0.2, 0.5,
	1, 2, 5, 10,
}

// Recorder owns a private registry so tests and multiple servers in one
// process never collide. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	queryDuration   *prometheus.HistogramVec
	slowQueries     prometheus.Counter
	importRows      *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	storeCalls      *prometheus.CounterVec
	notices         *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
// PRE: none
// POST: Returns a Recorder whose Handler serves the registered collectors
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution for HTTP requests by route pattern.",
			Buckets:   latencyBuckets,
		}, []string{"method", "route", "code"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Latency distribution for database calls.",
			Buckets:   latencyBuckets,
		}, []string{"op"}),
		slowQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_slow_queries_total",
			Help:      "Total number of database calls above the slow query threshold.",
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_import_rows_total",
			Help:      "Total number of imported sheet rows by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_save_rejections_total",
			Help:      "Total number of slot saves rejected before reaching the store.",
		}, []string{"code"}),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_store_calls_total",
			Help:      "Total number of session store writes by operation and result.",
		}, []string{"op", "result"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellation_notices_total",
			Help:      "Total number of cancellation notices by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		r.requestDuration,
		r.queryDuration,
		r.slowQueries,
		r.importRows,
		r.rejections,
		r.storeCalls,
		r.notices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
// PRE: r is non-nil
// POST: Returns an http.Handler for the metrics endpoint
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRequest records one HTTP request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveQuery records one database call.
func (r *Recorder) ObserveQuery(op string, d time.Duration, slow bool) {
	if r == nil {
		return
	}
	r.queryDuration.WithLabelValues(op).Observe(d.Seconds())
	if slow {
		r.slowQueries.Inc()
	}
}

// AddImportRows adds n rows with the given outcome.
func (r *Recorder) AddImportRows(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.importRows.WithLabelValues(outcome).Add(float64(n))
}

// CountRejection records a save rejected by transition validation.
func (r *Recorder) CountRejection(code string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(code).Inc()
}

// CountStoreCall records a session store write.
func (r *Recorder) CountStoreCall(op, result string) {
	if r == nil {
		return
	}
	r.storeCalls.WithLabelValues(op, result).Inc()
}

// CountNotice records a cancellation notice attempt.
func (r *Recorder) CountNotice(result string) {
	if r == nil {
		return
	}
	r.notices.WithLabelValues(result).Inc()
}
