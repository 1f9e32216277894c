package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "issuelog"

// Metrics owns a private registry with the replay and HTTP collectors.
type Metrics struct {
	registry      *prometheus.Registry
	issues        *prometheus.CounterVec
	snapshots     prometheus.Counter
	sinkFailures  *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	replaySeconds prometheus.Histogram
	runs          *prometheus.CounterVec
	requests      *prometheus.CounterVec
	requestErrors *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.issues = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issues_total",
		Help:      "Issues processed by replay outcome",
	}, []string{"outcome"})
	m.snapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_written_total",
		Help:      "Snapshots appended to the log tables",
	})
	m.sinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_failures_total",
		Help:      "Snapshot writes that failed, by class",
	}, []string{"class"})
	m.anomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_total",
		Help:      "Recoverable replay anomalies by kind",
	}, []string{"kind"})
	m.replaySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "issue_replay_seconds",
		Help:      "Time spent replaying and persisting one issue",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Replay runs by tracker kind",
	}, []string{"kind"})
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status",
	}, []string{"path", "method", "status"})
	m.requestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_errors_total",
		Help:      "HTTP error responses by route, method and error code",
	}, []string{"path", "method", "code"})
	m.requestTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.issues, m.snapshots, m.sinkFailures, m.anomalies, m.replaySeconds, m.runs,
		m.requests, m.requestErrors, m.requestTime,
	)
	return m
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIssue counts one finished issue.
func (m *Metrics) RecordIssue(outcome string, written int, duration time.Duration) {
	if m == nil {
		return
	}
	m.issues.WithLabelValues(outcome).Inc()
	m.snapshots.Add(float64(written))
	m.replaySeconds.Observe(duration.Seconds())
}

// RecordSinkFailures counts failed snapshot writes.
func (m *Metrics) RecordSinkFailures(class string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sinkFailures.WithLabelValues(class).Add(float64(n))
}

// RecordAnomalies counts recoverable anomalies of one kind.
func (m *Metrics) RecordAnomalies(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.anomalies.WithLabelValues(kind).Add(float64(n))
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(kind string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(kind).Inc()
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.requestErrors.WithLabelValues(path, method, code).Inc()
}
