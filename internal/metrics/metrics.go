// Package metrics exposes Prometheus collectors for the guard server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guard"

// Request outcomes recorded by the pipeline.
const (
	OutcomeAdmitted        = "admitted"
	OutcomeRateLimited     = "rate_limited"
	OutcomeMalformed       = "malformed"
	OutcomeInvalidShape    = "invalid_shape"
	OutcomeRejected        = "rejected"
	OutcomeCompletionError = "completion_error"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	classifyTime   *prometheus.HistogramVec
	streamTime     *prometheus.HistogramVec
	rulesReloads   prometheus.Counter
	httpDuration   *prometheus.HistogramVec
	completionErrs *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Pipeline requests by profile and outcome.",
		}, []string{"profile", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_rejections_total",
			Help:      "Requests refused by a guardrail, by guardrail type and severity.",
		}, []string{"profile", "type", "severity"}),
		classifyTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time spent classifying all user messages of a request.",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 2, 14), // 5µs to ~40ms
		}, []string{"profile"}),
		streamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_stream_duration_seconds",
			Help:      "Wall time of completion streams from first byte to end.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"profile"}),
		rulesReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_reloads_total",
			Help:      "Number of classifier rule set loads.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		completionErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_errors_total",
			Help:      "Completion failures by stage (open or stream).",
		}, []string{"profile", "stage"}),
	}

	reg.MustRegister(
		m.requests,
		m.rejections,
		m.classifyTime,
		m.streamTime,
		m.rulesReloads,
		m.httpDuration,
		m.completionErrs,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordRequest counts a pipeline request by outcome.
func (m *Metrics) RecordRequest(profile, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(profile, outcome).Inc()
}

// RecordRejection counts a guardrail refusal.
func (m *Metrics) RecordRejection(profile, guardrailType, severity string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(profile, guardrailType, severity).Inc()
}

// ObserveClassify records classification latency.
func (m *Metrics) ObserveClassify(profile string, d time.Duration) {
	if m == nil {
		return
	}
	m.classifyTime.WithLabelValues(profile).Observe(d.Seconds())
}

// ObserveStream records completion stream duration.
func (m *Metrics) ObserveStream(profile string, d time.Duration) {
	if m == nil {
		return
	}
	m.streamTime.WithLabelValues(profile).Observe(d.Seconds())
}

// RecordCompletionError counts completion failures. stage is "open" or "stream".
func (m *Metrics) RecordCompletionError(profile, stage string) {
	if m == nil {
		return
	}
	m.completionErrs.WithLabelValues(profile, stage).Inc()
}

// RecordRulesReload counts a rule set load.
func (m *Metrics) RecordRulesReload() {
	if m == nil {
		return
	}
	m.rulesReloads.Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}
