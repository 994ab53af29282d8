// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics registers ragserve's Prometheus instrumentation: one
// struct per concern (HTTP surface, chat turns, cache layer, embedding
// client) built with promauto so every collector is registered exactly
// once against the default registry, plus a package-level Default
// singleton the rest of the codebase reaches for without threading a
// *Metrics value through every constructor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ragserve"

// ErrorCode is a coarse, low-cardinality label for failed requests.
// Raw error strings are never used as label values: unbounded label
// cardinality is a Prometheus cardinality explosion waiting to happen.
type ErrorCode string

const (
	ErrorNone               ErrorCode = ""
	ErrorValidation         ErrorCode = "validation"
	ErrorUpstreamTransient  ErrorCode = "upstream_transient"
	ErrorUpstreamPermanent  ErrorCode = "upstream_permanent"
	ErrorResource           ErrorCode = "resource"
	ErrorRateLimited        ErrorCode = "rate_limited"
	ErrorNotFound           ErrorCode = "not_found"
	ErrorCancelled          ErrorCode = "cancelled"
	ErrorInternal           ErrorCode = "internal"
)

// Endpoint labels an HTTP route for metrics without leaking path
// parameters (a session id or document id) into a label value.
type Endpoint string

const (
	EndpointChat           Endpoint = "chat"
	EndpointChatStream     Endpoint = "chat_stream"
	EndpointSearchVector   Endpoint = "search_vector"
	EndpointSearchText     Endpoint = "search_text"
	EndpointSearchHybrid   Endpoint = "search_hybrid"
	EndpointSessionsCreate Endpoint = "sessions_create"
	EndpointSessionsGet    Endpoint = "sessions_get"
	EndpointDocumentsList  Endpoint = "documents_list"
	EndpointDocumentsGet   Endpoint = "documents_get"
	EndpointHealth         Endpoint = "health"
)

// Metrics holds every collector ragserve exposes on /metrics. Fields
// are grouped by the subsystem that owns them, mirroring the package
// layout under internal/.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec

	streamsStarted   *prometheus.CounterVec
	streamsEnded     *prometheus.CounterVec
	streamDuration   *prometheus.HistogramVec
	timeToFirstToken *prometheus.HistogramVec
	tokensEmitted    *prometheus.CounterVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheBytesUsed prometheus.Gauge

	breakerState       *prometheus.GaugeVec
	semaphoreAvailable *prometheus.GaugeVec
}

// Default is installed by Init and used by components that don't
// receive a *Metrics explicitly, matching the teacher's
// observability.DefaultMetrics singleton.
var Default *Metrics

// Init builds a Metrics registered against prometheus.DefaultRegisterer
// and installs it as Default. Safe to call at most once per process;
// a second call would panic on duplicate collector registration, which
// is the behavior we want — it means something wired metrics twice.
func Init() *Metrics {
	m := New()
	Default = m
	return m
}

// New builds a Metrics without touching the Default singleton, used by
// tests that want an isolated registry-free instance per test case.
func New() *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled, by endpoint and status.",
		}, []string{"endpoint", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds, by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total HTTP requests that ended in an error, by endpoint and error code.",
		}, []string{"endpoint", "error_code"}),

		streamsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      "streams_started_total",
			Help:      "Total SSE chat streams opened.",
		}, []string{"endpoint"}),
		streamsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      "streams_ended_total",
			Help:      "Total SSE chat streams closed, by reason.",
		}, []string{"endpoint", "reason"}),
		streamDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      "stream_duration_seconds",
			Help:      "Duration of an SSE chat stream from open to close.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"endpoint"}),
		timeToFirstToken: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      "time_to_first_token_seconds",
			Help:      "Latency from stream open to the first token event.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"endpoint"}),
		tokensEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      "tokens_emitted_total",
			Help:      "Total token events written to SSE clients.",
		}, []string{"endpoint"}),

		toolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations made by the orchestrator, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency in seconds, by tool.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total embedding cache hits.",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total embedding cache misses.",
		}),
		cacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total embedding cache entries evicted.",
		}),
		cacheBytesUsed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes_used",
			Help:      "Approximate bytes currently held by the embedding cache.",
		}),

		breakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per component: 0=closed, 1=half_open, 2=open.",
		}, []string{"component"}),
		semaphoreAvailable: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "concurrency",
			Name:      "semaphore_available",
			Help:      "Free slots remaining in a bounded-concurrency semaphore.",
		}, []string{"component"}),
	}
}

// RecordRequest records one completed HTTP request's status and
// latency for endpoint.
func (m *Metrics) RecordRequest(endpoint Endpoint, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(string(endpoint), statusLabel(status)).Inc()
	m.requestDuration.WithLabelValues(string(endpoint)).Observe(duration.Seconds())
}

// RecordError records a failed request's error code for endpoint.
func (m *Metrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.errorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// StreamStarted records the opening of an SSE chat stream.
func (m *Metrics) StreamStarted(endpoint Endpoint) {
	m.streamsStarted.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded records the close of an SSE chat stream and its total
// duration. reason is one of "end", "error", "client_disconnect".
func (m *Metrics) StreamEnded(endpoint Endpoint, reason string, duration time.Duration) {
	m.streamsEnded.WithLabelValues(string(endpoint), reason).Inc()
	m.streamDuration.WithLabelValues(string(endpoint)).Observe(duration.Seconds())
}

// RecordTimeToFirstToken records the latency between stream open and
// the first token event.
func (m *Metrics) RecordTimeToFirstToken(endpoint Endpoint, d time.Duration) {
	m.timeToFirstToken.WithLabelValues(string(endpoint)).Observe(d.Seconds())
}

// RecordToken records one token event written to an SSE client.
func (m *Metrics) RecordToken(endpoint Endpoint) {
	m.tokensEmitted.WithLabelValues(string(endpoint)).Inc()
}

// RecordToolCall records one tool invocation's outcome and latency.
// outcome is "success" or "error".
func (m *Metrics) RecordToolCall(tool, outcome string, duration time.Duration) {
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCacheHit increments the cache hit counter.
func (m *Metrics) RecordCacheHit() { m.cacheHits.Inc() }

// RecordCacheMiss increments the cache miss counter.
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Inc() }

// RecordCacheEviction increments the cache eviction counter.
func (m *Metrics) RecordCacheEviction() { m.cacheEvictions.Inc() }

// SetCacheBytesUsed sets the current cache byte usage gauge.
func (m *Metrics) SetCacheBytesUsed(n int64) { m.cacheBytesUsed.Set(float64(n)) }

// The breaker*Value constants are the gauge's numeric encoding of
// cache.BreakerState.
const (
	breakerClosedValue   = 0
	breakerHalfOpenValue = 1
	breakerOpenValue     = 2
)

// SetBreakerState records a circuit breaker's current state for component.
func (m *Metrics) SetBreakerState(component string, value float64) {
	m.breakerState.WithLabelValues(component).Set(value)
}

// SetSemaphoreAvailable records a semaphore's free-slot count for component.
func (m *Metrics) SetSemaphoreAvailable(component string, available int) {
	m.semaphoreAvailable.WithLabelValues(component).Set(float64(available))
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
