// Package metrics exposes prometheus collectors for upstream requests,
// decoded streams and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamchat_upstream_request_duration_seconds",
		Help:    "Duration of requests to upstream services until headers or a full body arrive",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"upstream", "kind", "outcome"})

	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_upstream_requests_total",
		Help: "Upstream requests grouped by upstream, kind and outcome",
	}, []string{"upstream", "kind", "outcome"})

	streamEnds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_streams_total",
		Help: "Decoded streams grouped by provider and end reason",
	}, []string{"provider", "end"})

	streamFragments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_stream_fragments_total",
		Help: "Text fragments emitted by decoded streams",
	}, []string{"provider"})

	streamParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_stream_parse_failures_total",
		Help: "Data lines skipped because their payload was not valid JSON",
	}, []string{"provider"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_http_requests_total",
		Help: "HTTP API requests grouped by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamchat_http_request_duration_seconds",
		Help:    "HTTP API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	persistJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_persist_jobs_total",
		Help: "Background reply persistence jobs grouped by outcome",
	}, []string{"outcome"})
)

// ObserveUpstream records one request to an upstream service.
func ObserveUpstream(upstream, kind string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	upstreamDuration.WithLabelValues(upstream, kind, outcome).Observe(duration.Seconds())
	upstreamRequests.WithLabelValues(upstream, kind, outcome).Inc()
}

// ObserveStream records the outcome of one decoded stream.
func ObserveStream(provider, end string, fragments, parseFailures int) {
	if provider == "" {
		provider = "unknown"
	}
	streamEnds.WithLabelValues(provider, end).Inc()
	streamFragments.WithLabelValues(provider).Add(float64(fragments))
	streamParseFailures.WithLabelValues(provider).Add(float64(parseFailures))
}

// ObserveHTTP records one HTTP API request.
func ObserveHTTP(method, route, status string, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePersist records one background persistence job.
func ObservePersist(err error) {
	if err != nil {
		persistJobs.WithLabelValues("error").Inc()
		return
	}
	persistJobs.WithLabelValues("success").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
