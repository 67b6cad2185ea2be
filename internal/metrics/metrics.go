// Package metrics exposes Prometheus collectors for the sourcing service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	channelAttemptsTotal    *prometheus.CounterVec
	profilesFetchedTotal    *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	rateLimitDelaySeconds   prometheus.Histogram
	llmRequestsTotal        *prometheus.CounterVec
	embeddingRequestsTotal  *prometheus.CounterVec
	searchQueriesTotal      *prometheus.CounterVec
	sourcingRoundsTotal     prometheus.Counter
	activeFetches           prometheus.Gauge
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		channelAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcer_channel_attempts_total",
				Help: "Acquisition channel attempts, labeled by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		)

		profilesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcer_profiles_fetched_total",
				Help: "Profiles resolved by the fetcher, labeled by source (cache, dataset, session, browser, direct).",
			},
			[]string{"source"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sourcer_fetch_duration_seconds",
				Help:    "Per-URL acquisition latency, labeled by channel.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"channel"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sourcer_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the shared request watermark.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		llmRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcer_llm_requests_total",
				Help: "Structured-extraction requests, labeled by contract and outcome.",
			},
			[]string{"contract", "outcome"},
		)

		embeddingRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcer_embedding_requests_total",
				Help: "Embedding requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcer_search_queries_total",
				Help: "Web search queries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sourcingRoundsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sourcer_rounds_total",
				Help: "Sourcing rounds executed across all runs.",
			},
		)

		activeFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sourcer_active_fetches",
				Help: "Fetch units currently holding a concurrency slot.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveChannelAttempt records one acquisition channel attempt.
func ObserveChannelAttempt(channel, outcome string) {
	Init()
	channelAttemptsTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveProfileFetched records a resolved profile by its winning source.
func ObserveProfileFetched(source string) {
	Init()
	profilesFetchedTotal.WithLabelValues(source).Inc()
}

// ObserveFetchDuration records the time a channel spent on one URL.
func ObserveFetchDuration(channel string, d time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(channel).Observe(d.Seconds())
}

// ObserveRateLimitDelay records time spent waiting on the watermark limiter.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveLLMRequest records a structured-extraction call.
func ObserveLLMRequest(contract, outcome string) {
	Init()
	llmRequestsTotal.WithLabelValues(contract, outcome).Inc()
}

// ObserveEmbeddingRequest records an embedding call.
func ObserveEmbeddingRequest(outcome string) {
	Init()
	embeddingRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSearchQuery records a web search call.
func ObserveSearchQuery(outcome string) {
	Init()
	searchQueriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRound counts one executed sourcing round.
func ObserveRound() {
	Init()
	sourcingRoundsTotal.Inc()
}

// IncActiveFetches increments the in-flight fetch gauge.
func IncActiveFetches() {
	Init()
	activeFetches.Inc()
}

// DecActiveFetches decrements the in-flight fetch gauge.
func DecActiveFetches() {
	Init()
	activeFetches.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(d.Seconds())
}
