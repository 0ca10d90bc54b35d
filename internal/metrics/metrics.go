// Package metrics exposes Prometheus collectors for the resolver, the API and the sweep bot.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"method", "route"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbloq_resolutions_total",
			Help: "Archive resolutions, labeled by outcome (found, not_yet_archived, error).",
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbloq_cache_lookups_total",
			Help: "Resolution cache lookups, labeled by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	scrapeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unbloq_scrape_duration_seconds",
			Help:    "Archive listing scrape latency, labeled by fetch mode.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		},
		[]string{"mode"},
	)

	headlessSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unbloq_headless_sessions_active",
			Help: "Number of isolated browser sessions currently open.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unbloq_rate_limit_delays_seconds",
			Help:    "Histogram of archive host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	sweepCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbloq_sweep_candidates_total",
			Help: "Sweep candidates processed, labeled by outcome (skipped, promoted, errored).",
		},
		[]string{"outcome"},
	)

	sweepBackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unbloq_sweep_backoff_seconds",
			Help:    "Waits imposed by upstream rate limit notices.",
			Buckets: []float64{5, 30, 60, 120, 300, 600, 900},
		},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveResolution counts a resolver outcome.
func ObserveResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup counts a cache hit, miss or error.
func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveScrape records how long a listing fetch took.
func ObserveScrape(mode string, duration time.Duration) {
	scrapeDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// IncHeadlessSessions increments the open session gauge.
func IncHeadlessSessions() {
	headlessSessionsActive.Inc()
}

// DecHeadlessSessions decrements the open session gauge.
func DecHeadlessSessions() {
	headlessSessionsActive.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveSweepCandidate counts a processed sweep candidate.
func ObserveSweepCandidate(outcome string) {
	sweepCandidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSweepBackoff records a rate-limit imposed wait.
func ObserveSweepBackoff(duration time.Duration) {
	sweepBackoffSeconds.Observe(duration.Seconds())
}
