// Package metrics exposes Prometheus collectors for the logo hunter service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal                *prometheus.CounterVec
	fetchBytesTotal             *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	robotsFallbacks             prometheus.Counter
	huntsTotal                  *prometheus.CounterVec
	activeWorkers               prometheus.Gauge
	rateLimitDelaysSeconds      *prometheus.HistogramVec
	headlessPromotionsTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logohunter_fetches_total",
				Help: "Total number of outbound fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logohunter_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logohunter_api_requests_total",
				Help: "Total number of API requests, labeled by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logohunter_api_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		)

		robotsFallbacks = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "logohunter_robots_fallback_total",
				Help: "Total robots.txt probes answered with allow-all because the host timed out.",
			},
		)

		huntsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logohunter_hunts_total",
				Help: "Total number of domains processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "logohunter_active_workers",
				Help: "Number of batch workers currently processing a domain.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logohunter_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "logohunter_headless_promotions_total",
				Help: "Homepages re-fetched with the headless renderer.",
			},
		)
	})
}

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

// ObserveFetch records one outbound fetch and the bytes it returned.
func ObserveFetch(site string, outcome string, bytesFetched int) {
	if fetchesTotal == nil {
		return
	}
	sanitizedSite := SanitizeSite(site)
	fetchesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts robots.txt probes that fell back to allow-all.
func ObserveRobotsFallback() {
	if robotsFallbacks == nil {
		return
	}
	robotsFallbacks.Inc()
}

// ObserveHunt increments the hunt counter for the given outcome.
func ObserveHunt(outcome string) {
	if huntsTotal == nil {
		return
	}
	huntsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHeadlessPromotion counts homepages handed to the headless renderer.
func ObserveHeadlessPromotion() {
	if headlessPromotionsTotal == nil {
		return
	}
	headlessPromotionsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
