// Package metrics exposes Prometheus collectors for the catalog crawler.
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

// Item outcomes recorded by ObserveItem.
const (
	OutcomeExtracted = "extracted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var (
	crawlItemsTotal             *prometheus.CounterVec
	crawlPagesTotal             *prometheus.CounterVec
	crawlCategoriesTotal        *prometheus.CounterVec
	crawlRevealsTotal           *prometheus.CounterVec
	crawlFieldStrategyTotal     *prometheus.CounterVec
	crawlFieldUnknownTotal      *prometheus.CounterVec
	crawlPublishTotal           *prometheus.CounterVec
	crawlStoreDurationSeconds   *prometheus.HistogramVec
	crawlNavigationDelaySeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_items_total",
				Help: "Total number of catalog items handled, labeled by source, category and outcome.",
			},
			[]string{"source", "category", "outcome"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total number of listing pages visited, labeled by source and category.",
			},
			[]string{"source", "category"},
		)

		crawlCategoriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_categories_total",
				Help: "Total number of categories entered, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		crawlRevealsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_reveals_total",
				Help: "Total number of load-more clicks, labeled by source.",
			},
			[]string{"source"},
		)

		crawlFieldStrategyTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_field_strategy_total",
				Help: "Fallback strategy that produced a field value, labeled by field and strategy.",
			},
			[]string{"field", "strategy"},
		)

		crawlFieldUnknownTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_field_unknown_total",
				Help: "Fields for which every fallback strategy failed, labeled by field.",
			},
			[]string{"field"},
		)

		crawlPublishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_publish_total",
				Help: "Record publish attempts, labeled by status.",
			},
			[]string{"status"},
		)

		crawlStoreDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawl_store_duration_seconds",
				Help:    "Histogram of durable write latencies, labeled by operation.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"op"},
		)

		crawlNavigationDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawl_navigation_delay_seconds",
				Help:    "Histogram of navigation rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObserveItem counts one item outcome.
func ObserveItem(source, category, outcome string) {
	Init()
	crawlItemsTotal.WithLabelValues(source, category, outcome).Inc()
}

// ObservePage counts one visited listing page.
func ObservePage(source, category string) {
	Init()
	crawlPagesTotal.WithLabelValues(source, category).Inc()
}

// ObserveCategory counts a category entry attempt.
func ObserveCategory(source, status string) {
	Init()
	crawlCategoriesTotal.WithLabelValues(source, status).Inc()
}

// ObserveReveals adds n load-more clicks.
func ObserveReveals(source string, n int) {
	if n <= 0 {
		return
	}
	Init()
	crawlRevealsTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveField records which strategy resolved a field. An empty strategy
// means the chain fell through to its default.
func ObserveField(field, strategy string) {
	Init()
	if strategy == "" {
		crawlFieldUnknownTotal.WithLabelValues(field).Inc()
		return
	}
	crawlFieldStrategyTotal.WithLabelValues(field, strategy).Inc()
}

// ObservePublish counts a publish attempt.
func ObservePublish(status string) {
	Init()
	crawlPublishTotal.WithLabelValues(status).Inc()
}

// ObserveStore records the latency of a durable write.
func ObserveStore(op string, duration time.Duration) {
	Init()
	crawlStoreDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveNavigationDelay records the duration of a navigation rate limit wait.
func ObserveNavigationDelay(domain string, duration time.Duration) {
	Init()
	crawlNavigationDelaySeconds.WithLabelValues(SanitizeSite(domain)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
