// Package metrics exposes Prometheus collectors for the crawl and enrichment stages.
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

// Label values used by the crawl and enrichment stages.
const (
	CycleCompleted = "completed"
	CycleCaughtUp  = "caught_up"
	CycleFailed    = "failed"

	IssueCreated   = "created"
	IssueDuplicate = "duplicate"
	IssueFailed    = "failed"

	PanelRecognized = "recognized"
	PanelSkipped    = "skipped"
	PanelFailed     = "failed"
)

var (
	crawlCyclesTotal           *prometheus.CounterVec
	issuesIngestedTotal        *prometheus.CounterVec
	enrichmentMessagesTotal    *prometheus.CounterVec
	panelsTotal                *prometheus.CounterVec
	crawlerState               prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comics_crawl_cycles_total",
				Help: "Crawl cycles run, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		issuesIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comics_issues_ingested_total",
				Help: "Issues handed to the store, labeled by result.",
			},
			[]string{"result"},
		)

		enrichmentMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comics_enrichment_messages_total",
				Help: "Enrichment deliveries handled, labeled by disposition.",
			},
			[]string{"disposition"},
		)

		panelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comics_panels_total",
				Help: "Panels processed by OCR, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerState = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "comics_crawler_state",
				Help: "1 while a crawl cycle is running, 0 when idle.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "comics_fetch_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting for the per-host rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle counts a finished crawl cycle.
func ObserveCycle(outcome string) {
	Init()
	crawlCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveIssue counts an insert attempt.
func ObserveIssue(result string) {
	Init()
	issuesIngestedTotal.WithLabelValues(result).Inc()
}

// ObserveEnrichment counts a settled delivery.
func ObserveEnrichment(disposition string) {
	Init()
	enrichmentMessagesTotal.WithLabelValues(disposition).Inc()
}

// ObservePanel counts one panel outcome.
func ObservePanel(result string) {
	Init()
	panelsTotal.WithLabelValues(result).Inc()
}

// SetCrawlerRunning flips the crawler state gauge.
func SetCrawlerRunning(running bool) {
	Init()
	if running {
		crawlerState.Set(1)
		return
	}
	crawlerState.Set(0)
}

// ObserveRateLimitDelay records how long a fetch waited for its host's token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
