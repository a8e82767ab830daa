// Package metrics exposes Prometheus collectors for the render service.
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
	rendersTotal               *prometheus.CounterVec
	renderDurationSeconds      *prometheus.HistogramVec
	renderRetriesTotal         prometheus.Counter
	renderInflight             prometheus.Gauge
	engineLaunchesTotal        *prometheus.CounterVec
	archiveWritesTotal         *prometheus.CounterVec
	hostWaitSeconds            *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		rendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlshot_renders_total",
				Help: "Total number of renders, labeled by format and outcome.",
			},
			[]string{"format", "outcome"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "htmlshot_render_duration_seconds",
				Help:    "Histogram of end-to-end render latencies, labeled by format.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"format"},
		)

		renderRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "htmlshot_render_retries_total",
				Help: "Total number of render attempts retried after the engine closed.",
			},
		)

		renderInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "htmlshot_renders_inflight",
				Help: "Number of renders currently holding a page.",
			},
		)

		engineLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlshot_engine_launches_total",
				Help: "Total number of browser engine launches, labeled by status.",
			},
			[]string{"status"},
		)

		archiveWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlshot_archive_writes_total",
				Help: "Total number of archived renders, labeled by status.",
			},
			[]string{"status"},
		)

		hostWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "htmlshot_url_host_wait_seconds",
				Help:    "Delay introduced by the per-host URL rate limiter.",
				Buckets: prometheus.DefBuckets,
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRender records one finished render.
func ObserveRender(format, outcome string, duration time.Duration) {
	Init()
	rendersTotal.WithLabelValues(format, outcome).Inc()
	renderDurationSeconds.WithLabelValues(format).Observe(duration.Seconds())
}

// ObserveRenderRetry counts a retried render attempt.
func ObserveRenderRetry() {
	Init()
	renderRetriesTotal.Inc()
}

// IncInflightRenders increments the in-flight render gauge.
func IncInflightRenders() {
	Init()
	renderInflight.Inc()
}

// DecInflightRenders decrements the in-flight render gauge.
func DecInflightRenders() {
	Init()
	renderInflight.Dec()
}

// ObserveEngineLaunch counts a browser launch with the given status.
func ObserveEngineLaunch(status string) {
	Init()
	engineLaunchesTotal.WithLabelValues(status).Inc()
}

// ObserveArchiveWrite counts an archive write with the given status.
func ObserveArchiveWrite(status string) {
	Init()
	archiveWritesTotal.WithLabelValues(status).Inc()
}

// ObserveHostWait records time spent waiting on the per-host URL limiter.
func ObserveHostWait(host string, duration time.Duration) {
	Init()
	hostWaitSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
