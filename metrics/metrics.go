// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "designlab",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designlab",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "designlab",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	labMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designlab",
			Subsystem: "lab",
			Name:      "mutations_total",
			Help:      "Design mutations applied, by operation.",
		},
		[]string{"op", "result"},
	)

	renderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "designlab",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Time spent compositing a design into pixels.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	renderCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designlab",
			Subsystem: "render",
			Name:      "cache_lookups_total",
			Help:      "Rendered preview cache lookups.",
		},
		[]string{"result"},
	)

	imageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designlab",
			Subsystem: "render",
			Name:      "image_failures_total",
			Help:      "Background or layer images that failed to load and were skipped.",
		},
		[]string{"kind"},
	)

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designlab",
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Media uploads by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		labMutations,
		renderDuration,
		renderCache,
		imageFailures,
		uploads,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func InFlight(delta float64) {
	httpInFlight.Add(delta)
}

// RecordMutation counts a lab command. result is "ok", "ignored" or "error".
func RecordMutation(op, result string) {
	labMutations.WithLabelValues(op, result).Inc()
}

func ObserveRender(elapsed time.Duration) {
	renderDuration.Observe(elapsed.Seconds())
}

func RecordCacheLookup(hit bool) {
	if hit {
		renderCache.WithLabelValues("hit").Inc()
		return
	}
	renderCache.WithLabelValues("miss").Inc()
}

// RecordImageFailure counts an image the renderer had to skip. kind is "background" or "layer".
func RecordImageFailure(kind string) {
	imageFailures.WithLabelValues(kind).Inc()
}

func RecordUpload(result string) {
	uploads.WithLabelValues(result).Inc()
}
