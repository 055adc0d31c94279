// Package metrics defines the Prometheus metric collectors used across the
// tool and exposes an HTTP handler for scraping and a Pushgateway helper for
// one-shot CLI runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	OperationsTotal      *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	WordsAddedTotal      prometheus.Counter
	WordsRemovedTotal    prometheus.Counter
	DuplicatesTotal      prometheus.Counter
	DetectionsTotal      *prometheus.CounterVec
	DictionaryLines      *prometheus.GaugeVec
	LockWaitSeconds      prometheus.Histogram
	EventsPublishedTotal *prometheus.CounterVec
	EventsAppliedTotal   *prometheus.CounterVec
	LabelCacheTotal      *prometheus.CounterVec
	CircuitState         *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dictionary_operations_total",
				Help: "Dictionary operations by operation (add, delete, sort) and status.",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dictionary_operation_duration_seconds",
				Help:    "Full read-compute-write cycle latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"operation"},
		),
		WordsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dictionary_words_added_total",
				Help: "Words added to dictionaries.",
			},
		),
		WordsRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dictionary_words_removed_total",
				Help: "Lines removed from dictionaries by delete.",
			},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dictionary_duplicates_removed_total",
				Help: "Duplicate lines dropped by sort.",
			},
		),
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "encoding_detections_total",
				Help: "Encoding classifications by resulting label.",
			},
			[]string{"encoding"},
		),
		DictionaryLines: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dictionary_lines",
				Help: "Line count of each dictionary after its last write.",
			},
			[]string{"dictionary"},
		),
		LockWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dictionary_lock_wait_seconds",
				Help:    "Time spent waiting for a dictionary lock.",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "change_events_published_total",
				Help: "Dictionary change events published, by status.",
			},
			[]string{"status"},
		),
		EventsAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "change_events_applied_total",
				Help: "Change events replayed by the follower, by status.",
			},
			[]string{"status"},
		),
		LabelCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "label_cache_requests_total",
				Help: "Detection label cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state by name: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OperationsTotal,
		m.OperationDuration,
		m.WordsAddedTotal,
		m.WordsRemovedTotal,
		m.DuplicatesTotal,
		m.DetectionsTotal,
		m.DictionaryLines,
		m.LockWaitSeconds,
		m.EventsPublishedTotal,
		m.EventsAppliedTotal,
		m.LabelCacheTotal,
		m.CircuitState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for a custom gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Push sends everything in g to a Pushgateway under job. It is used by CLI
// commands, which exit before a scraper could reach them.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
