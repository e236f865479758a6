// Package metrics holds the Prometheus metrics shared by the photo-triage
// services. Every method is safe to call on a nil *Metrics, so services and
// tests can run without a registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "photo_triage"

// Metrics contains all Prometheus metrics of the application.
type Metrics struct {
	ReconcileRuns      *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram
	ReconcileChanges   *prometheus.CounterVec
	ScanErrors         prometheus.Counter
	IndexedPhotos      *prometheus.GaugeVec
	RatingActions      *prometheus.CounterVec
	Selections         *prometheus.CounterVec
	StaleEvictions     prometheus.Counter
	ThumbnailRequests  *prometheus.CounterVec
	ThumbnailGenerated *prometheus.CounterVec
	ThumbnailQueue     prometheus.Gauge
	ThumbnailDuration  prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metrics and registers them, together with the Go runtime
// and process collectors, on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReconcileRuns,
		m.ReconcileDuration,
		m.ReconcileChanges,
		m.ScanErrors,
		m.IndexedPhotos,
		m.RatingActions,
		m.Selections,
		m.StaleEvictions,
		m.ThumbnailRequests,
		m.ThumbnailGenerated,
		m.ThumbnailQueue,
		m.ThumbnailDuration,
		m.HTTPRequests,
	}
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) initMetrics() {
	m.ReconcileRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation passes by result",
	}, []string{"result"})

	m.ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliation passes",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	m.ReconcileChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_changes_total",
		Help:      "Index records added or removed by reconciliation",
	}, []string{"change"})

	m.ScanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_errors_total",
		Help:      "Directory read errors skipped during scans",
	})

	m.IndexedPhotos = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "indexed_photos",
		Help:      "Indexed photos per location after the last reconciliation",
	}, []string{"location"})

	m.RatingActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rating_actions_total",
		Help:      "Rating actions by action and result",
	}, []string{"action", "result"})

	m.Selections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selections_total",
		Help:      "Random photo selections by source",
	}, []string{"source"})

	m.StaleEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_evictions_total",
		Help:      "Index records removed because their file was missing at selection time",
	})

	m.ThumbnailRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thumbnail_requests_total",
		Help:      "Thumbnail requests by result (hit, miss, coalesced)",
	}, []string{"result"})

	m.ThumbnailGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thumbnail_generations_total",
		Help:      "Thumbnail generations by result",
	}, []string{"result"})

	m.ThumbnailQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "thumbnail_queue_depth",
		Help:      "Pending thumbnail jobs",
	})

	m.ThumbnailDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "thumbnail_generation_seconds",
		Help:      "Time spent generating one thumbnail",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code",
	}, []string{"method", "code"})
}

// ObserveReconcile records one reconciliation pass.
func (m *Metrics) ObserveReconcile(elapsed time.Duration, added, removed, scanErrors int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ReconcileRuns.WithLabelValues(result).Inc()
	m.ReconcileDuration.Observe(elapsed.Seconds())
	m.ReconcileChanges.WithLabelValues("added").Add(float64(added))
	m.ReconcileChanges.WithLabelValues("removed").Add(float64(removed))
	m.ScanErrors.Add(float64(scanErrors))
}

// SetIndexedPhotos publishes per-location counts.
func (m *Metrics) SetIndexedPhotos(counts map[string]int) {
	if m == nil {
		return
	}
	for loc, n := range counts {
		m.IndexedPhotos.WithLabelValues(loc).Set(float64(n))
	}
}

// IncRating counts a rating action.
func (m *Metrics) IncRating(action, result string) {
	if m == nil {
		return
	}
	m.RatingActions.WithLabelValues(action, result).Inc()
}

// IncSelection counts a selection from source ("sorted", "base", "none").
func (m *Metrics) IncSelection(source string) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(source).Inc()
}

// IncStaleEviction counts a record evicted at selection time.
func (m *Metrics) IncStaleEviction() {
	if m == nil {
		return
	}
	m.StaleEvictions.Inc()
}

// IncThumbnailRequest counts a thumbnail request by result.
func (m *Metrics) IncThumbnailRequest(result string) {
	if m == nil {
		return
	}
	m.ThumbnailRequests.WithLabelValues(result).Inc()
}

// ObserveThumbnail records one generation attempt.
func (m *Metrics) ObserveThumbnail(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ThumbnailGenerated.WithLabelValues(result).Inc()
	m.ThumbnailDuration.Observe(elapsed.Seconds())
}

// SetThumbnailQueue publishes the pending job count.
func (m *Metrics) SetThumbnailQueue(depth int) {
	if m == nil {
		return
	}
	m.ThumbnailQueue.Set(float64(depth))
}

// IncHTTPRequest counts a served request.
func (m *Metrics) IncHTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, fmt.Sprint(code)).Inc()
}
