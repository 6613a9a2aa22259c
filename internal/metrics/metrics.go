// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace prefixes every metric
	Namespace = "mergertracker"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	FetchesTotal     *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	DocumentsTotal   *prometheus.CounterVec
	DealsTotal       *prometheus.CounterVec
	StoreOutcomes    *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	BreakerTrips     *prometheus.CounterVec
	ExtractQueue     prometheus.Gauge
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers the collectors on reg; gatherer backs Handler
func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{registry: gatherer}

	m.FetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "HTTP requests issued per source by result",
		},
		[]string{"source_id", "result"},
	)
	m.FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of fetch attempts",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"source_id"},
	)
	m.DocumentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents reaching each pipeline stage",
		},
		[]string{"source_id", "stage"},
	)
	m.DealsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "deals_total",
			Help:      "Extracted deals by routing decision",
		},
		[]string{"source_id", "decision"},
	)
	m.StoreOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "outcomes_total",
			Help:      "Store outcomes by status",
		},
		[]string{"status"},
	)
	m.BreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per source (0=closed, 1=open, 2=half-open)",
		},
		[]string{"source_id"},
	)
	m.BreakerTrips = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Times a source's breaker opened",
		},
		[]string{"source_id"},
	)
	m.ExtractQueue = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "extract_queue_depth",
			Help:      "Documents waiting for an extraction worker",
		},
	)
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Completed runs by result",
		},
		[]string{"result"},
	)
	m.RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
	m.LastRunTimestamp = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		},
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one fetch attempt
func (m *Metrics) ObserveFetch(sourceID, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(sourceID, result).Inc()
	m.FetchDuration.WithLabelValues(sourceID).Observe(d.Seconds())
}

// Document counts a document reaching stage
func (m *Metrics) Document(sourceID, stage string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(sourceID, stage).Inc()
}

// Deal counts a routing decision: accepted, review, duplicate or discarded
func (m *Metrics) Deal(sourceID, decision string) {
	if m == nil {
		return
	}
	m.DealsTotal.WithLabelValues(sourceID, decision).Inc()
}

// StoreOutcome counts one persisted item
func (m *Metrics) StoreOutcome(status string) {
	if m == nil {
		return
	}
	m.StoreOutcomes.WithLabelValues(status).Inc()
}

// SetBreakerState records a breaker transition
func (m *Metrics) SetBreakerState(sourceID string, state int, opened bool) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(sourceID).Set(float64(state))
	if opened {
		m.BreakerTrips.WithLabelValues(sourceID).Inc()
	}
}

// SetExtractQueue records the extraction backlog
func (m *Metrics) SetExtractQueue(n int) {
	if m == nil {
		return
	}
	m.ExtractQueue.Set(float64(n))
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(result string, started, finished time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(finished.Sub(started).Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}
