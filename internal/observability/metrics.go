package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "condition_oracle"

// Metrics holds the Prometheus counters, histograms, and gauges for the oracle.
type Metrics struct {
	SnapshotRefreshes prometheus.Counter
	Queries           *prometheus.CounterVec // labels: kind={condition,expression}, outcome={true,false,error}
	ParseErrors       prometheus.Counter
	Flags             prometheus.Gauge
	LocationChanges   *prometheus.CounterVec // labels: outcome={accepted,rejected}

	// Watcher metrics.
	WatcherRunning     prometheus.Gauge
	WatchTransitions   prometheus.Counter
	WatchEvalErrors    prometheus.Counter
	WatchPublishErrors prometheus.Counter
	WatchCycleDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeCache *prometheus.CounterVec // labels: method={forward,reverse}, result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SnapshotRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_refreshes_total",
			Help:      "Total recomputations of the temporal snapshot.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Condition queries and expression evaluations by outcome.",
		}, []string{"kind", "outcome"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total malformed expressions and condition names.",
		}),
		Flags: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flags",
			Help:      "Number of known flags.",
		}),
		LocationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_changes_total",
			Help:      "Location updates by outcome.",
		}, []string{"outcome"}),
		WatcherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watcher_running",
			Help:      "1 when the transition watcher is active, 0 when shut down.",
		}),
		WatchTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_transitions_total",
			Help:      "Total watch transitions published.",
		}),
		WatchEvalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_eval_errors_total",
			Help:      "Total watch expressions that failed to evaluate.",
		}),
		WatchPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_publish_errors_total",
			Help:      "Total failed attempts to publish transitions.",
		}),
		WatchCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_cycle_duration_seconds",
			Help:      "Duration of one evaluate-and-publish watch cycle.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SnapshotRefreshes,
		m.Queries,
		m.ParseErrors,
		m.Flags,
		m.LocationChanges,
		m.WatcherRunning,
		m.WatchTransitions,
		m.WatchEvalErrors,
		m.WatchPublishErrors,
		m.WatchCycleDuration,
		m.GeocodeCache,
	}
}
