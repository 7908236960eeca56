package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the polar
// generation service.
type Metrics struct {
	LinesParsed   prometheus.Counter
	LinesRejected prometheus.Counter
	UploadsTotal  prometheus.Counter

	GenerationsTotal   prometheus.Counter
	GenerationFailures *prometheus.CounterVec // label: reason={no_data,insufficient,storage,internal}
	GenerationDuration prometheus.Histogram
	CellsFilled        prometheus.Histogram

	NotifyErrors  prometheus.Counter
	ArchiveErrors prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LinesParsed,
		m.LinesRejected,
		m.UploadsTotal,
		m.GenerationsTotal,
		m.GenerationFailures,
		m.GenerationDuration,
		m.CellsFilled,
		m.NotifyErrors,
		m.ArchiveErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default
// registry, avoiding "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LinesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "log_lines_parsed_total",
			Help:      "Log lines successfully parsed into samples.",
		}),
		LinesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "log_lines_rejected_total",
			Help:      "Log lines skipped as malformed plus samples dropped by the filter.",
		}),
		UploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "log_uploads_total",
			Help:      "Log files accepted for storage.",
		}),
		GenerationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "generations_total",
			Help:      "Successful polar generations.",
		}),
		GenerationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "generation_failures_total",
			Help:      "Failed polar generations by reason.",
		}, []string{"reason"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polar",
			Name:      "generation_duration_seconds",
			Help:      "Duration of a complete parse-filter-aggregate-merge run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CellsFilled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polar",
			Name:      "generation_cells_filled",
			Help:      "Non-empty cells per generated table.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 400},
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "notify_errors_total",
			Help:      "Failed generation notifications.",
		}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polar",
			Name:      "archive_errors_total",
			Help:      "Failed sample archive writes.",
		}),
	}
}
