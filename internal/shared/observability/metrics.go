package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IndexDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "materiality_index_seconds",
		Help:    "Time spent parsing and indexing one Python source file.",
		Buckets: prometheus.DefBuckets,
	})

	CrawlStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "materiality_crawl_steps_total",
		Help: "Total number of frontier paths processed by the crawler.",
	})

	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "materiality_resolutions_total",
		Help: "Import references driven to a terminal state, by state and ignore reason.",
	}, []string{"state", "reason"})

	RegistryRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "materiality_registry_records",
		Help: "Number of module records held by the registry.",
	})

	HistoryMineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "materiality_history_mine_seconds",
		Help:    "Time spent mining git history for one project.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)

// WriteTextfile dumps the default registry in the text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
