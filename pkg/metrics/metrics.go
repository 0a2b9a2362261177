package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics exposed at /metrics.
var (
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settler",
		Name:      "records_processed_total",
		Help:      "Records that reached a terminal status, labeled by pipeline and status.",
	}, []string{"pipeline", "status"})

	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settler",
		Name:      "batches_processed_total",
		Help:      "Scheduler batches processed, labeled by batch status.",
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "settler",
		Name:      "queue_depth",
		Help:      "Records currently waiting in the settlement queue.",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "settler",
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock duration of one scheduler batch.",
		Buckets:   prometheus.DefBuckets,
	})
)
