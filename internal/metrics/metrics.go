package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "touchheat_events_ingested_total",
		Help: "Total number of touch events accepted and persisted.",
	})

	BatchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "touchheat_batches_rejected_total",
		Help: "Total number of rejected ingest batches, labelled by reason.",
	}, []string{"reason"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "touchheat_ingest_duration_ms",
		Help:    "End-to-end ingest request latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	Aggregations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "touchheat_aggregations_total",
		Help: "Total number of aggregation runs, labelled by kind.",
	}, []string{"kind"})
)
