package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdimport_import_records_total",
			Help: "Imported files by outcome.",
		},
		[]string{"status"},
	)

	importTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdimport_import_tasks_total",
			Help: "Finished import tasks by final status.",
		},
		[]string{"status"},
	)

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mdimport_import_duration_seconds",
		Help:    "Wall time of import tasks.",
		Buckets: prometheus.DefBuckets,
	})

	lookupCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdimport_lookup_cache_total",
			Help: "Category and tag id cache lookups by kind and result.",
		},
		[]string{"kind", "result"},
	)
)
