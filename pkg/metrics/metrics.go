// Package metrics provides Prometheus metrics for the Firethorn service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionsIngested tracks detections actually inserted (duplicates excluded)
	DetectionsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "ingest",
			Name:      "detections_inserted_total",
			Help:      "Total number of detections inserted into the store",
		},
	)

	// DetectionsRejected tracks feed rows rejected during parsing
	DetectionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "ingest",
			Name:      "rows_rejected_total",
			Help:      "Total number of malformed feed rows rejected",
		},
	)

	// FeedFetchesTotal tracks satellite feed pulls by outcome
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Total number of satellite feed fetches by status",
		},
		[]string{"status"},
	)

	// FeedFetchDuration tracks satellite feed fetch duration
	FeedFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "firethorn",
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of satellite feed fetches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// AssignmentsTotal tracks detection-to-incident assignments by outcome
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "clustering",
			Name:      "assignments_total",
			Help:      "Total number of detection assignments by outcome",
		},
		[]string{"outcome"},
	)

	// AssignmentDuration tracks the duration of a single detection assignment
	AssignmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "firethorn",
			Subsystem: "clustering",
			Name:      "assignment_duration_seconds",
			Help:      "Duration of single detection assignments in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// IncidentsEnded tracks incidents ended by the cleanup job
	IncidentsEnded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "lifecycle",
			Name:      "incidents_ended_total",
			Help:      "Total number of incidents ended for inactivity",
		},
	)

	// IncidentsDeleted tracks incidents purged by the deletion job
	IncidentsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "lifecycle",
			Name:      "incidents_deleted_total",
			Help:      "Total number of incidents purged past retention",
		},
	)

	// QueueJobsProcessed tracks jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"job_type", "status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "firethorn",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// DLQJobsTotal tracks jobs moved to the dead letter queue
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firethorn",
			Subsystem: "queue",
			Name:      "dlq_jobs_total",
			Help:      "Total number of jobs moved to the dead letter queue",
		},
		[]string{"reason"},
	)
)
