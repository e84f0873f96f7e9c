package models

import (
	"time"
)

// Job types handled by the queue processor
const (
	JobTypeDetectionFetch   = "detection_fetch"
	JobTypeDetectionCluster = "detection_cluster"
	JobTypeIncidentCleanup  = "incident_cleanup"
	JobTypeIncidentDeletion = "incident_deletion"
)

// Job run statuses
const (
	JobRunStatusRunning   = "running"
	JobRunStatusCompleted = "completed"
	JobRunStatusFailed    = "failed"
)

// DeadLetterReason explains why a job was moved to the DLQ.
type DeadLetterReason string

const (
	DLQReasonMaxRetries DeadLetterReason = "max_retries_exceeded"
	DLQReasonInvalidJob DeadLetterReason = "invalid_job"
	DLQReasonUnknown    DeadLetterReason = "unknown"
)

// DetectionFetchJob pulls a batch of detections from the satellite feed
// and ingests them.
type DetectionFetchJob struct {
	Source      string    `json:"source,omitempty"`
	Area        string    `json:"area,omitempty"`
	DayRange    int       `json:"day_range,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

// DetectionClusterJob assigns unassigned detections to incidents.
type DetectionClusterJob struct {
	BatchSize   int       `json:"batch_size,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

// IncidentCleanupJob ends stale incidents, then chains into an
// IncidentDeletionJob.
type IncidentCleanupJob struct {
	InactivityHours int       `json:"inactivity_hours,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at,omitempty"`
}

// IncidentDeletionJob purges ended incidents past the retention window,
// cascading to their detections.
type IncidentDeletionJob struct {
	RetentionDays int       `json:"retention_days,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at,omitempty"`
}

// AssignmentFailure records a single detection that could not be assigned
// during a clustering batch.
type AssignmentFailure struct {
	DetectionID string `json:"detection_id"`
	Reason      string `json:"reason"`
}

// BatchAssignmentResult summarizes a clustering pass over a batch of
// unassigned detections. A batch succeeds partially: failures are
// collected per item and do not abort the remaining detections.
type BatchAssignmentResult struct {
	Processed        int                 `json:"processed"`
	AssignedExisting int                 `json:"assigned_existing"`
	CreatedIncidents int                 `json:"created_incidents"`
	Failures         []AssignmentFailure `json:"failures,omitempty"`
}

// Failed reports whether any detection in the batch failed.
func (r *BatchAssignmentResult) Failed() bool {
	return len(r.Failures) > 0
}

// JobRun is a persisted record of a single job execution.
type JobRun struct {
	ID          string         `json:"id" db:"id"`
	JobType     string         `json:"job_type" db:"job_type"`
	Status      string         `json:"status" db:"status"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"-"`
	Error       *string        `json:"error,omitempty" db:"error"`
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// CleanupResult summarizes a lifecycle cleanup pass.
type CleanupResult struct {
	IncidentsEnded    int `json:"incidents_ended"`
	IncidentsDeleted  int `json:"incidents_deleted"`
	DetectionsDeleted int `json:"detections_deleted"`
}
