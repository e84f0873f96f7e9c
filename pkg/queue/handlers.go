package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

// FeedFetcher pulls raw rows from the upstream feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, source string, dayRange int) ([]models.RawFeedRow, error)
}

// Ingester parses and persists raw feed rows.
type Ingester interface {
	Ingest(ctx context.Context, rows []models.RawFeedRow) (*models.IngestResult, error)
}

// ClusterRunner is the assignment surface the cluster handler depends on.
type ClusterRunner interface {
	AssignBatch(ctx context.Context, batchSize int) (*models.BatchAssignmentResult, error)
}

// LifecycleRunner is the lifecycle surface the cleanup and deletion
// handlers depend on.
type LifecycleRunner interface {
	EndStaleAfter(ctx context.Context, now time.Time, inactivityHours int) (int, error)
	PurgeExpiredAfter(ctx context.Context, now time.Time, retentionDays int) (incidents, detections int, err error)
}

// DeletionChainer is the publisher surface the cleanup handler uses to
// chain the retention purge.
type DeletionChainer interface {
	PublishIncidentDeletion(ctx context.Context, job models.IncidentDeletionJob) (string, error)
	ReleaseCleanupGuard(ctx context.Context)
}

// decodePayload converts the generic job payload back into a typed job.
func decodePayload(payload map[string]interface{}, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJobMessage, err)
	}
	return nil
}

// FetchHandler pulls detections from the satellite feed and ingests them.
type FetchHandler struct {
	feed   FeedFetcher
	ingest Ingester
	logger ectologger.Logger
}

// NewFetchHandler creates the detection fetch handler.
func NewFetchHandler(feedClient FeedFetcher, ingestService Ingester, logger ectologger.Logger) *FetchHandler {
	return &FetchHandler{
		feed:   feedClient,
		ingest: ingestService,
		logger: logger,
	}
}

// Handle implements Handler.
func (h *FetchHandler) Handle(ctx context.Context, job *redis.JobMessage) (map[string]any, error) {
	var payload models.DetectionFetchJob
	if err := decodePayload(job.Payload, &payload); err != nil {
		return nil, err
	}

	rows, err := h.feed.Fetch(ctx, payload.Source, payload.DayRange)
	if err != nil {
		return map[string]any{"source": payload.Source}, err
	}

	result, err := h.ingest.Ingest(ctx, rows)
	if err != nil {
		return map[string]any{"source": payload.Source, "rows_fetched": len(rows)}, err
	}

	return map[string]any{
		"source":       payload.Source,
		"rows_fetched": len(rows),
		"inserted":     result.Inserted,
		"rejected":     len(result.Failures),
	}, nil
}

// ClusterHandler assigns unclustered detections to incidents.
type ClusterHandler struct {
	assigner ClusterRunner
	logger   ectologger.Logger
}

// NewClusterHandler creates the detection cluster handler.
func NewClusterHandler(assigner ClusterRunner, logger ectologger.Logger) *ClusterHandler {
	return &ClusterHandler{
		assigner: assigner,
		logger:   logger,
	}
}

// Handle implements Handler.
func (h *ClusterHandler) Handle(ctx context.Context, job *redis.JobMessage) (map[string]any, error) {
	var payload models.DetectionClusterJob
	if err := decodePayload(job.Payload, &payload); err != nil {
		return nil, err
	}

	result, err := h.assigner.AssignBatch(ctx, payload.BatchSize)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"processed":         result.Processed,
		"assigned_existing": result.AssignedExisting,
		"created_incidents": result.CreatedIncidents,
		"failed":            len(result.Failures),
	}

	// Per-detection failures are partial: the batch run itself succeeded,
	// the skipped detections stay unassigned for the next pass.
	if result.Failed() {
		h.logger.WithContext(ctx).WithFields(metadata).Warn("Clustering batch completed with failures")
	}

	return metadata, nil
}

// CleanupHandler ends stale incidents, then chains an incident deletion
// job so the retention purge always follows a cleanup sweep.
type CleanupHandler struct {
	lifecycle LifecycleRunner
	publisher DeletionChainer
	logger    ectologger.Logger
}

// NewCleanupHandler creates the incident cleanup handler.
func NewCleanupHandler(lifecycleService LifecycleRunner, publisher DeletionChainer, logger ectologger.Logger) *CleanupHandler {
	return &CleanupHandler{
		lifecycle: lifecycleService,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle implements Handler.
func (h *CleanupHandler) Handle(ctx context.Context, job *redis.JobMessage) (map[string]any, error) {
	var payload models.IncidentCleanupJob
	if err := decodePayload(job.Payload, &payload); err != nil {
		return nil, err
	}

	ended, err := h.lifecycle.EndStaleAfter(ctx, time.Now().UTC(), payload.InactivityHours)
	metadata := map[string]any{"incidents_ended": ended}
	if err != nil {
		return metadata, err
	}

	// Deletion is chained unconditionally: retention must advance even
	// when no incident went stale this sweep.
	deletionID, err := h.publisher.PublishIncidentDeletion(ctx, models.IncidentDeletionJob{})
	if err != nil {
		return metadata, fmt.Errorf("cleanup succeeded but failed to chain deletion job: %w", err)
	}
	metadata["deletion_job_id"] = deletionID

	// The guard is released only when the sweep completed. A failed run
	// keeps it held so the pending retry stays the single queued cleanup;
	// the guard TTL bounds the window if the job ends up dead-lettered.
	h.publisher.ReleaseCleanupGuard(ctx)

	return metadata, nil
}

// DeletionHandler purges ended incidents past retention and old
// unclustered detections.
type DeletionHandler struct {
	lifecycle LifecycleRunner
	logger    ectologger.Logger
}

// NewDeletionHandler creates the incident deletion handler.
func NewDeletionHandler(lifecycleService LifecycleRunner, logger ectologger.Logger) *DeletionHandler {
	return &DeletionHandler{
		lifecycle: lifecycleService,
		logger:    logger,
	}
}

// Handle implements Handler.
func (h *DeletionHandler) Handle(ctx context.Context, job *redis.JobMessage) (map[string]any, error) {
	var payload models.IncidentDeletionJob
	if err := decodePayload(job.Payload, &payload); err != nil {
		return nil, err
	}

	incidents, detections, err := h.lifecycle.PurgeExpiredAfter(ctx, time.Now().UTC(), payload.RetentionDays)
	metadata := map[string]any{
		"incidents_deleted":  incidents,
		"detections_deleted": detections,
	}
	return metadata, err
}

// RegisterHandlers binds the standard pipeline handlers onto a processor.
func RegisterHandlers(p *Processor, fetch *FetchHandler, cluster *ClusterHandler, cleanup *CleanupHandler, deletion *DeletionHandler) error {
	if p == nil {
		return errors.New("nil processor")
	}

	p.Register(models.JobTypeDetectionFetch, fetch)
	p.Register(models.JobTypeDetectionCluster, cluster)
	p.Register(models.JobTypeIncidentCleanup, cleanup)
	p.Register(models.JobTypeIncidentDeletion, deletion)
	return nil
}
