package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

// ErrJobAlreadyQueued is returned when a singleton job is already queued
// or running.
var ErrJobAlreadyQueued = errors.New("job already queued or running")

// cleanupGuardKey marks an incident cleanup as queued-or-running so only
// one cleanup chain is in flight at a time.
const cleanupGuardKey = "firethorn:unique:incident_cleanup"

// cleanupGuardTTL bounds how long a crashed worker can hold the guard.
const cleanupGuardTTL = 30 * time.Minute

// Publisher enqueues pipeline jobs onto the job stream.
type Publisher struct {
	streams *redis.Streams
	client  *redis.Client
	stream  string
	logger  ectologger.Logger
}

// NewPublisher creates a job publisher for the given stream.
func NewPublisher(streams *redis.Streams, client *redis.Client, stream string, logger ectologger.Logger) *Publisher {
	return &Publisher{
		streams: streams,
		client:  client,
		stream:  stream,
		logger:  logger,
	}
}

// PublishDetectionFetch enqueues a feed fetch job.
func (p *Publisher) PublishDetectionFetch(ctx context.Context, job models.DetectionFetchJob) (string, error) {
	job.ScheduledAt = time.Now().UTC()
	return p.publish(ctx, models.JobTypeDetectionFetch, job)
}

// PublishDetectionCluster enqueues a clustering pass over unassigned
// detections.
func (p *Publisher) PublishDetectionCluster(ctx context.Context, job models.DetectionClusterJob) (string, error) {
	job.ScheduledAt = time.Now().UTC()
	return p.publish(ctx, models.JobTypeDetectionCluster, job)
}

// PublishIncidentCleanup enqueues a cleanup sweep. Cleanup is a singleton:
// if one is already queued or running, ErrJobAlreadyQueued is returned and
// nothing is enqueued.
func (p *Publisher) PublishIncidentCleanup(ctx context.Context, job models.IncidentCleanupJob) (string, error) {
	acquired, err := p.client.SetNX(ctx, cleanupGuardKey, time.Now().UTC().Format(time.RFC3339), cleanupGuardTTL)
	if err != nil {
		return "", fmt.Errorf("failed to check cleanup guard: %w", err)
	}
	if !acquired {
		return "", ErrJobAlreadyQueued
	}

	job.ScheduledAt = time.Now().UTC()
	id, err := p.publish(ctx, models.JobTypeIncidentCleanup, job)
	if err != nil {
		// Publish failed, free the guard so the next tick can retry
		if delErr := p.client.Del(ctx, cleanupGuardKey); delErr != nil {
			p.logger.WithContext(ctx).WithError(delErr).Warn("Failed to release cleanup guard after publish failure")
		}
		return "", err
	}

	return id, nil
}

// PublishIncidentDeletion enqueues a retention purge. Normally chained
// from a completed cleanup job rather than scheduled directly.
func (p *Publisher) PublishIncidentDeletion(ctx context.Context, job models.IncidentDeletionJob) (string, error) {
	job.ScheduledAt = time.Now().UTC()
	return p.publish(ctx, models.JobTypeIncidentDeletion, job)
}

// ReleaseCleanupGuard frees the cleanup singleton guard. Called by the
// cleanup handler once the sweep finishes.
func (p *Publisher) ReleaseCleanupGuard(ctx context.Context) {
	if err := p.client.Del(ctx, cleanupGuardKey); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to release cleanup guard")
	}
}

func (p *Publisher) publish(ctx context.Context, jobType string, payload any) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.Publisher.publish")
	defer span.End()

	payloadMap, err := toPayloadMap(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}

	msg := &redis.JobMessage{
		Type:    jobType,
		Payload: payloadMap,
	}

	id, err := p.streams.Publish(ctx, p.stream, msg)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %s job", jobType)
		return "", err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"job_type":   jobType,
		"message_id": id,
	}).Info("Published job")

	return id, nil
}

func toPayloadMap(payload any) (map[string]interface{}, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	return m, nil
}
