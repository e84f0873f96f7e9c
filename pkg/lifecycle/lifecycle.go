// Package lifecycle implements the periodic sweeps over incidents: ending
// stale active incidents and purging ended incidents past retention,
// along with retention cleanup of old unclustered detections.
package lifecycle

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/metrics"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// IncidentStore is the incident repository surface the sweeps depend on.
type IncidentStore interface {
	ListStaleActive(ctx context.Context, cutoff time.Time) ([]models.Incident, error)
	MarkEnded(ctx context.Context, id string, endedAt time.Time) error
	ListExpiredEnded(ctx context.Context, cutoff time.Time) ([]models.Incident, error)
	DeleteCascade(ctx context.Context, id string) (int, error)
}

// DetectionStore is the detection repository surface for retention
// cleanup of unclustered rows.
type DetectionStore interface {
	DeleteUnassignedOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Config holds the lifecycle thresholds.
type Config struct {
	// InactivityHours is how long an active incident may go without a
	// new detection before it is ended
	InactivityHours int

	// RetentionDays is how long an ended incident is kept before it and
	// its detections are purged
	RetentionDays int

	// DetectionRetentionDays is how long unclustered detections are kept
	DetectionRetentionDays int
}

// DefaultConfig returns the default lifecycle thresholds.
func DefaultConfig() Config {
	return Config{
		InactivityHours:        24,
		RetentionDays:          3,
		DetectionRetentionDays: 14,
	}
}

// EventSink receives lifecycle transitions for downstream consumers.
type EventSink interface {
	EmitIncidentEnded(ctx context.Context, incident *models.Incident)
	EmitIncidentDeleted(ctx context.Context, incidentID string)
}

// Service runs the lifecycle sweeps.
type Service struct {
	incidents  IncidentStore
	detections DetectionStore
	events     EventSink
	config     Config
	logger     ectologger.Logger
}

// NewService creates a lifecycle service. Zero config fields fall back to
// the defaults.
func NewService(incidents IncidentStore, detections DetectionStore, config Config, logger ectologger.Logger) *Service {
	defaults := DefaultConfig()
	if config.InactivityHours <= 0 {
		config.InactivityHours = defaults.InactivityHours
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = defaults.RetentionDays
	}
	if config.DetectionRetentionDays <= 0 {
		config.DetectionRetentionDays = defaults.DetectionRetentionDays
	}

	return &Service{
		incidents:  incidents,
		detections: detections,
		config:     config,
		logger:     logger,
	}
}

// WithEvents attaches an event sink. Nil disables event emission.
func (s *Service) WithEvents(sink EventSink) *Service {
	s.events = sink
	return s
}

// EndStale transitions active incidents with no detection inside the
// inactivity window to ended. Individual failures are logged and skipped
// so one bad incident never blocks the sweep.
func (s *Service) EndStale(ctx context.Context, now time.Time) (int, error) {
	return s.EndStaleAfter(ctx, now, s.config.InactivityHours)
}

// EndStaleAfter is EndStale with an explicit inactivity window, for jobs
// that override the configured threshold. Non-positive hours fall back to
// the configured value.
func (s *Service) EndStaleAfter(ctx context.Context, now time.Time, inactivityHours int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Service.EndStale")
	defer span.End()

	if inactivityHours <= 0 {
		inactivityHours = s.config.InactivityHours
	}

	cutoff := now.Add(-time.Duration(inactivityHours) * time.Hour)
	stale, err := s.incidents.ListStaleActive(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, incident := range stale {
		if err := s.incidents.MarkEnded(ctx, incident.ID, now); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"incident_id": incident.ID}).Warn("Failed to end stale incident")
			continue
		}
		ended++
		metrics.IncidentsEnded.Inc()

		if s.events != nil {
			incident.Status = models.IncidentStatusEnded
			endedAt := now
			incident.EndedAt = &endedAt
			s.events.EmitIncidentEnded(ctx, &incident)
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"stale": len(stale), "ended": ended}).Info("Ended stale incidents")
	return ended, nil
}

// PurgeExpired deletes ended incidents whose ended_at is past the
// retention window, cascading to their detections, then removes
// unclustered detections past the detection retention window.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (incidents, detections int, err error) {
	return s.PurgeExpiredAfter(ctx, now, s.config.RetentionDays)
}

// PurgeExpiredAfter is PurgeExpired with an explicit retention window.
// Non-positive days fall back to the configured value.
func (s *Service) PurgeExpiredAfter(ctx context.Context, now time.Time, retentionDays int) (incidents, detections int, err error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Service.PurgeExpired")
	defer span.End()

	if retentionDays <= 0 {
		retentionDays = s.config.RetentionDays
	}

	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	expired, err := s.incidents.ListExpiredEnded(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}

	for _, incident := range expired {
		cascaded, err := s.incidents.DeleteCascade(ctx, incident.ID)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"incident_id": incident.ID}).Warn("Failed to purge expired incident")
			continue
		}
		incidents++
		detections += cascaded
		metrics.IncidentsDeleted.Inc()

		if s.events != nil {
			s.events.EmitIncidentDeleted(ctx, incident.ID)
		}
	}

	detectionCutoff := now.Add(-time.Duration(s.config.DetectionRetentionDays) * 24 * time.Hour)
	orphans, err := s.detections.DeleteUnassignedOlderThan(ctx, detectionCutoff)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to delete old unassigned detections")
	} else {
		detections += orphans
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"expired":            len(expired),
		"incidents_deleted":  incidents,
		"detections_deleted": detections,
	}).Info("Purged expired incidents")

	return incidents, detections, nil
}
