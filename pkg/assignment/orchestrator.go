// Package assignment ties the clustering engine and the incident
// aggregate together: each unassigned detection either joins a matched
// incident or seeds a new one, atomically per detection.
package assignment

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/firethorn/internal/database"
	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/aggregate"
	"github.com/Ramsey-B/firethorn/pkg/geo"
	"github.com/Ramsey-B/firethorn/pkg/metrics"
	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

// IncidentMatcher finds the incident a detection should join, or returns
// empty string for "no match".
type IncidentMatcher interface {
	FindIncident(ctx context.Context, detection *models.Detection, radiusMeters float64, expiryHours int) (string, error)
}

// DetectionStore is the detection repository surface the orchestrator
// depends on.
type DetectionStore interface {
	ListUnassigned(ctx context.Context, limit int) ([]models.Detection, error)
	AssignIncident(ctx context.Context, detectionID, incidentID string) error
	ListByIncident(ctx context.Context, incidentID string) ([]models.Detection, error)
}

// IncidentStore is the incident repository surface the orchestrator
// depends on.
type IncidentStore interface {
	Create(ctx context.Context, incident *models.Incident) (*models.Incident, error)
	Get(ctx context.Context, id string) (*models.Incident, error)
	UpdateAggregates(ctx context.Context, incident *models.Incident) error
	DB() database.DB
}

// Config holds the orchestrator's tunables.
type Config struct {
	// RadiusMeters and ExpiryHours are passed through to the matcher
	RadiusMeters float64
	ExpiryHours  int

	// BatchSize caps how many unassigned detections one sweep processes
	BatchSize int

	// LockTTL bounds how long a grid-cell lock may be held
	LockTTL time.Duration

	// LockTimeout bounds how long to wait for a contended grid cell
	LockTimeout time.Duration

	// OperationTimeout bounds a single detection's assignment
	OperationTimeout time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		RadiusMeters:     5000,
		ExpiryHours:      72,
		BatchSize:        500,
		LockTTL:          30 * time.Second,
		LockTimeout:      10 * time.Second,
		OperationTimeout: 30 * time.Second,
	}
}

// EventSink receives incident change events after a successful
// assignment commit.
type EventSink interface {
	EmitIncidentCreated(ctx context.Context, incident *models.Incident)
	EmitIncidentUpdated(ctx context.Context, incident *models.Incident)
}

// Orchestrator assigns detections to incidents.
type Orchestrator struct {
	matcher    IncidentMatcher
	detections DetectionStore
	incidents  IncidentStore
	locker     *redis.Locker
	events     EventSink
	config     Config
	logger     ectologger.Logger
}

// NewOrchestrator creates an assignment orchestrator. A nil locker
// disables cross-instance coordination; only safe when a single worker
// processes assignments.
func NewOrchestrator(
	matcher IncidentMatcher,
	detections DetectionStore,
	incidents IncidentStore,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Orchestrator {
	defaults := DefaultConfig()
	if config.RadiusMeters <= 0 {
		config.RadiusMeters = defaults.RadiusMeters
	}
	if config.ExpiryHours <= 0 {
		config.ExpiryHours = defaults.ExpiryHours
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = defaults.OperationTimeout
	}

	return &Orchestrator{
		matcher:    matcher,
		detections: detections,
		incidents:  incidents,
		locker:     locker,
		config:     config,
		logger:     logger,
	}
}

// WithEvents attaches an event sink. Emission happens after commit and
// is best-effort.
func (o *Orchestrator) WithEvents(sink EventSink) *Orchestrator {
	o.events = sink
	return o
}

// AssignBatch processes unassigned detections sequentially, oldest
// acquisition first, so nearby detections in one batch fold into the same
// incident instead of racing to create duplicates. Failures are collected
// per detection and never abort the batch.
func (o *Orchestrator) AssignBatch(ctx context.Context, batchSize int) (*models.BatchAssignmentResult, error) {
	ctx, span := tracing.StartSpan(ctx, "assignment.Orchestrator.AssignBatch")
	defer span.End()

	if batchSize <= 0 {
		batchSize = o.config.BatchSize
	}

	detections, err := o.detections.ListUnassigned(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].AcquiredAt.Before(detections[j].AcquiredAt)
	})

	result := &models.BatchAssignmentResult{}
	for i := range detections {
		detection := &detections[i]

		created, err := o.Assign(ctx, detection, o.config.RadiusMeters, o.config.ExpiryHours)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"detection_id": detection.ID}).Warn("Failed to assign detection")
			result.Failures = append(result.Failures, models.AssignmentFailure{DetectionID: detection.ID, Reason: err.Error()})
			metrics.AssignmentsTotal.WithLabelValues("failed").Inc()
			continue
		}

		result.Processed++
		if created {
			result.CreatedIncidents++
			metrics.AssignmentsTotal.WithLabelValues("created").Inc()
		} else {
			result.AssignedExisting++
			metrics.AssignmentsTotal.WithLabelValues("joined").Inc()
		}
	}

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"processed": result.Processed,
		"created":   result.CreatedIncidents,
		"joined":    result.AssignedExisting,
		"failures":  len(result.Failures),
	}).Info("Completed assignment batch")

	return result, nil
}

// Assign links a single detection to an incident, creating one when no
// incident matches. Returns true when a new incident was created. The
// detection's 0.1 degree grid cell is locked for the duration so two
// workers cannot both conclude "no existing incident" for neighbors.
func (o *Orchestrator) Assign(ctx context.Context, detection *models.Detection, radiusMeters float64, expiryHours int) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "assignment.Orchestrator.Assign")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.AssignmentDuration.Observe(time.Since(start).Seconds())
	}()

	if o.locker == nil {
		return o.assign(ctx, detection, radiusMeters, expiryHours)
	}

	cell := geo.GridCell(detection.Latitude, detection.Longitude)
	lock, err := o.locker.TryAcquire(ctx, "assign:"+cell, o.config.LockTTL, o.config.LockTimeout)
	if err != nil {
		return false, err
	}
	defer lock.Release(ctx)

	return o.assign(ctx, detection, radiusMeters, expiryHours)
}

func (o *Orchestrator) assign(ctx context.Context, detection *models.Detection, radiusMeters float64, expiryHours int) (bool, error) {
	now := time.Now().UTC()

	incidentID, err := o.matcher.FindIncident(ctx, detection, radiusMeters, expiryHours)
	if err != nil {
		return false, err
	}

	txCtx, tx, err := o.incidents.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if incidentID == "" {
		incident := aggregate.Seed(detection, now)
		created, err := o.incidents.Create(txCtx, incident)
		if err != nil {
			return false, err
		}
		if err := o.detections.AssignIncident(txCtx, detection.ID, created.ID); err != nil {
			return false, err
		}
		if err := tx.Commit(txCtx); err != nil {
			return false, err
		}

		detection.IncidentID = &created.ID
		if o.events != nil {
			o.events.EmitIncidentCreated(ctx, created)
		}
		return true, nil
	}

	incident, err := o.incidents.Get(txCtx, incidentID)
	if err != nil {
		return false, err
	}
	if incident == nil {
		return false, errors.Errorf("matched incident %s no longer exists", incidentID)
	}

	aggregate.Fold(incident, detection, now)

	if err := o.detections.AssignIncident(txCtx, detection.ID, incident.ID); err != nil {
		return false, err
	}

	// Full recompute after the link corrects any drift between the
	// incremental fold and actual membership.
	members, err := o.detections.ListByIncident(txCtx, incident.ID)
	if err != nil {
		return false, err
	}
	if err := aggregate.Recompute(incident, toPointers(members), now); err != nil {
		return false, err
	}

	if err := o.incidents.UpdateAggregates(txCtx, incident); err != nil {
		return false, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return false, err
	}

	detection.IncidentID = &incident.ID
	if o.events != nil {
		o.events.EmitIncidentUpdated(ctx, incident)
	}
	return false, nil
}

func toPointers(detections []models.Detection) []*models.Detection {
	out := make([]*models.Detection, len(detections))
	for i := range detections {
		out[i] = &detections[i]
	}
	return out
}
