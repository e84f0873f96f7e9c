// Package events handles event emission for incident lifecycle changes.
// Emission is best-effort: a downstream notification layer missing an
// event must never fail the pipeline that produced it.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/kafka"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes incident lifecycle events. A nil producer turns the
// emitter into a no-op, for deployments without Kafka.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitIncidentCreated emits an incident.created event
func (e *Emitter) EmitIncidentCreated(ctx context.Context, incident *models.Incident) {
	e.emit(ctx, "incident.created", incident)
}

// EmitIncidentUpdated emits an incident.updated event after a detection
// folds into an existing incident
func (e *Emitter) EmitIncidentUpdated(ctx context.Context, incident *models.Incident) {
	e.emit(ctx, "incident.updated", incident)
}

// EmitIncidentEnded emits an incident.ended event
func (e *Emitter) EmitIncidentEnded(ctx context.Context, incident *models.Incident) {
	e.emit(ctx, "incident.ended", incident)
}

// EmitIncidentDeleted emits an incident.deleted event
func (e *Emitter) EmitIncidentDeleted(ctx context.Context, incidentID string) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitIncidentDeleted")
	defer span.End()

	event := &kafka.IncidentEvent{
		EventType:  "incident.deleted",
		IncidentID: incidentID,
	}
	if err := e.producer.PublishIncidentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit incident.deleted event")
	}
}

// EmitDetectionsIngested emits a detections.ingested event summarizing
// one ingest batch
func (e *Emitter) EmitDetectionsIngested(ctx context.Context, received, inserted, rejected int) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDetectionsIngested")
	defer span.End()

	data, err := json.Marshal(map[string]int{
		"received": received,
		"inserted": inserted,
		"rejected": rejected,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to marshal detections.ingested event")
		return
	}

	event := &kafka.IncidentEvent{
		EventType: "detections.ingested",
		Data:      data,
	}
	if err := e.producer.PublishIncidentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit detections.ingested event")
	}
}

func (e *Emitter) emit(ctx context.Context, eventType string, incident *models.Incident) {
	if e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emit")
	defer span.End()

	data, err := json.Marshal(incident)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warnf("Failed to marshal incident for %s event", eventType)
		return
	}

	event := &kafka.IncidentEvent{
		EventType:  eventType,
		IncidentID: incident.ID,
		Status:     incident.Status,
		FireCount:  incident.FireCount,
		Data:       data,
	}

	if err := e.producer.PublishIncidentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warnf("Failed to emit %s event", eventType)
	}
}
