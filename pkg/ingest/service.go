// Package ingest converts raw satellite feed rows into detection records
// and writes them to the detection store with natural-key dedup.
package ingest

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/metrics"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// DetectionInserter is the slice of the detection repository the ingest
// service needs.
type DetectionInserter interface {
	BulkInsert(ctx context.Context, detections []*models.Detection) (int, error)
}

// EventSink receives a summary event after each ingested batch.
type EventSink interface {
	EmitDetectionsIngested(ctx context.Context, received, inserted, rejected int)
}

// Service parses and stores batches of raw feed rows.
type Service struct {
	detections DetectionInserter
	events     EventSink
	logger     ectologger.Logger
}

// NewService creates a new ingest service.
func NewService(detections DetectionInserter, logger ectologger.Logger) *Service {
	return &Service{
		detections: detections,
		logger:     logger,
	}
}

// WithEvents attaches an event sink. Emission is best-effort and never
// fails the ingest.
func (s *Service) WithEvents(sink EventSink) *Service {
	s.events = sink
	return s
}

// Ingest parses every row in the batch, collecting per-row failures
// instead of aborting, then bulk inserts the parsed detections. Duplicate
// natural keys are silently skipped by the store, so the inserted count
// can be lower than the parsed count on re-ingestion.
func (s *Service) Ingest(ctx context.Context, rows []models.RawFeedRow) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "IngestService.Ingest")
	defer span.End()

	now := time.Now().UTC()
	result := &models.IngestResult{Received: len(rows)}

	detections := make([]*models.Detection, 0, len(rows))
	for i, row := range rows {
		detection, err := ParseRow(row, now)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Skipping malformed feed row %d", i)
			result.Failures = append(result.Failures, models.RowFailure{Row: i, Reason: err.Error()})
			metrics.DetectionsRejected.Inc()
			continue
		}
		detections = append(detections, detection)
	}

	if len(detections) == 0 {
		s.logger.WithContext(ctx).Warnf("No valid detections in batch of %d rows", len(rows))
		if s.events != nil {
			s.events.EmitDetectionsIngested(ctx, result.Received, 0, len(result.Failures))
		}
		return result, nil
	}

	inserted, err := s.detections.BulkInsert(ctx, detections)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to bulk insert detections")
		return nil, err
	}

	result.Inserted = inserted
	metrics.DetectionsIngested.Add(float64(inserted))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"received":   result.Received,
		"parsed":     len(detections),
		"inserted":   inserted,
		"duplicates": len(detections) - inserted,
		"failures":   len(result.Failures),
	}).Info("Ingested detection batch")

	if s.events != nil {
		s.events.EmitDetectionsIngested(ctx, result.Received, inserted, len(result.Failures))
	}

	return result, nil
}
