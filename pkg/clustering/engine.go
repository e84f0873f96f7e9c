// Package clustering decides which existing incident, if any, a
// detection belongs to. Candidates are prefiltered with a bounding box
// and a time window, then checked against the true great-circle distance.
package clustering

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/geo"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// EngineConfig holds the default clustering parameters. Callers may
// override both per call.
type EngineConfig struct {
	// RadiusMeters is the default maximum distance between a detection
	// and an incident member for them to cluster
	RadiusMeters float64

	// ExpiryHours is the default lookback window for candidate members
	ExpiryHours int
}

// DefaultConfig returns the default clustering configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		RadiusMeters: 5000,
		ExpiryHours:  72,
	}
}

// CandidateFinder returns incident-linked detections inside the bounding
// box acquired within [since, until].
type CandidateFinder interface {
	FindAssignedInWindow(ctx context.Context, box geo.BoundingBox, since, until time.Time) ([]models.Detection, error)
}

// Engine finds the incident a detection should join.
type Engine struct {
	candidates CandidateFinder
	config     EngineConfig
	logger     ectologger.Logger
}

// NewEngine creates a clustering engine. Zero config fields fall back to
// the defaults.
func NewEngine(candidates CandidateFinder, config EngineConfig, logger ectologger.Logger) *Engine {
	defaults := DefaultConfig()
	if config.RadiusMeters <= 0 {
		config.RadiusMeters = defaults.RadiusMeters
	}
	if config.ExpiryHours <= 0 {
		config.ExpiryHours = defaults.ExpiryHours
	}

	return &Engine{
		candidates: candidates,
		config:     config,
		logger:     logger,
	}
}

// FindIncident returns the id of the incident whose member detection is
// nearest to the given detection within radiusMeters and expiryHours, or
// empty string when no incident matches. Zero or negative parameters fall
// back to the engine defaults.
func (e *Engine) FindIncident(ctx context.Context, detection *models.Detection, radiusMeters float64, expiryHours int) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "clustering.Engine.FindIncident")
	defer span.End()

	if radiusMeters <= 0 {
		radiusMeters = e.config.RadiusMeters
	}
	if expiryHours <= 0 {
		expiryHours = e.config.ExpiryHours
	}

	reference := detection.ReferenceTime()
	since := reference.Add(-time.Duration(expiryHours) * time.Hour)
	box := geo.BoxAround(detection.Latitude, detection.Longitude, radiusMeters)

	candidates, err := e.candidates.FindAssignedInWindow(ctx, box, since, reference)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to load clustering candidates")
		return "", err
	}

	// Nearest member wins. Any in-range candidate would satisfy the
	// contract, but picking the closest keeps the choice stable when two
	// incidents are both in range.
	bestID := ""
	bestDistance := 0.0
	for i := range candidates {
		c := &candidates[i]
		if c.IncidentID == nil {
			continue
		}

		distance := geo.HaversineMeters(detection.Latitude, detection.Longitude, c.Latitude, c.Longitude)
		if distance > radiusMeters {
			continue
		}
		if bestID == "" || distance < bestDistance {
			bestID = *c.IncidentID
			bestDistance = distance
		}
	}

	if bestID != "" {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"detection_id": detection.ID,
			"incident_id":  bestID,
			"distance_m":   bestDistance,
		}).Debug("Matched detection to incident")
	}

	return bestID, nil
}
