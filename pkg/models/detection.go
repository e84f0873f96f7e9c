package models

import (
	"time"
)

// Confidence classes reported by the FIRMS feed
const (
	ConfidenceLow     = "l"
	ConfidenceNominal = "n"
	ConfidenceHigh    = "h"
)

// Detection is a single satellite fire-pixel observation.
// Attributes are immutable after insert except IncidentID, which is set
// exactly once by the assignment orchestrator.
type Detection struct {
	ID         string     `json:"id" db:"id"`
	NaturalKey string     `json:"natural_key" db:"natural_key"`
	Latitude   float64    `json:"latitude" db:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64    `json:"longitude" db:"longitude" validate:"gte=-180,lte=180"`
	AcquiredAt time.Time  `json:"acquired_at" db:"acquired_at"`
	Confidence string     `json:"confidence" db:"confidence"`
	FRP        *float64   `json:"frp,omitempty" db:"frp"`
	BrightTI4  float64    `json:"bright_ti4" db:"bright_ti4"`
	BrightTI5  float64    `json:"bright_ti5" db:"bright_ti5"`
	Scan       float64    `json:"scan" db:"scan"`
	Track      float64    `json:"track" db:"track"`
	Satellite  string     `json:"satellite" db:"satellite"`
	Instrument string     `json:"instrument" db:"instrument"`
	Version    string     `json:"version" db:"version"`
	DayNight   string     `json:"daynight" db:"daynight"`
	IncidentID *string    `json:"incident_id,omitempty" db:"incident_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ReferenceTime returns the detection's acquisition time, falling back to
// the current time for detections built only in memory.
func (d *Detection) ReferenceTime() time.Time {
	if d.AcquiredAt.IsZero() {
		return time.Now().UTC()
	}
	return d.AcquiredAt
}

// RawFeedRow is a single row from the FIRMS feed. All numeric fields
// arrive as strings; the ingest parser validates and converts them.
type RawFeedRow struct {
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	AcqDate    string `json:"acq_date"`
	AcqTime    string `json:"acq_time"`
	Satellite  string `json:"satellite"`
	Instrument string `json:"instrument"`
	Version    string `json:"version"`
	Confidence string `json:"confidence"`
	DayNight   string `json:"daynight"`
	BrightTI4  string `json:"bright_ti4"`
	BrightTI5  string `json:"bright_ti5"`
	FRP        string `json:"frp"`
	Scan       string `json:"scan"`
	Track      string `json:"track"`
}

// RowFailure records a single rejected feed row. Row numbering is
// zero-based within the batch.
type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// IngestResult reports the outcome of a batch ingest: rows actually
// inserted (duplicates excluded) plus per-row failures.
type IngestResult struct {
	Received int          `json:"received"`
	Inserted int          `json:"inserted"`
	Failures []RowFailure `json:"failures,omitempty"`
}
