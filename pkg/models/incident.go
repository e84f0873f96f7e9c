package models

import (
	"time"
)

// Incident lifecycle states
const (
	IncidentStatusActive = "active"
	IncidentStatusEnded  = "ended"
)

// Incident is a cluster of detections treated as a single fire event.
// Aggregates are derived entirely from the member detections.
type Incident struct {
	ID                string     `json:"id" db:"id"`
	Status            string     `json:"status" db:"status"`
	CentroidLatitude  float64    `json:"centroid_latitude" db:"centroid_latitude"`
	CentroidLongitude float64    `json:"centroid_longitude" db:"centroid_longitude"`
	MinLatitude       float64    `json:"min_latitude" db:"min_latitude"`
	MaxLatitude       float64    `json:"max_latitude" db:"max_latitude"`
	MinLongitude      float64    `json:"min_longitude" db:"min_longitude"`
	MaxLongitude      float64    `json:"max_longitude" db:"max_longitude"`
	FireCount         int        `json:"fire_count" db:"fire_count"`
	FRPMin            *float64   `json:"frp_min,omitempty" db:"frp_min"`
	FRPMax            *float64   `json:"frp_max,omitempty" db:"frp_max"`
	FRPTotal          *float64   `json:"frp_total,omitempty" db:"frp_total"`
	FRPAvg            *float64   `json:"frp_avg,omitempty" db:"frp_avg"`
	FirstDetectedAt   time.Time  `json:"first_detected_at" db:"first_detected_at"`
	LastDetectedAt    time.Time  `json:"last_detected_at" db:"last_detected_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the incident can still accept detections.
func (i *Incident) IsActive() bool {
	return i.Status == IncidentStatusActive
}
