// Package aggregate holds the pure math for incident records: seeding an
// incident from its first detection, folding an additional detection into
// the running aggregates, and recomputing everything from the full member
// set. All functions operate on in-memory values; persistence belongs to
// the callers.
package aggregate

import (
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/firethorn/pkg/models"
)

// ErrNoMembers is returned when a recompute is requested for an incident
// with no linked detections.
var ErrNoMembers = errors.New("incident has no member detections")

// Seed builds a brand-new active incident from its first detection. The
// centroid and bounding box collapse to the detection's point and all FRP
// stats derive from the single reading.
func Seed(detection *models.Detection, now time.Time) *models.Incident {
	incident := &models.Incident{
		Status:            models.IncidentStatusActive,
		CentroidLatitude:  detection.Latitude,
		CentroidLongitude: detection.Longitude,
		MinLatitude:       detection.Latitude,
		MaxLatitude:       detection.Latitude,
		MinLongitude:      detection.Longitude,
		MaxLongitude:      detection.Longitude,
		FireCount:         1,
		FirstDetectedAt:   detection.ReferenceTime(),
		LastDetectedAt:    detection.ReferenceTime(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if detection.FRP != nil {
		frp := *detection.FRP
		incident.FRPMin = ptr(frp)
		incident.FRPMax = ptr(frp)
		incident.FRPTotal = ptr(frp)
		incident.FRPAvg = ptr(frp)
	}

	return incident
}

// Fold incrementally updates the incident's aggregates with one new
// detection. The new centroid is the count-weighted average of the old
// centroid and the new point; the bounding box only ever expands.
func Fold(incident *models.Incident, detection *models.Detection, now time.Time) {
	oldCount := float64(incident.FireCount)
	newCount := oldCount + 1

	incident.CentroidLatitude = (incident.CentroidLatitude*oldCount + detection.Latitude) / newCount
	incident.CentroidLongitude = (incident.CentroidLongitude*oldCount + detection.Longitude) / newCount

	incident.MinLatitude = min(incident.MinLatitude, detection.Latitude)
	incident.MaxLatitude = max(incident.MaxLatitude, detection.Latitude)
	incident.MinLongitude = min(incident.MinLongitude, detection.Longitude)
	incident.MaxLongitude = max(incident.MaxLongitude, detection.Longitude)

	incident.FireCount++

	ref := detection.ReferenceTime()
	if ref.After(incident.LastDetectedAt) {
		incident.LastDetectedAt = ref
	}
	if ref.Before(incident.FirstDetectedAt) {
		incident.FirstDetectedAt = ref
	}

	if detection.FRP != nil {
		frp := *detection.FRP
		if incident.FRPMin == nil || frp < *incident.FRPMin {
			incident.FRPMin = ptr(frp)
		}
		if incident.FRPMax == nil || frp > *incident.FRPMax {
			incident.FRPMax = ptr(frp)
		}
		total := frp
		if incident.FRPTotal != nil {
			total += *incident.FRPTotal
		}
		incident.FRPTotal = ptr(total)
		incident.FRPAvg = ptr(total / float64(incident.FireCount))
	} else if incident.FRPTotal != nil {
		// A reading without FRP still grows the member count, so the
		// average is diluted even though the total holds steady.
		incident.FRPAvg = ptr(*incident.FRPTotal / float64(incident.FireCount))
	}

	incident.UpdatedAt = now
}

// Recompute rebuilds the centroid, bounding box, timestamps, and FRP
// stats from the full member set, correcting any drift accumulated by
// incremental folds. Membership and status are left untouched.
func Recompute(incident *models.Incident, members []*models.Detection, now time.Time) error {
	if len(members) == 0 {
		return ErrNoMembers
	}

	first := members[0]
	var (
		sumLat = 0.0
		sumLng = 0.0
		minLat = first.Latitude
		maxLat = first.Latitude
		minLng = first.Longitude
		maxLng = first.Longitude

		firstAt = first.ReferenceTime()
		lastAt  = first.ReferenceTime()

		frpMin   *float64
		frpMax   *float64
		frpTotal = 0.0
		frpCount = 0
	)

	for _, d := range members {
		sumLat += d.Latitude
		sumLng += d.Longitude

		minLat = min(minLat, d.Latitude)
		maxLat = max(maxLat, d.Latitude)
		minLng = min(minLng, d.Longitude)
		maxLng = max(maxLng, d.Longitude)

		ref := d.ReferenceTime()
		if ref.Before(firstAt) {
			firstAt = ref
		}
		if ref.After(lastAt) {
			lastAt = ref
		}

		if d.FRP != nil {
			frp := *d.FRP
			if frpMin == nil || frp < *frpMin {
				frpMin = ptr(frp)
			}
			if frpMax == nil || frp > *frpMax {
				frpMax = ptr(frp)
			}
			frpTotal += frp
			frpCount++
		}
	}

	count := float64(len(members))
	incident.CentroidLatitude = sumLat / count
	incident.CentroidLongitude = sumLng / count
	incident.MinLatitude = minLat
	incident.MaxLatitude = maxLat
	incident.MinLongitude = minLng
	incident.MaxLongitude = maxLng
	incident.FireCount = len(members)
	incident.FirstDetectedAt = firstAt
	incident.LastDetectedAt = lastAt

	incident.FRPMin = frpMin
	incident.FRPMax = frpMax
	if frpCount > 0 {
		incident.FRPTotal = ptr(frpTotal)
		incident.FRPAvg = ptr(frpTotal / float64(len(members)))
	} else {
		incident.FRPTotal = nil
		incident.FRPAvg = nil
	}

	incident.UpdatedAt = now
	return nil
}

func ptr(v float64) *float64 {
	return &v
}
