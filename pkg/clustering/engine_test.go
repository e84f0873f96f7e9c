package clustering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/pkg/geo"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

type fakeFinder struct {
	candidates []models.Detection
	err        error

	gotBox   geo.BoundingBox
	gotSince time.Time
	gotUntil time.Time
}

func (f *fakeFinder) FindAssignedInWindow(ctx context.Context, box geo.BoundingBox, since, until time.Time) ([]models.Detection, error) {
	f.gotBox = box
	f.gotSince = since
	f.gotUntil = until
	if f.err != nil {
		return nil, f.err
	}

	// Behave like the store: only return candidates inside the box
	var inBox []models.Detection
	for _, c := range f.candidates {
		if box.Contains(c.Latitude, c.Longitude) && !c.AcquiredAt.Before(since) && !c.AcquiredAt.After(until) {
			inBox = append(inBox, c)
		}
	}
	return inBox, nil
}

func newTestEngine(finder *fakeFinder) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(finder, DefaultConfig(), logger)
}

func assigned(id string, lat, lng float64, acquiredAt time.Time, incidentID string) models.Detection {
	return models.Detection{
		ID:         id,
		Latitude:   lat,
		Longitude:  lng,
		AcquiredAt: acquiredAt,
		IncidentID: &incidentID,
	}
}

func TestFindIncidentMatchesNearbyCandidate(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	finder := &fakeFinder{candidates: []models.Detection{
		assigned("d1", 37.7749, -122.4194, now.Add(-time.Hour), "inc-1"),
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d2", Latitude: 37.7750, Longitude: -122.4195, AcquiredAt: now}

	incidentID, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	require.NoError(t, err)
	assert.Equal(t, "inc-1", incidentID)
}

func TestFindIncidentNoMatchOutsideRadius(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	// ~15km away, outside the 5km radius
	finder := &fakeFinder{candidates: []models.Detection{
		assigned("d1", 37.9100, -122.4194, now.Add(-time.Hour), "inc-1"),
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d2", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now}

	incidentID, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	require.NoError(t, err)
	assert.Empty(t, incidentID)
}

func TestFindIncidentNoMatchOutsideTimeWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	// Same spot, but acquired 80 hours ago
	finder := &fakeFinder{candidates: []models.Detection{
		assigned("d1", 37.7749, -122.4194, now.Add(-80*time.Hour), "inc-1"),
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d2", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now}

	incidentID, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	require.NoError(t, err)
	assert.Empty(t, incidentID)
}

func TestFindIncidentInsideBoxButOutsideRadius(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	// A corner of the bounding box is further than the radius: this
	// candidate survives the prefilter but must fail the distance check.
	corner := geo.BoxAround(37.7749, -122.4194, 5000)
	finder := &fakeFinder{candidates: []models.Detection{
		assigned("d1", corner.MaxLatitude, corner.MaxLongitude, now.Add(-time.Hour), "inc-1"),
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d2", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now}

	incidentID, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	require.NoError(t, err)
	assert.Empty(t, incidentID)
}

func TestFindIncidentPrefersNearestIncident(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	finder := &fakeFinder{candidates: []models.Detection{
		assigned("d1", 37.7900, -122.4194, now.Add(-time.Hour), "inc-far"),
		assigned("d2", 37.7755, -122.4194, now.Add(-time.Hour), "inc-near"),
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d3", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now}

	incidentID, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	require.NoError(t, err)
	assert.Equal(t, "inc-near", incidentID)
}

func TestFindIncidentUsesDetectionTimeAsReference(t *testing.T) {
	acquired := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	finder := &fakeFinder{}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d1", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: acquired}

	_, err := engine.FindIncident(context.Background(), detection, 5000, 48)
	require.NoError(t, err)
	assert.Equal(t, acquired, finder.gotUntil)
	assert.Equal(t, acquired.Add(-48*time.Hour), finder.gotSince)
}

func TestFindIncidentAppliesDefaults(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	finder := &fakeFinder{candidates: []models.Detection{
		assigned("d1", 37.7749, -122.4194, now.Add(-60*time.Hour), "inc-1"),
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d2", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now}

	// Zero parameters fall back to 5000m / 72h, so the 60h-old candidate matches
	incidentID, err := engine.FindIncident(context.Background(), detection, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "inc-1", incidentID)
}

func TestFindIncidentSkipsUnassignedCandidates(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	finder := &fakeFinder{candidates: []models.Detection{
		{ID: "d1", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now.Add(-time.Hour)},
	}}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d2", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: now}

	incidentID, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	require.NoError(t, err)
	assert.Empty(t, incidentID)
}

func TestFindIncidentPropagatesStoreError(t *testing.T) {
	finder := &fakeFinder{err: errors.New("store down")}
	engine := newTestEngine(finder)

	detection := &models.Detection{ID: "d1", Latitude: 37.7749, Longitude: -122.4194, AcquiredAt: time.Now().UTC()}

	_, err := engine.FindIncident(context.Background(), detection, 5000, 72)
	assert.Error(t, err)
}
