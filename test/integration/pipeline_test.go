package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	incidentrepo "github.com/Ramsey-B/firethorn/internal/repositories/incident"
	"github.com/Ramsey-B/firethorn/pkg/aggregate"
	"github.com/Ramsey-B/firethorn/pkg/lifecycle"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

func TestClustering_NearbyDetectionsShareIncident(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Minute)

	// Roughly 1.1 km apart, well inside the 5 km radius
	first := withFRP(makeDetection(37.7749, -122.4194, now.Add(-2*time.Hour)), 12.5)
	second := withFRP(makeDetection(37.7849, -122.4194, now.Add(-time.Hour)), 7.5)
	env.insert(t, first, second)

	result, err := env.assigner.AssignBatch(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.CreatedIncidents)
	assert.Equal(t, 1, result.AssignedExisting)
	assert.Empty(t, result.Failures)

	require.Equal(t, 1, env.countIncidents(t))

	incidents, err := env.incidents.List(ctx, incidentrepo.ListFilter{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	incident := incidents[0]
	assert.Equal(t, models.IncidentStatusActive, incident.Status)
	assert.Equal(t, 2, incident.FireCount)
	require.NotNil(t, incident.FRPTotal)
	assert.InDelta(t, 20.0, *incident.FRPTotal, 0.001)
	require.NotNil(t, incident.FRPAvg)
	assert.InDelta(t, 10.0, *incident.FRPAvg, 0.001)
	// Centroid sits between the two points
	assert.InDelta(t, 37.7799, incident.CentroidLatitude, 0.0005)
	assert.True(t, incident.FirstDetectedAt.Before(incident.LastDetectedAt))

	members, err := env.detections.ListByIncident(ctx, incident.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	// Oldest acquisition first
	assert.Equal(t, first.ID, members[0].ID)
}

func TestClustering_DistantDetectionsSplitIncidents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Minute)

	// San Francisco and Sacramento, ~120 km apart
	env.insert(t,
		makeDetection(37.7749, -122.4194, now.Add(-time.Hour)),
		makeDetection(38.5816, -121.4944, now.Add(-time.Hour)),
	)

	result, err := env.assigner.AssignBatch(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.CreatedIncidents)
	assert.Equal(t, 0, result.AssignedExisting)
	assert.Equal(t, 2, env.countIncidents(t))
}

func TestIngest_DuplicateNaturalKeysSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Minute)
	first := makeDetection(37.7749, -122.4194, now.Add(-time.Hour))
	second := makeDetection(38.5816, -121.4944, now.Add(-time.Hour))

	inserted, err := env.detections.BulkInsert(ctx, []*models.Detection{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Same observations again under fresh ids: natural keys collide
	dupA := makeDetection(37.7749, -122.4194, now.Add(-time.Hour))
	dupB := makeDetection(38.5816, -121.4944, now.Add(-time.Hour))

	inserted, err = env.detections.BulkInsert(ctx, []*models.Detection{dupA, dupB})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	assert.Equal(t, 2, env.countDetections(t))
}

func TestLifecycle_StaleIncidentEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	svc := lifecycle.NewService(env.incidents, env.detections, lifecycle.Config{}, logger)

	// One incident last active 25 h ago, one active 1 h ago
	stale := aggregate.Seed(makeDetection(40.0, -120.0, now.Add(-25*time.Hour)), now.Add(-25*time.Hour))
	fresh := aggregate.Seed(makeDetection(41.0, -119.0, now.Add(-time.Hour)), now.Add(-time.Hour))

	_, err := env.incidents.Create(ctx, stale)
	require.NoError(t, err)
	_, err = env.incidents.Create(ctx, fresh)
	require.NoError(t, err)

	ended, err := svc.EndStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	got, err := env.incidents.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.IncidentStatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)

	got, err = env.incidents.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.IncidentStatusActive, got.Status)
}

func TestLifecycle_ExpiredEndedIncidentPurgedWithDetections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	svc := lifecycle.NewService(env.incidents, env.detections, lifecycle.Config{}, logger)

	// Expired: ended 4 days ago, past the 3 day retention
	expiredDetection := makeDetection(40.0, -120.0, now.Add(-5*24*time.Hour))
	expired := aggregate.Seed(expiredDetection, now.Add(-5*24*time.Hour))
	_, err := env.incidents.Create(ctx, expired)
	require.NoError(t, err)
	env.insert(t, expiredDetection)
	require.NoError(t, env.detections.AssignIncident(ctx, expiredDetection.ID, expired.ID))
	require.NoError(t, env.incidents.MarkEnded(ctx, expired.ID, now.Add(-4*24*time.Hour)))

	// Recent: ended yesterday, inside retention
	recent := aggregate.Seed(makeDetection(41.0, -119.0, now.Add(-2*24*time.Hour)), now.Add(-2*24*time.Hour))
	_, err = env.incidents.Create(ctx, recent)
	require.NoError(t, err)
	require.NoError(t, env.incidents.MarkEnded(ctx, recent.ID, now.Add(-24*time.Hour)))

	incidents, detections, err := svc.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, incidents)
	assert.Equal(t, 1, detections)

	got, err := env.incidents.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = env.incidents.Get(ctx, recent.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.Equal(t, 0, env.countDetections(t))
}
