package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/pkg/models"
)

type fakeIncidentStore struct {
	stale   []models.Incident
	expired []models.Incident

	listStaleCutoff   time.Time
	listExpiredCutoff time.Time

	ended       []string
	endErr      map[string]error
	deleted     []string
	cascadeSize int
	deleteErr   map[string]error
}

func (f *fakeIncidentStore) ListStaleActive(ctx context.Context, cutoff time.Time) ([]models.Incident, error) {
	f.listStaleCutoff = cutoff
	return f.stale, nil
}

func (f *fakeIncidentStore) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	if err := f.endErr[id]; err != nil {
		return err
	}
	f.ended = append(f.ended, id)
	return nil
}

func (f *fakeIncidentStore) ListExpiredEnded(ctx context.Context, cutoff time.Time) ([]models.Incident, error) {
	f.listExpiredCutoff = cutoff
	return f.expired, nil
}

func (f *fakeIncidentStore) DeleteCascade(ctx context.Context, id string) (int, error) {
	if err := f.deleteErr[id]; err != nil {
		return 0, err
	}
	f.deleted = append(f.deleted, id)
	return f.cascadeSize, nil
}

type fakeDetectionStore struct {
	orphans   int
	gotCutoff time.Time
}

func (f *fakeDetectionStore) DeleteUnassignedOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.gotCutoff = cutoff
	return f.orphans, nil
}

func newTestService(incidents *fakeIncidentStore, detections *fakeDetectionStore) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(incidents, detections, DefaultConfig(), logger)
}

func TestEndStale(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	store := &fakeIncidentStore{stale: []models.Incident{
		{ID: "inc-1"},
		{ID: "inc-2"},
	}}
	svc := newTestService(store, &fakeDetectionStore{})

	ended, err := svc.EndStale(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, ended)
	assert.Equal(t, []string{"inc-1", "inc-2"}, store.ended)

	// Default threshold is 24 hours of inactivity
	assert.Equal(t, now.Add(-24*time.Hour), store.listStaleCutoff)
}

func TestEndStaleContinuesPastFailures(t *testing.T) {
	now := time.Now().UTC()

	store := &fakeIncidentStore{
		stale:  []models.Incident{{ID: "inc-1"}, {ID: "inc-2"}, {ID: "inc-3"}},
		endErr: map[string]error{"inc-2": errors.New("conflict")},
	}
	svc := newTestService(store, &fakeDetectionStore{})

	ended, err := svc.EndStale(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, ended)
	assert.Equal(t, []string{"inc-1", "inc-3"}, store.ended)
}

func TestPurgeExpired(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	store := &fakeIncidentStore{
		expired:     []models.Incident{{ID: "inc-1"}, {ID: "inc-2"}},
		cascadeSize: 5,
	}
	detections := &fakeDetectionStore{orphans: 3}
	svc := newTestService(store, detections)

	incidents, deleted, err := svc.PurgeExpired(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, incidents)
	assert.Equal(t, 13, deleted) // 2 cascades of 5 plus 3 orphans
	assert.Equal(t, []string{"inc-1", "inc-2"}, store.deleted)

	// Default retention is 3 days past ended_at, 14 days for orphans
	assert.Equal(t, now.Add(-3*24*time.Hour), store.listExpiredCutoff)
	assert.Equal(t, now.Add(-14*24*time.Hour), detections.gotCutoff)
}

func TestPurgeExpiredContinuesPastFailures(t *testing.T) {
	now := time.Now().UTC()

	store := &fakeIncidentStore{
		expired:     []models.Incident{{ID: "inc-1"}, {ID: "inc-2"}},
		cascadeSize: 2,
		deleteErr:   map[string]error{"inc-1": errors.New("deadlock")},
	}
	svc := newTestService(store, &fakeDetectionStore{})

	incidents, deleted, err := svc.PurgeExpired(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, incidents)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"inc-2"}, store.deleted)
}
