package assignment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/internal/database"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeMatcher struct {
	matches map[string]string
	err     error
}

func (m *fakeMatcher) FindIncident(_ context.Context, detection *models.Detection, _ float64, _ int) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.matches[detection.ID], nil
}

type fakeDetectionStore struct {
	unassigned  []models.Detection
	members     map[string][]models.Detection
	assigned    []string // detection ids in assignment order
	assignErr   map[string]error
	lastLinkIDs map[string]string // detection id -> incident id
}

func newFakeDetectionStore() *fakeDetectionStore {
	return &fakeDetectionStore{
		members:     map[string][]models.Detection{},
		assignErr:   map[string]error{},
		lastLinkIDs: map[string]string{},
	}
}

func (s *fakeDetectionStore) ListUnassigned(_ context.Context, limit int) ([]models.Detection, error) {
	if limit < len(s.unassigned) {
		return s.unassigned[:limit], nil
	}
	return s.unassigned, nil
}

func (s *fakeDetectionStore) AssignIncident(_ context.Context, detectionID, incidentID string) error {
	if err := s.assignErr[detectionID]; err != nil {
		return err
	}
	s.assigned = append(s.assigned, detectionID)
	s.lastLinkIDs[detectionID] = incidentID
	return nil
}

func (s *fakeDetectionStore) ListByIncident(_ context.Context, incidentID string) ([]models.Detection, error) {
	return s.members[incidentID], nil
}

type fakeIncidentStore struct {
	incidents map[string]*models.Incident
	created   []*models.Incident
	updated   []*models.Incident
}

func newFakeIncidentStore() *fakeIncidentStore {
	return &fakeIncidentStore{incidents: map[string]*models.Incident{}}
}

func (s *fakeIncidentStore) Create(_ context.Context, incident *models.Incident) (*models.Incident, error) {
	if incident.ID == "" {
		incident.ID = "incident-" + time.Now().Format("150405.000000000")
	}
	s.incidents[incident.ID] = incident
	s.created = append(s.created, incident)
	return incident, nil
}

func (s *fakeIncidentStore) Get(_ context.Context, id string) (*models.Incident, error) {
	return s.incidents[id], nil
}

func (s *fakeIncidentStore) UpdateAggregates(_ context.Context, incident *models.Incident) error {
	s.incidents[incident.ID] = incident
	s.updated = append(s.updated, incident)
	return nil
}

func (s *fakeIncidentStore) DB() database.DB {
	return &fakeDB{}
}

// fakeDB satisfies database.DB with a transaction that tracks commits.
type fakeDB struct{}

func (d *fakeDB) BeginTxx(context.Context, *sql.TxOptions) (*sqlx.Tx, error) { return nil, nil }
func (d *fakeDB) Close() error                                               { return nil }
func (d *fakeDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (d *fakeDB) GetContext(context.Context, any, string, ...any) error { return nil }
func (d *fakeDB) NamedExecContext(context.Context, string, any) (sql.Result, error) {
	return nil, nil
}
func (d *fakeDB) PingContext(context.Context) error                        { return nil }
func (d *fakeDB) SelectContext(context.Context, any, string, ...any) error { return nil }
func (d *fakeDB) SetConnMaxLifetime(time.Duration)                         {}
func (d *fakeDB) SetMaxIdleConns(int)                                      {}
func (d *fakeDB) SetMaxOpenConns(int)                                      {}
func (d *fakeDB) Unsafe() *sqlx.DB                                         { return nil }
func (d *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool                        { return !t.committed && !t.rolledBack }
func (t *fakeTx) Commit(context.Context) error        { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error      { t.rolledBack = true; return nil }
func (t *fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(context.Context, any, string, ...any) error    { return nil }
func (t *fakeTx) SelectContext(context.Context, any, string, ...any) error { return nil }

type fakeEvents struct {
	created []string
	updated []string
}

func (e *fakeEvents) EmitIncidentCreated(_ context.Context, incident *models.Incident) {
	e.created = append(e.created, incident.ID)
}

func (e *fakeEvents) EmitIncidentUpdated(_ context.Context, incident *models.Incident) {
	e.updated = append(e.updated, incident.ID)
}

func frp(v float64) *float64 { return &v }

func makeDetection(id string, lat, lng float64, acquired time.Time) models.Detection {
	return models.Detection{
		ID:         id,
		Latitude:   lat,
		Longitude:  lng,
		AcquiredAt: acquired,
		Confidence: models.ConfidenceNominal,
		FRP:        frp(10),
		Satellite:  "N",
	}
}

func TestAssign_NoMatchCreatesIncident(t *testing.T) {
	detections := newFakeDetectionStore()
	incidents := newFakeIncidentStore()
	events := &fakeEvents{}

	o := NewOrchestrator(&fakeMatcher{}, detections, incidents, nil, Config{}, testLogger()).WithEvents(events)

	detection := makeDetection("d1", 37.0, -120.0, time.Now().UTC())
	created, err := o.Assign(context.Background(), &detection, 5000, 72)
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, incidents.created, 1)
	incident := incidents.created[0]
	assert.Equal(t, models.IncidentStatusActive, incident.Status)
	assert.Equal(t, 1, incident.FireCount)

	require.NotNil(t, detection.IncidentID)
	assert.Equal(t, incident.ID, *detection.IncidentID)
	assert.Equal(t, incident.ID, detections.lastLinkIDs["d1"])
	assert.Equal(t, []string{incident.ID}, events.created)
	assert.Empty(t, events.updated)
}

func TestAssign_MatchFoldsAndRecomputes(t *testing.T) {
	now := time.Now().UTC()

	detections := newFakeDetectionStore()
	incidents := newFakeIncidentStore()
	events := &fakeEvents{}

	first := makeDetection("d1", 37.0, -120.0, now.Add(-time.Hour))
	second := makeDetection("d2", 37.01, -120.0, now)

	existing := &models.Incident{
		ID:                "inc-1",
		Status:            models.IncidentStatusActive,
		CentroidLatitude:  37.0,
		CentroidLongitude: -120.0,
		MinLatitude:       37.0,
		MaxLatitude:       37.0,
		MinLongitude:      -120.0,
		MaxLongitude:      -120.0,
		FireCount:         1,
		FirstDetectedAt:   first.AcquiredAt,
		LastDetectedAt:    first.AcquiredAt,
	}
	incidents.incidents[existing.ID] = existing
	detections.members[existing.ID] = []models.Detection{first, second}

	matcher := &fakeMatcher{matches: map[string]string{"d2": existing.ID}}
	o := NewOrchestrator(matcher, detections, incidents, nil, Config{}, testLogger()).WithEvents(events)

	created, err := o.Assign(context.Background(), &second, 5000, 72)
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, incidents.updated, 1)
	updated := incidents.updated[0]
	assert.Equal(t, 2, updated.FireCount)
	assert.InDelta(t, 37.005, updated.CentroidLatitude, 1e-9)
	assert.Equal(t, now, updated.LastDetectedAt)

	require.NotNil(t, second.IncidentID)
	assert.Equal(t, existing.ID, *second.IncidentID)
	assert.Equal(t, []string{existing.ID}, events.updated)
	assert.Empty(t, events.created)
}

func TestAssign_MatchedIncidentMissing(t *testing.T) {
	detections := newFakeDetectionStore()
	incidents := newFakeIncidentStore()

	matcher := &fakeMatcher{matches: map[string]string{"d1": "gone"}}
	o := NewOrchestrator(matcher, detections, incidents, nil, Config{}, testLogger())

	detection := makeDetection("d1", 37.0, -120.0, time.Now().UTC())
	_, err := o.Assign(context.Background(), &detection, 5000, 72)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
}

func TestAssignBatch_OldestFirstWithPartialFailures(t *testing.T) {
	now := time.Now().UTC()

	detections := newFakeDetectionStore()
	incidents := newFakeIncidentStore()

	// Listed newest first on purpose; the batch must process oldest first.
	detections.unassigned = []models.Detection{
		makeDetection("d3", 39.0, -122.0, now),
		makeDetection("d1", 37.0, -120.0, now.Add(-2*time.Hour)),
		makeDetection("d2", 38.0, -121.0, now.Add(-time.Hour)),
	}
	detections.assignErr["d2"] = errors.New("link conflict")

	o := NewOrchestrator(&fakeMatcher{}, detections, incidents, nil, Config{}, testLogger())

	result, err := o.AssignBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.CreatedIncidents)
	assert.Equal(t, 0, result.AssignedExisting)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "d2", result.Failures[0].DetectionID)
	assert.Contains(t, result.Failures[0].Reason, "link conflict")

	assert.Equal(t, []string{"d1", "d3"}, detections.assigned)
}
