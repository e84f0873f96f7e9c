package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/internal/database"
	detectionrepo "github.com/Ramsey-B/firethorn/internal/repositories/detection"
	incidentrepo "github.com/Ramsey-B/firethorn/internal/repositories/incident"
	"github.com/Ramsey-B/firethorn/pkg/assignment"
	"github.com/Ramsey-B/firethorn/pkg/clustering"
	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/naturalkey"
)

// testEnv wires real repositories against the database named by
// TEST_DATABASE_URL. Tests are skipped when it is unset.
type testEnv struct {
	db         database.DB
	sqlx       *sqlx.DB
	detections *detectionrepo.Repository
	incidents  *incidentrepo.Repository
	assigner   *assignment.Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sqlxDB, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlxDB.Close() })

	applyMigrations(t, sqlxDB)

	_, err = sqlxDB.Exec("TRUNCATE detections, incidents, job_runs CASCADE")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlxDB, logger)

	detections := detectionrepo.NewRepository(db, logger)
	incidents := incidentrepo.NewRepository(db, logger)

	engine := clustering.NewEngine(detections, clustering.EngineConfig{}, logger)
	assigner := assignment.NewOrchestrator(engine, detections, incidents, nil, assignment.Config{}, logger)

	return &testEnv{
		db:         db,
		sqlx:       sqlxDB,
		detections: detections,
		incidents:  incidents,
		assigner:   assigner,
	}
}

func applyMigrations(t *testing.T, sqlxDB *sqlx.DB) {
	t.Helper()

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://../../db/pg", "postgres", driver)
	require.NoError(t, err)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

// makeDetection builds an unassigned detection at the given point.
func makeDetection(lat, lng float64, acquired time.Time) *models.Detection {
	acqDate := acquired.Format("2006-01-02")
	acqTime := acquired.Format("1504")

	return &models.Detection{
		ID:         uuid.New().String(),
		NaturalKey: naturalkey.For(lat, lng, acqDate, acqTime, "N"),
		Latitude:   lat,
		Longitude:  lng,
		AcquiredAt: acquired,
		Confidence: models.ConfidenceNominal,
		Satellite:  "N",
		Instrument: "VIIRS",
		Version:    "2.0NRT",
		DayNight:   "D",
		CreatedAt:  time.Now().UTC(),
	}
}

func withFRP(d *models.Detection, frp float64) *models.Detection {
	d.FRP = &frp
	return d
}

func (e *testEnv) insert(t *testing.T, ds ...*models.Detection) {
	t.Helper()
	inserted, err := e.detections.BulkInsert(context.Background(), ds)
	require.NoError(t, err)
	require.Equal(t, len(ds), inserted)
}

func (e *testEnv) countDetections(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.sqlx.Get(&n, "SELECT count(*) FROM detections"))
	return n
}

func (e *testEnv) countIncidents(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.sqlx.Get(&n, "SELECT count(*) FROM incidents"))
	return n
}
