package queue

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeFetcher struct {
	rows       []models.RawFeedRow
	err        error
	lastSource string
	lastRange  int
}

func (f *fakeFetcher) Fetch(_ context.Context, source string, dayRange int) ([]models.RawFeedRow, error) {
	f.lastSource = source
	f.lastRange = dayRange
	return f.rows, f.err
}

type fakeIngester struct {
	result *models.IngestResult
	err    error
	rows   []models.RawFeedRow
}

func (f *fakeIngester) Ingest(_ context.Context, rows []models.RawFeedRow) (*models.IngestResult, error) {
	f.rows = rows
	return f.result, f.err
}

type fakeClusterRunner struct {
	result        *models.BatchAssignmentResult
	err           error
	lastBatchSize int
}

func (f *fakeClusterRunner) AssignBatch(_ context.Context, batchSize int) (*models.BatchAssignmentResult, error) {
	f.lastBatchSize = batchSize
	return f.result, f.err
}

type fakeLifecycle struct {
	ended        int
	endErr       error
	lastHours    int
	incidents    int
	detections   int
	purgeErr     error
	lastRetained int
}

func (f *fakeLifecycle) EndStaleAfter(_ context.Context, _ time.Time, inactivityHours int) (int, error) {
	f.lastHours = inactivityHours
	return f.ended, f.endErr
}

func (f *fakeLifecycle) PurgeExpiredAfter(_ context.Context, _ time.Time, retentionDays int) (int, int, error) {
	f.lastRetained = retentionDays
	return f.incidents, f.detections, f.purgeErr
}

type fakeChainer struct {
	deletionID string
	publishErr error
	published  int
	released   int
}

func (f *fakeChainer) PublishIncidentDeletion(_ context.Context, _ models.IncidentDeletionJob) (string, error) {
	f.published++
	return f.deletionID, f.publishErr
}

func (f *fakeChainer) ReleaseCleanupGuard(_ context.Context) {
	f.released++
}

func jobWith(t *testing.T, jobType string, payload any) *redis.JobMessage {
	t.Helper()
	m, err := toPayloadMap(payload)
	require.NoError(t, err)
	return &redis.JobMessage{
		ID:      "job-1",
		Type:    jobType,
		Payload: m,
	}
}

func TestFetchHandler_FetchesAndIngests(t *testing.T) {
	fetcher := &fakeFetcher{rows: []models.RawFeedRow{{Satellite: "N"}, {Satellite: "N"}}}
	ingester := &fakeIngester{result: &models.IngestResult{Received: 2, Inserted: 2}}
	handler := NewFetchHandler(fetcher, ingester, testLogger())

	job := jobWith(t, models.JobTypeDetectionFetch, models.DetectionFetchJob{Source: "VIIRS_NOAA20_NRT", DayRange: 2})
	metadata, err := handler.Handle(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, "VIIRS_NOAA20_NRT", fetcher.lastSource)
	assert.Equal(t, 2, fetcher.lastRange)
	assert.Len(t, ingester.rows, 2)
	assert.Equal(t, 2, metadata["inserted"])
	assert.Equal(t, 2, metadata["rows_fetched"])
}

func TestFetchHandler_FetchErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("feed unavailable")}
	ingester := &fakeIngester{}
	handler := NewFetchHandler(fetcher, ingester, testLogger())

	job := jobWith(t, models.JobTypeDetectionFetch, models.DetectionFetchJob{})
	_, err := handler.Handle(context.Background(), job)

	require.Error(t, err)
	assert.Nil(t, ingester.rows)
}

func TestClusterHandler_ReportsBatchCounts(t *testing.T) {
	runner := &fakeClusterRunner{result: &models.BatchAssignmentResult{
		Processed:        5,
		AssignedExisting: 3,
		CreatedIncidents: 2,
	}}
	handler := NewClusterHandler(runner, testLogger())

	job := jobWith(t, models.JobTypeDetectionCluster, models.DetectionClusterJob{BatchSize: 250})
	metadata, err := handler.Handle(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, 250, runner.lastBatchSize)
	assert.Equal(t, 5, metadata["processed"])
	assert.Equal(t, 2, metadata["created_incidents"])
}

func TestClusterHandler_PartialFailuresStillSucceed(t *testing.T) {
	runner := &fakeClusterRunner{result: &models.BatchAssignmentResult{
		Processed: 3,
		Failures:  []models.AssignmentFailure{{DetectionID: "d1", Reason: "lock timeout"}},
	}}
	handler := NewClusterHandler(runner, testLogger())

	job := jobWith(t, models.JobTypeDetectionCluster, models.DetectionClusterJob{})
	metadata, err := handler.Handle(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, 1, metadata["failed"])
}

func TestCleanupHandler_ChainsDeletionAndReleasesGuard(t *testing.T) {
	lc := &fakeLifecycle{ended: 4}
	chainer := &fakeChainer{deletionID: "msg-9"}
	handler := NewCleanupHandler(lc, chainer, testLogger())

	job := jobWith(t, models.JobTypeIncidentCleanup, models.IncidentCleanupJob{InactivityHours: 48})
	metadata, err := handler.Handle(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, 48, lc.lastHours)
	assert.Equal(t, 4, metadata["incidents_ended"])
	assert.Equal(t, "msg-9", metadata["deletion_job_id"])
	assert.Equal(t, 1, chainer.published)
	assert.Equal(t, 1, chainer.released)
}

func TestCleanupHandler_ChainsDeletionWhenNothingEnded(t *testing.T) {
	lc := &fakeLifecycle{ended: 0}
	chainer := &fakeChainer{deletionID: "msg-1"}
	handler := NewCleanupHandler(lc, chainer, testLogger())

	job := jobWith(t, models.JobTypeIncidentCleanup, models.IncidentCleanupJob{})
	_, err := handler.Handle(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, 1, chainer.published)
}

func TestCleanupHandler_KeepsGuardOnFailure(t *testing.T) {
	lc := &fakeLifecycle{endErr: errors.New("db down")}
	chainer := &fakeChainer{}
	handler := NewCleanupHandler(lc, chainer, testLogger())

	job := jobWith(t, models.JobTypeIncidentCleanup, models.IncidentCleanupJob{})
	_, err := handler.Handle(context.Background(), job)

	// The message stays pending for retry, so the guard must stay held:
	// releasing it here would let a second cleanup be enqueued alongside
	// the one being retried.
	require.Error(t, err)
	assert.Equal(t, 0, chainer.published)
	assert.Equal(t, 0, chainer.released)
}

func TestCleanupHandler_KeepsGuardWhenChainingFails(t *testing.T) {
	lc := &fakeLifecycle{ended: 2}
	chainer := &fakeChainer{publishErr: errors.New("stream unavailable")}
	handler := NewCleanupHandler(lc, chainer, testLogger())

	job := jobWith(t, models.JobTypeIncidentCleanup, models.IncidentCleanupJob{})
	_, err := handler.Handle(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, 1, chainer.published)
	assert.Equal(t, 0, chainer.released)
}

func TestDeletionHandler_ReportsPurgeCounts(t *testing.T) {
	lc := &fakeLifecycle{incidents: 2, detections: 17}
	handler := NewDeletionHandler(lc, testLogger())

	job := jobWith(t, models.JobTypeIncidentDeletion, models.IncidentDeletionJob{RetentionDays: 7})
	metadata, err := handler.Handle(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, 7, lc.lastRetained)
	assert.Equal(t, 2, metadata["incidents_deleted"])
	assert.Equal(t, 17, metadata["detections_deleted"])
}
