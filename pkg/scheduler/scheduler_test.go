package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/queue"
)

type fakePublisher struct {
	mu       sync.Mutex
	fetches  []models.DetectionFetchJob
	clusters []models.DetectionClusterJob
	cleanups int

	cleanupErr error
}

func (f *fakePublisher) PublishDetectionFetch(_ context.Context, job models.DetectionFetchJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, job)
	return "fetch-1", nil
}

func (f *fakePublisher) PublishDetectionCluster(_ context.Context, job models.DetectionClusterJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clusters = append(f.clusters, job)
	return "cluster-1", nil
}

func (f *fakePublisher) PublishIncidentCleanup(_ context.Context, _ models.IncidentCleanupJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	if f.cleanupErr != nil {
		return "", f.cleanupErr
	}
	return "cleanup-1", nil
}

func (f *fakePublisher) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches), len(f.clusters), f.cleanups
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestScheduler_EnqueuesAllJobTypesOnStart(t *testing.T) {
	publisher := &fakePublisher{}
	s := NewScheduler(publisher, nil, Config{
		FetchInterval:    time.Hour,
		ClusterInterval:  time.Hour,
		CleanupInterval:  time.Hour,
		FetchSource:      "VIIRS_NOAA20_NRT",
		FetchDayRange:    2,
		ClusterBatchSize: 100,
	}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	// First tick fires immediately
	assert.Eventually(t, func() bool {
		fetches, clusters, cleanups := publisher.counts()
		return fetches == 1 && clusters == 1 && cleanups == 1
	}, 2*time.Second, 10*time.Millisecond)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Equal(t, "VIIRS_NOAA20_NRT", publisher.fetches[0].Source)
	assert.Equal(t, 2, publisher.fetches[0].DayRange)
	assert.Equal(t, 100, publisher.clusters[0].BatchSize)
}

func TestScheduler_RepeatsOnInterval(t *testing.T) {
	publisher := &fakePublisher{}
	s := NewScheduler(publisher, nil, Config{
		FetchInterval:   20 * time.Millisecond,
		ClusterInterval: time.Hour,
		CleanupInterval: time.Hour,
	}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		fetches, _, _ := publisher.counts()
		return fetches >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ToleratesQueuedCleanup(t *testing.T) {
	publisher := &fakePublisher{cleanupErr: queue.ErrJobAlreadyQueued}
	s := NewScheduler(publisher, nil, Config{
		FetchInterval:   time.Hour,
		ClusterInterval: time.Hour,
		CleanupInterval: 20 * time.Millisecond,
	}, testLogger())

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		_, _, cleanups := publisher.counts()
		return cleanups >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestScheduler_DoubleStartFails(t *testing.T) {
	publisher := &fakePublisher{}
	s := NewScheduler(publisher, nil, Config{}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
}
