package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/firethorn/pkg/models"
)

type fakeInserter struct {
	inserted   []*models.Detection
	duplicates int
	err        error
}

func (f *fakeInserter) BulkInsert(ctx context.Context, detections []*models.Detection) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, detections...)
	return len(detections) - f.duplicates, nil
}

func newTestService(inserter *fakeInserter) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(inserter, logger)
}

func TestIngestMixedBatch(t *testing.T) {
	inserter := &fakeInserter{}
	svc := newTestService(inserter)

	bad := validRow()
	bad.Latitude = "not-a-number"

	result, err := svc.Ingest(context.Background(), []models.RawFeedRow{validRow(), bad})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Received)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Row)
	assert.Len(t, inserter.inserted, 1)
}

func TestIngestReportsDuplicatesAsSkipped(t *testing.T) {
	inserter := &fakeInserter{duplicates: 1}
	svc := newTestService(inserter)

	second := validRow()
	second.AcqTime = "1045"

	result, err := svc.Ingest(context.Background(), []models.RawFeedRow{validRow(), second})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Empty(t, result.Failures)
}

func TestIngestAllRowsMalformedSkipsInsert(t *testing.T) {
	inserter := &fakeInserter{}
	svc := newTestService(inserter)

	bad := validRow()
	bad.AcqDate = "yesterday"

	result, err := svc.Ingest(context.Background(), []models.RawFeedRow{bad})
	require.NoError(t, err)

	assert.Zero(t, result.Inserted)
	assert.Len(t, result.Failures, 1)
	assert.Empty(t, inserter.inserted)
}

func TestIngestPropagatesStoreError(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("connection reset")}
	svc := newTestService(inserter)

	_, err := svc.Ingest(context.Background(), []models.RawFeedRow{validRow()})
	assert.Error(t, err)
}
