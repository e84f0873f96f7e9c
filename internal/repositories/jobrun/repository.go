// Package jobrun records job executions for observability: one row per
// run with structured metadata attached on completion.
package jobrun

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/firethorn/internal/database"
	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

type jobRunRow struct {
	ID          string                          `db:"id"`
	JobType     string                          `db:"job_type"`
	Status      string                          `db:"status"`
	Metadata    database.JSONB[map[string]any]  `db:"metadata"`
	Error       *string                         `db:"error"`
	StartedAt   time.Time                       `db:"started_at"`
	CompletedAt *time.Time                      `db:"completed_at"`
}

func (r jobRunRow) toModel() models.JobRun {
	return models.JobRun{
		ID:          r.ID,
		JobType:     r.JobType,
		Status:      r.Status,
		Metadata:    r.Metadata.GetValue(),
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Repository handles job run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Start records the beginning of a job run and returns its id.
func (r *Repository) Start(ctx context.Context, jobType string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.Start")
	defer span.End()

	id := uuid.New().String()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("job_runs")
	ib.Cols("id", "job_type", "status", "started_at")
	ib.Values(id, jobType, models.JobRunStatusRunning, time.Now().UTC())

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_type": jobType}).Error("Failed to record job run start")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to record job run")
	}
	return id, nil
}

// Complete marks a job run finished, attaching its metadata.
func (r *Repository) Complete(ctx context.Context, id string, metadata map[string]any) error {
	return r.finish(ctx, id, models.JobRunStatusCompleted, metadata, nil)
}

// Fail marks a job run failed, recording the error alongside any
// metadata gathered before the failure.
func (r *Repository) Fail(ctx context.Context, id string, metadata map[string]any, jobErr error) error {
	msg := jobErr.Error()
	return r.finish(ctx, id, models.JobRunStatusFailed, metadata, &msg)
}

func (r *Repository) finish(ctx context.Context, id, status string, metadata map[string]any, errMsg *string) error {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.finish")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("job_runs")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("metadata", database.NewJSONB(metadata)),
		ub.Assign("error", errMsg),
		ub.Assign("completed_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_run_id": id, "status": status}).Error("Failed to record job run completion")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record job run completion")
	}
	return nil
}

// ListRecent returns the most recent runs of a job type, newest first.
// An empty jobType returns runs of every type.
func (r *Repository) ListRecent(ctx context.Context, jobType string, limit int) ([]models.JobRun, error) {
	ctx, span := tracing.StartSpan(ctx, "jobrun.Repository.ListRecent")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "job_type", "status", "metadata", "error", "started_at", "completed_at")
	sb.From("job_runs")
	if jobType != "" {
		sb.Where(sb.Equal("job_type", jobType))
	}
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []jobRunRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list job runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list job runs")
	}

	runs := make([]models.JobRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toModel())
	}
	return runs, nil
}
