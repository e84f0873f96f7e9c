package incident

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

var incidentColumns = []string{
	"id", "status", "centroid_latitude", "centroid_longitude",
	"min_latitude", "max_latitude", "min_longitude", "max_longitude",
	"fire_count", "frp_min", "frp_max", "frp_total", "frp_avg",
	"first_detected_at", "last_detected_at", "ended_at", "created_at", "updated_at",
}

// Repository handles incident persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new incident repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle so orchestrators can open a
// transaction spanning multiple repositories.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create persists a new incident and returns it with its generated id.
func (r *Repository) Create(ctx context.Context, incident *models.Incident) (*models.Incident, error) {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.Create")
	defer span.End()

	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now().UTC()
		incident.UpdatedAt = incident.CreatedAt
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("incidents")
	ib.Cols(incidentColumns...)
	ib.Values(
		incident.ID, incident.Status, incident.CentroidLatitude, incident.CentroidLongitude,
		incident.MinLatitude, incident.MaxLatitude, incident.MinLongitude, incident.MaxLongitude,
		incident.FireCount, incident.FRPMin, incident.FRPMax, incident.FRPTotal, incident.FRPAvg,
		incident.FirstDetectedAt, incident.LastDetectedAt, incident.EndedAt, incident.CreatedAt, incident.UpdatedAt,
	)

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create incident")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create incident")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": incident.ID}).Info("Created incident")
	return incident, nil
}

// Get retrieves an incident by id. Returns nil when the incident does
// not exist.
func (r *Repository) Get(ctx context.Context, id string) (*models.Incident, error) {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(incidentColumns...)
	sb.From("incidents")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var incident models.Incident
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &incident, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get incident")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get incident")
	}
	return &incident, nil
}

// UpdateAggregates persists the incident's derived fields. Status and
// ended_at are managed by the lifecycle methods, not here.
func (r *Repository) UpdateAggregates(ctx context.Context, incident *models.Incident) error {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.UpdateAggregates")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("incidents")
	ub.Set(
		ub.Assign("centroid_latitude", incident.CentroidLatitude),
		ub.Assign("centroid_longitude", incident.CentroidLongitude),
		ub.Assign("min_latitude", incident.MinLatitude),
		ub.Assign("max_latitude", incident.MaxLatitude),
		ub.Assign("min_longitude", incident.MinLongitude),
		ub.Assign("max_longitude", incident.MaxLongitude),
		ub.Assign("fire_count", incident.FireCount),
		ub.Assign("frp_min", incident.FRPMin),
		ub.Assign("frp_max", incident.FRPMax),
		ub.Assign("frp_total", incident.FRPTotal),
		ub.Assign("frp_avg", incident.FRPAvg),
		ub.Assign("first_detected_at", incident.FirstDetectedAt),
		ub.Assign("last_detected_at", incident.LastDetectedAt),
		ub.Assign("updated_at", incident.UpdatedAt),
	)
	ub.Where(ub.Equal("id", incident.ID))

	query, args := ub.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": incident.ID}).Error("Failed to update incident aggregates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update incident")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read update result: %v", err)
	}
	if affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "incident %s not found", incident.ID)
	}
	return nil
}

// ListStaleActive returns active incidents whose last detection is older
// than the cutoff.
func (r *Repository) ListStaleActive(ctx context.Context, cutoff time.Time) ([]models.Incident, error) {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.ListStaleActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(incidentColumns...)
	sb.From("incidents")
	sb.Where(
		sb.Equal("status", models.IncidentStatusActive),
		sb.LessThan("last_detected_at", cutoff),
	)
	sb.OrderBy("last_detected_at ASC")

	query, args := sb.Build()
	var incidents []models.Incident
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &incidents, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list stale active incidents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list stale incidents")
	}
	return incidents, nil
}

// MarkEnded transitions an active incident to ended. The transition is
// irreversible and only applies while the incident is still active.
func (r *Repository) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.MarkEnded")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("incidents")
	ub.Set(
		ub.Assign("status", models.IncidentStatusEnded),
		ub.Assign("ended_at", endedAt),
		ub.Assign("updated_at", endedAt),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.IncidentStatusActive),
	)

	query, args := ub.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to end incident")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to end incident")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read end result: %v", err)
	}
	if affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "incident %s is missing or already ended", id)
	}
	return nil
}

// ListExpiredEnded returns ended incidents whose ended_at is older than
// the cutoff, making them eligible for deletion.
func (r *Repository) ListExpiredEnded(ctx context.Context, cutoff time.Time) ([]models.Incident, error) {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.ListExpiredEnded")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(incidentColumns...)
	sb.From("incidents")
	sb.Where(
		sb.Equal("status", models.IncidentStatusEnded),
		sb.IsNotNull("ended_at"),
		sb.LessThan("ended_at", cutoff),
	)
	sb.OrderBy("ended_at ASC")

	query, args := sb.Build()
	var incidents []models.Incident
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &incidents, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list expired ended incidents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list expired incidents")
	}
	return incidents, nil
}

// DeleteCascade removes an incident and every detection linked to it
// inside a single transaction. Returns the number of detections removed.
func (r *Repository) DeleteCascade(ctx context.Context, id string) (int, error) {
	ctxTx, span := tracing.StartSpan(ctx, "incident.Repository.DeleteCascade")
	defer span.End()

	ctxTx, tx, err := r.db.GetTx(ctxTx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("detections")
	db.Where(db.Equal("incident_id", id))

	query, args := db.Build()
	result, err := tx.ExecContext(ctxTx, query, args...)
	if err != nil {
		r.logger.WithContext(ctxTx).WithError(err).WithFields(map[string]any{"incident_id": id}).Error("Failed to delete incident detections")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete incident detections")
	}
	detections, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read cascade result: %v", err)
	}

	db = sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("incidents")
	db.Where(db.Equal("id", id))

	query, args = db.Build()
	if _, err := tx.ExecContext(ctxTx, query, args...); err != nil {
		r.logger.WithContext(ctxTx).WithError(err).WithFields(map[string]any{"incident_id": id}).Error("Failed to delete incident")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete incident")
	}

	if err := tx.Commit(ctxTx); err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit incident deletion")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"incident_id": id, "detections": detections}).Info("Deleted incident with cascade")
	return int(detections), nil
}

// ListFilter bounds a read-only incident projection.
type ListFilter struct {
	Status string
	Since  *time.Time
	Limit  int
}

// List returns incidents for the read projections, newest activity first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Incident, error) {
	ctx, span := tracing.StartSpan(ctx, "incident.Repository.List")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(incidentColumns...)
	sb.From("incidents")

	where := []string{}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	if filter.Since != nil {
		where = append(where, sb.GreaterEqualThan("last_detected_at", *filter.Since))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("last_detected_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var incidents []models.Incident
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &incidents, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list incidents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list incidents")
	}
	return incidents, nil
}
