package detection

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/firethorn/internal/database"
	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/geo"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// InsertChunkSize caps the number of rows per bulk insert statement.
// Postgres limits a statement to 65,535 bind parameters; at 17 columns
// per detection, 3,000 rows stays comfortably under the ceiling.
const InsertChunkSize = 3000

var detectionColumns = []string{
	"id", "natural_key", "latitude", "longitude", "acquired_at",
	"confidence", "frp", "bright_ti4", "bright_ti5", "scan", "track",
	"satellite", "instrument", "version", "daynight", "incident_id", "created_at",
}

// Repository handles detection persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new detection repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// BulkInsert writes detections in chunks, silently skipping natural-key
// duplicates, and returns the number of rows actually inserted.
func (r *Repository) BulkInsert(ctx context.Context, detections []*models.Detection) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.BulkInsert")
	defer span.End()

	now := time.Now().UTC()
	inserted := 0

	for start := 0; start < len(detections); start += InsertChunkSize {
		end := start + InsertChunkSize
		if end > len(detections) {
			end = len(detections)
		}

		count, err := r.insertChunk(ctx, detections[start:end], now)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"chunk_start": start, "chunk_size": end - start}).Error("Failed to insert detection chunk")
			return inserted, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert detections: %v", err)
		}
		inserted += count
	}

	return inserted, nil
}

func (r *Repository) insertChunk(ctx context.Context, detections []*models.Detection, now time.Time) (int, error) {
	ib := database.NewInsertBuilder()
	ib.InsertInto("detections")
	ib.Cols(detectionColumns...)

	for _, d := range detections {
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		ib.Values(
			d.ID, d.NaturalKey, d.Latitude, d.Longitude, d.AcquiredAt,
			d.Confidence, d.FRP, d.BrightTI4, d.BrightTI5, d.Scan, d.Track,
			d.Satellite, d.Instrument, d.Version, d.DayNight, d.IncidentID, d.CreatedAt,
		)
	}
	ib.OnConflictDoNothing("natural_key")

	query, args := ib.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Get retrieves a detection by id. Returns nil when the detection does
// not exist.
func (r *Repository) Get(ctx context.Context, id string) (*models.Detection, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(detectionColumns...)
	sb.From("detections")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var detection models.Detection
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &detection, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get detection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get detection")
	}
	return &detection, nil
}

// ListUnassigned returns detections not yet linked to an incident, most
// recently inserted first.
func (r *Repository) ListUnassigned(ctx context.Context, limit int) ([]models.Detection, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.ListUnassigned")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(detectionColumns...)
	sb.From("detections")
	sb.Where(sb.IsNull("incident_id"))
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var detections []models.Detection
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &detections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unassigned detections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unassigned detections")
	}
	return detections, nil
}

// FindAssignedInWindow returns incident-linked detections inside the
// bounding box whose acquisition time falls within [since, until]. This
// is the cheap prefilter for clustering; callers apply the precise
// distance check.
func (r *Repository) FindAssignedInWindow(ctx context.Context, box geo.BoundingBox, since, until time.Time) ([]models.Detection, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.FindAssignedInWindow")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(detectionColumns...)
	sb.From("detections")
	sb.Where(
		sb.IsNotNull("incident_id"),
		sb.GreaterEqualThan("acquired_at", since),
		sb.LessEqualThan("acquired_at", until),
		sb.Between("latitude", box.MinLatitude, box.MaxLatitude),
		sb.Between("longitude", box.MinLongitude, box.MaxLongitude),
	)

	query, args := sb.Build()
	var detections []models.Detection
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &detections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find assigned detections in window")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidate detections")
	}
	return detections, nil
}

// AssignIncident links an unassigned detection to an incident. The guard
// on incident_id IS NULL makes the link set-once: a detection already
// belonging to an incident is never moved.
func (r *Repository) AssignIncident(ctx context.Context, detectionID, incidentID string) error {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.AssignIncident")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("detections")
	ub.Set(ub.Assign("incident_id", incidentID))
	ub.Where(
		ub.Equal("id", detectionID),
		ub.IsNull("incident_id"),
	)

	query, args := ub.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"detection_id": detectionID, "incident_id": incidentID}).Error("Failed to assign detection to incident")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to assign detection")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read assignment result: %v", err)
	}
	if affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "detection %s is missing or already assigned", detectionID)
	}
	return nil
}

// ListByIncident returns every detection linked to the incident.
func (r *Repository) ListByIncident(ctx context.Context, incidentID string) ([]models.Detection, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.ListByIncident")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(detectionColumns...)
	sb.From("detections")
	sb.Where(sb.Equal("incident_id", incidentID))
	sb.OrderBy("acquired_at ASC")

	query, args := sb.Build()
	var detections []models.Detection
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &detections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"incident_id": incidentID}).Error("Failed to list detections by incident")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list incident detections")
	}
	return detections, nil
}

// DeleteUnassignedOlderThan removes unclustered detections acquired
// before the cutoff. Assigned detections are only ever removed as a
// cascade of their incident's deletion.
func (r *Repository) DeleteUnassignedOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.DeleteUnassignedOlderThan")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom("detections")
	db.Where(
		db.IsNull("incident_id"),
		db.LessThan("acquired_at", cutoff),
	)

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete old unassigned detections")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete old detections")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read deletion result: %v", err)
	}
	return int(affected), nil
}

// ListFilter bounds a read-only detection projection.
type ListFilter struct {
	Since        *time.Time
	Confidence   string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters float64
	Limit        int
}

// List returns detections filtered by recency, confidence class, and
// proximity to a point. The proximity filter uses the same bounding-box
// prefilter as clustering, then the precise distance check in memory.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Detection, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Repository.List")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(detectionColumns...)
	sb.From("detections")

	where := []string{}
	if filter.Since != nil {
		where = append(where, sb.GreaterEqualThan("acquired_at", *filter.Since))
	}
	if filter.Confidence != "" {
		where = append(where, sb.Equal("confidence", filter.Confidence))
	}

	proximity := filter.Latitude != nil && filter.Longitude != nil && filter.RadiusMeters > 0
	if proximity {
		box := geo.BoxAround(*filter.Latitude, *filter.Longitude, filter.RadiusMeters)
		where = append(where,
			sb.Between("latitude", box.MinLatitude, box.MaxLatitude),
			sb.Between("longitude", box.MinLongitude, box.MaxLongitude),
		)
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("acquired_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var detections []models.Detection
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &detections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list detections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list detections")
	}

	if !proximity {
		return detections, nil
	}

	filtered := detections[:0]
	for _, d := range detections {
		if geo.HaversineMeters(*filter.Latitude, *filter.Longitude, d.Latitude, d.Longitude) <= filter.RadiusMeters {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}
