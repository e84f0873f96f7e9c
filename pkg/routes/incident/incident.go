package incident

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	detectionrepo "github.com/Ramsey-B/firethorn/internal/repositories/detection"
	incidentrepo "github.com/Ramsey-B/firethorn/internal/repositories/incident"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// Register registers incident routes
func Register(g *echo.Group) {
	g.GET("", ListIncidents)
	g.GET("/:id", GetIncident)
	g.GET("/:id/detections", ListIncidentDetections)
}

// ListIncidents lists incidents, optionally filtered by status and last
// activity time.
func ListIncidents(c echo.Context) error {
	ctx := c.Request().Context()

	filter := incidentrepo.ListFilter{
		Status: c.QueryParam("status"),
	}
	if filter.Status != "" && filter.Status != models.IncidentStatusActive && filter.Status != models.IncidentStatusEnded {
		return httperror.NewHTTPError(http.StatusBadRequest, "status must be active or ended")
	}

	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
		filter.Since = &t
	}

	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = n
	}

	ctx, repo, err := ectoinject.GetContext[*incidentrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	incidents, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, incidents)
}

// GetIncident returns a single incident by ID
func GetIncident(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*incidentrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	incident, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if incident == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "incident not found")
	}

	return c.JSON(http.StatusOK, incident)
}

// ListIncidentDetections returns the member detections of an incident in
// acquisition order.
func ListIncidentDetections(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, incidents, err := ectoinject.GetContext[*incidentrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	incident, err := incidents.Get(ctx, id)
	if err != nil {
		return err
	}
	if incident == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "incident not found")
	}

	ctx, detections, err := ectoinject.GetContext[*detectionrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	members, err := detections.ListByIncident(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, members)
}
