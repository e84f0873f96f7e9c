package detection

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	detectionrepo "github.com/Ramsey-B/firethorn/internal/repositories/detection"
	"github.com/Ramsey-B/firethorn/pkg/models"
)

// Register registers detection routes
func Register(g *echo.Group) {
	g.GET("", ListDetections)
	g.GET("/:id", GetDetection)
}

// ListDetections lists detections filtered by recency, confidence, and
// proximity to a point. lat, lng, and radius_meters must be supplied
// together.
func ListDetections(c echo.Context) error {
	ctx := c.Request().Context()

	var filter detectionrepo.ListFilter

	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
		filter.Since = &t
	}

	if confidence := c.QueryParam("confidence"); confidence != "" {
		switch confidence {
		case models.ConfidenceLow, models.ConfidenceNominal, models.ConfidenceHigh:
			filter.Confidence = confidence
		default:
			return httperror.NewHTTPError(http.StatusBadRequest, "confidence must be l, n, or h")
		}
	}

	lat := c.QueryParam("lat")
	lng := c.QueryParam("lng")
	radius := c.QueryParam("radius_meters")
	if lat != "" || lng != "" || radius != "" {
		if lat == "" || lng == "" || radius == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "lat, lng, and radius_meters are required together")
		}

		latVal, err := strconv.ParseFloat(lat, 64)
		if err != nil || latVal < -90 || latVal > 90 {
			return httperror.NewHTTPError(http.StatusBadRequest, "lat must be a number in [-90, 90]")
		}
		lngVal, err := strconv.ParseFloat(lng, 64)
		if err != nil || lngVal < -180 || lngVal > 180 {
			return httperror.NewHTTPError(http.StatusBadRequest, "lng must be a number in [-180, 180]")
		}
		radiusVal, err := strconv.ParseFloat(radius, 64)
		if err != nil || radiusVal <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "radius_meters must be a positive number")
		}

		filter.Latitude = &latVal
		filter.Longitude = &lngVal
		filter.RadiusMeters = radiusVal
	}

	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = n
	}

	ctx, repo, err := ectoinject.GetContext[*detectionrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	detections, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, detections)
}

// GetDetection returns a single detection by ID
func GetDetection(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*detectionrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	detection, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if detection == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "detection not found")
	}

	return c.JSON(http.StatusOK, detection)
}
