// Package routes assembles the HTTP API: incident and detection read
// projections, job management, and health checks.
package routes

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/firethorn/pkg/routes/detection"
	"github.com/Ramsey-B/firethorn/pkg/routes/incident"
	"github.com/Ramsey-B/firethorn/pkg/routes/jobs"
)

// RequestValidator adapts go-playground/validator to echo's Validator
// interface.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates the request validator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

// Validate implements echo.Validator.
func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Register registers all API routes under /api/v1.
func Register(e *echo.Echo) {
	e.Validator = NewRequestValidator()

	api := e.Group("/api/v1")
	incident.Register(api.Group("/incidents"))
	detection.Register(api.Group("/detections"))
	jobs.Register(api.Group("/jobs"))
}
