package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/firethorn/config"
	jobrunrepo "github.com/Ramsey-B/firethorn/internal/repositories/jobrun"
	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/queue"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

// Register registers job management routes
func Register(g *echo.Group) {
	g.GET("/runs", ListJobRuns)
	g.POST("/fetch", TriggerFetch)
	g.POST("/cluster", TriggerCluster)
	g.POST("/cleanup", TriggerCleanup)

	g.GET("/dlq", ListDLQ)
	g.GET("/dlq/:id", GetDLQEntry)
	g.DELETE("/dlq/:id", DeleteDLQEntry)
	g.POST("/dlq/:id/retry", RetryDLQEntry)
}

// ListJobRuns lists recent job executions, optionally filtered by type.
func ListJobRuns(c echo.Context) error {
	ctx := c.Request().Context()

	jobType := c.QueryParam("type")
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	ctx, repo, err := ectoinject.GetContext[*jobrunrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, err := repo.ListRecent(ctx, jobType, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

// TriggerFetchRequest is the request body for a manual feed fetch
type TriggerFetchRequest struct {
	Source   string `json:"source,omitempty"`
	DayRange int    `json:"day_range,omitempty" validate:"gte=0,lte=10"`
}

// TriggerFetch enqueues a feed fetch job
func TriggerFetch(c echo.Context) error {
	ctx := c.Request().Context()

	var req TriggerFetchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, publisher, err := ectoinject.GetContext[*queue.Publisher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id, err := publisher.PublishDetectionFetch(ctx, models.DetectionFetchJob{
		Source:   req.Source,
		DayRange: req.DayRange,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message_id": id})
}

// TriggerClusterRequest is the request body for a manual clustering pass
type TriggerClusterRequest struct {
	BatchSize int `json:"batch_size,omitempty" validate:"gte=0,lte=5000"`
}

// TriggerCluster enqueues a clustering pass
func TriggerCluster(c echo.Context) error {
	ctx := c.Request().Context()

	var req TriggerClusterRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx, publisher, err := ectoinject.GetContext[*queue.Publisher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id, err := publisher.PublishDetectionCluster(ctx, models.DetectionClusterJob{
		BatchSize: req.BatchSize,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message_id": id})
}

// TriggerCleanup enqueues a cleanup chain. At most one cleanup can be
// queued or running; a second trigger returns 409.
func TriggerCleanup(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, publisher, err := ectoinject.GetContext[*queue.Publisher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id, err := publisher.PublishIncidentCleanup(ctx, models.IncidentCleanupJob{})
	if err != nil {
		if errors.Is(err, queue.ErrJobAlreadyQueued) {
			return httperror.NewHTTPError(http.StatusConflict, "cleanup already queued or running")
		}
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message_id": id})
}

// ListDLQ lists dead letter queue entries, newest first.
func ListDLQ(c echo.Context) error {
	ctx := c.Request().Context()

	count := int64(50)
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		count = n
	}

	ctx, dlq, err := ectoinject.GetContext[*redis.DeadLetterQueue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := dlq.List(ctx, count)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// GetDLQEntry returns a single DLQ entry
func GetDLQEntry(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, dlq, err := ectoinject.GetContext[*redis.DeadLetterQueue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry, err := dlq.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "dlq entry not found")
	}

	return c.JSON(http.StatusOK, entry)
}

// DeleteDLQEntry discards a DLQ entry
func DeleteDLQEntry(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, dlq, err := ectoinject.GetContext[*redis.DeadLetterQueue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := dlq.Delete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// RetryDLQEntry re-enqueues a DLQ entry onto the job stream with its
// retry count reset.
func RetryDLQEntry(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, dlq, err := ectoinject.GetContext[*redis.DeadLetterQueue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, streams, err := ectoinject.GetContext[*redis.Streams](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := dlq.Retry(ctx, id, streams, cfg.JobStream); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"message_id": id})
}
