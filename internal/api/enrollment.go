package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// LiveEnrollmentRequest starts a live session.
type LiveEnrollmentRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (c *Controller) initEnrollmentRoutes() {
	if c.deps.Live == nil {
		return
	}
	g := c.Group.Group("/enrollment")
	g.POST("/live", c.StartLiveEnrollment)
	g.GET("/live", c.LiveEnrollmentProgress)
	g.DELETE("/live", c.CancelLiveEnrollment)
}

// StartLiveEnrollment handles POST /api/v1/enrollment/live
func (c *Controller) StartLiveEnrollment(ctx echo.Context) error {
	var req LiveEnrollmentRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.EmployeeID) == "" {
		return c.HandleError(ctx, nil, "employee_id is required", http.StatusBadRequest)
	}
	p, err := c.deps.Live.Start(ctx.Request().Context(), req.EmployeeID)
	if err != nil {
		return c.fail(ctx, err, "failed to start live enrollment")
	}
	return ctx.JSON(http.StatusAccepted, p)
}

// LiveEnrollmentProgress handles GET /api/v1/enrollment/live
func (c *Controller) LiveEnrollmentProgress(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.deps.Live.Progress())
}

// CancelLiveEnrollment handles DELETE /api/v1/enrollment/live
func (c *Controller) CancelLiveEnrollment(ctx echo.Context) error {
	if err := c.deps.Live.Cancel(); err != nil {
		return c.fail(ctx, err, "no live enrollment to cancel")
	}
	return ctx.JSON(http.StatusOK, c.deps.Live.Progress())
}
