package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (c *Controller) initRecognitionRoutes() {
	if c.deps.Recognition == nil {
		return
	}
	g := c.Group.Group("/recognition")
	g.POST("/start", c.StartRecognition)
	g.POST("/stop", c.StopRecognition)
	g.GET("/status", c.RecognitionStatus)
}

// StartRecognition handles POST /api/v1/recognition/start
func (c *Controller) StartRecognition(ctx echo.Context) error {
	if err := c.deps.Recognition.Start(ctx.Request().Context()); err != nil {
		return c.fail(ctx, err, "failed to start recognition")
	}
	return ctx.JSON(http.StatusOK, c.deps.Recognition.Status())
}

// StopRecognition handles POST /api/v1/recognition/stop
func (c *Controller) StopRecognition(ctx echo.Context) error {
	if err := c.deps.Recognition.Stop(); err != nil {
		return c.fail(ctx, err, "failed to stop recognition")
	}
	return ctx.JSON(http.StatusOK, c.deps.Recognition.Status())
}

// RecognitionStatus handles GET /api/v1/recognition/status
func (c *Controller) RecognitionStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.deps.Recognition.Status())
}
