package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// OverrideRequest sets a manual status.
type OverrideRequest struct {
	Status string `json:"status"`
}

func (c *Controller) initAttendanceRoutes() {
	if c.deps.Attendance == nil {
		return
	}
	g := c.Group.Group("/attendance")
	g.GET("", c.GetAttendanceRecords)
	g.GET("/report", c.GetDailyReport)
	g.GET("/dates", c.GetAvailableDates)
	g.GET("/summary", c.GetMonthlySummary)
	g.GET("/history/:id", c.GetEmployeeHistory)
	g.PUT("/overrides/:date/:id", c.SetStatusOverride)
}

func (c *Controller) dateParam(ctx echo.Context) string {
	if d := ctx.QueryParam("date"); d != "" {
		return d
	}
	return c.deps.Attendance.Today()
}

// intQuery returns the query value of name, or def when it is missing or not
// a positive integer.
func intQuery(ctx echo.Context, name string, def int) int {
	n, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// GetAttendanceRecords handles GET /api/v1/attendance?date=&employee_id=
func (c *Controller) GetAttendanceRecords(ctx echo.Context) error {
	date := c.dateParam(ctx)
	records, err := c.deps.Attendance.Records(date, ctx.QueryParam("employee_id"))
	if err != nil {
		return c.fail(ctx, err, "failed to read attendance records")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"date":    date,
		"count":   len(records),
		"records": records,
	})
}

// GetDailyReport handles GET /api/v1/attendance/report?date=
func (c *Controller) GetDailyReport(ctx echo.Context) error {
	rep, err := c.deps.Attendance.Report(c.dateParam(ctx))
	if err != nil {
		return c.fail(ctx, err, "failed to build daily report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

// GetAvailableDates handles GET /api/v1/attendance/dates
func (c *Controller) GetAvailableDates(ctx echo.Context) error {
	dates, err := c.deps.Attendance.AvailableDates(intQuery(ctx, "limit", c.deps.MaxDates))
	if err != nil {
		return c.fail(ctx, err, "failed to list dates")
	}
	if dates == nil {
		dates = []string{}
	}
	return ctx.JSON(http.StatusOK, dates)
}

// GetMonthlySummary handles GET /api/v1/attendance/summary
func (c *Controller) GetMonthlySummary(ctx echo.Context) error {
	sum, err := c.deps.Attendance.MonthlySummary(intQuery(ctx, "days", c.deps.MaxDates))
	if err != nil {
		return c.fail(ctx, err, "failed to build summary")
	}
	return ctx.JSON(http.StatusOK, sum)
}

// GetEmployeeHistory handles GET /api/v1/attendance/history/:id
func (c *Controller) GetEmployeeHistory(ctx echo.Context) error {
	id := ctx.Param("id")
	history, err := c.deps.Attendance.EmployeeHistory(id, intQuery(ctx, "days", c.deps.MaxDates))
	if err != nil {
		return c.fail(ctx, err, "failed to build employee history")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"employee_id": id,
		"history":     history,
	})
}

// SetStatusOverride handles PUT /api/v1/attendance/overrides/:date/:id
func (c *Controller) SetStatusOverride(ctx echo.Context) error {
	var req OverrideRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	date, id := ctx.Param("date"), ctx.Param("id")
	if err := c.deps.Attendance.SetOverride(date, id, req.Status); err != nil {
		return c.fail(ctx, err, "failed to set status override")
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"date":        date,
		"employee_id": id,
		"status":      req.Status,
	})
}
