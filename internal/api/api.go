// Package api serves the operational HTTP API: recognition control,
// identity management, enrollment and attendance reports.
package api

import (
	"context"
	"crypto/rand"
	"image"
	"math/big"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/enrollment"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/recognition"
)

// IdentityStore manages enrolled identities.
type IdentityStore interface {
	Identities() []facestore.Identity
	Identity(id string) (facestore.Identity, error)
	AddIdentityMetadataOnly(id, name, department string) error
	UpdateIdentity(id, name, department string) error
	DeleteIdentity(id string) error
}

// Enroller builds templates from uploaded frames.
type Enroller interface {
	RegisterFromFrames(ctx context.Context, id, name, department string, frames []image.Image) (enrollment.Result, error)
	RegisterExisting(ctx context.Context, id string, frames []image.Image) (enrollment.Result, error)
}

// RecognitionService is the background recognition loop.
type RecognitionService interface {
	Start(ctx context.Context) error
	Stop() error
	Status() recognition.ServiceStatus
}

// LiveEnrollment runs camera driven enrollment sessions.
type LiveEnrollment interface {
	Start(ctx context.Context, employeeID string) (enrollment.Progress, error)
	Progress() enrollment.Progress
	Cancel() error
}

// AttendanceReader answers attendance queries.
type AttendanceReader interface {
	Today() string
	Records(date, employeeID string) ([]attendance.Record, error)
	Report(date string) (attendance.DailyReport, error)
	AvailableDates(maxDates int) ([]string, error)
	MonthlySummary(maxDates int) (attendance.Summary, error)
	EmployeeHistory(employeeID string, days int) ([]attendance.DayRecord, error)
	SetOverride(date, employeeID, status string) error
}

// Deps are the components behind the API. Nil components leave their
// routes unregistered.
type Deps struct {
	Store       IdentityStore
	Enroller    Enroller
	Recognition RecognitionService
	Live        LiveEnrollment
	Attendance  AttendanceReader
	Metrics     http.Handler
	MaxDates    int
}

// Controller holds the route handlers.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group
	deps  Deps
	log   logger.Logger
}

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// NewController registers every route on e.
func NewController(e *echo.Echo, deps Deps) *Controller {
	if deps.MaxDates <= 0 {
		deps.MaxDates = attendance.DefaultMaxDates
	}
	c := &Controller{
		Echo:  e,
		Group: e.Group("/api/v1"),
		deps:  deps,
		log:   GetLogger(),
	}
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}
	c.initRecognitionRoutes()
	c.initIdentityRoutes()
	c.initEnrollmentRoutes()
	c.initAttendanceRoutes()
	return c
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			b[i] = charset[time.Now().UnixNano()%int64(len(charset))]
			continue
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// StatusCode maps a domain error to its HTTP status.
func StatusCode(err error) int {
	var insufficient *enrollment.InsufficientSamplesError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryConflict), errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryCamera):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError logs err and writes it as an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// fail maps err to its status code.
func (c *Controller) fail(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, StatusCode(err))
}
