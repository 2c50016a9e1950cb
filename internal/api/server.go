package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

// Server defaults.
const (
	DefaultBodyLimit       = "64M"
	DefaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Server is the HTTP server of the operational API.
type Server struct {
	echo       *echo.Echo
	controller *Controller
	addr       string
	version    string
	startTime  time.Time
	log        logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVersion reports version in the health check.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer builds the echo instance, its middleware and every route.
func NewServer(port string, deps Deps, opts ...ServerOption) *Server {
	s := &Server{
		addr:      net.JoinHostPort("", port),
		startTime: time.Now(),
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	e.Use(echomw.Recover())
	e.Use(s.requestLogger())
	e.Use(echomw.BodyLimit(DefaultBodyLimit))

	e.GET("/healthz", s.healthCheck)

	s.echo = e
	s.controller = NewController(e, deps)
	return s
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/healthz" || p == "/metrics"
		},
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			s.log.Debug("request", fields...)
			return nil
		},
	})
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", logger.String("address", s.addr))
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.addr).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown failed", logger.Error(err))
		return err
	}
	<-errCh
	s.log.Info("HTTP server stopped")
	return nil
}
