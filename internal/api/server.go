package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/firewatch-ai/firewatch/internal/api/middleware"
	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// Server timeouts. There is no write timeout because detection streams
// stay open for as long as the video takes to process.
const (
	ReadTimeout     = 60 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// Server is the HTTP server of the firewatch API.
type Server struct {
	echo       *echo.Echo
	settings   *conf.Settings
	controller *Controller
	log        logger.Logger
}

// NewServer builds the echo instance, its middleware stack and the API routes.
func NewServer(settings *conf.Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		log:      GetLogger(),
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = ReadTimeout
	s.echo.Server.IdleTimeout = IdleTimeout

	s.controller = NewController(s.echo, settings, opts...)
	s.setupMiddleware()
	s.echo.GET("/health", s.controller.HealthCheck)

	s.log.Info("HTTP server initialized",
		logger.String("address", s.Address()),
		logger.Bool("metrics", s.controller.Metrics != nil && settings.WebServer.Metrics))
	return s
}

func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	var httpMetrics *metrics.HTTPMetrics
	if s.controller.Metrics != nil {
		httpMetrics = s.controller.Metrics.HTTP
	}
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, httpMetrics, func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))

	s.echo.Use(mw.NewCORS(mw.SecurityConfig{AllowedOrigins: s.settings.WebServer.AllowedOrigins}))
	if limit := s.settings.WebServer.UploadLimit; limit != "" {
		s.echo.Use(mw.NewBodyLimit(limit))
	}
	s.echo.Use(mw.NewGzip())
	s.echo.Use(mw.NewSecureHeaders())
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Controller returns the API controller.
func (s *Server) Controller() *Controller { return s.controller }

// Address is the listen address from the web server settings.
func (s *Server) Address() string {
	return net.JoinHostPort(s.settings.WebServer.Host, s.settings.WebServer.Port)
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	addr := s.Address()
	s.log.Info("starting HTTP server", logger.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(fmt.Errorf("server error: %w", err)).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx and ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
