// Package server exposes the chat pipeline over HTTP: a single chat
// endpoint with buffered and SSE streaming modes, plus health and
// metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/parley/ai/events"
	"github.com/hrygo/parley/ai/metrics"
	"github.com/hrygo/parley/ai/orchestrator"
	"github.com/hrygo/parley/internal/profile"
	"github.com/hrygo/parley/server/middleware"
)

// TurnProcessor handles one conversation turn. Satisfied by the
// orchestrator; tests substitute their own.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req orchestrator.Request, cb events.Callback) *orchestrator.Turn
}

// Server is the HTTP front of the chat pipeline.
type Server struct {
	e         *echo.Echo
	profile   *profile.Profile
	processor TurnProcessor
	exporter  *metrics.PrometheusExporter
	limiter   *middleware.CallerLimiter
}

// NewServer wires routes and middleware. The exporter may be nil; the
// /metrics route is only registered when it is present.
func NewServer(p *profile.Profile, processor TurnProcessor, exporter *metrics.PrometheusExporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(requestLogger)

	s := &Server{
		e:         e,
		profile:   p,
		processor: processor,
		exporter:  exporter,
		limiter:   middleware.NewCallerLimiter(2, 5),
	}

	e.GET("/healthz", s.handleHealth)
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	e.POST("/api/v1/chat", s.handleChat)

	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server: listening", "addr", addr)
	return s.e.Start(addr)
}

// Shutdown drains in-flight requests with a bounded grace period.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("server: shutdown failed", "error", err)
	}
	slog.Info("server: stopped")
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.e
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.profile.Version,
	})
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		slog.Info("server: request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"duration_ms", time.Since(start).Milliseconds())
		return err
	}
}
