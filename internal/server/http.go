// Package server provides the HTTP surface of the guardrail: the
// streaming chat endpoint, detector analysis, session management, and
// the benchmark API.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"piiguard/internal/benchmark"
	"piiguard/internal/core"
	"piiguard/internal/dataset"
	"piiguard/internal/evaluation"
	"piiguard/internal/observability"
	"piiguard/internal/pipeline"
	"piiguard/internal/retrieval"
	"piiguard/internal/session"
	"piiguard/internal/turnlog"
)

// defaultBodySizeLimit caps request bodies at 1MB; chat payloads are text.
const defaultBodySizeLimit = int64(1 << 20)

// Config holds server options.
type Config struct {
	// MasterKey enables Bearer auth when non-empty.
	MasterKey string
	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool
	// BodySizeLimit caps request bodies in bytes (default 1MB).
	BodySizeLimit int64
}

// Deps carries the collaborators the handlers need.
type Deps struct {
	// Detectors maps backend names to fail-closed adapters.
	Detectors map[string]pipeline.Detector
	// DefaultDetector is used when no ?detector= is given.
	DefaultDetector string

	Provider  core.Provider
	Sessions  *session.Manager
	Retriever core.Retriever
	Directory *retrieval.Directory

	Datasets  *dataset.Store
	Results   benchmark.ResultStore
	Evaluator *evaluation.Evaluator
	// BenchWorkers bounds benchmark concurrency (0 uses the default).
	BenchWorkers int

	Turns   turnlog.LoggerInterface
	Metrics *observability.Metrics

	Pipeline pipeline.Config
}

// Server wraps the Echo server.
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// New creates the HTTP server and mounts all routes.
func New(deps Deps, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(deps)

	e.Use(requestLogger())
	e.Use(middleware.Recover())

	bodyLimit := defaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodyLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodyLimit, 10)))

	skipAuth := []string{"/health"}
	if cfg.MetricsEnabled {
		skipAuth = append(skipAuth, "/metrics")
	}
	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, skipAuth))
	}

	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled && deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	e.POST("/api/chat", handler.Chat)
	e.POST("/api/analyze", handler.Analyze)
	e.GET("/api/scenarios", handler.Scenarios)
	e.GET("/api/employees", handler.Employees)
	e.DELETE("/api/session/:id", handler.ClearSession)

	e.GET("/api/benchmark/datasets", handler.ListDatasets)
	e.POST("/api/benchmark/run", handler.RunBenchmark)
	e.GET("/api/benchmark/results", handler.ListResults)
	e.GET("/api/benchmark/results/:id", handler.GetResult)
	e.POST("/api/benchmark/compare", handler.CompareResults)

	return &Server{echo: e, handler: handler}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so the server works with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// requestLogger logs one line per request through slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logRequest(v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	})
}
