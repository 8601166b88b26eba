// Package main is the entry point for the PII guardrail server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"piiguard/config"
	"piiguard/internal/benchmark"
	"piiguard/internal/core"
	"piiguard/internal/dataset"
	"piiguard/internal/detect"
	"piiguard/internal/evaluation"
	"piiguard/internal/observability"
	"piiguard/internal/pipeline"
	"piiguard/internal/providers"
	"piiguard/internal/retrieval"
	"piiguard/internal/server"
	"piiguard/internal/session"
	"piiguard/internal/storage"
	"piiguard/internal/turnlog"
	"piiguard/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	slog.Info("starting piiguard",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set MASTER_KEY environment variable to secure this server")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	ctx := context.Background()

	// Model provider. A missing or placeholder API key drops into demo
	// mode with the mock provider.
	provider := providers.New(cfg.OpenRouter.APIKey)

	// Detector backends, each wrapped in the fail-closed adapter.
	detectorOpts := detect.Options{
		PatternOverridesPath: cfg.Detector.PatternOverridesPath,
		ZeroShotURL:          cfg.Detector.ZeroShotURL,
		ZeroShotThreshold:    cfg.Detector.ZeroShotThreshold,
		Provider:             provider,
		SafetyModel:          cfg.Detector.SafetyModel,
		Timeout:              cfg.Detector.Timeout,
		ConfidenceThreshold:  cfg.Detector.ConfidenceThreshold,
		CacheSize:            cfg.Detector.CacheSize,
	}
	detectors, err := buildDetectors(cfg, provider, detectorOpts)
	if err != nil {
		slog.Error("failed to initialize detectors", "error", err)
		os.Exit(1)
	}
	if _, ok := detectors[cfg.Detector.Default]; !ok {
		slog.Error("default detector is not available", "detector", cfg.Detector.Default)
		os.Exit(1)
	}
	slog.Info("detectors initialized", "backends", detectorNames(detectors), "default", cfg.Detector.Default)

	// Session store for placeholder mappings.
	sessionStore, err := session.NewStore(cfg.Session.Backend, cfg.Session.RedisURL, cfg.Session.TTL)
	if err != nil {
		slog.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	sessions := session.NewManager(sessionStore)
	defer sessions.Close()
	slog.Info("session store ready", "backend", cfg.Session.Backend, "ttl", cfg.Session.TTL)

	// Employee directory for retrieval.
	directory, err := retrieval.NewDirectoryFromFile(cfg.Retrieval.EmployeesPath)
	if err != nil {
		slog.Error("failed to load employee directory", "error", err)
		os.Exit(1)
	}

	// Shared database for benchmark results and turn audit records.
	benchStore, err := benchmark.NewStore(ctx, storageConfig(cfg.Storage))
	if err != nil {
		slog.Error("failed to initialize benchmark storage", "error", err)
		os.Exit(1)
	}
	defer benchStore.Close()

	turns, err := buildTurnLogger(cfg.TurnLog, benchStore.Storage)
	if err != nil {
		slog.Error("failed to initialize turn logging", "error", err)
		os.Exit(1)
	}
	defer turns.Close()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.New()
		slog.Info("prometheus metrics enabled", "endpoint", "/metrics")
	}

	evaluator, err := evaluation.NewEvaluator(cfg.Benchmark.PassMode, cfg.Benchmark.F1Threshold)
	if err != nil {
		slog.Error("failed to initialize evaluator", "error", err)
		os.Exit(1)
	}

	// The dataset store uses the raw pattern backend to resolve the
	// positions of expected entities inside case text.
	locator, err := detect.NewBackend("pattern", detectorOpts)
	if err != nil {
		slog.Error("failed to initialize dataset locator", "error", err)
		os.Exit(1)
	}

	srv := server.New(server.Deps{
		Detectors:       detectors,
		DefaultDetector: cfg.Detector.Default,
		Provider:        provider,
		Sessions:        sessions,
		Retriever:       directory,
		Directory:       directory,
		Datasets:        dataset.NewStore(cfg.Benchmark.DatasetDir, locator),
		Results:         benchStore.Store,
		Evaluator:       evaluator,
		BenchWorkers:    cfg.Benchmark.Workers,
		Turns:           turns,
		Metrics:         metrics,
		Pipeline:        pipeline.Config{Model: cfg.OpenRouter.Model},
	}, server.Config{
		MasterKey:      cfg.Server.MasterKey,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr, "model", cfg.OpenRouter.Model)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// setupLogging installs the default slog handler per LOG_FORMAT and
// LOG_LEVEL.
func setupLogging(cfg config.LogConfig) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildDetectors constructs every backend the configuration supports:
// pattern always, zeroshot when a service URL is set, safety when a
// model is named and a real provider is available.
func buildDetectors(cfg *config.Config, provider core.Provider, opts detect.Options) (map[string]pipeline.Detector, error) {
	detectors := make(map[string]pipeline.Detector)

	pattern, err := detect.New("pattern", opts)
	if err != nil {
		return nil, fmt.Errorf("pattern detector: %w", err)
	}
	detectors["pattern"] = pattern

	if cfg.Detector.ZeroShotURL != "" {
		zeroshot, err := detect.New("zeroshot", opts)
		if err != nil {
			return nil, fmt.Errorf("zeroshot detector: %w", err)
		}
		detectors["zeroshot"] = zeroshot
	}

	if cfg.Detector.SafetyModel != "" {
		if _, isMock := provider.(*providers.Mock); isMock {
			slog.Warn("safety detector skipped: no real model provider configured")
		} else {
			safety, err := detect.New("safety", opts)
			if err != nil {
				return nil, fmt.Errorf("safety detector: %w", err)
			}
			detectors["safety"] = safety
		}
	}

	return detectors, nil
}

func detectorNames(detectors map[string]pipeline.Detector) []string {
	names := make([]string, 0, len(detectors))
	for name := range detectors {
		names = append(names, name)
	}
	return names
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Type:       cfg.Type,
		SQLite:     storage.SQLiteConfig{Path: cfg.SQLitePath},
		PostgreSQL: storage.PostgreSQLConfig{URL: cfg.PostgresURL},
		MongoDB:    storage.MongoDBConfig{URL: cfg.MongoURL, Database: cfg.MongoDatabase},
	}
}

// buildTurnLogger wires the async audit logger when enabled. Turn
// records live in the shared SQLite database; other backends fall back
// to the noop logger with a warning.
func buildTurnLogger(cfg config.TurnLogConfig, shared storage.Storage) (turnlog.LoggerInterface, error) {
	if !cfg.Enabled {
		return &turnlog.NoopLogger{}, nil
	}
	if shared == nil || shared.SQLiteDB() == nil {
		slog.Warn("turn logging requires sqlite storage, disabling", "hint", "set STORAGE_TYPE=sqlite")
		return &turnlog.NoopLogger{}, nil
	}

	store, err := turnlog.NewSQLiteStore(shared.SQLiteDB(), cfg.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("turn log store: %w", err)
	}

	slog.Info("turn logging enabled",
		"buffer_size", cfg.BufferSize,
		"flush_interval", cfg.FlushInterval,
		"retention_days", cfg.RetentionDays,
	)
	return turnlog.NewLogger(store, turnlog.Config{
		Enabled:       true,
		BufferSize:    cfg.BufferSize,
		FlushInterval: cfg.FlushInterval,
		RetentionDays: cfg.RetentionDays,
	}), nil
}
