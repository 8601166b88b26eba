// Package config provides environment-driven configuration for the service.
// A .env file is loaded when present; real environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	OpenRouter OpenRouterConfig
	Detector   DetectorConfig
	Session    SessionConfig
	Storage    StorageConfig
	Benchmark  BenchmarkConfig
	TurnLog    TurnLogConfig
	Metrics    MetricsConfig
	Retrieval  RetrievalConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Port the HTTP server listens on.
	Port string
	// MasterKey protects the API when set; empty disables auth.
	MasterKey string
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" (default) or "text" (tint handler).
	Format string
}

// OpenRouterConfig configures the model provider.
type OpenRouterConfig struct {
	// APIKey for OpenRouter; a missing or placeholder key enables demo mode.
	APIKey string
	// Model identifier sent with completion requests.
	Model string
}

// DetectorConfig configures detector backends and the adapter.
type DetectorConfig struct {
	// Default backend name: pattern, zeroshot, or safety.
	Default string
	// PatternOverridesPath points to an optional YAML rules file.
	PatternOverridesPath string
	// ZeroShotURL is the base URL of the zero-shot NER service.
	ZeroShotURL string
	// ZeroShotThreshold is forwarded to the service (0 uses its default).
	ZeroShotThreshold float64
	// SafetyModel is the model the safety-classifier backend prompts.
	SafetyModel string
	// Timeout bounds one backend call.
	Timeout time.Duration
	// ConfidenceThreshold drops spans below it when > 0.
	ConfidenceThreshold float64
	// CacheSize bounds the per-detector result cache (0 disables).
	CacheSize int
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend string
	// RedisURL is required for the redis backend.
	RedisURL string
	// TTL evicts idle sessions.
	TTL time.Duration
}

// StorageConfig configures the shared database used by benchmark results
// and turn audit records.
type StorageConfig struct {
	// Type is sqlite (default), postgresql, mongodb, or memory.
	Type string
	// SQLitePath is the database file path for sqlite.
	SQLitePath string
	// PostgresURL is the connection string for postgresql.
	PostgresURL string
	// MongoURL is the connection string for mongodb.
	MongoURL string
	// MongoDatabase is the mongodb database name.
	MongoDatabase string
}

// BenchmarkConfig configures the benchmark runner.
type BenchmarkConfig struct {
	// Workers bounds concurrent benchmark cases.
	Workers int
	// DatasetDir holds extra dataset files alongside the embedded golden set.
	DatasetDir string
	// PassMode is zero_fn (default) or f1_threshold.
	PassMode string
	// F1Threshold applies in f1_threshold mode.
	F1Threshold float64
}

// TurnLogConfig configures per-turn audit records.
type TurnLogConfig struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// RetrievalConfig configures the employee directory.
type RetrievalConfig struct {
	// EmployeesPath overrides the embedded employee records when set.
	EmployeesPath string
}

// Load reads .env (optional) and environment variables into a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnv("PORT", "8080"),
			MasterKey: os.Getenv("MASTER_KEY"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey: os.Getenv("OPENROUTER_API_KEY"),
			Model:  getEnv("OPENROUTER_MODEL", "openai/gpt-oss-120b"),
		},
		Detector: DetectorConfig{
			Default:              getEnv("DETECTOR_DEFAULT", "pattern"),
			PatternOverridesPath: os.Getenv("DETECTOR_PATTERN_OVERRIDES"),
			ZeroShotURL:          os.Getenv("DETECTOR_ZEROSHOT_URL"),
			ZeroShotThreshold:    getEnvFloat("DETECTOR_ZEROSHOT_THRESHOLD", 0),
			SafetyModel:          getEnv("DETECTOR_SAFETY_MODEL", "meta-llama/llama-guard-4-12b"),
			Timeout:              getEnvDuration("DETECTOR_TIMEOUT", 10*time.Second),
			ConfidenceThreshold:  getEnvFloat("DETECTOR_CONFIDENCE_THRESHOLD", 0),
			CacheSize:            getEnvInt("DETECTOR_CACHE_SIZE", 256),
		},
		Session: SessionConfig{
			Backend:  getEnv("SESSION_BACKEND", "memory"),
			RedisURL: os.Getenv("SESSION_REDIS_URL"),
			TTL:      getEnvDuration("SESSION_TTL", time.Hour),
		},
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", "sqlite"),
			SQLitePath:    getEnv("STORAGE_SQLITE_PATH", "data/piiguard.db"),
			PostgresURL:   os.Getenv("STORAGE_POSTGRES_URL"),
			MongoURL:      os.Getenv("STORAGE_MONGO_URL"),
			MongoDatabase: getEnv("STORAGE_MONGO_DATABASE", "piiguard"),
		},
		Benchmark: BenchmarkConfig{
			Workers:     getEnvInt("BENCHMARK_WORKERS", 4),
			DatasetDir:  getEnv("BENCHMARK_DATASET_DIR", "data/datasets"),
			PassMode:    getEnv("BENCHMARK_PASS_MODE", "zero_fn"),
			F1Threshold: getEnvFloat("BENCHMARK_F1_THRESHOLD", 0.8),
		},
		TurnLog: TurnLogConfig{
			Enabled:       getEnvBool("TURNLOG_ENABLED", false),
			BufferSize:    getEnvInt("TURNLOG_BUFFER_SIZE", 1000),
			FlushInterval: getEnvDuration("TURNLOG_FLUSH_INTERVAL", 5*time.Second),
			RetentionDays: getEnvInt("TURNLOG_RETENTION_DAYS", 30),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		Retrieval: RetrievalConfig{
			EmployeesPath: os.Getenv("RETRIEVAL_EMPLOYEES_PATH"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Detector.Default {
	case "pattern", "zeroshot", "safety":
	default:
		return fmt.Errorf("invalid DETECTOR_DEFAULT %q (valid: pattern, zeroshot, safety)", c.Detector.Default)
	}
	if c.Detector.Default == "zeroshot" && c.Detector.ZeroShotURL == "" {
		return fmt.Errorf("DETECTOR_ZEROSHOT_URL is required when DETECTOR_DEFAULT=zeroshot")
	}

	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q (valid: memory, redis)", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.RedisURL == "" {
		return fmt.Errorf("SESSION_REDIS_URL is required when SESSION_BACKEND=redis")
	}

	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q (valid: sqlite, postgresql, mongodb, memory)", c.Storage.Type)
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("STORAGE_POSTGRES_URL is required when STORAGE_TYPE=postgresql")
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoURL == "" {
		return fmt.Errorf("STORAGE_MONGO_URL is required when STORAGE_TYPE=mongodb")
	}

	switch c.Benchmark.PassMode {
	case "zero_fn", "f1_threshold":
	default:
		return fmt.Errorf("invalid BENCHMARK_PASS_MODE %q (valid: zero_fn, f1_threshold)", c.Benchmark.PassMode)
	}
	if c.Benchmark.Workers < 1 {
		return fmt.Errorf("BENCHMARK_WORKERS must be at least 1, got %d", c.Benchmark.Workers)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
