package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server (read-only API surface)
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// ETL pipeline
	ETL ETLConfig

	// Quality gate
	Quality QualityConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds the embedded DuckDB store configuration
type DatabaseConfig struct {
	Path string // path to the .duckdb file

	// Writer-side pragmas
	Threads     int
	MemoryLimit string // e.g. "2GB"; empty leaves the DuckDB default
}

// ETLConfig holds pipeline tuning knobs
type ETLConfig struct {
	// DefaultBackfillDays is how far back ingestion reaches when a source
	// has no watermark yet.
	DefaultBackfillDays int

	// BackfillBatchDays splits long backfills into smaller ingestion windows.
	BackfillBatchDays int

	// SourceTimeout bounds a single source's ingestion; a slow source is
	// degraded, not fatal.
	SourceTimeout time.Duration

	// StageTimeout bounds each transform stage (normalize/aggregate/align).
	StageTimeout time.Duration

	// IngestWorkers is the number of sources ingested concurrently.
	IngestWorkers int

	// FixtureDir is where the fixture connector reads source exports from.
	FixtureDir string
}

// QualityConfig holds quality gate configuration
type QualityConfig struct {
	RulesPath     string  // optional YAML overriding the rule thresholds
	OutlierSigma  float64 // day-over-day change threshold, in stddevs
	StalenessDays int     // max age of the newest mart date before flagging
}

// Load reads configuration from environment variables.
// This function is the only caller of os.Getenv in the codebase.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Path:        getEnv("DUCKDB_PATH", "./data/commerce.duckdb"),
			Threads:     getEnvAsInt("DUCKDB_THREADS", 4),
			MemoryLimit: getEnv("DUCKDB_MEMORY_LIMIT", ""),
		},

		ETL: ETLConfig{
			DefaultBackfillDays: getEnvAsInt("DEFAULT_BACKFILL_DAYS", 400),
			BackfillBatchDays:   getEnvAsInt("BACKFILL_BATCH_DAYS", 30),
			SourceTimeout:       getEnvAsDuration("SOURCE_TIMEOUT", "5m"),
			StageTimeout:        getEnvAsDuration("STAGE_TIMEOUT", "10m"),
			IngestWorkers:       getEnvAsInt("INGEST_WORKERS", 4),
			FixtureDir:          getEnv("FIXTURE_DIR", "./data/fixtures"),
		},

		Quality: QualityConfig{
			RulesPath:     getEnv("QUALITY_RULES_PATH", ""),
			OutlierSigma:  getEnvAsFloat("QUALITY_OUTLIER_SIGMA", 5.0),
			StalenessDays: getEnvAsInt("QUALITY_STALENESS_DAYS", 1),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.ETL.DefaultBackfillDays <= 0 {
		return fmt.Errorf("DEFAULT_BACKFILL_DAYS must be positive")
	}

	if c.Quality.OutlierSigma <= 0 {
		return fmt.Errorf("QUALITY_OUTLIER_SIGMA must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
