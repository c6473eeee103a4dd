// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir   string // base directory for all databases, always absolute
	Port      int
	LogLevel  string
	LogPretty bool

	Upstream UpstreamConfig
	Compute  ComputeConfig
	Schedule ScheduleConfig
	Explain  ExplainConfig
	Backup   BackupConfig

	// RiskFreeRate is the annual risk-free rate used by risk-adjusted
	// return factors, as a decimal.
	RiskFreeRate float64
}

// UpstreamConfig holds provider credentials and call-budget settings.
type UpstreamConfig struct {
	TushareToken  string
	TusharePoints int // subscription tier points, mapped to calls/minute

	EastmoneyCPM int
	SinaCPM      int

	WebSearchKeys []string
	WebSearchCPM  int

	// SafetyMargin scales every provider's raw per-minute limit down so
	// bursts never brush the vendor cap.
	SafetyMargin float64

	// Circuit breaker tuning, shared by all providers.
	BreakerFailureThreshold int
	BreakerWindow           time.Duration
	BreakerOpenDuration     time.Duration

	// Retry policy for transient failures.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// ComputeConfig tunes the daily factor pipeline.
type ComputeConfig struct {
	BatchSize int
	Workers   int
	Timeout   time.Duration // hard wall for one full run
	KeepDates int           // dated snapshots retained per instrument kind
}

// ScheduleConfig holds the cron expressions of the background jobs.
// All expressions use the six-field form with seconds.
type ScheduleConfig struct {
	StockFactorsCron    string
	FundFactorsCron     string
	PerformanceEvalCron string
	BasicsSyncCron      string
	SnapshotSyncCron    string
	BackupCron          string
	IndicesRefreshEvery time.Duration
}

// ExplainConfig wires the LLM explanation annotator.
type ExplainConfig struct {
	Enabled bool
	APIKey  string
	Model   string
}

// BackupConfig wires the nightly S3-compatible snapshot upload.
type BackupConfig struct {
	Enabled       bool
	AccountID     string
	AccessKeyID   string
	SecretKey     string
	Bucket        string
	RetentionDays int
}

// Load reads configuration from environment variables. A .env file in
// the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("ARGUS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		Port:      getEnvAsInt("PORT", 8080),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Upstream: UpstreamConfig{
			TushareToken:            getEnv("TUSHARE_TOKEN", ""),
			TusharePoints:           getEnvAsInt("TUSHARE_POINTS", 2000),
			EastmoneyCPM:            getEnvAsInt("EASTMONEY_CPM", 100),
			SinaCPM:                 getEnvAsInt("SINA_CPM", 300),
			WebSearchKeys:           getEnvAsSlice("WEBSEARCH_API_KEYS"),
			WebSearchCPM:            getEnvAsInt("WEBSEARCH_CPM", 30),
			SafetyMargin:            getEnvAsFloat("UPSTREAM_SAFETY_MARGIN", 0.85),
			BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerWindow:           getEnvAsDuration("BREAKER_WINDOW", time.Minute),
			BreakerOpenDuration:     getEnvAsDuration("BREAKER_OPEN_DURATION", time.Minute),
			RetryAttempts:           getEnvAsInt("RETRY_ATTEMPTS", 2),
			RetryBaseDelay:          getEnvAsDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:           getEnvAsDuration("RETRY_MAX_DELAY", 8*time.Second),
		},
		Compute: ComputeConfig{
			BatchSize: getEnvAsInt("COMPUTE_BATCH_SIZE", 100),
			Workers:   getEnvAsInt("COMPUTE_WORKERS", 4),
			Timeout:   getEnvAsDuration("COMPUTE_TIMEOUT", 2*time.Hour),
			KeepDates: getEnvAsInt("FACTOR_KEEP_DATES", 30),
		},
		Schedule: ScheduleConfig{
			StockFactorsCron:    getEnv("CRON_STOCK_FACTORS", "0 0 17 * * MON-FRI"),
			FundFactorsCron:     getEnv("CRON_FUND_FACTORS", "0 0 19 * * MON-FRI"),
			PerformanceEvalCron: getEnv("CRON_PERFORMANCE_EVAL", "0 30 15 * * MON-FRI"),
			BasicsSyncCron:      getEnv("CRON_BASICS_SYNC", "0 0 6 * * SAT"),
			SnapshotSyncCron:    getEnv("CRON_SNAPSHOT_SYNC", "0 15 16 * * MON-FRI"),
			BackupCron:          getEnv("CRON_BACKUP", "0 0 3 * * *"),
			IndicesRefreshEvery: getEnvAsDuration("INTERVAL_INDICES_REFRESH", 5*time.Minute),
		},
		Explain: ExplainConfig{
			Enabled: getEnvAsBool("EXPLAIN_ENABLED", true),
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Backup: BackupConfig{
			Enabled:       getEnvAsBool("BACKUP_ENABLED", false),
			AccountID:     getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:   getEnv("R2_ACCESS_KEY_ID", ""),
			SecretKey:     getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:        getEnv("R2_BUCKET", "argus-backups"),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
		},
		RiskFreeRate: getEnvAsFloat("RISK_FREE_RATE", 0.02),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Upstream.SafetyMargin <= 0 || c.Upstream.SafetyMargin > 1 {
		return fmt.Errorf("UPSTREAM_SAFETY_MARGIN must be in (0,1], got %v", c.Upstream.SafetyMargin)
	}
	if c.Compute.BatchSize < 1 {
		return fmt.Errorf("COMPUTE_BATCH_SIZE must be positive, got %d", c.Compute.BatchSize)
	}
	if c.Compute.Workers < 1 {
		return fmt.Errorf("COMPUTE_WORKERS must be positive, got %d", c.Compute.Workers)
	}
	if c.Compute.KeepDates < 1 {
		return fmt.Errorf("FACTOR_KEEP_DATES must be positive, got %d", c.Compute.KeepDates)
	}
	if c.Backup.Enabled && (c.Backup.AccountID == "" || c.Backup.AccessKeyID == "" || c.Backup.SecretKey == "") {
		return fmt.Errorf("backup enabled but R2 credentials are incomplete")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated value, dropping empty entries.
func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
