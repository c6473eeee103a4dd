package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARGUS_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2000, cfg.Upstream.TusharePoints)
	assert.Equal(t, 0.85, cfg.Upstream.SafetyMargin)
	assert.Equal(t, 2, cfg.Upstream.RetryAttempts)
	assert.Equal(t, 100, cfg.Compute.BatchSize)
	assert.Equal(t, 4, cfg.Compute.Workers)
	assert.Equal(t, 2*time.Hour, cfg.Compute.Timeout)
	assert.Equal(t, 30, cfg.Compute.KeepDates)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.IndicesRefreshEvery)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ARGUS_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9001")
	t.Setenv("TUSHARE_POINTS", "5000")
	t.Setenv("WEBSEARCH_API_KEYS", "key-a, key-b,key-c")
	t.Setenv("COMPUTE_TIMEOUT", "90m")
	t.Setenv("UPSTREAM_SAFETY_MARGIN", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, 5000, cfg.Upstream.TusharePoints)
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.Upstream.WebSearchKeys)
	assert.Equal(t, 90*time.Minute, cfg.Compute.Timeout)
	assert.Equal(t, 0.5, cfg.Upstream.SafetyMargin)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("ARGUS_DATA_DIR", t.TempDir())
	t.Setenv("UPSTREAM_SAFETY_MARGIN", "1.5")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateBackupCredentials(t *testing.T) {
	t.Setenv("ARGUS_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "R2 credentials")
}
