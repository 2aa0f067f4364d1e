package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("CACHE_TTL", "")

	cfg := Load()

	assert.Equal(t, "clickhouse", cfg.StorageBackend)
	assert.Equal(t, "Asia/Bangkok", cfg.ReportingTimezone)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("SEED_INTERVAL", "not-a-duration")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.StorageBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.SeedInterval)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage_backend: sqlite\ncache_ttl: 1m\nreporting_timezone: UTC\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_BACKEND", "clickhouse")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.StorageBackend)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.UTC, cfg.ReportingLocation())
}

func TestUnknownLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{DisplayTimezone: "Nowhere/Special"}
	assert.Equal(t, time.UTC, cfg.DisplayLocation())
}
