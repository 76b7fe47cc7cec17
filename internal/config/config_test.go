package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: DEBUG
timezone: Europe/Berlin
engine:
  cache_ttl: 2m
  max_occurrences: 50
schedule:
  daily_agenda: "06:30"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, 2*time.Minute, cfg.Engine.CacheTTL)
	assert.Equal(t, 50, cfg.Engine.MaxOccurrences)
	assert.Equal(t, DefaultConfig().Engine.CacheMaxEntries, cfg.Engine.CacheMaxEntries)
	assert.Equal(t, "06:30", cfg.Schedule.DailyAgenda)
	assert.Equal(t, "*/10 * * * *", cfg.Schedule.CacheCleanup)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "caldora.db", cfg.Database.DSN)
	assert.Equal(t, 7, cfg.AgendaDays)
}

func TestLoad_EnvOverridesDatabase(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://cal@localhost/cal")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://cal@localhost/cal", cfg.Database.DSN)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [1, 2"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Tokyo"
	cfg.Engine.CacheDisabled = true
	cfg.Engine.OpenRangeDays = 90
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")

	assert.Error(t, Save(path, nil))
}

func TestConfig_EngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "America/New_York"
	cfg.Engine.OpenRangeDays = 10

	ec, err := cfg.EngineConfig(nil)
	require.NoError(t, err)
	assert.True(t, ec.CacheEnabled)
	assert.Equal(t, cfg.Engine.CacheTTL, ec.CacheConfig.TTL)
	assert.Equal(t, 10*24*time.Hour, ec.OpenRangeLimit)
	assert.Equal(t, "America/New_York", ec.Location.String())

	cfg.Timezone = "Mars/Olympus"
	_, err = cfg.EngineConfig(nil)
	assert.ErrorContains(t, err, "invalid timezone")
}

func TestConfig_Level(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	assert.Equal(t, "WARN", cfg.Level().String())

	cfg.LogLevel = "loud"
	cfg.Normalize()
	assert.Equal(t, "info", cfg.LogLevel)
}
