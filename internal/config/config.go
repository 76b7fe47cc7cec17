package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyp0633/caldora-series/recurrence"
)

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the sqlite file path or the postgres connection string.
	DSN string `yaml:"dsn" json:"dsn"`
}

// EngineSettings tunes the recurrence engine.
type EngineSettings struct {
	CacheDisabled   bool          `yaml:"cache_disabled" json:"cache_disabled"`
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries" json:"cache_max_entries"`

	// MaxOccurrences caps a single expansion.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// OpenRangeDays bounds the expansion of a query without an end.
	OpenRangeDays int `yaml:"open_range_days" json:"open_range_days"`
}

// ScheduleConfig holds the background job schedules.
type ScheduleConfig struct {
	// CacheCleanup is a five-field cron spec (e.g. "*/10 * * * *").
	CacheCleanup string `yaml:"cache_cleanup" json:"cache_cleanup"`
	// DailyAgenda is the HH:MM local time the agenda is logged at.
	DailyAgenda string `yaml:"daily_agenda" json:"daily_agenda"`
}

// Config is the top-level configuration of the agenda command.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA zone used for timed events without a zone and for
	// agenda days (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	Engine   EngineSettings `yaml:"engine" json:"engine"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// AgendaDays is the number of days covered by the daily agenda.
	AgendaDays int `yaml:"agenda_days" json:"agenda_days"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Timezone: "UTC",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "caldora.db",
		},
		Engine: EngineSettings{
			CacheTTL:        recurrence.DefaultCacheConfig.TTL,
			CacheMaxEntries: recurrence.DefaultCacheConfig.MaxEntries,
			MaxOccurrences:  recurrence.DefaultEngineConfig.MaxOccurrences,
			OpenRangeDays:   730,
		},
		Schedule: ScheduleConfig{
			CacheCleanup: "*/10 * * * *",
			DailyAgenda:  "07:00",
		},
		AgendaDays: 7,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" && c.Database.Driver == def.Database.Driver {
		c.Database.DSN = def.Database.DSN
	}

	if c.Engine.CacheTTL <= 0 {
		c.Engine.CacheTTL = def.Engine.CacheTTL
	}
	if c.Engine.CacheMaxEntries <= 0 {
		c.Engine.CacheMaxEntries = def.Engine.CacheMaxEntries
	}
	if c.Engine.MaxOccurrences < 0 {
		c.Engine.MaxOccurrences = 0
	}
	if c.Engine.OpenRangeDays <= 0 {
		c.Engine.OpenRangeDays = def.Engine.OpenRangeDays
	}

	if c.Schedule.CacheCleanup == "" {
		c.Schedule.CacheCleanup = def.Schedule.CacheCleanup
	}
	if c.Schedule.DailyAgenda == "" {
		c.Schedule.DailyAgenda = def.Schedule.DailyAgenda
	}
	if c.AgendaDays <= 0 {
		c.AgendaDays = def.AgendaDays
	}
}

// applyEnv lets the deployment override the database without editing the file.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DATABASE_DRIVER")); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.Database.DSN = v
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// EngineConfig maps the engine settings onto a recurrence engine configuration.
func (c *Config) EngineConfig(logger *slog.Logger) (recurrence.EngineConfig, error) {
	loc, err := c.Location()
	if err != nil {
		return recurrence.EngineConfig{}, err
	}
	return recurrence.EngineConfig{
		CacheEnabled: !c.Engine.CacheDisabled,
		CacheConfig: recurrence.CacheConfig{
			TTL:        c.Engine.CacheTTL,
			MaxEntries: c.Engine.CacheMaxEntries,
		},
		MaxOccurrences: c.Engine.MaxOccurrences,
		OpenRangeLimit: time.Duration(c.Engine.OpenRangeDays) * 24 * time.Hour,
		Location:       loc,
		Logger:         logger,
	}, nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned. DATABASE_DRIVER and DATABASE_URL override the
// database section either way.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.applyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".caldora-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
