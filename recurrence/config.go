package recurrence

import (
	"io"
	"log/slog"
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// MaxOccurrences caps a single expansion (0 = unlimited).
	MaxOccurrences int
	// OpenRangeLimit bounds expansion of a window with no end.
	OpenRangeLimit time.Duration

	// Location is used for timed events that carry no time zone of their own.
	Location *time.Location

	// Logger receives parse failures. If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	MaxOccurrences: 1000,
	OpenRangeLimit: 365 * 24 * time.Hour * 2, // 2 years
}

// HighPerformanceConfig is optimized for high-traffic scenarios
var HighPerformanceConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:        30 * time.Minute, // Longer cache TTL
		MaxEntries: 5000,             // More cache entries
	},

	MaxOccurrences: 500,
	OpenRangeLimit: 365 * 24 * time.Hour,
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 100,
	},

	MaxOccurrences: 1000,
	OpenRangeLimit: 180 * 24 * time.Hour,
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,

	MaxOccurrences: 1000,
	OpenRangeLimit: 365 * 24 * time.Hour * 2,
}

// NewEngine creates a recurrence engine with DefaultEngineConfig.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig)
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig) *Engine {
	var cache *RecurrenceCache
	if config.CacheEnabled {
		cache = NewRecurrenceCache(config.CacheConfig)
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.OpenRangeLimit <= 0 {
		config.OpenRangeLimit = DefaultEngineConfig.OpenRangeLimit
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		cache:  cache,
		config: config,
		logger: logger,
	}
}
