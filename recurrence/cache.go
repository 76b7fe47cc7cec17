package recurrence

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// CacheEntry represents a cached expansion result
type CacheEntry struct {
	Starts     []time.Time
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// RecurrenceCache memoizes expansion results per (series, window). Expired and
// least recently used entries are dropped when the cache grows past its limit
// or when Cleanup is called.
type RecurrenceCache struct {
	entries    map[string]*CacheEntry
	mutex      sync.RWMutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// CacheConfig holds configuration for the recurrence cache
type CacheConfig struct {
	TTL        time.Duration // How long entries stay valid
	MaxEntries int           // Maximum number of entries before cleanup
}

// DefaultCacheConfig provides sensible defaults for recurrence caching
var DefaultCacheConfig = CacheConfig{
	TTL:        15 * time.Minute, // Cache results for 15 minutes
	MaxEntries: 1000,             // Keep up to 1000 cached results
}

// NewRecurrenceCache creates a new recurrence cache with the given configuration
func NewRecurrenceCache(config CacheConfig) *RecurrenceCache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	return &RecurrenceCache{
		entries:    make(map[string]*CacheEntry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        time.Now,
	}
}

// cacheKey identifies one expansion request.
type cacheKey struct {
	MasterStart time.Time
	MasterEnd   time.Time
	AllDay      bool
	Rule        string
	Exceptions  string
	Zone        string
	RangeStart  time.Time
	RangeEnd    time.Time
}

func (k cacheKey) hash() string {
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%s|%s|%t|%s|%s|%s|%s|%s",
		k.MasterStart.UTC().Format(time.RFC3339Nano),
		k.MasterEnd.UTC().Format(time.RFC3339Nano),
		k.AllDay, k.Rule, k.Exceptions, k.Zone,
		k.RangeStart.UTC().Format(time.RFC3339Nano),
		k.RangeEnd.UTC().Format(time.RFC3339Nano))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// get retrieves a cached result if it exists and hasn't expired
func (c *RecurrenceCache) get(key cacheKey) ([]time.Time, bool) {
	h := key.hash()
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[h]
	if !ok {
		return nil, false
	}
	if now.After(entry.ExpiresAt) {
		delete(c.entries, h)
		return nil, false
	}
	entry.AccessedAt = now
	return slices.Clone(entry.Starts), true
}

// set stores a result in the cache
func (c *RecurrenceCache) set(key cacheKey, starts []time.Time) {
	now := c.now()
	entry := &CacheEntry{
		Starts:     slices.Clone(starts),
		ExpiresAt:  now.Add(c.ttl),
		AccessedAt: now,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key.hash()] = entry
	if len(c.entries) > c.maxEntries {
		c.cleanup(now)
	}
}

// Cleanup drops expired entries.
func (c *RecurrenceCache) Cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cleanup(c.now())
}

// cleanup removes expired entries and oldest entries if over limit
func (c *RecurrenceCache) cleanup(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	keys := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		keys = append(keys, keyAccess{key: key, accessedAt: entry.AccessedAt})
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].accessedAt.Before(keys[j].accessedAt)
	})

	excess := len(c.entries) - c.maxEntries
	for i := 0; i < excess; i++ {
		delete(c.entries, keys[i].key)
	}
}

// Clear removes every entry.
func (c *RecurrenceCache) Clear() {
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *RecurrenceCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	expired := 0
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired++
		}
	}

	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}

// CacheStats provides information about cache performance
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
