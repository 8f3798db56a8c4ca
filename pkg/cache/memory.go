package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCacheConfig holds in-memory cache configuration
type MemoryCacheConfig struct {
	SweepInterval time.Duration // How often expired entries are reclaimed
}

// DefaultMemoryCacheConfig returns default configuration
func DefaultMemoryCacheConfig() *MemoryCacheConfig {
	return &MemoryCacheConfig{
		SweepInterval: 1 * time.Minute,
	}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process ResponseCache. Expired entries are evicted
// lazily on read and in bulk by the background sweeper, so memory for keys
// that are never re-read is still reclaimed.
type MemoryCache struct {
	config *MemoryCacheConfig
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry

	hits   atomic.Uint64
	misses atomic.Uint64

	runMu     sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}

	now func() time.Time
}

// NewMemoryCache creates a new in-memory response cache
func NewMemoryCache(config *MemoryCacheConfig, logger *slog.Logger) *MemoryCache {
	if config == nil {
		config = DefaultMemoryCacheConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &MemoryCache{
		config:    config,
		logger:    logger,
		entries:   make(map[string]entry),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		now:       time.Now,
	}
}

// Get returns the cached value for key, or a miss if absent or expired.
// An expired entry is evicted on the spot.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}

	if !c.now().Before(e.expiresAt) {
		// A writer may have refreshed the key since the read, so recheck
		// expiry under the write lock before evicting.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return e.value, true, nil
}

// Set stores value under key for the given TTL. A non-positive TTL stores
// nothing.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Stats returns a snapshot of cache counters
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Start starts the background sweeper that reclaims expired entries
func (c *MemoryCache) Start(ctx context.Context) error {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return fmt.Errorf("cache sweeper already running")
	}
	c.running = true
	c.runMu.Unlock()

	c.logger.Info("Starting cache sweeper", "interval", c.config.SweepInterval)

	go c.run(ctx)
	return nil
}

// Stop stops the background sweeper
func (c *MemoryCache) Stop() error {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return fmt.Errorf("cache sweeper not running")
	}
	c.runMu.Unlock()

	close(c.stopCh)
	<-c.stoppedCh

	c.runMu.Lock()
	c.running = false
	c.runMu.Unlock()

	c.logger.Info("Cache sweeper stopped")
	return nil
}

// run is the sweeper loop
func (c *MemoryCache) run(ctx context.Context) {
	defer close(c.stoppedCh)

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep reclaims all expired entries
func (c *MemoryCache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("Cache reclaimed expired entries",
			"removed", removed,
			"remaining", len(c.entries),
		)
	}
}
