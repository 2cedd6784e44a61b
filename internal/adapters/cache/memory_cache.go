package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

type memoryEntry struct {
	entry      *core.CacheEntry
	purgeAfter time.Time
}

// MemoryCache is an in-memory implementation of the SnapshotRepository interface
type MemoryCache struct {
	entries     map[string]memoryEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
	now         func() time.Time
}

// NewMemoryCache creates a new in-memory snapshot cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq, retention time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]memoryEntry),
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache
}

// Get retrieves the snapshot stored under key
func (c *MemoryCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return stored.entry, nil
}

// Set stores a snapshot, replacing the previous one
func (c *MemoryCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Key] = memoryEntry{
		entry:      entry,
		purgeAfter: purgeAfter(entry, c.retention),
	}
	return nil
}

// Delete removes a snapshot
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Cleanup removes snapshots past their retention
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for key, stored := range c.entries {
		if !now.Before(stored.purgeAfter) {
			delete(c.entries, key)
			purged++
		}
	}

	c.logger.Debug("Cleaned up expired snapshots", zap.Int("purged_count", purged))
	return nil
}

func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up snapshots", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	close(c.stopCh)
}
