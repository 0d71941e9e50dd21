// cache/memory.go
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	logger "github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
)

type memoryEntry struct {
	result    *model.EvaluationResult
	expiresAt time.Time
}

// MemoryCache is the default DecisionCache: a TTL-bounded map guarded by
// a single RWMutex, swept by its own goroutine so expired entries are
// reclaimed without blocking foreground reads.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	hits   int64
	misses int64

	stop chan struct{}
	once sync.Once
}

var _ DecisionCache = (*MemoryCache)(nil)

// NewMemoryCache starts the sweep goroutine immediately. Close stops it.
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.sweep(cleanupInterval)
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*model.EvaluationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	result := *entry.result
	return &result, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, result *model.EvaluationResult) {
	if result == nil || !result.Allowed {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r := *result
	c.entries[key] = memoryEntry{result: &r, expiresAt: time.Now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(ctx context.Context, userID string) {
	prefix := userPrefix(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) Cleanup(ctx context.Context) int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.Cleanup(context.Background()); removed > 0 {
				logger.Debug("Decision cache sweep", zap.Int("removed", removed))
			}
		case <-c.stop:
			return
		}
	}
}
