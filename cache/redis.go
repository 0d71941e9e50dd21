// cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/harborgrid-justin/lithic-sub009/config"
	logger "github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
)

const redisKeyPrefix = "decision:"

// RedisCache is a DecisionCache backed by Redis, for deployments where
// several evaluator processes should share one decision cache. Expiry is
// server-side TTL, so Cleanup is a no-op.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   int64
	misses int64
}

var _ DecisionCache = (*RedisCache)(nil)

func NewRedisCache(cfg config.RedisConfiguration, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.EvaluationResult, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if err != nil {
		logger.Warn("Redis cache read failed", zap.Error(err), zap.String("key", key))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var result model.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warn("Corrupt cached decision, dropping", zap.Error(err), zap.String("key", key))
		c.client.Del(ctx, redisKeyPrefix+key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result *model.EvaluationResult) {
	if result == nil || !result.Allowed {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warn("Failed to marshal decision for cache", zap.Error(err), zap.String("key", key))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		logger.Warn("Redis cache write failed", zap.Error(err), zap.String("key", key))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) {
	pattern := redisKeyPrefix + userPrefix(userID) + "*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Error("Redis cache invalidation scan failed", zap.Error(err), zap.String("userId", userID))
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			logger.Error("Redis cache invalidation delete failed", zap.Error(err), zap.String("userId", userID))
		}
	}
}

// Cleanup is a no-op: Redis expires entries server-side.
func (c *RedisCache) Cleanup(ctx context.Context) int {
	return 0
}

func (c *RedisCache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	stats := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.Size = int(n)
	}
	return stats
}

func (c *RedisCache) Close() {
	if err := c.client.Close(); err != nil {
		logger.Error("Error closing Redis connection", zap.Error(err))
	}
}
