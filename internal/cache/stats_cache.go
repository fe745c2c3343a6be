package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keys for aggregate payloads. All are invalidated together on any
// product write.
const (
	KeyDashboard = "stats:dashboard"
	KeyAnalytics = "stats:analytics"
)

// StatsCache caches JSON-serialized aggregate payloads with a short TTL so
// that dashboard refreshes do not hammer the database.
type StatsCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewStatsCache creates a StatsCache with the given TTL.
func NewStatsCache(redis *RedisClient, ttl time.Duration) *StatsCache {
	return &StatsCache{redis: redis, ttl: ttl}
}

// Get loads a cached payload into dest. The second return value reports a hit.
func (c *StatsCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.redis.Get(ctx, key)
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stats cache get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("stats cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores a payload under key with the configured TTL.
func (c *StatsCache) Set(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stats cache encode %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, string(raw), c.ttl); err != nil {
		return fmt.Errorf("stats cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops all aggregate keys.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.redis.Delete(ctx, KeyDashboard, KeyAnalytics)
}
