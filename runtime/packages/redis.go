package packages

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares one lazily-refreshed installed-package list across every
// orchestrator process pointed at the same Redis instance, so a multi-process
// deployment refetches from the executor once per TTL window total instead of
// once per process.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	fetch  Fetcher
}

// NewRedisCache builds a RedisCache storing its list under key, refreshing
// via fetch whenever the key has expired or is absent.
func NewRedisCache(client *redis.Client, key string, ttl time.Duration, fetch Fetcher) *RedisCache {
	return &RedisCache{client: client, key: key, ttl: ttl, fetch: fetch}
}

// Get returns the shared package list, refreshing it via fetch when the
// Redis-held copy is missing or expired. A Redis error other than "key not
// found" falls through to a direct fetch rather than failing the caller.
func (c *RedisCache) Get(ctx context.Context) ([]string, error) {
	data, err := c.client.Get(ctx, c.key).Result()
	if err == nil {
		var pkgs []string
		if jsonErr := json.Unmarshal([]byte(data), &pkgs); jsonErr == nil {
			return pkgs, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return c.refreshWithoutCaching(ctx)
	}

	return c.refresh(ctx)
}

func (c *RedisCache) refresh(ctx context.Context) ([]string, error) {
	pkgs, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(pkgs)
	if err == nil {
		_ = c.client.Set(ctx, c.key, encoded, c.ttl).Err()
	}
	return pkgs, nil
}

func (c *RedisCache) refreshWithoutCaching(ctx context.Context) ([]string, error) {
	return c.fetch(ctx)
}
