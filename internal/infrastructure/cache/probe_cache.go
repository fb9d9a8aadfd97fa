package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/privatefit/vodcache/internal/domain/repository"
)

const probeCacheKeyPrefix = "probe:"

// probeJSON is the JSON representation of a ProbeResult for caching.
type probeJSON struct {
	Codec string `json:"codec"`
}

// RedisProbeCache implements repository.ProbeCache using Redis to memoize
// ffprobe results keyed by source fingerprint (path + mtime), so an
// unchanged file is not re-probed until its entry's TTL runs out.
type RedisProbeCache struct {
	client *redis.Client
}

func NewRedisProbeCache(client *redis.Client) *RedisProbeCache {
	return &RedisProbeCache{client: client}
}

var _ repository.ProbeCache = (*RedisProbeCache)(nil)

// Get retrieves a cached probe result. Returns nil, nil on a cache miss.
func (c *RedisProbeCache) Get(ctx context.Context, fingerprint string) (*repository.ProbeResult, error) {
	data, err := c.client.Get(ctx, c.buildKey(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var v probeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("deserialize probe result: %w", err)
	}

	return &repository.ProbeResult{Codec: v.Codec}, nil
}

// Set stores a probe result with the given TTL.
func (c *RedisProbeCache) Set(ctx context.Context, fingerprint string, result repository.ProbeResult, ttl time.Duration) error {
	data, err := json.Marshal(probeJSON{Codec: result.Codec})
	if err != nil {
		return fmt.Errorf("serialize probe result: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (c *RedisProbeCache) buildKey(fingerprint string) string {
	return probeCacheKeyPrefix + fingerprint
}
