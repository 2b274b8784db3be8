package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/recall/pkg/search"
)

// DefaultKeyPrefix namespaces cache keys in a shared Redis.
const DefaultKeyPrefix = "recall:cache:"

// RedisConfig configures the shared cache.
type RedisConfig struct {
	KeyPrefix string
	TTL       time.Duration
	// ScanCount is the SCAN batch size used by Purge.
	ScanCount int64
}

// DefaultRedisConfig returns a five-minute TTL under DefaultKeyPrefix.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix: DefaultKeyPrefix,
		TTL:       5 * time.Minute,
		ScanCount: 500,
	}
}

// Redis is a cache shared between processes.
type Redis struct {
	client   redis.UniversalClient
	cfg      RedisConfig
	recorder Recorder
}

// NewRedis wraps client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, rec Recorder) *Redis {
	def := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = def.ScanCount
	}
	return &Redis{client: client, cfg: cfg, recorder: rec}
}

// NewRedisClient creates a Redis client from the given options.
func NewRedisClient(opts *redis.Options) *redis.Client {
	return redis.NewClient(opts)
}

// Ping checks the connection.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Get(ctx context.Context, key string) ([]search.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.cfg.KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record("miss")
		return nil, false, nil
	}
	if err != nil {
		c.record("error")
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var results []search.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		c.record("error")
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	c.record("hit")
	return results, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, results []search.Result) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.cfg.KeyPrefix+key, raw, c.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Redis) Purge(ctx context.Context, strategy string) error {
	pattern := c.cfg.KeyPrefix + "*"
	if strategy != "" {
		pattern = c.cfg.KeyPrefix + strategy + ":*"
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, c.cfg.ScanCount).Result()
		if err != nil {
			return fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache purge: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) record(result string) {
	if c.recorder != nil {
		c.recorder.RecordCacheRequest(result)
	}
}
