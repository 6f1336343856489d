package faststore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tutorcore/internal/config"
	"tutorcore/internal/logging"
)

// incrWithCeilingScript applies the increment atomically so that concurrent
// consumers cannot push a counter past its ceiling.
// KEYS[1] = counter key
// ARGV[1] = delta
// ARGV[2] = ceiling
// ARGV[3] = ttl in seconds (applied only when the key is created)
var incrWithCeilingScript = redis.NewScript(`
local key = KEYS[1]
local delta = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key))
local created = false
if not current then
    current = 0
    created = true
end

if current + delta > ceiling then
    return {current, 0}
end

current = redis.call("INCRBY", key, delta)
if created and ttl > 0 then
    redis.call("EXPIRE", key, ttl)
end

return {current, 1}
`)

// RedisStore implements Store on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using the fast store configuration.
func NewRedisStore(cfg config.FastStoreConfig) *RedisStore {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil || dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	logging.Store("Redis fast store configured: addr=%s db=%d", cfg.Addr, cfg.DB)
	return &RedisStore{client: client}
}

// Get returns the value for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// IncrWithCeiling atomically increments the counter unless it would exceed
// the ceiling.
func (s *RedisStore) IncrWithCeiling(ctx context.Context, key string, delta, ceiling int64, ttl time.Duration) (int64, bool, error) {
	res, err := incrWithCeilingScript.Run(ctx, s.client, []string{key},
		delta, ceiling, int64(ttl.Seconds())).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis incr %s: %w", key, err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return 0, false, fmt.Errorf("invalid response from lua script")
	}
	current, _ := results[0].(int64)
	applied, _ := results[1].(int64)
	return current, applied == 1, nil
}

// GetCounter returns the current counter value, zero when missing.
func (s *RedisStore) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get counter %s: %w", key, err)
	}
	return val, nil
}

// Expire resets the TTL on key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
