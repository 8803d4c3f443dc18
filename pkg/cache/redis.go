package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the connection settings for a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces this store's keys within the database.
	// Defaults to "weather:".
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore is a Store backed by Redis, for deployments where several
// processes share one cache. Values are stored as JSON and expiry is
// enforced by Redis itself, so GetIfFresh never observes a stale value.
// Capacity bounding is delegated to the server's configured eviction policy.
type RedisStore[V any] struct {
	client *redis.Client
	logger zerolog.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and pings it before returning.
func NewRedisStore[V any](ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore[V], error) {
	if cfg.TTL <= 0 {
		return nil, weather.NewError(weather.CodeInvalidConfiguration, "cache TTL must be positive, got %s", cfg.TTL)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "weather:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore[V]{
		client: rdb,
		logger: logger.With().Str("component", "RedisStore").Logger(),
		prefix: prefix,
		ttl:    cfg.TTL,
	}, nil
}

// GetIfFresh reads the value for city. A missing key is a plain miss; Redis
// has already removed anything older than the TTL.
func (s *RedisStore[V]) GetIfFresh(ctx context.Context, city string) (V, bool, error) {
	var zero V
	key := s.key(city)

	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get for %s: %w", key, err)
	}

	var value V
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached value.")
		return zero, false, fmt.Errorf("unmarshal cached value for %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores the value under the city key with the configured TTL.
func (s *RedisStore[V]) Put(ctx context.Context, city string, value V) error {
	key := s.key(city)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set for %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes the entry for city. Deleting an absent key succeeds.
func (s *RedisStore[V]) Invalidate(ctx context.Context, city string) error {
	if err := s.client.Del(ctx, s.key(city)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key under this store's prefix.
func (s *RedisStore[V]) Clear(ctx context.Context) error {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del during clear: %w", err)
	}
	return nil
}

// Keys returns the cached city keys. Order is unspecified for this backend.
func (s *RedisStore[V]) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	return keys, nil
}

// Close closes the Redis client connection.
func (s *RedisStore[V]) Close() error {
	s.logger.Info().Msg("Closing Redis client connection...")
	return s.client.Close()
}

func (s *RedisStore[V]) key(city string) string {
	return s.prefix + weather.NormalizeCity(city)
}

// scanKeys walks the keyspace under the prefix with SCAN, returning the raw
// (still prefixed) key names.
func (s *RedisStore[V]) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
