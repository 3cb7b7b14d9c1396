// Package redis implements cache.Store on top of a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/tasktrail-api/internal/cache"
	"github.com/phrazzld/tasktrail-api/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN while collecting keys.
const scanCount = 100

// NewClient builds a go-redis client from configuration and checks that the
// server answers PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// CacheStore is a cache.Store backed by Redis.
type CacheStore struct {
	client goredis.UniversalClient
}

// NewCacheStore wraps an existing client.
func NewCacheStore(client goredis.UniversalClient) *CacheStore {
	return &CacheStore{client: client}
}

var _ cache.Store = (*CacheStore)(nil)

// Get implements cache.Store.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

// Set implements cache.Store. A non-positive ttl stores the key without expiry.
func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Del implements cache.Store.
func (s *CacheStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys implements cache.Store using SCAN rather than KEYS so large keyspaces
// do not block the server.
func (s *CacheStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %q: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
