package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/tasktrail-api/internal/cache"
	"github.com/phrazzld/tasktrail-api/internal/config"
	redisstore "github.com/phrazzld/tasktrail-api/internal/platform/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory", func(t *testing.T) {
		app := &application{config: &config.Config{Cache: config.CacheConfig{Driver: "memory"}}, logger: logger}
		store, err := app.setupCache(context.Background())
		require.NoError(t, err)
		assert.IsType(t, &cache.MemoryStore{}, store)
		assert.Same(t, store, app.memoryCache)
		assert.Nil(t, app.redisClient)
		app.memoryCache.Stop()
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		app := &application{
			config: &config.Config{
				Cache: config.CacheConfig{Driver: "redis"},
				Redis: config.RedisConfig{Addr: mr.Addr()},
			},
			logger: logger,
		}
		store, err := app.setupCache(context.Background())
		require.NoError(t, err)
		assert.IsType(t, &redisstore.CacheStore{}, store)
		require.NotNil(t, app.redisClient)

		app.cleanup()
	})

	t.Run("redis unreachable", func(t *testing.T) {
		app := &application{
			config: &config.Config{
				Cache: config.CacheConfig{Driver: "redis"},
				Redis: config.RedisConfig{Addr: "127.0.0.1:1"},
			},
			logger: logger,
		}
		_, err := app.setupCache(context.Background())
		assert.Error(t, err)
	})
}
