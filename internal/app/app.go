// Package app opens the storage backends described by the configuration.
// Both binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ssugameworks/invest-system-backend/internal/config"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// Backend is an opened store plus the resources behind it.
type Backend struct {
	Store store.Store
	// Pool is nil for the in-memory store.
	Pool *pgxpool.Pool

	cleanup []func()
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		b.cleanup[i]()
	}
}

// Open connects to PostgreSQL when db.url is set, applying the schema if
// db.migrate is on, and wraps it with the Redis cache when redis.url is set.
// Without db.url it falls back to the in-memory store.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	if cfg.DB.URL == "" {
		logger.Warn("db.url not set, using in-memory store (data will not persist)")
		b.Store = store.NewMemoryStore()
		return b, nil
	}

	pool, err := store.Connect(ctx, cfg.DB.URL, cfg.DB.MaxConns, cfg.DB.MinConns)
	if err != nil {
		return nil, err
	}
	b.Pool = pool
	b.cleanup = append(b.cleanup, pool.Close)
	logger.Info("connected to PostgreSQL")

	if cfg.DB.Migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		logger.Info("schema migrated")
	}
	b.Store = store.NewPostgresStore(pool)

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("invalid redis.url: %w", err)
		}
		rdb := redis.NewClient(opt)
		b.cleanup = append(b.cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, cache reads will fall through", "err", err)
		}
		b.Store = store.NewCachedStore(b.Store, rdb, cfg.Redis.CacheTTL)
		logger.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL)
	}
	return b, nil
}
