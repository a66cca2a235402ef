package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/maintenance-gate/internal/config"
	"github.com/maintenance-gate/internal/db"
	"github.com/maintenance-gate/internal/maintenance"
)

// Open builds the shared store selected by cfg.Backend. The returned close
// function releases connections and is never nil. The none backend yields a
// nil store, leaving the gate with local state only.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (maintenance.Store, func(), error) {
	noop := func() {}
	logger = logger.With(zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.BackendNone, "":
		logger.Info("no shared maintenance store configured")
		return nil, noop, nil
	case config.BackendMemory:
		return NewMemoryStore(), noop, nil
	case config.BackendFile:
		logger.Info("using file maintenance store", zap.String("path", cfg.StateFile))
		return NewFileStore(cfg.StateFile), noop, nil
	case config.BackendRedis:
		s, err := NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using redis maintenance store", zap.String("addr", cfg.Redis.Addr))
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing redis", zap.Error(err))
			}
		}, nil
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, fmt.Errorf("db connect: %w", err)
		}
		if err := db.ApplyMigrations(ctx, pool, db.Migrations, "migrations"); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("using postgres maintenance store", zap.String("host", cfg.Postgres.Host))
		return NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
