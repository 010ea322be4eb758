// Package bootstrap assembles the storage runtime (database, Redis, entity
// store) shared by the server and the command-line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"diary/internal/cache"
	"diary/internal/config"
	"diary/internal/database"
	"diary/internal/middleware"
	"diary/internal/repository"
	"diary/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development store with generated users and entries.
	SeedDemo bool
}

// Runtime is the storage wiring selected by STORAGE_DRIVER.
type Runtime struct {
	// DB is nil for the memory driver.
	DB *gorm.DB
	// Redis is nil when REDIS_URL is empty or unreachable.
	Redis *redis.Client
	Store repository.Store
}

// InitRuntime connects to the configured database and Redis and builds the store.
func InitRuntime(cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{}

	if cfg.StorageDriver != config.StorageMemory {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.DB = db
	}

	// may leave a nil client if unreachable
	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	rt.Store = NewStore(cfg, rt.DB, rt.Redis)

	if opts.SeedDemo {
		if err := seedDemo(cfg, rt.Store); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	middleware.Logger.Info("runtime initialized",
		slog.String("storage", cfg.StorageDriver),
		slog.Bool("redis", rt.Redis != nil),
	)
	return rt, nil
}

// NewStore picks the store for the driver. Database stores get a Redis read
// cache when a client is available.
func NewStore(cfg *config.Config, db *gorm.DB, rdb *redis.Client) repository.Store {
	if db == nil {
		return repository.NewMemoryStore()
	}
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return repository.NewGormStore(db, cache.New(rdb, ttl))
}

func seedDemo(cfg *config.Config, store repository.Store) error {
	if cfg.IsProduction() {
		return errors.New("demo seeding is disabled in production")
	}
	ctx := context.Background()
	existing, err := store.GetUserByUsername(ctx, "demo_1")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = seed.Demo(ctx, store, seed.Options{Users: 3, EntriesPerUser: 5, UsernamePrefix: "demo"})
	return err
}

// Close releases the database pool and Redis client.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.DB != nil {
		errs = append(errs, database.Close(rt.DB))
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	return errors.Join(errs...)
}
