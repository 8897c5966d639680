// Package factory builds the configured storage backend. The driver name in
// the config selects among the interchangeable implementations.
package factory

import (
	"context"
	"fmt"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/storage"
	"github.com/parlorhq/parlor/internal/storage/memory"
	"github.com/parlorhq/parlor/internal/storage/mongo"
	"github.com/parlorhq/parlor/internal/storage/postgres"
	"github.com/parlorhq/parlor/internal/storage/redis"
)

// Open builds the Store named by cfg.StorageDriver.
func Open(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.Connect(ctx, cfg.PostgresURL)
	case "mongo":
		return mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "redis":
		return redis.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
