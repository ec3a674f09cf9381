package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
	"github.com/dmehra2102/storefront-engine/pkg/docstore/firestore"
	"github.com/dmehra2102/storefront-engine/pkg/docstore/postgres"
)

// OpenStore connects the document store selected by StoreDriver. Closing the
// returned store releases the underlying pool or client.
func OpenStore(ctx context.Context, log *slog.Logger, cfg Config) (docstore.Store, error) {
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("pg connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pg ping: %w", err)
		}
		store := postgres.NewStore(log, pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pg migrate: %w", err)
		}
		log.Info("postgres document store ready")
		return store, nil
	case DriverFirestore:
		store, err := firestore.New(ctx, log, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		log.Warn("using in-memory document store, data is lost on restart")
		return docstore.NewMemoryStore(), nil
	}
}

// Redis returns a client for RedisAddr, or nil when Redis is not configured.
func Redis(cfg Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}
