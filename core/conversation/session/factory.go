package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/swiftline/courierbot/core/config"
)

// Open creates a Store for the configured backend. The sqlx handle may be
// nil unless the backend is postgres.
func Open(cfg coreconfig.StoreConfig, db *sqlx.DB) (Store, error) {
	switch cfg.Backend {
	case coreconfig.StoreMemory:
		return NewMemoryStore(), nil
	case coreconfig.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres session store requires a database connection")
		}
		return NewPostgresStore(db), nil
	case coreconfig.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", cfg.Backend)
	}
}
