package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Migration is one schema step. Keys are namespaced by prefix.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client, prefix string) error
}

func migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client, prefix string) error {
				// join order counter for roster sorted sets
				return client.SetNX(ctx, prefix+"channel:seq", 0, 0).Err()
			},
		},
	}
}

func schemaVersionKey(prefix string) string {
	return prefix + "schema:version"
}

// Migrate runs all pending migrations
func Migrate(ctx context.Context, client *redis.Client, prefix string, logger *zap.SugaredLogger) error {
	current, err := client.Get(ctx, schemaVersionKey(prefix)).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations() {
		if m.Version <= current {
			continue
		}

		logger.Infow("running migration", "version", m.Version)
		if err := m.Up(ctx, client, prefix); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey(prefix), m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		current = m.Version
		applied++
	}

	if applied == 0 {
		logger.Debugw("schema is up to date", "version", current)
	}
	return nil
}
