package repositories

import (
	"context"

	"pttrelay/internal/core/ports"
	"pttrelay/internal/infrastructure/repositories/memory"
	redisrepo "pttrelay/internal/infrastructure/repositories/redis"
	"pttrelay/pkg/circuitbreaker"
	"pttrelay/pkg/config"
	"pttrelay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	prefix      string
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled and falls back to
// in-memory repositories when it is unreachable.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		prefix:   cfg.Redis.KeyPrefix,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Retry:     retry.DefaultConfig(),
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateChannelRepository returns the roster store. A Redis roster is
// cleared first since it can only describe connections of this process.
func (f *RepositoryFactory) CreateChannelRepository(ctx context.Context) (ports.ChannelRepository, error) {
	if f.useRedis && f.redisClient != nil {
		repo := redisrepo.NewRedisChannelRepository(f.redisClient, f.prefix)
		n, err := repo.Reset(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			f.logger.Infow("cleared stale channel rosters", "channels", n)
		}
		return repo, nil
	}
	return memory.NewMemoryChannelRepository(), nil
}

// CreateAudioIndex returns the audio index. The Redis index sits behind a
// circuit breaker.
func (f *RepositoryFactory) CreateAudioIndex() ports.AudioIndex {
	if f.useRedis && f.redisClient != nil {
		return NewGuardedAudioIndex(
			redisrepo.NewRedisAudioIndex(f.redisClient, f.prefix),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewMemoryAudioIndex()
}

// RedisClient returns the live client or nil when running on memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		err := redisrepo.CloseRedisClient(f.redisClient)
		f.redisClient = nil
		return err
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
