package repositories

import (
	"context"
	"testing"

	"pttrelay/internal/infrastructure/repositories/memory"
	redisrepo "pttrelay/internal/infrastructure/repositories/redis"
	"pttrelay/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := context.Background()

	f, err := NewRepositoryFactory(ctx, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	repo, err := f.CreateChannelRepository(ctx)
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryChannelRepository{}, repo)
	assert.IsType(t, &memory.MemoryAudioIndex{}, f.CreateAudioIndex())
	assert.Nil(t, f.RedisClient())
	assert.NoError(t, f.HealthCheck(ctx))
}

func TestRepositoryFactory_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()
	ctx := context.Background()

	// leftover roster from a previous process
	require.NoError(t, mr.Set("pttrelay:schema:version", "1"))
	_, err := mr.SAdd("pttrelay:channels", "freq-446.00")
	require.NoError(t, err)
	_, err = mr.ZAdd("pttrelay:channel:freq-446.00:members", 1, "stale")
	require.NoError(t, err)

	f, err := NewRepositoryFactory(ctx, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	repo, err := f.CreateChannelRepository(ctx)
	require.NoError(t, err)
	assert.IsType(t, &redisrepo.RedisChannelRepository{}, repo)
	assert.IsType(t, &GuardedAudioIndex{}, f.CreateAudioIndex())
	assert.NotNil(t, f.RedisClient())

	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
	assert.NoError(t, f.HealthCheck(ctx))
}

func TestRepositoryFactory_RedisUnreachableFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = addr
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip retry waits

	f, err := NewRepositoryFactory(ctx, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	repo, err := f.CreateChannelRepository(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryChannelRepository{}, repo)
}
