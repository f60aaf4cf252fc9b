package redis

import (
	"context"
	"testing"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/pkg/retry"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPrefix = "test:"

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Options{
		Address:   mr.Addr(),
		PoolSize:  2,
		KeyPrefix: testPrefix,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewRedisClient_RunsMigrations(t *testing.T) {
	_, mr := newTestClient(t)

	v, err := mr.Get(testPrefix + "schema:version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.True(t, mr.Exists(testPrefix+"channel:seq"))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 1
	cfg.InitialDelay = time.Millisecond

	_, err := NewRedisClient(context.Background(), Options{
		Address:  "127.0.0.1:1",
		PoolSize: 1,
		Retry:    cfg,
	}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestRedisChannelRepository_Roster(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewRedisChannelRepository(client, testPrefix)
	ctx := context.Background()
	ch := domain.ChannelID("freq-446.00")

	added, err := repo.AddMember(ctx, ch, "a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddMember(ctx, ch, "a")
	require.NoError(t, err)
	assert.False(t, added, "second join must not duplicate membership")

	_, err = repo.AddMember(ctx, ch, "b")
	require.NoError(t, err)

	members, err := repo.Members(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"a", "b"}, members)

	ok, err := repo.IsMember(ctx, ch, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChannelSummary{{ID: ch, Members: 2}}, channels)
}

func TestRedisChannelRepository_RemoveDeletesEmptyChannel(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewRedisChannelRepository(client, testPrefix)
	ctx := context.Background()
	ch := domain.ChannelID("freq-446.00")

	_, _ = repo.AddMember(ctx, ch, "a")

	removed, remaining, err := repo.RemoveMember(ctx, ch, "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, remaining)

	removed, remaining, err = repo.RemoveMember(ctx, ch, "a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, remaining)

	assert.False(t, mr.Exists(testPrefix+"channel:freq-446.00:members"))
	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestRedisChannelRepository_Reset(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewRedisChannelRepository(client, testPrefix)
	ctx := context.Background()

	_, _ = repo.AddMember(ctx, "freq-1.00", "a")
	_, _ = repo.AddMember(ctx, "freq-2.00", "a")

	n, err := repo.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestRedisAudioIndex(t *testing.T) {
	client, _ := newTestClient(t)
	idx := NewRedisAudioIndex(client, testPrefix)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000).UTC()

	require.NoError(t, idx.Put(ctx, &domain.AudioObject{Name: "old.m4a", Size: 10, CreatedAt: base, ChannelID: "freq-446.00"}))
	require.NoError(t, idx.Put(ctx, &domain.AudioObject{Name: "new.m4a", Size: 20, CreatedAt: base.Add(time.Minute)}))

	got, err := idx.Get(ctx, "old.m4a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Size)
	assert.Equal(t, domain.ChannelID("freq-446.00"), got.ChannelID)
	assert.True(t, got.CreatedAt.Equal(base))

	expired, err := idx.CreatedBefore(ctx, base.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old.m4a", expired[0].Name)

	// cutoff is exclusive
	expired, err = idx.CreatedBefore(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, idx.Delete(ctx, "old.m4a"))
	_, err = idx.Get(ctx, "old.m4a")
	assert.ErrorIs(t, err, domain.ErrAudioNotFound)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
