package memory

import (
	"context"
	"sync"
	"testing"

	"pttrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannelRepository_AddIsIdempotent(t *testing.T) {
	repo := NewMemoryChannelRepository()
	ctx := context.Background()
	ch := domain.ChannelID("freq-446.00")

	added, err := repo.AddMember(ctx, ch, "a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddMember(ctx, ch, "a")
	require.NoError(t, err)
	assert.False(t, added)

	members, err := repo.Members(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"a"}, members)
}

func TestMemoryChannelRepository_MembersInJoinOrder(t *testing.T) {
	repo := NewMemoryChannelRepository()
	ctx := context.Background()
	ch := domain.ChannelID("freq-446.00")

	for _, id := range []domain.ConnectionID{"c", "a", "b"} {
		_, err := repo.AddMember(ctx, ch, id)
		require.NoError(t, err)
	}

	members, err := repo.Members(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"c", "a", "b"}, members)
}

func TestMemoryChannelRepository_RemoveDeletesEmptyChannel(t *testing.T) {
	repo := NewMemoryChannelRepository()
	ctx := context.Background()
	ch := domain.ChannelID("freq-446.00")

	_, _ = repo.AddMember(ctx, ch, "a")
	_, _ = repo.AddMember(ctx, ch, "b")

	removed, remaining, err := repo.RemoveMember(ctx, ch, "a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, remaining)

	removed, remaining, err = repo.RemoveMember(ctx, ch, "b")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, remaining)

	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestMemoryChannelRepository_RemoveNonMember(t *testing.T) {
	repo := NewMemoryChannelRepository()
	ctx := context.Background()

	removed, remaining, err := repo.RemoveMember(ctx, "freq-1.00", "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 0, remaining)

	_, _ = repo.AddMember(ctx, "freq-1.00", "a")
	removed, remaining, err = repo.RemoveMember(ctx, "freq-1.00", "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, remaining)
}

func TestMemoryChannelRepository_ListChannels(t *testing.T) {
	repo := NewMemoryChannelRepository()
	ctx := context.Background()

	_, _ = repo.AddMember(ctx, "freq-446.10", "a")
	_, _ = repo.AddMember(ctx, "freq-446.00", "a")
	_, _ = repo.AddMember(ctx, "freq-446.00", "b")

	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChannelSummary{
		{ID: "freq-446.00", Members: 2},
		{ID: "freq-446.10", Members: 1},
	}, channels)

	ok, err := repo.IsMember(ctx, "freq-446.10", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsMember(ctx, "freq-446.10", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryChannelRepository_ConcurrentJoins(t *testing.T) {
	repo := NewMemoryChannelRepository()
	ctx := context.Background()
	ch := domain.ChannelID("freq-446.00")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.AddMember(ctx, ch, "same")
		}()
	}
	wg.Wait()

	members, err := repo.Members(ctx, ch)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
