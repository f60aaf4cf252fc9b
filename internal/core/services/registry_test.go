package services

import (
	"testing"
	"time"

	"pttrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_Lifecycle(t *testing.T) {
	f := newRelayFixture(t)

	a, _ := f.connect()
	b, _ := f.connect()
	require.NotEqual(t, a, b)
	assert.Equal(t, 2, f.registry.Count())

	assert.True(t, f.registry.AddChannel(a, "freq-446.00"))
	assert.True(t, f.registry.AddChannel(a, "ops"))

	info, ok := f.registry.Get(a)
	require.True(t, ok)
	assert.Equal(t, []domain.ChannelID{"freq-446.00", "ops"}, info.Channels)

	channels, ok := f.registry.OnDisconnect(a)
	require.True(t, ok)
	assert.ElementsMatch(t, []domain.ChannelID{"freq-446.00", "ops"}, channels)
	assert.Equal(t, 1, f.registry.Count())

	_, ok = f.registry.Outbox(a)
	assert.False(t, ok)

	_, ok = f.registry.OnDisconnect(a)
	assert.False(t, ok)
}

func TestConnectionRegistry_UnknownIDsAreNoops(t *testing.T) {
	f := newRelayFixture(t)

	f.registry.OnActivity("missing")
	f.registry.RemoveChannel("missing", "ops")
	channels, ok := f.registry.OnDisconnect("missing")
	assert.Nil(t, channels)
	assert.False(t, ok)
	assert.False(t, f.registry.AddChannel("missing", "ops"))
	assert.Equal(t, 0, f.registry.Count())
}

func TestConnectionRegistry_IdleSince(t *testing.T) {
	f := newRelayFixture(t)

	quiet, _ := f.connect()
	chatty, _ := f.connect()

	f.clock.Advance(45 * time.Second)
	f.registry.OnActivity(chatty)
	f.clock.Advance(30 * time.Second)

	idle := f.registry.IdleSince(f.clock.Now().Add(-60 * time.Second))
	assert.Equal(t, []domain.ConnectionID{quiet}, idle)
}
