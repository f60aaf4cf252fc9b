package services

import (
	"context"
	"testing"
	"time"

	"pttrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLivenessMonitor_DisconnectsSilentConnections(t *testing.T) {
	ctx := context.Background()
	f := newRelayFixture(t)
	monitor := NewLivenessMonitor(f.registry, f.roster, 60*time.Second, 15*time.Second, f.clock.Now, zap.NewNop().Sugar())

	silent, outSilent := f.connect()
	active, outActive := f.connect()
	require.NoError(t, f.roster.Join(ctx, silent, testChannel))
	require.NoError(t, f.roster.Join(ctx, active, testChannel))
	f.scheduler.RunAll()
	outActive.Reset()

	f.clock.Advance(45 * time.Second)
	f.registry.OnActivity(active)
	assert.Equal(t, 0, monitor.CheckOnce(ctx))

	f.clock.Advance(20 * time.Second)
	assert.Equal(t, 1, monitor.CheckOnce(ctx))

	assert.True(t, outSilent.closed)
	assert.False(t, outActive.closed)

	left := outActive.OfType(domain.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, silent, left[0].Payload.(domain.Presence).ConnectionID)

	members, err := f.roster.Members(ctx, testChannel)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{active}, members)
	assert.Equal(t, []string{"liveness_timeout"}, f.metrics.closed)

	// already gone
	assert.Equal(t, 0, monitor.CheckOnce(ctx))
}

func TestLivenessMonitor_LogsIdleDuration(t *testing.T) {
	ctx := context.Background()
	f := newRelayFixture(t)
	core, logs := observer.New(zap.InfoLevel)
	monitor := NewLivenessMonitor(f.registry, f.roster, 60*time.Second, 15*time.Second, f.clock.Now, zap.New(core).Sugar())

	id, _ := f.connect()
	require.NoError(t, f.roster.Join(ctx, id, testChannel))
	f.scheduler.RunAll()

	f.clock.Advance(90 * time.Second)
	require.Equal(t, 1, monitor.CheckOnce(ctx))

	entries := logs.FilterMessage("liveness timeout").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, id, fields["connection_id"])
	assert.Equal(t, 90*time.Second, fields["idle_for"])
	assert.Equal(t, int64(1), fields["channels_left"])
}
