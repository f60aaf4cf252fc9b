package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/infrastructure/repositories/memory"
	"pttrelay/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errIndexDown = errors.New("index down")

// flakyIndex fails every call while down is set.
type flakyIndex struct {
	*memory.MemoryAudioIndex
	down  bool
	calls int
}

func (f *flakyIndex) Get(ctx context.Context, name string) (*domain.AudioObject, error) {
	f.calls++
	if f.down {
		return nil, errIndexDown
	}
	return f.MemoryAudioIndex.Get(ctx, name)
}

func (f *flakyIndex) Put(ctx context.Context, obj *domain.AudioObject) error {
	f.calls++
	if f.down {
		return errIndexDown
	}
	return f.MemoryAudioIndex.Put(ctx, obj)
}

func newGuarded(next *flakyIndex) *GuardedAudioIndex {
	return NewGuardedAudioIndex(next, circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		MaxRequestsHalfOpen: 1,
	}, zap.NewNop().Sugar())
}

func TestGuardedAudioIndex_NotFoundDoesNotTrip(t *testing.T) {
	next := &flakyIndex{MemoryAudioIndex: memory.NewMemoryAudioIndex().(*memory.MemoryAudioIndex)}
	g := newGuarded(next)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrAudioNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.State())
}

func TestGuardedAudioIndex_FailsFastWhenOpen(t *testing.T) {
	next := &flakyIndex{MemoryAudioIndex: memory.NewMemoryAudioIndex().(*memory.MemoryAudioIndex), down: true}
	g := newGuarded(next)
	ctx := context.Background()

	obj := &domain.AudioObject{Name: "a", Size: 1, CreatedAt: time.Now()}
	assert.ErrorIs(t, g.Put(ctx, obj), errIndexDown)
	assert.ErrorIs(t, g.Put(ctx, obj), errIndexDown)
	require.Equal(t, circuitbreaker.StateOpen, g.State())

	_, err := g.Get(ctx, "a")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, next.calls)
}
