package repositories

import (
	"context"
	"errors"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// GuardedAudioIndex wraps a remote index with a circuit breaker so uploads
// and lookups fail fast while the backend is down.
type GuardedAudioIndex struct {
	next    ports.AudioIndex
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuardedAudioIndex(next ports.AudioIndex, cfg circuitbreaker.Config, logger *zap.SugaredLogger) *GuardedAudioIndex {
	breaker := circuitbreaker.New(cfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("audio index circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return &GuardedAudioIndex{next: next, breaker: breaker}
}

// a missing object is an answer, not a backend failure
func isIndexFailure(err error) bool {
	return !errors.Is(err, domain.ErrAudioNotFound) && !errors.Is(err, context.Canceled)
}

func (g *GuardedAudioIndex) Put(ctx context.Context, obj *domain.AudioObject) error {
	return g.breaker.Execute(func() error {
		return g.next.Put(ctx, obj)
	}, isIndexFailure)
}

func (g *GuardedAudioIndex) Get(ctx context.Context, name string) (*domain.AudioObject, error) {
	var obj *domain.AudioObject
	err := g.breaker.Execute(func() error {
		var err error
		obj, err = g.next.Get(ctx, name)
		return err
	}, isIndexFailure)
	return obj, err
}

func (g *GuardedAudioIndex) Delete(ctx context.Context, name string) error {
	return g.breaker.Execute(func() error {
		return g.next.Delete(ctx, name)
	}, isIndexFailure)
}

func (g *GuardedAudioIndex) CreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.AudioObject, error) {
	var objs []*domain.AudioObject
	err := g.breaker.Execute(func() error {
		var err error
		objs, err = g.next.CreatedBefore(ctx, cutoff)
		return err
	}, isIndexFailure)
	return objs, err
}

func (g *GuardedAudioIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := g.breaker.Execute(func() error {
		var err error
		n, err = g.next.Count(ctx)
		return err
	}, isIndexFailure)
	return n, err
}

func (g *GuardedAudioIndex) State() circuitbreaker.State {
	return g.breaker.State()
}
