package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
)

type MemoryAudioIndex struct {
	objects map[string]*domain.AudioObject
	mu      sync.RWMutex
}

func NewMemoryAudioIndex() ports.AudioIndex {
	return &MemoryAudioIndex{
		objects: make(map[string]*domain.AudioObject),
	}
}

func (r *MemoryAudioIndex) Put(ctx context.Context, obj *domain.AudioObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *obj
	r.objects[obj.Name] = &cp
	return nil
}

func (r *MemoryAudioIndex) Get(ctx context.Context, name string) (*domain.AudioObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, exists := r.objects[name]
	if !exists {
		return nil, domain.ErrAudioNotFound
	}
	cp := *obj
	return &cp, nil
}

func (r *MemoryAudioIndex) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.objects, name)
	return nil
}

// CreatedBefore returns objects created strictly before cutoff, oldest first.
func (r *MemoryAudioIndex) CreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.AudioObject, error) {
	r.mu.RLock()
	var expired []*domain.AudioObject
	for _, obj := range r.objects {
		if obj.CreatedAt.Before(cutoff) {
			cp := *obj
			expired = append(expired, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	return expired, nil
}

func (r *MemoryAudioIndex) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects), nil
}
