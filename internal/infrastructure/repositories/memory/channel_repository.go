package memory

import (
	"context"
	"sort"
	"sync"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
)

type member struct {
	id    domain.ConnectionID
	order uint64
}

type MemoryChannelRepository struct {
	channels map[domain.ChannelID]map[domain.ConnectionID]uint64
	seq      uint64
	mu       sync.RWMutex
}

func NewMemoryChannelRepository() ports.ChannelRepository {
	return &MemoryChannelRepository{
		channels: make(map[domain.ChannelID]map[domain.ConnectionID]uint64),
	}
}

func (r *MemoryChannelRepository) AddMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channelID]
	if !exists {
		members = make(map[domain.ConnectionID]uint64)
		r.channels[channelID] = members
	}
	if _, ok := members[connID]; ok {
		return false, nil
	}

	r.seq++
	members[connID] = r.seq
	return true, nil
}

func (r *MemoryChannelRepository) RemoveMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channelID]
	if !exists {
		return false, 0, nil
	}

	_, removed := members[connID]
	delete(members, connID)

	remaining := len(members)
	if remaining == 0 {
		delete(r.channels, channelID)
	}
	return removed, remaining, nil
}

func (r *MemoryChannelRepository) IsMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.channels[channelID][connID]
	return ok, nil
}

// Members returns the roster in join order.
func (r *MemoryChannelRepository) Members(ctx context.Context, channelID domain.ChannelID) ([]domain.ConnectionID, error) {
	r.mu.RLock()
	ordered := make([]member, 0, len(r.channels[channelID]))
	for id, order := range r.channels[channelID] {
		ordered = append(ordered, member{id: id, order: order})
	}
	r.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	ids := make([]domain.ConnectionID, len(ordered))
	for i, m := range ordered {
		ids[i] = m.id
	}
	return ids, nil
}

func (r *MemoryChannelRepository) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	r.mu.RLock()
	summaries := make([]domain.ChannelSummary, 0, len(r.channels))
	for id, members := range r.channels {
		summaries = append(summaries, domain.ChannelSummary{ID: id, Members: len(members)})
	}
	r.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}
