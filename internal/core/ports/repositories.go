package ports

import (
	"context"
	"time"

	"pttrelay/internal/core/domain"
)

// ChannelRepository holds channel rosters. Implementations delete a channel
// when its last member leaves.
type ChannelRepository interface {
	AddMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (added bool, err error)
	RemoveMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (removed bool, remaining int, err error)
	IsMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) (bool, error)
	Members(ctx context.Context, channelID domain.ChannelID) ([]domain.ConnectionID, error)
	ListChannels(ctx context.Context) ([]domain.ChannelSummary, error)
}

// AudioIndex tracks stored audio objects by name.
type AudioIndex interface {
	Put(ctx context.Context, obj *domain.AudioObject) error
	Get(ctx context.Context, name string) (*domain.AudioObject, error)
	Delete(ctx context.Context, name string) error
	CreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.AudioObject, error)
	Count(ctx context.Context) (int, error)
}
