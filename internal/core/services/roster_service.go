package services

import (
	"context"
	"fmt"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/pkg/validation"

	"go.uber.org/zap"
)

type rosterService struct {
	registry    ports.ConnectionRegistry
	channels    ports.ChannelRepository
	broadcaster ports.Broadcaster
	scheduler   Scheduler
	timings     RelayTimings
	metrics     ports.RelayMetrics
	logger      *zap.SugaredLogger
}

func NewRosterService(
	registry ports.ConnectionRegistry,
	channels ports.ChannelRepository,
	broadcaster ports.Broadcaster,
	scheduler Scheduler,
	timings RelayTimings,
	metrics ports.RelayMetrics,
	logger *zap.SugaredLogger,
) ports.RosterService {
	return &rosterService{
		registry:    registry,
		channels:    channels,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		timings:     timings,
		metrics:     metrics,
		logger:      logger,
	}
}

// Join admits connID to channelID. Joining a channel the connection is
// already in re-sends the confirmation and roster and changes nothing.
func (s *rosterService) Join(ctx context.Context, connID domain.ConnectionID, channelID domain.ChannelID) error {
	if err := validation.ValidateChannelID(string(channelID)); err != nil {
		s.confirm(connID, channelID, err.Error())
		s.logger.Infow("join rejected",
			"connection_id", connID,
			"channel_id", channelID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrInvalidChannelID, err)
	}

	if _, ok := s.registry.Get(connID); !ok {
		return domain.ErrConnectionNotFound
	}

	added, err := s.channels.AddMember(ctx, channelID, connID)
	if err != nil {
		s.confirm(connID, channelID, "join failed")
		s.logger.Errorw("failed to add channel member",
			"connection_id", connID,
			"channel_id", channelID,
			"error", err,
		)
		return fmt.Errorf("failed to add member: %w", err)
	}

	// The connection may have closed while the roster was being updated.
	if !s.registry.AddChannel(connID, channelID) {
		if _, _, err := s.channels.RemoveMember(ctx, channelID, connID); err != nil {
			s.logger.Warnw("failed to roll back join", "connection_id", connID, "channel_id", channelID, "error", err)
		}
		return domain.ErrConnectionNotFound
	}

	s.confirm(connID, channelID, "")

	if added {
		s.metrics.ChannelJoined(channelID)
		s.refreshActiveChannels(ctx)
		s.logger.Infow("channel joined", "connection_id", connID, "channel_id", channelID)
	} else {
		s.logger.Debugw("repeated join", "connection_id", connID, "channel_id", channelID)
	}

	s.scheduler.After(s.timings.JoinRosterDelay, func() {
		s.announceJoin(connID, channelID, added)
	})
	return nil
}

// announceJoin runs after the join delay. A connection that left or
// disconnected in the meantime gets nothing and is not announced.
func (s *rosterService) announceJoin(connID domain.ConnectionID, channelID domain.ChannelID, added bool) {
	ctx := context.Background()

	member, err := s.channels.IsMember(ctx, channelID, connID)
	if err != nil {
		s.logger.Errorw("failed to check membership", "connection_id", connID, "channel_id", channelID, "error", err)
		return
	}
	if !member {
		s.logger.Debugw("joiner gone before roster delivery", "connection_id", connID, "channel_id", channelID)
		return
	}

	members, err := s.channels.Members(ctx, channelID)
	if err != nil {
		s.logger.Errorw("failed to load roster", "channel_id", channelID, "error", err)
		return
	}

	s.broadcaster.Send(connID, domain.NewEvent(domain.EventActiveUsers, domain.ActiveUsers{
		ChannelID: channelID,
		Users:     members,
	}))

	if !added {
		return
	}

	joined := domain.NewEvent(domain.EventUserJoined, domain.Presence{
		ChannelID:    channelID,
		ConnectionID: connID,
	})
	for _, member := range members {
		if member != connID {
			s.broadcaster.Send(member, joined)
		}
	}
}

func (s *rosterService) confirm(connID domain.ConnectionID, channelID domain.ChannelID, reason string) {
	s.broadcaster.Send(connID, domain.NewEvent(domain.EventJoinConfirmation, domain.JoinConfirmation{
		ChannelID: channelID,
		Success:   reason == "",
		Error:     reason,
	}))
}

// Leave removes connID from channelID. Leaving a channel that was never
// joined is a no-op.
func (s *rosterService) Leave(ctx context.Context, connID domain.ConnectionID, channelID domain.ChannelID) error {
	if err := validation.ValidateChannelID(string(channelID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidChannelID, err)
	}

	s.registry.RemoveChannel(connID, channelID)

	removed, err := s.removeAndAnnounce(ctx, connID, channelID, "leave")
	if err != nil {
		return err
	}
	if removed {
		s.refreshActiveChannels(ctx)
		s.logger.Infow("channel left", "connection_id", connID, "channel_id", channelID)
	}
	return nil
}

func (s *rosterService) removeAndAnnounce(ctx context.Context, connID domain.ConnectionID, channelID domain.ChannelID, reason string) (bool, error) {
	removed, remaining, err := s.channels.RemoveMember(ctx, channelID, connID)
	if err != nil {
		s.logger.Errorw("failed to remove channel member",
			"connection_id", connID,
			"channel_id", channelID,
			"error", err,
		)
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	if !removed {
		return false, nil
	}

	s.metrics.ChannelLeft(channelID, reason)
	if remaining > 0 {
		s.broadcaster.Broadcast(ctx, channelID, domain.NewEvent(domain.EventUserLeft, domain.Presence{
			ChannelID:    channelID,
			ConnectionID: connID,
		}), connID)
	}
	return true, nil
}

// Disconnect forgets connID and removes it from every channel it joined,
// announcing userLeft in each. It returns the number of channels left.
func (s *rosterService) Disconnect(ctx context.Context, connID domain.ConnectionID, reason string) int {
	joined, ok := s.registry.OnDisconnect(connID)
	if !ok {
		return 0
	}
	seen := make(map[domain.ChannelID]struct{}, len(joined))
	left := 0

	for _, channelID := range joined {
		seen[channelID] = struct{}{}
		if removed, _ := s.removeAndAnnounce(ctx, connID, channelID, reason); removed {
			left++
		}
	}

	// Rescan the rosters for memberships the connection record missed.
	summaries, err := s.channels.ListChannels(ctx)
	if err != nil {
		s.logger.Warnw("failed to rescan channels on disconnect", "connection_id", connID, "error", err)
	}
	for _, summary := range summaries {
		if _, ok := seen[summary.ID]; ok {
			continue
		}
		member, err := s.channels.IsMember(ctx, summary.ID, connID)
		if err != nil || !member {
			continue
		}
		s.logger.Warnw("stale roster entry removed", "connection_id", connID, "channel_id", summary.ID)
		if removed, _ := s.removeAndAnnounce(ctx, connID, summary.ID, reason); removed {
			left++
		}
	}

	s.metrics.ConnectionClosed(reason)
	s.refreshActiveChannels(ctx)
	s.logger.Infow("connection disconnected",
		"connection_id", connID,
		"reason", reason,
		"channels_left", left,
	)
	return left
}

// Members returns the roster of channelID, or ErrChannelNotFound when
// nobody is in it.
func (s *rosterService) Members(ctx context.Context, channelID domain.ChannelID) ([]domain.ConnectionID, error) {
	members, err := s.channels.Members(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.ErrChannelNotFound
	}
	return members, nil
}

func (s *rosterService) Channels(ctx context.Context) ([]domain.ChannelSummary, error) {
	return s.channels.ListChannels(ctx)
}

func (s *rosterService) refreshActiveChannels(ctx context.Context) {
	summaries, err := s.channels.ListChannels(ctx)
	if err != nil {
		return
	}
	s.metrics.ChannelsActive(len(summaries))
}
