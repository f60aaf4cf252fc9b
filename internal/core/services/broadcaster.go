package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/pkg/utils"

	"go.uber.org/zap"
)

// RelayTimings are the fixed delays of the relay protocol.
type RelayTimings struct {
	JoinRosterDelay        time.Duration
	PTTReleaseResendDelay  time.Duration
	AudioAfterReleaseDelay time.Duration
}

func DefaultRelayTimings() RelayTimings {
	return RelayTimings{
		JoinRosterDelay:        100 * time.Millisecond,
		PTTReleaseResendDelay:  500 * time.Millisecond,
		AudioAfterReleaseDelay: 100 * time.Millisecond,
	}
}

type talker struct {
	channelID domain.ChannelID
	connID    domain.ConnectionID
}

type broadcaster struct {
	registry  ports.ConnectionRegistry
	channels  ports.ChannelRepository
	scheduler Scheduler
	timings   RelayTimings
	clock     utils.Clock
	metrics   ports.RelayMetrics
	logger    *zap.SugaredLogger

	// keyUps counts key-ups per talker so a pending release resend can
	// tell that the talker keyed up again after releasing.
	mu     sync.Mutex
	keyUps map[talker]uint64
}

func NewBroadcaster(
	registry ports.ConnectionRegistry,
	channels ports.ChannelRepository,
	scheduler Scheduler,
	timings RelayTimings,
	clock utils.Clock,
	metrics ports.RelayMetrics,
	logger *zap.SugaredLogger,
) ports.Broadcaster {
	return &broadcaster{
		registry:  registry,
		channels:  channels,
		scheduler: scheduler,
		timings:   timings,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		keyUps:    make(map[talker]uint64),
	}
}

// Send queues event for a single connection.
func (b *broadcaster) Send(connID domain.ConnectionID, event domain.Event) error {
	outbox, ok := b.registry.Outbox(connID)
	if !ok {
		return domain.ErrConnectionNotFound
	}

	err := outbox.Send(event)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrBackpressure):
		b.metrics.EventDropped(event.Type)
		b.logger.Warnw("outbound queue full, event dropped",
			"connection_id", connID,
			"event", event.Type,
		)
	case errors.Is(err, domain.ErrConnectionClosed):
		b.logger.Debugw("event for closed connection", "connection_id", connID, "event", event.Type)
	default:
		b.logger.Warnw("failed to queue event", "connection_id", connID, "event", event.Type, "error", err)
	}
	return err
}

// Broadcast sends event to every current member of channelID except
// exclude and returns the number of members it was queued for.
func (b *broadcaster) Broadcast(ctx context.Context, channelID domain.ChannelID, event domain.Event, exclude domain.ConnectionID) int {
	members, err := b.channels.Members(ctx, channelID)
	if err != nil {
		b.logger.Errorw("failed to load roster for broadcast",
			"channel_id", channelID,
			"event", event.Type,
			"error", err,
		)
		return 0
	}

	delivered := 0
	for _, member := range members {
		if member == exclude {
			continue
		}
		if b.Send(member, event) == nil {
			delivered++
		}
	}
	return delivered
}

func (b *broadcaster) requireMember(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID) error {
	ok, err := b.channels.IsMember(ctx, channelID, connID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}

// BroadcastPTT announces a talk state change to every member including the
// sender. A release is announced twice unless the sender keys up again
// before the repeat is due.
func (b *broadcaster) BroadcastPTT(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID, active bool) error {
	if err := b.requireMember(ctx, channelID, connID); err != nil {
		b.logger.Infow("ptt status rejected",
			"connection_id", connID,
			"channel_id", channelID,
			"active", active,
			"error", err,
		)
		return err
	}

	event := domain.NewEvent(domain.EventPTTStatus, domain.PTTStatus{
		ChannelID:    channelID,
		ConnectionID: connID,
		Active:       active,
	})

	key := talker{channelID: channelID, connID: connID}
	b.mu.Lock()
	if active {
		b.keyUps[key]++
	}
	seen := b.keyUps[key]
	b.mu.Unlock()

	n := b.Broadcast(ctx, channelID, event, "")
	b.metrics.PTTEvent(active)
	b.logger.Debugw("ptt status broadcast",
		"connection_id", connID,
		"channel_id", channelID,
		"active", active,
		"recipients", n,
	)

	if !active {
		b.scheduler.After(b.timings.PTTReleaseResendDelay, func() {
			if !b.releaseStillCurrent(key, seen) {
				b.logger.Debugw("ptt release repeat skipped, talker keyed up again",
					"connection_id", connID,
					"channel_id", channelID,
				)
				return
			}
			b.Broadcast(context.Background(), channelID, event, "")
		})
	}
	return nil
}

// releaseStillCurrent reports whether no key-up happened since a release
// observed seen. The counter is dropped once the talker is idle.
func (b *broadcaster) releaseStillCurrent(key talker, seen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.keyUps[key] != seen {
		return false
	}
	delete(b.keyUps, key)
	return true
}

// RelayAudio releases the uploader's talk state and then, after a short
// delay, hands the reference to every member including the uploader.
func (b *broadcaster) RelayAudio(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID, ref domain.Reference) error {
	if err := b.requireMember(ctx, channelID, connID); err != nil {
		b.logger.Infow("audio relay rejected",
			"connection_id", connID,
			"channel_id", channelID,
			"reference", ref,
			"error", err,
		)
		return err
	}

	release := domain.NewEvent(domain.EventPTTStatus, domain.PTTStatus{
		ChannelID:    channelID,
		ConnectionID: connID,
		Active:       false,
	})
	b.Broadcast(ctx, channelID, release, "")

	b.scheduler.After(b.timings.AudioAfterReleaseDelay, func() {
		audio := domain.NewEvent(domain.EventAudioData, domain.AudioData{
			ChannelID:    channelID,
			ConnectionID: connID,
			Reference:    ref,
			Timestamp:    utils.Millis(b.clock()),
		})
		n := b.Broadcast(context.Background(), channelID, audio, "")
		b.metrics.AudioRelayed()
		b.logger.Infow("audio relayed",
			"connection_id", connID,
			"channel_id", channelID,
			"reference", ref,
			"recipients", n,
		)
	})
	return nil
}
