package ports

import (
	"context"
	"io"
	"time"

	"pttrelay/internal/core/domain"
)

// Outbox delivers events to one live connection. Send must not block on
// network I/O.
type Outbox interface {
	Send(event domain.Event) error
	Close()
}

type ConnectionRegistry interface {
	OnConnect(remoteAddr string, outbox Outbox) domain.ConnectionID
	OnActivity(id domain.ConnectionID)
	OnDisconnect(id domain.ConnectionID) ([]domain.ChannelID, bool)
	AddChannel(id domain.ConnectionID, channelID domain.ChannelID) bool
	RemoveChannel(id domain.ConnectionID, channelID domain.ChannelID)
	Outbox(id domain.ConnectionID) (Outbox, bool)
	Get(id domain.ConnectionID) (domain.ConnectionInfo, bool)
	IdleSince(cutoff time.Time) []domain.ConnectionID
	Count() int
}

type RosterService interface {
	Join(ctx context.Context, connID domain.ConnectionID, channelID domain.ChannelID) error
	Leave(ctx context.Context, connID domain.ConnectionID, channelID domain.ChannelID) error
	Disconnect(ctx context.Context, connID domain.ConnectionID, reason string) int
	Members(ctx context.Context, channelID domain.ChannelID) ([]domain.ConnectionID, error)
	Channels(ctx context.Context) ([]domain.ChannelSummary, error)
}

type Broadcaster interface {
	Send(connID domain.ConnectionID, event domain.Event) error
	Broadcast(ctx context.Context, channelID domain.ChannelID, event domain.Event, exclude domain.ConnectionID) int
	BroadcastPTT(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID, active bool) error
	RelayAudio(ctx context.Context, channelID domain.ChannelID, connID domain.ConnectionID, ref domain.Reference) error
}

type MediaService interface {
	Store(ctx context.Context, data io.Reader, filename string, channelID domain.ChannelID) (*domain.StoredAudio, error)
	Lookup(ctx context.Context, ref domain.Reference) (*domain.AudioObject, error)
	Resolve(ctx context.Context, ref domain.Reference) (*domain.AudioObject, io.ReadCloser, error)
	Sweep(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// RelayMetrics receives counters from the relay services.
type RelayMetrics interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	ChannelJoined(channelID domain.ChannelID)
	ChannelLeft(channelID domain.ChannelID, reason string)
	ChannelsActive(n int)
	PTTEvent(active bool)
	AudioRelayed()
	EventDropped(eventType domain.EventType)
	AudioStored(size int64, duration time.Duration)
	AudioRejected(reason string)
	AudioEvicted(source string, n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ConnectionOpened()                    {}
func (NopMetrics) ConnectionClosed(string)              {}
func (NopMetrics) ChannelJoined(domain.ChannelID)       {}
func (NopMetrics) ChannelLeft(domain.ChannelID, string) {}
func (NopMetrics) ChannelsActive(int)                   {}
func (NopMetrics) PTTEvent(bool)                        {}
func (NopMetrics) AudioRelayed()                        {}
func (NopMetrics) EventDropped(domain.EventType)        {}
func (NopMetrics) AudioStored(int64, time.Duration)     {}
func (NopMetrics) AudioRejected(string)                 {}
func (NopMetrics) AudioEvicted(string, int)             {}
