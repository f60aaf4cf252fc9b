package domain

import (
	"sort"
	"time"
)

type ConnectionID string

// Connection is one live transport session. The registry owns it; roster
// entries only reference it by ID.
type Connection struct {
	ID           ConnectionID
	RemoteAddr   string
	ConnectedAt  time.Time
	LastActivity time.Time
	Channels     map[ChannelID]struct{}
}

func NewConnection(id ConnectionID, remoteAddr string, now time.Time) *Connection {
	return &Connection{
		ID:           id,
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActivity: now,
		Channels:     make(map[ChannelID]struct{}),
	}
}

// JoinedChannels returns the joined channel set in a stable order.
func (c *Connection) JoinedChannels() []ChannelID {
	channels := make([]ChannelID, 0, len(c.Channels))
	for ch := range c.Channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// ConnectionInfo is a read-only copy of a Connection handed out by the registry.
type ConnectionInfo struct {
	ID           ConnectionID `json:"connectionId"`
	RemoteAddr   string       `json:"remoteAddr,omitempty"`
	ConnectedAt  time.Time    `json:"connectedAt"`
	LastActivity time.Time    `json:"lastActivity"`
	Channels     []ChannelID  `json:"channels"`
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:           c.ID,
		RemoteAddr:   c.RemoteAddr,
		ConnectedAt:  c.ConnectedAt,
		LastActivity: c.LastActivity,
		Channels:     c.JoinedChannels(),
	}
}

// IdleFor is the time since the last inbound activity.
func (c ConnectionInfo) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.LastActivity)
}
