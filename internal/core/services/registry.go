package services

import (
	"sync"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/pkg/utils"

	"go.uber.org/zap"
)

type registryEntry struct {
	conn   *domain.Connection
	outbox ports.Outbox
}

type connectionRegistry struct {
	conns map[domain.ConnectionID]*registryEntry
	mu    sync.RWMutex

	clock   utils.Clock
	newID   func() string
	metrics ports.RelayMetrics
	logger  *zap.SugaredLogger
}

func NewConnectionRegistry(clock utils.Clock, metrics ports.RelayMetrics, logger *zap.SugaredLogger) ports.ConnectionRegistry {
	return &connectionRegistry{
		conns:   make(map[domain.ConnectionID]*registryEntry),
		clock:   clock,
		newID:   utils.GenerateConnectionID,
		metrics: metrics,
		logger:  logger,
	}
}

func (r *connectionRegistry) OnConnect(remoteAddr string, outbox ports.Outbox) domain.ConnectionID {
	now := r.clock()

	r.mu.Lock()
	id := domain.ConnectionID(r.newID())
	for {
		if _, taken := r.conns[id]; !taken {
			break
		}
		id = domain.ConnectionID(r.newID())
	}
	r.conns[id] = &registryEntry{
		conn:   domain.NewConnection(id, remoteAddr, now),
		outbox: outbox,
	}
	total := len(r.conns)
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	r.logger.Infow("connection registered", "connection_id", id, "remote_addr", remoteAddr, "connections", total)
	return id
}

func (r *connectionRegistry) OnActivity(id domain.ConnectionID) {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.conn.LastActivity = now
	}
}

// OnDisconnect forgets the connection and returns the channels it had
// joined. Only the first call for an ID reports ok.
func (r *connectionRegistry) OnDisconnect(id domain.ConnectionID) ([]domain.ChannelID, bool) {
	r.mu.Lock()
	e, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	return e.conn.JoinedChannels(), true
}

// AddChannel records a joined channel. It returns false when the
// connection is already gone.
func (r *connectionRegistry) AddChannel(id domain.ConnectionID, channelID domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.conn.Channels[channelID] = struct{}{}
	return true
}

func (r *connectionRegistry) RemoveChannel(id domain.ConnectionID, channelID domain.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[id]; ok {
		delete(e.conn.Channels, channelID)
	}
}

func (r *connectionRegistry) Outbox(id domain.ConnectionID) (ports.Outbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.outbox, true
}

func (r *connectionRegistry) Get(id domain.ConnectionID) (domain.ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return domain.ConnectionInfo{}, false
	}
	return e.conn.Info(), true
}

// IdleSince returns connections whose last activity is before cutoff.
func (r *connectionRegistry) IdleSince(cutoff time.Time) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []domain.ConnectionID
	for id, e := range r.conns {
		if e.conn.LastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

func (r *connectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
