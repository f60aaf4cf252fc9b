package services

import (
	"context"
	"time"

	"pttrelay/internal/core/ports"
	"pttrelay/pkg/utils"

	"go.uber.org/zap"
)

// LivenessMonitor force-disconnects connections that stopped talking.
type LivenessMonitor struct {
	registry  ports.ConnectionRegistry
	roster    ports.RosterService
	threshold time.Duration
	interval  time.Duration
	clock     utils.Clock
	logger    *zap.SugaredLogger
}

func NewLivenessMonitor(
	registry ports.ConnectionRegistry,
	roster ports.RosterService,
	threshold, interval time.Duration,
	clock utils.Clock,
	logger *zap.SugaredLogger,
) *LivenessMonitor {
	return &LivenessMonitor{
		registry:  registry,
		roster:    roster,
		threshold: threshold,
		interval:  interval,
		clock:     clock,
		logger:    logger,
	}
}

// CheckOnce disconnects every connection idle longer than the threshold
// and returns how many were dropped.
func (m *LivenessMonitor) CheckOnce(ctx context.Context) int {
	now := m.clock()
	cutoff := now.Add(-m.threshold)

	dropped := 0
	for _, id := range m.registry.IdleSince(cutoff) {
		info, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		outbox, ok := m.registry.Outbox(id)
		if !ok {
			continue
		}

		left := m.roster.Disconnect(ctx, id, "liveness_timeout")
		outbox.Close()
		dropped++

		m.logger.Infow("liveness timeout",
			"connection_id", id,
			"channels_left", left,
			"idle_for", info.IdleFor(now),
			"threshold", m.threshold,
		)
	}
	return dropped
}

func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}
