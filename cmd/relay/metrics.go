package main

import (
	"pttrelay/internal/core/ports"
	"pttrelay/internal/infrastructure/monitoring"
)

// relayMetricsOrNop keeps a nil collector from becoming a non-nil interface.
func relayMetricsOrNop(c *monitoring.PrometheusCollector) ports.RelayMetrics {
	if c == nil {
		return ports.NopMetrics{}
	}
	return c
}
