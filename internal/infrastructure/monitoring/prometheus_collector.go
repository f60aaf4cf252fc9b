package monitoring

import (
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ ports.RelayMetrics = (*PrometheusCollector)(nil)

type PrometheusCollector struct {
	// Connections
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	disconnections    *prometheus.CounterVec

	// Channels
	channelsActive prometheus.Gauge
	channelJoins   prometheus.Counter
	channelLeaves  *prometheus.CounterVec

	// Relay
	pttEvents     *prometheus.CounterVec
	audioRelayed  prometheus.Counter
	eventsDropped *prometheus.CounterVec

	// Media
	audioStoredBytes   prometheus.Counter
	audioUploadSize    prometheus.Histogram
	audioStoreDuration prometheus.Histogram
	audioRejected      *prometheus.CounterVec
	audioEvicted       *prometheus.CounterVec
}

// NewPrometheusCollector registers the relay metrics with reg. A nil reg
// means the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pttrelay_connections_active",
			Help: "Number of live websocket connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pttrelay_connections_total",
			Help: "Total number of websocket connections accepted",
		}),

		disconnections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pttrelay_disconnections_total",
			Help: "Connections removed, by reason",
		}, []string{"reason"}),

		channelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pttrelay_channels_active",
			Help: "Number of channels with at least one member",
		}),

		channelJoins: factory.NewCounter(prometheus.CounterOpts{
			Name: "pttrelay_channel_joins_total",
			Help: "Successful first-time channel joins",
		}),

		channelLeaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pttrelay_channel_leaves_total",
			Help: "Channel memberships ended, by reason",
		}, []string{"reason"}),

		pttEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pttrelay_ptt_events_total",
			Help: "PTT status broadcasts, by state",
		}, []string{"state"}),

		audioRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pttrelay_audio_relayed_total",
			Help: "Audio references fanned out to channels",
		}),

		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pttrelay_events_dropped_total",
			Help: "Outbound events dropped because a connection queue was full",
		}, []string{"type"}),

		audioStoredBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "pttrelay_audio_stored_bytes_total",
			Help: "Bytes of audio accepted by the media store",
		}),

		audioUploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pttrelay_audio_upload_size_bytes",
			Help:    "Size of accepted audio uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		audioStoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pttrelay_audio_store_duration_seconds",
			Help:    "Time spent writing an upload to storage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),

		audioRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pttrelay_audio_rejected_total",
			Help: "Rejected uploads, by reason",
		}, []string{"reason"}),

		audioEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pttrelay_audio_evicted_total",
			Help: "Audio objects deleted by the sweeper, by source",
		}, []string{"source"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed(reason string) {
	p.connectionsActive.Dec()
	p.disconnections.WithLabelValues(reason).Inc()
}

// ChannelJoined ignores the channel id to keep label cardinality bounded.
func (p *PrometheusCollector) ChannelJoined(domain.ChannelID) {
	p.channelJoins.Inc()
}

func (p *PrometheusCollector) ChannelLeft(_ domain.ChannelID, reason string) {
	p.channelLeaves.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) ChannelsActive(n int) {
	p.channelsActive.Set(float64(n))
}

func (p *PrometheusCollector) PTTEvent(active bool) {
	state := "released"
	if active {
		state = "pressed"
	}
	p.pttEvents.WithLabelValues(state).Inc()
}

func (p *PrometheusCollector) AudioRelayed() {
	p.audioRelayed.Inc()
}

func (p *PrometheusCollector) EventDropped(eventType domain.EventType) {
	p.eventsDropped.WithLabelValues(string(eventType)).Inc()
}

func (p *PrometheusCollector) AudioStored(size int64, duration time.Duration) {
	p.audioStoredBytes.Add(float64(size))
	p.audioUploadSize.Observe(float64(size))
	p.audioStoreDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) AudioRejected(reason string) {
	p.audioRejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) AudioEvicted(source string, n int) {
	if n <= 0 {
		return
	}
	p.audioEvicted.WithLabelValues(source).Add(float64(n))
}
