// Package observability defines the Prometheus metrics of the relay.
//
// Metrics are registered on an explicit registerer so tests can use an
// isolated registry. All operations are safe for concurrent use.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "personachat"
	relaySubsystem   = "relay"
)

// RelayMetrics holds the counters, histograms and gauges of the relay.
type RelayMetrics struct {
	// StreamsTotal counts finished exchanges.
	// Labels: persona, transport (http, websocket), state (closed, errored)
	StreamsTotal *prometheus.CounterVec

	// RejectedTotal counts exchanges that never opened a stream.
	// Labels: transport, reason (unknown_persona, upstream_open)
	RejectedTotal *prometheus.CounterVec

	// FragmentsTotal counts fragments forwarded to clients.
	// Labels: persona
	FragmentsTotal *prometheus.CounterVec

	// BytesTotal counts bytes forwarded to clients.
	// Labels: persona
	BytesTotal *prometheus.CounterVec

	// TimeToFirstFragmentSeconds measures latency from request to first fragment.
	// Labels: transport
	TimeToFirstFragmentSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: transport, state
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks streams currently being relayed.
	// Labels: transport
	ActiveStreams *prometheus.GaugeVec
}

// NewRelayMetrics creates the relay metrics and registers them on reg.
// It panics on duplicate registration.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	factory := promauto.With(reg)
	return &RelayMetrics{
		StreamsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "streams_total",
				Help:      "Finished relay streams by persona, transport and terminal state",
			},
			[]string{"persona", "transport", "state"},
		),
		RejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "rejected_total",
				Help:      "Relay requests answered with an error before streaming started",
			},
			[]string{"transport", "reason"},
		),
		FragmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "fragments_total",
				Help:      "Text fragments forwarded to clients",
			},
			[]string{"persona"},
		),
		BytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "bytes_total",
				Help:      "Bytes of generated text forwarded to clients",
			},
			[]string{"persona"},
		),
		TimeToFirstFragmentSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Time from request to first forwarded fragment",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"transport"},
		),
		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total relay stream duration",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"transport", "state"},
		),
		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "active_streams",
				Help:      "Streams currently being relayed",
			},
			[]string{"transport"},
		),
	}
}
