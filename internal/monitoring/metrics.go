package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the broker.
type Metrics struct {
	// Peer lifecycle
	PeersConnected    prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	DisconnectsTotal  prometheus.Counter
	HandshakeFailures *prometheus.CounterVec

	// Best-effort sends (vector advertisements, goodbyes) that were not
	// delivered; the protocol drops these silently, the counter makes
	// the loss observable.
	AdvertiseFailures prometheus.Counter

	// Resources
	ShmBytes prometheus.Gauge

	// System
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New creates a metrics collector registered on reg; tests pass a fresh
// registry so collectors never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),

		PeersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shmbroker_peers_connected",
			Help: "Number of currently connected peers",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shmbroker_connections_total",
			Help: "Total number of completed peer handshakes",
		}),
		DisconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shmbroker_disconnects_total",
			Help: "Total number of peer disconnections",
		}),
		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shmbroker_handshake_failures_total",
			Help: "Total number of aborted connections by failure reason",
		}, []string{"reason"}),
		AdvertiseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shmbroker_advertise_failures_total",
			Help: "Total number of peers that missed a best-effort advertisement or goodbye",
		}),
		ShmBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shmbroker_shm_bytes",
			Help: "Allocated shared-memory region size in bytes",
		}),
		Uptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shmbroker_uptime_seconds",
			Help: "Broker uptime in seconds",
		}),
	}
}

// RecordConnect records a completed handshake.
func (m *Metrics) RecordConnect() {
	m.ConnectionsTotal.Inc()
	m.PeersConnected.Inc()
}

// RecordDisconnect records a peer teardown.
func (m *Metrics) RecordDisconnect() {
	m.DisconnectsTotal.Inc()
	m.PeersConnected.Dec()
}

// RecordHandshakeFailure records an aborted connection. Reasons: "accept",
// "vectors", "send".
func (m *Metrics) RecordHandshakeFailure(reason string) {
	m.HandshakeFailures.WithLabelValues(reason).Inc()
}

// RecordAdvertiseFailures records n peers missing a best-effort send.
func (m *Metrics) RecordAdvertiseFailures(n int) {
	m.AdvertiseFailures.Add(float64(n))
}

// SetShmBytes records the allocated region size.
func (m *Metrics) SetShmBytes(bytes uint64) {
	m.ShmBytes.Set(float64(bytes))
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
