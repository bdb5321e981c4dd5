package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPeerLifecycleCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordConnect()
	m.RecordConnect()
	m.RecordDisconnect()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PeersConnected))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ConnectionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DisconnectsTotal))
}

func TestHandshakeFailureReasons(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordHandshakeFailure("vectors")
	m.RecordHandshakeFailure("send")
	m.RecordHandshakeFailure("send")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HandshakeFailures.WithLabelValues("vectors")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.HandshakeFailures.WithLabelValues("send")))
}

func TestAdvertiseFailuresAndShmBytes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAdvertiseFailures(3)
	m.SetShmBytes(4096)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.AdvertiseFailures))
	assert.Equal(t, float64(4096), testutil.ToFloat64(m.ShmBytes))
}
