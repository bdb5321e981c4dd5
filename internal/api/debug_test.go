package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmfabric/shmbroker/internal/broker"
	"github.com/shmfabric/shmbroker/internal/config"
	"github.com/shmfabric/shmbroker/internal/logging"
	"github.com/shmfabric/shmbroker/internal/monitoring"
)

type fakeBroker struct {
	peers []broker.PeerInfo
	size  uint64
}

func (f *fakeBroker) Peers() []broker.PeerInfo { return f.peers }
func (f *fakeBroker) ShmSize() uint64          { return f.size }

func newTestDebugServer(t *testing.T, b PeerLister) *DebugServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	monitoring.New(reg)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return NewDebugServer(config.Default().Debug, b, handler, "test-instance", logging.NewNop())
}

func TestHealth(t *testing.T) {
	d := newTestDebugServer(t, &fakeBroker{size: 4096})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	d.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-instance", body["instance_id"])
	assert.Equal(t, float64(4096), body["shm_bytes"])
}

func TestPeers(t *testing.T) {
	d := newTestDebugServer(t, &fakeBroker{
		peers: []broker.PeerInfo{
			{ID: 0, Vectors: 2},
			{ID: 3, Vectors: 2},
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	d.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int               `json:"count"`
		Peers []broker.PeerInfo `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Peers, 2)
	assert.Equal(t, int64(0), body.Peers[0].ID)
	assert.Equal(t, int64(3), body.Peers[1].ID)
}

func TestPeersEmpty(t *testing.T) {
	d := newTestDebugServer(t, &fakeBroker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	d.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestMetricsEndpoint(t *testing.T) {
	d := newTestDebugServer(t, &fakeBroker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	d.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shmbroker_peers_connected")
}