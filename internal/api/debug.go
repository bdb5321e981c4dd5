package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shmfabric/shmbroker/internal/api/middleware"
	"github.com/shmfabric/shmbroker/internal/broker"
	"github.com/shmfabric/shmbroker/internal/config"
	"github.com/shmfabric/shmbroker/internal/logging"
)

// PeerLister is the slice of the broker the debug surface reads from.
type PeerLister interface {
	Peers() []broker.PeerInfo
	ShmSize() uint64
}

// DebugServer serves the introspection endpoints.
type DebugServer struct {
	router     *gin.Engine
	srv        *http.Server
	log        *logging.Logger
	broker     PeerLister
	instanceID string
	startTime  time.Time
}

// NewDebugServer builds the debug router. metricsHandler serves GET
// /metrics; pass promhttp.Handler() in production and a registry-scoped
// handler in tests.
func NewDebugServer(cfg config.DebugConfig, b PeerLister, metricsHandler http.Handler, instanceID string, log *logging.Logger) *DebugServer {
	if log == nil {
		log = logging.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}))

	d := &DebugServer{
		router:     router,
		log:        log,
		broker:     b,
		instanceID: instanceID,
		startTime:  time.Now(),
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	router.GET("/health", d.health)
	router.GET("/peers", d.peers)
	router.GET("/metrics", gin.WrapH(metricsHandler))
	return d
}

func (d *DebugServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"instance_id":    d.instanceID,
		"uptime_seconds": time.Since(d.startTime).Seconds(),
		"shm_bytes":      d.broker.ShmSize(),
	})
}

func (d *DebugServer) peers(c *gin.Context) {
	peers := d.broker.Peers()
	c.JSON(http.StatusOK, gin.H{
		"count": len(peers),
		"peers": peers,
	})
}

// Handler returns the underlying router; used by tests.
func (d *DebugServer) Handler() http.Handler { return d.router }

// Run serves until Shutdown; it returns nil after a clean shutdown.
func (d *DebugServer) Run() error {
	d.log.Info("debug server listening", zap.String("addr", d.srv.Addr))
	if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the debug server gracefully.
func (d *DebugServer) Shutdown(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}
