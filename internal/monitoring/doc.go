// Package monitoring provides Prometheus metrics for the broker.
//
// Metrics cover the connection lifecycle (connects, disconnects, handshake
// failures by reason), the fire-and-forget advertisement sends that the
// protocol allows to fail silently, and the provisioned shared-memory size.
//
// Export via the debug HTTP server:
//
//	import "github.com/prometheus/client_golang/prometheus/promhttp"
//	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
package monitoring
