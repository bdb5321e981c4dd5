// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// The broker logs every connection-lifecycle event (accept, handshake,
// disconnect) at debug level; running with a development logger at debug
// level is the equivalent of the classic ivshmem-server --verbose flag.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("broker starting", zap.String("socket", path))
//	logger.Error("accept failed", zap.Error(err))
package logging
