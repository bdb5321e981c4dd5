// Package config provides 12-factor configuration management for the broker.
//
// Configuration is loaded from environment variables with sensible defaults;
// an optional TOML file can supply the same settings, and CLI flags in
// cmd/shmbroker override both.
//
// Configuration Sections:
//   - Broker: rendezvous socket path, shm path/size, vectors per peer
//   - Debug: optional HTTP introspection server
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("listening on %s\n", cfg.Broker.SocketPath)
//
// Environment Variables:
//   - SHMBROKER_SOCKET, SHMBROKER_SHM_PATH, SHMBROKER_SHM_SIZE, SHMBROKER_VECTORS
//   - SHMBROKER_DEBUG_ENABLED, SHMBROKER_DEBUG_ADDR
//   - SHMBROKER_LOG_LEVEL, SHMBROKER_LOG_DEV
package config
