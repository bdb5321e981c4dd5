package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Limits imposed by the wire protocol and the unix socket address format.
const (
	// MaxPathLen is the longest socket or shm path accepted; unix
	// sockaddr_un.sun_path is 108 bytes including the NUL terminator.
	MaxPathLen = 107

	// MaxVectors caps the interrupt vectors handed to each peer.
	MaxVectors = 64
)

// Config holds all broker configuration.
type Config struct {
	Broker  BrokerConfig
	Debug   DebugConfig
	Logging LogConfig
}

// BrokerConfig holds the shared-memory and rendezvous socket settings.
type BrokerConfig struct {
	SocketPath  string `envconfig:"SHMBROKER_SOCKET" toml:"socket_path" default:"/tmp/ivshmem_socket"`
	ShmPath     string `envconfig:"SHMBROKER_SHM_PATH" toml:"shm_path" default:"ivshmem"`
	ShmSize     uint64 `envconfig:"SHMBROKER_SHM_SIZE" toml:"shm_size" default:"4194304"`
	VectorCount int    `envconfig:"SHMBROKER_VECTORS" toml:"vectors" default:"1"`
}

// DebugConfig holds the optional HTTP introspection server settings.
type DebugConfig struct {
	Enabled           bool   `envconfig:"SHMBROKER_DEBUG_ENABLED" toml:"enabled" default:"false"`
	Addr              string `envconfig:"SHMBROKER_DEBUG_ADDR" toml:"addr" default:"127.0.0.1:9090"`
	RequestsPerSecond int    `envconfig:"SHMBROKER_DEBUG_RPS" toml:"requests_per_second" default:"50"`
	Burst             int    `envconfig:"SHMBROKER_DEBUG_BURST" toml:"burst" default:"100"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"SHMBROKER_LOG_LEVEL" toml:"level" default:"info"`
	Development bool   `envconfig:"SHMBROKER_LOG_DEV" toml:"development" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			SocketPath:  "/tmp/ivshmem_socket",
			ShmPath:     "ivshmem",
			ShmSize:     4 * 1024 * 1024,
			VectorCount: 1,
		},
		Debug: DebugConfig{
			Enabled:           false,
			Addr:              "127.0.0.1:9090",
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks the broker settings against protocol limits.
func (c *Config) Validate() error {
	b := c.Broker
	if b.SocketPath == "" {
		return fmt.Errorf("socket path is required")
	}
	if len(b.SocketPath) > MaxPathLen {
		return fmt.Errorf("socket path too long: %d bytes, max %d", len(b.SocketPath), MaxPathLen)
	}
	if b.ShmPath == "" {
		return fmt.Errorf("shm path is required")
	}
	if len(b.ShmPath) > MaxPathLen {
		return fmt.Errorf("shm path too long: %d bytes, max %d", len(b.ShmPath), MaxPathLen)
	}
	if b.ShmSize == 0 {
		return fmt.Errorf("shm size must be greater than zero")
	}
	if b.VectorCount < 0 || b.VectorCount > MaxVectors {
		return fmt.Errorf("vector count %d out of range [0, %d]", b.VectorCount, MaxVectors)
	}
	return nil
}
