package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/tmp/ivshmem_socket", cfg.Broker.SocketPath)
	assert.Equal(t, "ivshmem", cfg.Broker.ShmPath)
	assert.Equal(t, uint64(4*1024*1024), cfg.Broker.ShmSize)
	assert.Equal(t, 1, cfg.Broker.VectorCount)

	assert.False(t, cfg.Debug.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.Debug.Addr)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"SHMBROKER_SOCKET":        "/run/shmbroker.sock",
		"SHMBROKER_SHM_PATH":      "/dev/hugepages/shmbroker",
		"SHMBROKER_SHM_SIZE":      "8388608",
		"SHMBROKER_VECTORS":       "4",
		"SHMBROKER_DEBUG_ENABLED": "true",
		"SHMBROKER_DEBUG_ADDR":    "127.0.0.1:9999",
		"SHMBROKER_LOG_LEVEL":     "debug",
		"SHMBROKER_LOG_DEV":       "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/run/shmbroker.sock", cfg.Broker.SocketPath)
	assert.Equal(t, "/dev/hugepages/shmbroker", cfg.Broker.ShmPath)
	assert.Equal(t, uint64(8*1024*1024), cfg.Broker.ShmSize)
	assert.Equal(t, 4, cfg.Broker.VectorCount)
	assert.True(t, cfg.Debug.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Debug.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmbroker.toml")
	data := `
[broker]
socket_path = "/run/broker.sock"
shm_size = 65536
vectors = 2

[logging]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/broker.sock", cfg.Broker.SocketPath)
	assert.Equal(t, uint64(65536), cfg.Broker.ShmSize)
	assert.Equal(t, 2, cfg.Broker.VectorCount)
	// Unset sections keep their defaults.
	assert.Equal(t, "ivshmem", cfg.Broker.ShmPath)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"empty socket path", func(c *Config) { c.Broker.SocketPath = "" }, false},
		{"socket path too long", func(c *Config) { c.Broker.SocketPath = "/" + strings.Repeat("x", MaxPathLen) }, false},
		{"socket path at limit", func(c *Config) { c.Broker.SocketPath = "/" + strings.Repeat("x", MaxPathLen-1) }, true},
		{"empty shm path", func(c *Config) { c.Broker.ShmPath = "" }, false},
		{"shm path too long", func(c *Config) { c.Broker.ShmPath = strings.Repeat("y", MaxPathLen+1) }, false},
		{"zero shm size", func(c *Config) { c.Broker.ShmSize = 0 }, false},
		{"negative vectors", func(c *Config) { c.Broker.VectorCount = -1 }, false},
		{"too many vectors", func(c *Config) { c.Broker.VectorCount = MaxVectors + 1 }, false},
		{"zero vectors allowed", func(c *Config) { c.Broker.VectorCount = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
