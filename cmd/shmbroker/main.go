package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/shmfabric/shmbroker/internal/api"
	"github.com/shmfabric/shmbroker/internal/broker"
	"github.com/shmfabric/shmbroker/internal/config"
	"github.com/shmfabric/shmbroker/internal/logging"
	"github.com/shmfabric/shmbroker/internal/monitoring"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		socketPath = flag.String("S", "", "unix socket path")
		shmPath    = flag.String("m", "", "shared memory object name or path")
		shmSize    = flag.Uint64("l", 0, "shared memory size in bytes")
		vectors    = flag.Int("n", -1, "interrupt vectors per peer")
		verbose    = flag.Bool("v", false, "verbose logging (debug level, console output)")
		debugAddr  = flag.String("debug-addr", "", "enable debug HTTP server on this address")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applyFlags(cfg, *socketPath, *shmPath, *shmSize, *vectors, *verbose, *debugAddr)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	instanceID := uuid.NewString()
	logger.Info("starting shmbroker",
		zap.String("instance_id", instanceID),
		zap.String("socket", cfg.Broker.SocketPath),
		zap.String("shm", cfg.Broker.ShmPath),
		zap.Uint64("shm_size", cfg.Broker.ShmSize),
		zap.Int("vectors", cfg.Broker.VectorCount),
	)

	metrics := monitoring.NewMetrics()

	srv, err := broker.New(broker.Options{
		SocketPath:  cfg.Broker.SocketPath,
		ShmPath:     cfg.Broker.ShmPath,
		ShmSize:     cfg.Broker.ShmSize,
		VectorCount: cfg.Broker.VectorCount,
	}, logger)
	if err != nil {
		logger.Fatal("invalid broker options", zap.Error(err))
	}
	srv.WithMetrics(metrics)

	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start broker", zap.Error(err))
	}
	defer srv.Close()

	if cfg.Debug.Enabled {
		debug := api.NewDebugServer(cfg.Debug, srv, promhttp.Handler(), instanceID, logger)
		go func() {
			if err := debug.Run(); err != nil {
				logger.Error("debug server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			debug.Shutdown(ctx)
		}()
	}

	if err := dispatchLoop(srv, metrics, logger); err != nil {
		logger.Error("dispatch loop failed", zap.Error(err))
	}
}

// loadConfig reads the TOML file when given, the environment otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// applyFlags lets explicit CLI flags override file and environment.
func applyFlags(cfg *config.Config, socketPath, shmPath string, shmSize uint64, vectors int, verbose bool, debugAddr string) {
	if socketPath != "" {
		cfg.Broker.SocketPath = socketPath
	}
	if shmPath != "" {
		cfg.Broker.ShmPath = shmPath
	}
	if shmSize > 0 {
		cfg.Broker.ShmSize = shmSize
	}
	if vectors >= 0 {
		cfg.Broker.VectorCount = vectors
	}
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if debugAddr != "" {
		cfg.Debug.Enabled = true
		cfg.Debug.Addr = debugAddr
	}
}

// dispatchLoop multiplexes the broker's watch set with select(2) until a
// shutdown signal arrives on the self-pipe.
func dispatchLoop(srv *broker.Server, metrics *monitoring.Metrics, logger *logging.Logger) error {
	wakeRead, wakeWrite, err := os.Pipe()
	if err != nil {
		return err
	}
	defer wakeRead.Close()
	defer wakeWrite.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		wakeWrite.Write([]byte{0})
	}()

	wakeFd := int(wakeRead.Fd())
	for {
		fds, maxFd := srv.WatchSet()
		var readable unix.FdSet
		readable.Zero()
		for _, fd := range fds {
			readable.Set(fd)
		}
		readable.Set(wakeFd)
		if wakeFd > maxFd {
			maxFd = wakeFd
		}

		if _, err := unix.Select(maxFd+1, &readable, nil, nil, nil); err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		if readable.IsSet(wakeFd) {
			return nil
		}
		metrics.UpdateUptime()
		if err := srv.HandleReady(readable.IsSet); err != nil {
			return err
		}
		if logger.Core().Enabled(zap.DebugLevel) {
			logger.Debug("registry state", zap.String("peers", srv.Dump()))
		}
	}
}
