// Package main is the entry point for the shmbroker daemon.
//
// The daemon brokers one shared-memory region between local clients
// (typically VM instances with an ivshmem device): each client connects to
// a Unix-domain socket and receives the region's file descriptor plus one
// eventfd per interrupt vector for every connected peer. Clients then
// signal each other directly through the eventfds; the broker stays out of
// the data path.
//
// The process is single-threaded and event-driven: one select(2) loop
// multiplexes the listening socket, every peer socket, and a self-pipe used
// for signal-driven shutdown.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML config file (-config)
//   - CLI flags (override both)
//
// Usage:
//
//	# Defaults: /tmp/ivshmem_socket, 4 MiB region under /dev/shm/ivshmem
//	./shmbroker
//
//	# Hugepage-backed region, 16 vectors, verbose logging
//	./shmbroker -S /run/shm.sock -m /dev/hugepages/ivshmem -l 16777216 -n 16 -v
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown (peers torn down, socket unlinked)
package main
