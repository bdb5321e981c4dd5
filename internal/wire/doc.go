// Package wire implements the ivshmem client/server framing: every message
// is one little-endian int64 payload, optionally accompanied by a single
// file descriptor passed as SCM_RIGHTS ancillary data.
//
// The payload's meaning is positional, not self-describing. During the
// handshake the server sends, in order, the protocol version, the peer's own
// id, and a sentinel value of -1 carrying the shared-memory descriptor.
// After that, a payload with a descriptor advertises one interrupt vector of
// the named peer, and a payload without one announces that peer's departure.
// This framing is wire-compatible with QEMU's ivshmem device clients and
// must not change.
package wire
