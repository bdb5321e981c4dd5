// Package broker implements the ivshmem server: a single-threaded broker
// that owns a shared-memory region and a Unix-domain rendezvous socket, and
// hands every connecting peer the region's descriptor plus one eventfd per
// interrupt vector for itself and every other peer. Peers then signal each
// other directly through the eventfds; the broker is out of the data path.
//
// The broker is event-driven and never blocks: the owner of the process
// event loop calls WatchSet to learn which descriptors to select on and
// HandleReady to run one dispatch cycle. Within a cycle the listening
// socket is always serviced before peer sockets, and any readability on a
// peer socket is treated as a disconnect; the protocol defines no
// client-to-server payload after the handshake, so the server never reads
// from peers.
//
// All registry state is touched only from the dispatch path, which runs to
// completion without yielding; the mutex on the registry exists solely so
// the debug HTTP surface can take consistent read-only snapshots.
package broker
