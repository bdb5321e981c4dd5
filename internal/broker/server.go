package broker

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/shmfabric/shmbroker/internal/logging"
	"github.com/shmfabric/shmbroker/internal/monitoring"
	"github.com/shmfabric/shmbroker/internal/shmem"
	"github.com/shmfabric/shmbroker/internal/wire"
)

const (
	// ListenBacklog is the pending-connection backlog on the rendezvous
	// socket.
	ListenBacklog = 10

	// maxSunPath is the longest socket path that fits sockaddr_un.
	maxSunPath = 107
)

// ErrNotStarted is returned by dispatch entry points before Start or after
// Close.
var ErrNotStarted = errors.New("broker: server not started")

// Options configures a Server; immutable after New.
type Options struct {
	// SocketPath is the Unix-domain rendezvous socket, created by Start
	// and unlinked by Close.
	SocketPath string

	// ShmPath names the shared-memory object. A bare name is created
	// under /dev/shm; a path with a separator is used as-is.
	ShmPath string

	// ShmSize is the requested region size; the allocated size is the
	// next power of two and may be larger still on hugepage mounts.
	ShmSize uint64

	// VectorCount is the number of eventfd vectors every peer receives.
	VectorCount int
}

// Server brokers one shared-memory region between peers. All methods must
// be called from the goroutine that owns the event loop; only Peers and
// Dump are safe to call concurrently.
type Server struct {
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics

	listenFd int
	region   *shmem.Region
	peers    registry
	// nextID is the probe start for id allocation; it drops back when a
	// lower id is freed so ids are reused, lowest first.
	nextID int64
}

// New captures the configuration and validates the paths. No resources are
// acquired until Start.
func New(opts Options, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if opts.SocketPath == "" || len(opts.SocketPath) > maxSunPath {
		return nil, fmt.Errorf("broker: invalid socket path %q: must be 1..%d bytes", opts.SocketPath, maxSunPath)
	}
	if opts.ShmPath == "" || len(opts.ShmPath) > unix.PathMax {
		return nil, fmt.Errorf("broker: invalid shm path %q", opts.ShmPath)
	}
	if opts.VectorCount < 0 {
		return nil, fmt.Errorf("broker: negative vector count %d", opts.VectorCount)
	}
	return &Server{
		opts:     opts,
		log:      log,
		listenFd: -1,
	}, nil
}

// WithMetrics attaches a metrics collector; optional.
func (s *Server) WithMetrics(m *monitoring.Metrics) *Server {
	s.metrics = m
	return s
}

// Start provisions the shared memory and binds the listening socket. On any
// failure everything already opened is released and the server stays
// stopped.
func (s *Server) Start() error {
	if s.listenFd >= 0 {
		return errors.New("broker: already started")
	}

	region, err := shmem.Provision(s.opts.ShmPath, s.opts.ShmSize)
	if err != nil {
		return fmt.Errorf("broker: provision shared memory: %w", err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		region.Close()
		return fmt.Errorf("broker: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: s.opts.SocketPath}); err != nil {
		unix.Close(fd)
		region.Close()
		return fmt.Errorf("broker: bind %s: %w", s.opts.SocketPath, err)
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		os.Remove(s.opts.SocketPath)
		region.Close()
		return fmt.Errorf("broker: listen %s: %w", s.opts.SocketPath, err)
	}

	s.region = region
	s.listenFd = fd
	if s.metrics != nil {
		s.metrics.SetShmBytes(region.Size)
	}
	s.log.Info("broker started",
		zap.String("socket", s.opts.SocketPath),
		zap.String("shm", region.Path),
		zap.Uint64("shm_bytes", region.Size),
		zap.Int("vectors", s.opts.VectorCount),
	)
	return nil
}

// Close frees every connected peer, unlinks the socket path and releases
// the listening socket and the shared-memory descriptor. The shm object
// itself stays in the filesystem. Close is idempotent.
func (s *Server) Close() error {
	if s.listenFd < 0 && s.region == nil {
		return nil
	}
	for _, p := range s.peers.snapshot() {
		s.freePeer(p)
	}
	os.Remove(s.opts.SocketPath)
	if s.listenFd >= 0 {
		unix.Close(s.listenFd)
		s.listenFd = -1
	}
	if s.region != nil {
		s.region.Close()
		s.region = nil
	}
	s.log.Info("broker closed", zap.String("socket", s.opts.SocketPath))
	return nil
}

// WatchSet returns the descriptors the event-loop owner must watch for
// readability: the listening socket first, then every peer socket in
// connection order, plus the highest descriptor in the set. Returns
// (nil, -1) when the server is not started.
func (s *Server) WatchSet() ([]int, int) {
	if s.listenFd < 0 {
		return nil, -1
	}
	fds := []int{s.listenFd}
	maxFd := s.listenFd
	for _, p := range s.peers.snapshot() {
		fds = append(fds, p.sock)
		if p.sock > maxFd {
			maxFd = p.sock
		}
	}
	return fds, maxFd
}

// HandleReady runs one dispatch cycle over the descriptors isReady reports
// readable. The listening socket is serviced first so new connections are
// admitted before stale peers are reaped; then every readable peer socket
// is torn down, readability being the only disconnect signal the protocol
// defines. Only a non-transient accept failure makes the cycle itself
// fail; handshake failures abort the one connection and are not fatal.
func (s *Server) HandleReady(isReady func(fd int) bool) error {
	if s.listenFd < 0 {
		return ErrNotStarted
	}

	if isReady(s.listenFd) {
		if err := s.acceptOne(); err != nil {
			return err
		}
	}

	for _, p := range s.peers.snapshot() {
		if s.peers.find(p.id) != p {
			continue // freed earlier in this sweep
		}
		if isReady(p.sock) {
			s.freePeer(p)
		}
	}
	return nil
}

func (s *Server) acceptOne() error {
	sock, _, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if transientAcceptErr(err) {
			s.log.Debug("transient accept failure", zap.Error(err))
			return nil
		}
		if s.metrics != nil {
			s.metrics.RecordHandshakeFailure("accept")
		}
		return fmt.Errorf("broker: accept: %w", err)
	}
	s.log.Debug("accepted connection", zap.Int("fd", sock))

	if err := s.handshake(sock); err != nil {
		// Local to this connection; the server keeps serving others.
		s.log.Warn("handshake failed", zap.Error(err))
		return nil
	}
	return nil
}

func transientAcceptErr(err error) bool {
	return errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.ECONNABORTED)
}

// handshake runs the fixed post-accept sequence: allocate an id, allocate
// the vectors, send version/id/shm-fd to the new peer, fan the vector
// advertisements out, and only then insert the peer into the registry. Any
// failure before insertion unwinds every resource allocated for the
// connection; other peers never observe a peer that failed its handshake.
func (s *Server) handshake(sock int) error {
	peer := &Peer{id: s.allocID(), sock: sock}

	vectors, err := allocVectors(s.opts.VectorCount)
	if err != nil {
		unix.Close(sock)
		s.releaseID(peer.id)
		if s.metrics != nil {
			s.metrics.RecordHandshakeFailure("vectors")
		}
		return err
	}
	peer.vectors = vectors

	if err := s.sendInitialInfo(peer); err != nil {
		closeAll(peer.vectors)
		unix.Close(sock)
		s.releaseID(peer.id)
		if s.metrics != nil {
			s.metrics.RecordHandshakeFailure("send")
		}
		return err
	}

	if failed := s.advertise(peer); len(failed) > 0 {
		// Fire-and-forget by protocol design: a peer with a full send
		// buffer misses the advertisement and the connection proceeds.
		s.log.Warn("vector advertisement not delivered to all peers",
			zap.Int64("new_peer_id", peer.id),
			zap.Int64s("failed_peer_ids", failed),
		)
		if s.metrics != nil {
			s.metrics.RecordAdvertiseFailures(len(failed))
		}
	}

	s.peers.insert(peer)
	if s.metrics != nil {
		s.metrics.RecordConnect()
	}
	s.log.Info("peer connected",
		zap.Int64("peer_id", peer.id),
		zap.Int("vectors", len(peer.vectors)),
	)
	return nil
}

// allocID returns the lowest id not held by a connected peer, probing
// upward from nextID. releaseID lowers nextID when an id is returned, so
// ids free up for reuse immediately after disconnection or an aborted
// handshake.
func (s *Server) allocID() int64 {
	id := s.nextID
	for s.peers.find(id) != nil {
		id++
	}
	s.nextID = id + 1
	return id
}

// releaseID makes id eligible for reuse by the next allocation.
func (s *Server) releaseID(id int64) {
	if id < s.nextID {
		s.nextID = id
	}
}

// sendInitialInfo sends the three mandatory handshake messages, in order:
// protocol version, the peer's own id, and the shared-memory descriptor
// under the sentinel payload. A failure here aborts the connection.
func (s *Server) sendInitialInfo(p *Peer) error {
	if err := wire.Send(p.sock, wire.ProtocolVersion, wire.NoFd); err != nil {
		return fmt.Errorf("broker: send version to peer %d: %w", p.id, err)
	}
	if err := wire.Send(p.sock, p.id, wire.NoFd); err != nil {
		return fmt.Errorf("broker: send id to peer %d: %w", p.id, err)
	}
	if err := wire.Send(p.sock, wire.ShmSentinel, s.region.Fd); err != nil {
		return fmt.Errorf("broker: send shm fd to peer %d: %w", p.id, err)
	}
	return nil
}

// advertise distributes vectors after the initial info: the new peer's
// vectors go to every registered peer, every registered peer's vectors go
// to the new peer, and finally the new peer sees its own vectors in the
// same framing. Sends are best-effort; the returned ids name the peers
// that missed at least one message.
func (s *Server) advertise(newPeer *Peer) []int64 {
	var failed []int64
	others := s.peers.snapshot()

	for _, other := range others {
		if err := sendVectors(other.sock, newPeer.id, newPeer.vectors); err != nil {
			s.log.Debug("advertise to existing peer failed",
				zap.Int64("peer_id", other.id), zap.Error(err))
			failed = append(failed, other.id)
		}
	}

	newPeerMissed := false
	for _, other := range others {
		if err := sendVectors(newPeer.sock, other.id, other.vectors); err != nil {
			s.log.Debug("replay to new peer failed",
				zap.Int64("peer_id", other.id), zap.Error(err))
			newPeerMissed = true
		}
	}
	if err := sendVectors(newPeer.sock, newPeer.id, newPeer.vectors); err != nil {
		s.log.Debug("self advertisement to new peer failed",
			zap.Int64("peer_id", newPeer.id), zap.Error(err))
		newPeerMissed = true
	}
	if newPeerMissed {
		failed = append(failed, newPeer.id)
	}
	return failed
}

// sendVectors sends one message per vector, payload = id, descriptor = the
// vector. The remaining vectors are skipped after the first failure since
// the connection is already broken or backed up.
func sendVectors(sock int, id int64, vectors []int) error {
	for _, fd := range vectors {
		if err := wire.Send(sock, id, fd); err != nil {
			return err
		}
	}
	return nil
}

// freePeer tears down a connected peer: close its socket, drop it from the
// registry, send the goodbye to everyone left, then release the vectors.
// Removal precedes the goodbye loop so the departing peer is never
// notified about itself; the vectors outlive the loop so the broadcast
// never touches closed handles. Returns the ids of peers whose goodbye
// could not be delivered.
func (s *Server) freePeer(p *Peer) []int64 {
	s.log.Debug("free peer", zap.Int64("peer_id", p.id))
	unix.Close(p.sock)
	p.sock = -1
	s.peers.remove(p)
	s.releaseID(p.id)

	var failed []int64
	for _, other := range s.peers.snapshot() {
		if err := wire.Send(other.sock, p.id, wire.NoFd); err != nil {
			s.log.Debug("goodbye not delivered",
				zap.Int64("peer_id", other.id), zap.Error(err))
			failed = append(failed, other.id)
		}
	}

	closeAll(p.vectors)
	p.vectors = nil

	if s.metrics != nil {
		s.metrics.RecordDisconnect()
		if len(failed) > 0 {
			s.metrics.RecordAdvertiseFailures(len(failed))
		}
	}
	s.log.Info("peer disconnected", zap.Int64("peer_id", p.id))
	return failed
}

// PeerInfo is a read-only snapshot of one connected peer.
type PeerInfo struct {
	ID      int64 `json:"id"`
	Vectors int   `json:"vectors"`
}

// Peers returns a snapshot of the connected peers in connection order.
// Safe to call from any goroutine.
func (s *Server) Peers() []PeerInfo {
	snapshot := s.peers.snapshot()
	out := make([]PeerInfo, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, PeerInfo{ID: p.id, Vectors: len(p.vectors)})
	}
	return out
}

// Dump returns a human-readable listing of the connected peers and their
// vectors. Debug only; no protocol effect.
func (s *Server) Dump() string {
	var b strings.Builder
	for _, p := range s.peers.snapshot() {
		fmt.Fprintf(&b, "peer_id = %d\n", p.id)
		for i, fd := range p.vectors {
			fmt.Fprintf(&b, "  vector %d is enabled (fd=%d)\n", i, fd)
		}
	}
	return b.String()
}

// ShmSize returns the allocated region size in bytes, zero before Start.
func (s *Server) ShmSize() uint64 {
	if s.region == nil {
		return 0
	}
	return s.region.Size
}

// SocketPath returns the configured rendezvous socket path.
func (s *Server) SocketPath() string { return s.opts.SocketPath }
