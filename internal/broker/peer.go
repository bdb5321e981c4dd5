package broker

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Peer is one connected client. The broker owns the accepted socket and the
// eventfd vectors until the peer is freed; each is closed exactly once, on
// disconnect or server shutdown.
type Peer struct {
	id      int64
	sock    int
	vectors []int
}

// ID returns the peer's identifier. Ids are unique among currently
// connected peers and are reused after disconnection.
func (p *Peer) ID() int64 { return p.id }

// VectorCount returns the number of interrupt vectors the peer was
// allocated; fixed at connection time.
func (p *Peer) VectorCount() int { return len(p.vectors) }

// allocVectors creates count eventfds as an all-or-nothing unit: on any
// failure every eventfd created so far is closed and none leak.
func allocVectors(count int) ([]int, error) {
	vectors := make([]int, 0, count)
	for i := 0; i < count; i++ {
		fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
		if err != nil {
			closeAll(vectors)
			return nil, fmt.Errorf("broker: eventfd %d of %d: %w", i+1, count, err)
		}
		vectors = append(vectors, fd)
	}
	return vectors, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
