package broker

import "sync"

// registry is the ordered set of connected peers; insertion order is
// connection order and broadcast order. Mutation happens only on the
// dispatch path; the lock exists so the debug surface can snapshot the set
// from another goroutine.
type registry struct {
	mu    sync.RWMutex
	peers []*Peer
}

// find returns the connected peer with the given id, or nil.
func (r *registry) find(id int64) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		if p.id == id {
			return p
		}
	}
	return nil
}

// insert appends the peer. The caller must have verified that no connected
// peer carries the same id.
func (r *registry) insert(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
}

// remove drops the peer by identity. Removing a peer that is not present
// is a no-op.
func (r *registry) remove(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.peers {
		if cur == p {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			return
		}
	}
}

// snapshot returns the peers in connection order. Callers iterating the
// snapshot while freeing peers must re-validate each entry with find, since
// the underlying set may have changed.
func (r *registry) snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
