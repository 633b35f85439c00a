// Package peer defines the Peer identity and the registry of configured
// peers that the prober and fetch orchestrator operate over.
package peer

import "sync"

// Peer is another installation of this system, reachable over HTTP at
// (IP, Port). Identity is (IP, Port) alone: Alive and Epoch are liveness
// bookkeeping and never participate in equality or hashing.
type Peer struct {
	IP    string
	Port  int
	Alive bool
	Epoch int64
}

// Key returns the comparable identity of the peer, suitable for use as a
// map key. Two Peers with equal IP and Port compare equal regardless of
// Alive/Epoch.
type Key struct {
	IP   string
	Port int
}

func (p Peer) Key() Key { return Key{IP: p.IP, Port: p.Port} }

// Less orders peers by epoch first (for heap use), then by identity to
// make the ordering stable for equal epochs.
func Less(a, b Peer) bool {
	if a.Epoch != b.Epoch {
		return a.Epoch < b.Epoch
	}
	if a.IP != b.IP {
		return a.IP < b.IP
	}
	return a.Port < b.Port
}

// Registry is the configuration-backed ordered set of peers. It is owned
// by the configuration subsystem; the prober only reads it and reacts to
// mutation notifications (see prober.Prober.UpdatePeers).
type Registry struct {
	mu    sync.RWMutex
	order []Key
	byKey map[Key]Peer
}

// NewRegistry builds a Registry from an initial peer list, de-duplicating
// by identity and preserving first-seen order.
func NewRegistry(peers []Peer) *Registry {
	r := &Registry{byKey: make(map[Key]Peer)}
	for _, p := range peers {
		r.add(p)
	}
	return r
}

func (r *Registry) add(p Peer) {
	k := p.Key()
	if _, ok := r.byKey[k]; !ok {
		r.order = append(r.order, k)
	}
	r.byKey[k] = p
}

// Replace atomically swaps the registry contents for a new peer set,
// preserving the order given.
func (r *Registry) Replace(peers []Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byKey = make(map[Key]Peer)
	for _, p := range peers {
		r.add(p)
	}
}

// Add inserts or updates a single peer. Returns false if the peer was
// already present (same identity).
func (r *Registry) Add(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.byKey[p.Key()]
	r.add(p)
	return !existed
}

// Remove drops a peer by identity. Returns false if it was not present.
func (r *Registry) Remove(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[k]; !ok {
		return false
	}
	delete(r.byKey, k)
	for i, o := range r.order {
		if o == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns a snapshot of the registry in stable order.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}
