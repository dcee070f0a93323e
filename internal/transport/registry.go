package transport

import (
	"sync"

	"github.com/chia-farm/farmer-core/internal/util"
)

// Registry tracks connected peers of a single ConnectionType and offers
// broadcast fan-out, grounded on the teacher's master.go job-broadcast
// pattern (iterate connected slaves, send, log-and-continue on error).
type Registry struct {
	connType ConnectionType

	mu    sync.RWMutex
	peers map[string]Peer

	onConnect    func(Peer)
	onDisconnect func(Peer)
}

// NewRegistry constructs an empty registry for a single connection type.
func NewRegistry(connType ConnectionType) *Registry {
	return &Registry{connType: connType, peers: make(map[string]Peer)}
}

// OnConnect/OnDisconnect register observer hooks — grounded on farmer.py's
// on_connect (HarvesterHandshake dispatch) and on_disconnect
// (close_connection event), generalized to any registry.
func (r *Registry) OnConnect(fn func(Peer))    { r.onConnect = fn }
func (r *Registry) OnDisconnect(fn func(Peer)) { r.onDisconnect = fn }

// Add registers a newly connected peer and fires the connect hook.
func (r *Registry) Add(p Peer) {
	r.mu.Lock()
	r.peers[p.PeerNodeID()] = p
	r.mu.Unlock()
	if r.onConnect != nil {
		r.onConnect(p)
	}
}

// Remove unregisters a peer and fires the disconnect hook.
func (r *Registry) Remove(p Peer) {
	r.mu.Lock()
	_, existed := r.peers[p.PeerNodeID()]
	delete(r.peers, p.PeerNodeID())
	r.mu.Unlock()
	if existed && r.onDisconnect != nil {
		r.onDisconnect(p)
	}
}

// Get returns the peer registered under id, if connected.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// All returns a snapshot of every currently connected peer.
func (r *Registry) All() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len reports the number of connected peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Broadcast sends msgType/payload to every connected peer, logging and
// continuing past individual send failures (spec.md §7 PeerDispatchFailure
// is never fatal to the broadcast as a whole).
func (r *Registry) Broadcast(msgType string, payload any) {
	for _, p := range r.All() {
		if err := p.Send(msgType, payload); err != nil {
			util.Warnf("transport: broadcast to %s peer %s failed: %v", r.connType, p.PeerNodeID(), err)
		}
	}
}
