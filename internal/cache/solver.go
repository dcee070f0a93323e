package cache

import (
	"sync"

	"github.com/chia-farm/farmer-core/internal/protocol"
)

// PendingSolverRequest is component I's value type: the originating
// harvester submission plus the peer handle to re-address once a solver
// returns a finished proof (spec.md §3 PendingSolverRequest).
type PendingSolverRequest struct {
	Data PartialProofPeer
}

// PartialProofPeer pairs a PartialProofsData with the harvester peer id
// that submitted it — a thin alias kept distinct from the protocol type so
// the cache package never imports the transport package.
type PartialProofPeer struct {
	ProofData protocol.PartialProofsData
	PeerID    string
}

// Solver is component I: partial_proof_key -> pending request.
type Solver struct {
	mu      sync.Mutex
	entries map[string]PartialProofPeer
	addTime map[string]int64
}

// NewSolver constructs an empty solver store.
func NewSolver() *Solver {
	return &Solver{
		entries: make(map[string]PartialProofPeer),
		addTime: make(map[string]int64),
	}
}

// Insert records a pending solver request for a partial-proof key.
func (s *Solver) Insert(key string, entry PartialProofPeer, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	s.addTime[key] = now
}

// Remove deletes key unconditionally — used both by the happy-path
// solution_response and by J's dispatch-failure rollback.
func (s *Solver) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	delete(s.addTime, key)
}

// Take atomically removes and returns the pending entry for key, reporting
// whether it was present — spec.md §4.J step 2 "I.remove(key)".
func (s *Solver) Take(key string) (PartialProofPeer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		delete(s.addTime, key)
	}
	return entry, ok
}

// Has reports whether key is currently pending.
func (s *Solver) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len reports the number of pending solver requests.
func (s *Solver) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// EvictOlderThan removes every key whose cache-add-time predates cutoff.
func (s *Solver) EvictOlderThan(cutoff int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, t := range s.addTime {
		if t < cutoff {
			delete(s.entries, k)
			delete(s.addTime, k)
			removed++
		}
	}
	return removed
}
