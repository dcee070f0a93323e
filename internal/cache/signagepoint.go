// Package cache implements the Farmer's in-memory state: the signage-point
// cache (B), proof candidate store (C), solver store (I), and the janitor
// (D) that reclaims all three by age. Every cache guards its own state with
// a mutex — per SPEC_FULL.md §5, this mutex is the Go stand-in for the
// single-threaded cooperative scheduler's atomicity-between-suspension-points
// guarantee, since Go has no literal single event loop.
package cache

import (
	"sync"

	"github.com/chia-farm/farmer-core/internal/protocol"
)

// SignagePoints is component B: cc_sp_hash -> list<SignagePoint>, with
// per-slot dedup support for the race described in spec.md §5 and §8 S1.
type SignagePoints struct {
	mu      sync.Mutex
	entries map[protocol.Hash32][]protocol.SignagePoint
	pending map[protocol.Hash32]int
	addTime map[protocol.Hash32]int64
}

// NewSignagePoints constructs an empty signage-point cache.
func NewSignagePoints() *SignagePoints {
	return &SignagePoints{
		entries: make(map[protocol.Hash32][]protocol.SignagePoint),
		pending: make(map[protocol.Hash32]int),
		addTime: make(map[protocol.Hash32]int64),
	}
}

// Has reports whether any entry (finalized or still in flight) exists for spHash.
func (c *SignagePoints) Has(spHash protocol.Hash32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[spHash]
	return ok
}

// Get returns a copy of the finalized signage points recorded for spHash.
func (c *SignagePoints) Get(spHash protocol.Hash32) []protocol.SignagePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.entries[spHash]
	out := make([]protocol.SignagePoint, len(list))
	copy(out, list)
	return out
}

// BeginInsert implements spec.md §5's sentinel dedup: it atomically checks
// for an existing finalized entry with an identical reward_chain_sp (silent
// drop, spec.md §4.F step 2) or an in-flight insert for the same sp_hash
// (silent drop, the race-closing sentinel), and otherwise reserves a slot
// for this insert before the caller suspends to broadcast. Returns true iff
// the caller should proceed to broadcast and later call FinishInsert.
func (c *SignagePoints) BeginInsert(sp protocol.SignagePoint, now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	spHash := sp.SPHash()
	if list, ok := c.entries[spHash]; ok {
		for _, e := range list {
			if e.RewardChainSP == sp.RewardChainSP {
				return false
			}
		}
		if c.pending[spHash] > 0 {
			return false
		}
		c.pending[spHash]++
		return true
	}

	c.entries[spHash] = nil
	c.addTime[spHash] = now
	c.pending[spHash] = 1
	return true
}

// FinishInsert appends sp to its finalized list and releases the pending
// reservation taken by BeginInsert. Must be called exactly once for every
// BeginInsert that returned true.
func (c *SignagePoints) FinishInsert(sp protocol.SignagePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	spHash := sp.SPHash()
	c.entries[spHash] = append(c.entries[spHash], sp)
	c.pending[spHash]--
}

// EvictOlderThan removes every sp_hash whose cache-add-time predates
// cutoff, returning the number of keys removed.
func (c *SignagePoints) EvictOlderThan(cutoff int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, t := range c.addTime {
		if t < cutoff {
			delete(c.entries, k)
			delete(c.pending, k)
			delete(c.addTime, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of distinct sp_hash keys currently cached.
func (c *SignagePoints) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
