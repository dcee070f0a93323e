package cache

import (
	"sync"

	"github.com/chia-farm/farmer-core/internal/protocol"
)

// Candidate is a (plot_identifier, proof) pair recorded against an sp_hash,
// plus the quality string it was accepted under — cached so the block-phase
// handler can address RequestSignedValues without recomputing it.
type Candidate struct {
	PlotIdentifier string
	Proof          protocol.ProofOfSpace
	QualityString  protocol.Hash32
}

// QualityRecord resolves a quality_string back to the harvester that
// produced it, so block-phase RequestSignedValues can be addressed.
type QualityRecord struct {
	PlotIdentifier  string
	ChallengeHash   protocol.Hash32
	SPHash          protocol.Hash32
	HarvesterPeerID string
}

// Candidates is component C: the proof candidate store plus the
// quality_string -> (plot_id, challenge_hash, sp_hash, harvester_peer_id)
// resolution map.
type Candidates struct {
	mu         sync.Mutex
	bySP       map[protocol.Hash32][]Candidate
	byQuality  map[protocol.Hash32]QualityRecord
	addTime    map[protocol.Hash32]int64 // keyed by sp_hash
}

// NewCandidates constructs an empty candidate store.
func NewCandidates() *Candidates {
	return &Candidates{
		bySP:      make(map[protocol.Hash32][]Candidate),
		byQuality: make(map[protocol.Hash32]QualityRecord),
		addTime:   make(map[protocol.Hash32]int64),
	}
}

// Add appends a candidate for spHash, marking the cache-add-time on first
// insertion for this sp_hash (used by the janitor, spec.md §4.D).
func (c *Candidates) Add(spHash protocol.Hash32, plotIdentifier string, proof protocol.ProofOfSpace, qualityString protocol.Hash32, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.addTime[spHash]; !ok {
		c.addTime[spHash] = now
	}
	c.bySP[spHash] = append(c.bySP[spHash], Candidate{PlotIdentifier: plotIdentifier, Proof: proof, QualityString: qualityString})
}

// Get returns a copy of the candidates recorded for spHash.
func (c *Candidates) Get(spHash protocol.Hash32) []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.bySP[spHash]
	out := make([]Candidate, len(list))
	copy(out, list)
	return out
}

// RegisterQuality records the quality-string resolution for a just-accepted
// candidate (spec.md §4.C register_quality).
func (c *Candidates) RegisterQuality(qualityString protocol.Hash32, rec QualityRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byQuality[qualityString] = rec
}

// ResolveQuality looks up the harvester/candidate that produced
// qualityString (spec.md §4.C resolve_quality).
func (c *Candidates) ResolveQuality(qualityString protocol.Hash32) (QualityRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.byQuality[qualityString]
	return rec, ok
}

// EvictOlderThan removes every sp_hash (and its candidates) whose
// cache-add-time predates cutoff. Quality-string entries referencing an
// evicted sp_hash are left in place: byQuality is never walked during a
// sweep and nothing in Candidates removes its entries, so ResolveQuality
// still finds them after their sp_hash has been evicted.
func (c *Candidates) EvictOlderThan(cutoff int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, t := range c.addTime {
		if t < cutoff {
			delete(c.bySP, k)
			delete(c.addTime, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of distinct sp_hash keys currently cached.
func (c *Candidates) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bySP)
}
