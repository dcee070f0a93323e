package cache

import (
	"testing"

	"github.com/chia-farm/farmer-core/internal/protocol"
)

func TestCandidatesAddGet(t *testing.T) {
	c := NewCandidates()
	var spHash protocol.Hash32
	spHash[0] = 1

	c.Add(spHash, "plot-a", protocol.ProofOfSpace{}, protocol.Hash32{1}, 100)
	c.Add(spHash, "plot-b", protocol.ProofOfSpace{}, protocol.Hash32{2}, 101)

	got := c.Get(spHash)
	if len(got) != 2 {
		t.Fatalf("Get returned %d candidates, want 2", len(got))
	}
	if got[0].PlotIdentifier != "plot-a" || got[1].PlotIdentifier != "plot-b" {
		t.Fatalf("unexpected candidate order/content: %+v", got)
	}
}

func TestCandidatesAddTimeStaysAtFirstInsert(t *testing.T) {
	c := NewCandidates()
	var spHash protocol.Hash32
	spHash[0] = 1

	c.Add(spHash, "plot-a", protocol.ProofOfSpace{}, protocol.Hash32{1}, 100)
	c.Add(spHash, "plot-b", protocol.ProofOfSpace{}, protocol.Hash32{2}, 500)

	// A later Add must not push the sp_hash's cache-add-time forward, or the
	// janitor would never reclaim the first candidate on schedule.
	removed := c.EvictOlderThan(150)
	if removed != 1 {
		t.Fatalf("expected eviction at cutoff=150 using the first add-time (100), got removed=%d", removed)
	}
}

func TestCandidatesRegisterResolveQuality(t *testing.T) {
	c := NewCandidates()
	quality := protocol.Hash32{7}
	rec := QualityRecord{PlotIdentifier: "plot-a", HarvesterPeerID: "harvester-1"}

	c.RegisterQuality(quality, rec)

	got, ok := c.ResolveQuality(quality)
	if !ok {
		t.Fatal("ResolveQuality should find a registered quality string")
	}
	if got.HarvesterPeerID != "harvester-1" {
		t.Fatalf("HarvesterPeerID = %q, want harvester-1", got.HarvesterPeerID)
	}

	if _, ok := c.ResolveQuality(protocol.Hash32{9}); ok {
		t.Fatal("ResolveQuality should miss on an unregistered quality string")
	}
}

func TestCandidatesEvictOlderThanLeavesQualityEntries(t *testing.T) {
	c := NewCandidates()
	var spHash protocol.Hash32
	spHash[0] = 1
	quality := protocol.Hash32{7}

	c.Add(spHash, "plot-a", protocol.ProofOfSpace{}, quality, 100)
	c.RegisterQuality(quality, QualityRecord{PlotIdentifier: "plot-a", SPHash: spHash})

	c.EvictOlderThan(200)

	if len(c.Get(spHash)) != 0 {
		t.Fatal("candidates for the evicted sp_hash should be gone")
	}
	if _, ok := c.ResolveQuality(quality); !ok {
		t.Fatal("quality-string resolution should survive a candidate sweep")
	}
}

func TestCandidatesLen(t *testing.T) {
	c := NewCandidates()
	var a, b protocol.Hash32
	a[0], b[0] = 1, 2
	c.Add(a, "x", protocol.ProofOfSpace{}, protocol.Hash32{}, 0)
	c.Add(b, "y", protocol.ProofOfSpace{}, protocol.Hash32{}, 0)
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}
