package cache

import (
	"testing"

	"github.com/chia-farm/farmer-core/internal/protocol"
)

func TestSolverInsertHasTake(t *testing.T) {
	s := NewSolver()
	key := protocol.PartialProofTuple{1, 2, 3, 4}.Key()
	entry := PartialProofPeer{PeerID: "harvester-1"}

	s.Insert(key, entry, 100)
	if !s.Has(key) {
		t.Fatal("Has should report true right after Insert")
	}

	got, ok := s.Take(key)
	if !ok {
		t.Fatal("Take should find the inserted entry")
	}
	if got.PeerID != "harvester-1" {
		t.Fatalf("PeerID = %q, want harvester-1", got.PeerID)
	}

	// spec.md §8 P3/P4: a solver response removes the key — a second Take
	// must miss.
	if _, ok := s.Take(key); ok {
		t.Fatal("second Take on the same key should miss")
	}
	if s.Has(key) {
		t.Fatal("Has should report false after Take")
	}
}

func TestSolverTakeMissingKey(t *testing.T) {
	s := NewSolver()
	if _, ok := s.Take("does-not-exist"); ok {
		t.Fatal("Take on an absent key should report false")
	}
}

func TestSolverRemoveIsIdempotent(t *testing.T) {
	s := NewSolver()
	key := protocol.PartialProofTuple{5, 6, 7, 8}.Key()
	s.Insert(key, PartialProofPeer{}, 0)

	s.Remove(key)
	if s.Has(key) {
		t.Fatal("Has should report false after Remove")
	}
	// Dispatch-failure rollback may call Remove on an already-removed key.
	s.Remove(key)
}

func TestSolverEvictOlderThan(t *testing.T) {
	s := NewSolver()
	oldKey := protocol.PartialProofTuple{1, 1, 1, 1}.Key()
	freshKey := protocol.PartialProofTuple{2, 2, 2, 2}.Key()

	s.Insert(oldKey, PartialProofPeer{}, 100)
	s.Insert(freshKey, PartialProofPeer{}, 200)

	removed := s.EvictOlderThan(150)
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if s.Has(oldKey) {
		t.Fatal("old key should have been evicted")
	}
	if !s.Has(freshKey) {
		t.Fatal("fresh key should survive")
	}
}

func TestSolverLen(t *testing.T) {
	s := NewSolver()
	s.Insert("a", PartialProofPeer{}, 0)
	s.Insert("b", PartialProofPeer{}, 0)
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}
