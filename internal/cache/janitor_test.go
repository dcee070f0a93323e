package cache

import (
	"context"
	"testing"
	"time"

	"github.com/chia-farm/farmer-core/internal/protocol"
)

func TestJanitorSweepEvictsOlderThanTwoSubSlots(t *testing.T) {
	sp := NewSignagePoints()
	candidates := NewCandidates()
	solver := NewSolver()

	var spHash protocol.Hash32
	spHash[0] = 1
	s := protocol.SignagePoint{ChallengeChainSP: spHash}

	if ok := sp.BeginInsert(s, 0); !ok {
		t.Fatal("BeginInsert should succeed")
	}
	sp.FinishInsert(s)
	candidates.Add(spHash, "plot-a", protocol.ProofOfSpace{}, protocol.Hash32{}, 0)
	solver.Insert("key-a", PartialProofPeer{}, 0)

	j := NewJanitor(sp, candidates, solver, 10*time.Second, nil)

	// One sub-slot later: nothing is older than 2*subSlot yet.
	j.Sweep(time.Unix(0, 0).Add(10 * time.Second))
	if sp.Len() != 1 || candidates.Len() != 1 || solver.Len() != 1 {
		t.Fatal("sweep before the 2*sub-slot cutoff should evict nothing")
	}

	// Past 2*subSlot: everything added at t=0 should be gone.
	j.Sweep(time.Unix(0, 0).Add(21 * time.Second))
	if sp.Len() != 0 || candidates.Len() != 0 || solver.Len() != 0 {
		t.Fatalf("expected all caches empty after cutoff, got sp=%d candidates=%d solver=%d",
			sp.Len(), candidates.Len(), solver.Len())
	}
}

// TestJanitorSweepIsIdempotent replays spec.md §8 P7: running Sweep twice
// with no intervening inserts evicts nothing the second time.
func TestJanitorSweepIsIdempotent(t *testing.T) {
	sp := NewSignagePoints()
	candidates := NewCandidates()
	solver := NewSolver()
	j := NewJanitor(sp, candidates, solver, 10*time.Second, nil)

	at := time.Unix(0, 0).Add(100 * time.Second)
	j.Sweep(at)
	firstLens := [3]int{sp.Len(), candidates.Len(), solver.Len()}

	j.Sweep(at.Add(time.Second))
	secondLens := [3]int{sp.Len(), candidates.Len(), solver.Len()}

	if firstLens != secondLens {
		t.Fatalf("second sweep changed cache sizes: %v -> %v", firstLens, secondLens)
	}
}

func TestJanitorOnSweepCallback(t *testing.T) {
	sp := NewSignagePoints()
	candidates := NewCandidates()
	solver := NewSolver()
	j := NewJanitor(sp, candidates, solver, 10*time.Second, nil)

	var gotCutoff int64 = -1
	j.OnSweep(func(cutoff int64) { gotCutoff = cutoff })

	at := time.Unix(1000, 0)
	j.Sweep(at)

	wantCutoff := at.Add(-20 * time.Second).Unix()
	if gotCutoff != wantCutoff {
		t.Fatalf("OnSweep cutoff = %d, want %d", gotCutoff, wantCutoff)
	}
}

func TestJanitorStartStop(t *testing.T) {
	sp := NewSignagePoints()
	candidates := NewCandidates()
	solver := NewSolver()
	j := NewJanitor(sp, candidates, solver, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j.Start(ctx)
	j.Stop()
}
