package farmer

import (
	"github.com/chia-farm/farmer-core/internal/missingsp"
	"github.com/chia-farm/farmer-core/internal/protocol"
)

// NewSignagePoint implements component F (spec.md §4.F). It is safe to
// call concurrently with identical sp: exactly one broadcast to harvesters
// results (spec.md §8 P1/S1), enforced by cache.SignagePoints.BeginInsert's
// sentinel reservation — the mutex-protected check-then-reserve substitutes
// for the single-threaded scheduler's implicit atomicity (SPEC_FULL.md §5).
func (f *Farmer) NewSignagePoint(sp protocol.SignagePoint) {
	now := f.nowUnix()

	if gap := f.checkMissing(now, sp); gap != nil {
		f.emit("missing_signage_points", map[string]any{
			"at":      gap.At,
			"skipped": gap.Skipped,
		})
	}

	if !f.sp.BeginInsert(sp, now) {
		// Duplicate signage point from a racing full-node connection —
		// silent drop at debug level (spec.md §7 DuplicateSignagePoint).
		return
	}

	msg := protocol.NewSignagePointHarvester{
		ChallengeHash:     sp.ChallengeHash,
		Difficulty:        sp.Difficulty,
		SubSlotIters:      sp.SubSlotIters,
		SignagePointIndex: sp.SignagePointIndex,
		SPHash:            sp.SPHash(),
		PoolDifficulties:  nil,
		PeakHeight:        sp.PeakHeight,
		LastTxHeight:      sp.LastTxHeight,
	}
	f.harvesters.Broadcast("new_signage_point_harvester", msg)

	f.sp.FinishInsert(sp)

	f.emit("new_signage_point", map[string]any{"sp_hash": sp.SPHash()})
}

func (f *Farmer) checkMissing(now int64, sp protocol.SignagePoint) *missingsp.Gap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detector.CheckMissing(now, sp)
}
