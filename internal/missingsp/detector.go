// Package missingsp implements component E, the missing-signage-point
// detector: index-based detection within a challenge_hash and time-based
// gap estimation across challenge_hash transitions (spec.md §4.E).
package missingsp

import (
	"math"

	"github.com/chia-farm/farmer-core/internal/consensus"
	"github.com/chia-farm/farmer-core/internal/protocol"
)

// Gap is the non-nil result of CheckMissing when one or more signage
// points were skipped.
type Gap struct {
	At      int64
	Skipped uint32
}

// prevSP remembers the last observed (arrival_time, SignagePoint) pair.
type prevSP struct {
	arrival int64
	sp      protocol.SignagePoint
}

// Detector holds component E's state. Not safe for concurrent use on its
// own; internal/farmer.Farmer serializes calls under its own mutex per
// SPEC_FULL.md §5.
type Detector struct {
	constants consensus.Constants
	prev      *prevSP
}

// New constructs a detector against the given network constants (needed
// for NumSPsSubSlot index-wraparound and the SP interval used by the
// time-based fallback).
func New(constants consensus.Constants) *Detector {
	return &Detector{constants: constants}
}

// CheckMissing implements spec.md §4.E's three-way branch. now is a unix
// timestamp (seconds); the caller (internal/farmer/intake.go) supplies it
// so tests can drive exact sequences deterministically.
func (d *Detector) CheckMissing(now int64, sp protocol.SignagePoint) *Gap {
	if d.prev == nil {
		d.prev = &prevSP{arrival: now, sp: sp}
		return nil
	}

	prev := d.prev

	if sp.ChallengeHash == prev.sp.ChallengeHash {
		numSPs := d.constants.NumSPsSubSlot
		expectedIdx := uint32(prev.sp.SignagePointIndex+1) % numSPs
		d.prev = &prevSP{arrival: now, sp: sp}

		if uint32(sp.SignagePointIndex) == expectedIdx {
			return nil
		}

		skipped := mod32(int64(sp.SignagePointIndex)-int64(prev.sp.SignagePointIndex)-1, int64(numSPs))
		return &Gap{At: now, Skipped: uint32(skipped)}
	}

	// Challenge hash changed: index arithmetic no longer applies; fall back
	// to a time-based estimate with a 1.6x allowance multiplier.
	dt := now - prev.arrival
	interval := d.constants.SPIntervalSeconds()
	allowance := interval * 1.6

	d.prev = &prevSP{arrival: now, sp: sp}

	if float64(dt) < allowance {
		return nil
	}

	skipped := uint32(math.Floor(float64(dt) / interval))
	return &Gap{At: now, Skipped: skipped}
}

func mod32(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
