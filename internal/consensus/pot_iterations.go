package consensus

import (
	"math/big"

	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/stdhash"
)

// IsOverflowBlock reports whether a signage point index falls in the
// overflow region at the tail of a sub-slot, ported from
// chia/consensus/pot_iterations.py::is_overflow_block.
func IsOverflowBlock(c Constants, signagePointIndex uint8) bool {
	return uint32(signagePointIndex) >= c.NumSPsSubSlot-c.NumSPIntervalsExtra
}

// CalculateSPIntervalIters is SUB_SLOT_ITERS / NUM_SPS_SUB_SLOT.
func CalculateSPIntervalIters(c Constants, subSlotIters uint64) uint64 {
	return subSlotIters / uint64(c.NumSPsSubSlot)
}

// CalculateSPIters is the VDF-iteration offset of a signage point within
// its sub-slot.
func CalculateSPIters(c Constants, subSlotIters uint64, signagePointIndex uint8) uint64 {
	return CalculateSPIntervalIters(c, subSlotIters) * uint64(signagePointIndex)
}

// expectedPlotSize is (2k+1) * 2^(k-1), the average number of entries in a
// plot of size k — ported from proof_of_space.py::_expected_plot_size.
func expectedPlotSize(k uint8) *big.Int {
	base := new(big.Int).Lsh(big.NewInt(1), uint(k-1))
	factor := big.NewInt(int64(2*int(k) + 1))
	return base.Mul(base, factor)
}

// phaseOutPeriod is PHASE_OUT_PERIOD: the number of blocks over which the
// hard-fork-2 required-iters phase-out ramps from 0 to a full sp_interval_iters.
const phaseOutPeriod = 10_000_000

// CalculatePhaseOut ports pot_iterations.py::calculate_phase_out: the extra
// VDF iterations added to a proof's required_iters once the chain is past
// HardFork2Height, ramping linearly from 0 up to a full sp_interval_iters
// over phaseOutPeriod blocks of the previous transaction block's height.
func CalculatePhaseOut(c Constants, subSlotIters uint64, prevTxBlockHeight uint32) uint64 {
	if prevTxBlockHeight <= c.HardFork2Height {
		return 0
	}
	spIntervalIters := CalculateSPIntervalIters(c, subSlotIters)
	elapsed := prevTxBlockHeight - c.HardFork2Height
	if uint32(elapsed) >= phaseOutPeriod {
		return spIntervalIters
	}
	return uint64(elapsed) * spIntervalIters / phaseOutPeriod
}

// CalculateIterationsQuality ports pot_iterations.py::calculate_iterations_quality
// for v1 plots: the quality string is combined with the CC signage-point
// hash, scaled by difficulty and the network's difficulty constant factor,
// normalized by the plot's expected size, and added to the hard-fork-2
// phase-out term before being clamped to >= 1.
func CalculateIterationsQuality(c Constants, qualityString protocol.Hash32, size uint8, difficulty uint64, ccSPHash protocol.Hash32, subSlotIters uint64, prevTxBlockHeight uint32) uint64 {
	spQuality := stdhash.Hash(append(append([]byte{}, qualityString[:]...), ccSPHash[:]...))

	numerator := new(big.Int).SetBytes(spQuality[:])
	numerator.Mul(numerator, big.NewInt(int64(difficulty)))
	numerator.Mul(numerator, new(big.Int).SetUint64(c.DifficultyConstantFactor))

	denominator := new(big.Int).Lsh(expectedPlotSize(size), 256)

	iters := new(big.Int).Quo(numerator, denominator)
	iters.Add(iters, new(big.Int).SetUint64(CalculatePhaseOut(c, subSlotIters, prevTxBlockHeight)))

	if iters.Sign() <= 0 {
		return 1
	}
	if !iters.IsUint64() {
		return ^uint64(0)
	}
	v := iters.Uint64()
	if v == 0 {
		return 1
	}
	return v
}
