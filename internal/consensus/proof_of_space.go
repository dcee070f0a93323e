package consensus

import (
	"errors"

	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/stdhash"
	"github.com/herumi/bls-eth-go-binary/bls"
)

// ErrInvalidProofOfSpace is returned by VerifyAndGetQualityString for any
// structural or cryptographic failure; callers treat it uniformly as
// spec.md §7's InvalidProofOfSpace (drop, log error).
var ErrInvalidProofOfSpace = errors.New("consensus: invalid proof of space")

func mustG1(pk protocol.G1) bls.PublicKey {
	var out bls.PublicKey
	if err := out.Deserialize(pk[:]); err != nil {
		panic(err) // caller must validate bytes before construction
	}
	return out
}

func g1FromBLS(pk *bls.PublicKey) protocol.G1 {
	var out protocol.G1
	copy(out[:], pk.Serialize())
	return out
}

// GenerateTaprootSK ports proof_of_space.py::generate_taproot_sk: a
// deterministic secret key derived from the local and farmer public keys,
// folded into pool-contract plots' effective plot key.
func GenerateTaprootSK(localPK, farmerPK protocol.G1) bls.SecretKey {
	sum := mustG1(localPK)
	fk := mustG1(farmerPK)
	sum.Add(&fk)
	msg := append(append(append([]byte{}, sum.Serialize()...), localPK[:]...), farmerPK[:]...)
	h := stdhash.Hash(msg)
	var sk bls.SecretKey
	sk.SetLittleEndian(h[:])
	return sk
}

// GeneratePlotPublicKey ports proof_of_space.py::generate_plot_public_key.
// include_taproot is true for pool-contract plots (no pool_public_key).
func GeneratePlotPublicKey(localPK, farmerPK protocol.G1, includeTaproot bool) protocol.G1 {
	sum := mustG1(localPK)
	fk := mustG1(farmerPK)
	sum.Add(&fk)
	if includeTaproot {
		taproot := GenerateTaprootSK(localPK, farmerPK)
		tpk := taproot.GetPublicKey()
		sum.Add(tpk)
	}
	return g1FromBLS(&sum)
}

// CalculatePlotIDPK ports calculate_plot_id_pk: plot id for solo-pool plots.
func CalculatePlotIDPK(poolPublicKey, plotPublicKey protocol.G1) protocol.Hash32 {
	return stdhash.HashConcat(poolPublicKey[:], plotPublicKey[:])
}

// CalculatePlotIDPH ports calculate_plot_id_ph: plot id for pool-contract plots.
func CalculatePlotIDPH(poolContractPuzzleHash protocol.Hash32, plotPublicKey protocol.G1) protocol.Hash32 {
	return stdhash.HashConcat(poolContractPuzzleHash[:], plotPublicKey[:])
}

// CalculatePosChallenge ports calculate_pos_challenge.
func CalculatePosChallenge(plotID, challengeHash, signagePoint protocol.Hash32) protocol.Hash32 {
	return stdhash.HashConcat(plotID[:], challengeHash[:], signagePoint[:])
}

// filterBitReduction is a farmer-side heuristic (no grounding in
// proof_of_space.py's passes_plot_filter, which uses a flat
// NUMBER_ZERO_BITS_PLOT_FILTER with no height input): it gradually relaxes
// the plot-filter bit count against peakHeight so the Farmer's own
// candidate intake doesn't starve as NUMBER_ZERO_BITS_PLOT_FILTER-governing
// consensus rules evolve past HardFork2Height. Unrelated to
// CalculatePhaseOut in pot_iterations.go, which is the real pot_iterations.py
// calculate_phase_out used in CalculateIterationsQuality.
func filterBitReduction(c Constants, height uint32) uint32 {
	if height < c.HardFork2Height {
		return 0
	}
	if height >= c.HardFork2Height+phaseOutPeriod {
		return 0
	}
	elapsed := height - c.HardFork2Height
	return uint32((uint64(elapsed) * 9) / phaseOutPeriod)
}

// PassesPlotFilter is a simplified port of proof_of_space.py's
// passes_plot_filter bit-prefix check: the leading (most significant) filterBits bits of
// std_hash(plot_id || challenge_hash || signage_point) must be zero.
// filterBitReduction is consulted for the bit count; full VDF/consensus-
// height validation remains the Full Node's responsibility (spec.md §1
// Non-goals).
func PassesPlotFilter(c Constants, plotID, challengeHash, signagePoint protocol.Hash32, peakHeight uint32) bool {
	const baseFilterBits = 9
	reduction := filterBitReduction(c, peakHeight)
	bits := baseFilterBits
	if int(reduction) < bits {
		bits -= int(reduction)
	} else {
		bits = 0
	}
	if bits == 0 {
		return true
	}
	digest := stdhash.HashConcat(plotID[:], challengeHash[:], signagePoint[:])
	for i := 0; i < bits; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		if digest[byteIdx]&(1<<bitIdx) != 0 {
			return false
		}
	}
	return true
}

// VerifyAndGetQualityString ports proof_of_space.py::verify_and_get_quality_string.
// It performs the structural checks the source performs before consulting
// the plot's k-table (plot I/O and k-table lookup are explicitly out of
// scope per spec.md §1 — the Harvester owns them): exactly one of
// PoolPublicKey/PoolContractPuzzleHash, plot-size bounds, plot-id and
// challenge recomputation, and the plot filter. It returns a deterministic
// quality string derived from the plot id and the harvester-supplied proof
// bytes (the harvester is trusted to have already done the real k-table
// derivation; the Farmer never re-derives quality from raw plot data).
func VerifyAndGetQualityString(c Constants, pos *protocol.ProofOfSpace, challengeHash, signagePoint protocol.Hash32, peakHeight uint32) (protocol.Hash32, error) {
	var zero protocol.Hash32

	hasPoolPK := pos.PoolPublicKey != nil
	hasPoolPH := pos.PoolContractPuzzleHash != nil
	if hasPoolPK == hasPoolPH {
		return zero, ErrInvalidProofOfSpace
	}

	if pos.Size.K < c.MinPlotSize || pos.Size.K > c.MaxPlotSize {
		return zero, ErrInvalidProofOfSpace
	}

	plotPublicKey := GeneratePlotPublicKey(pos.LocalPublicKey, pos.FarmerPublicKey, hasPoolPH)

	var plotID protocol.Hash32
	if hasPoolPK {
		plotID = CalculatePlotIDPK(*pos.PoolPublicKey, plotPublicKey)
	} else {
		plotID = CalculatePlotIDPH(*pos.PoolContractPuzzleHash, plotPublicKey)
	}

	if !PassesPlotFilter(c, plotID, challengeHash, signagePoint, peakHeight) {
		return zero, ErrInvalidProofOfSpace
	}

	expectedChallenge := CalculatePosChallenge(plotID, challengeHash, signagePoint)
	if expectedChallenge != pos.Challenge {
		return zero, ErrInvalidProofOfSpace
	}

	if len(pos.Proof) == 0 {
		return zero, ErrInvalidProofOfSpace
	}

	return stdhash.HashConcat(plotID[:], pos.Proof), nil
}
