package farmer

import (
	"github.com/chia-farm/farmer-core/internal/cache"
	"github.com/chia-farm/farmer-core/internal/consensus"
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/util"
)

// NewProofOfSpace implements component G (spec.md §4.G): verifies a
// harvester-submitted candidate, enforces the per-SP submission cap, and
// on acceptance asks the originating harvester to sign the SP-phase
// messages. harvesterPeerID addresses the originating transport.Peer via
// f.harvesters, so re-entry from K (solver dispatch) can pass through the
// original harvester's id rather than the solver's.
func (f *Farmer) NewProofOfSpace(pos protocol.NewProofOfSpace, harvesterPeerID string) {
	now := f.nowUnix()
	spHash := pos.SPHash

	f.mu.Lock()
	if _, ok := f.responsesForSP[spHash]; !ok {
		f.responsesForSP[spHash] = 0
	}
	count := f.responsesForSP[spHash]
	f.mu.Unlock()

	// spec.md §4.G step 2 caps admission at MAX_POS_PER_SP; matching
	// spec.md §8 P2/S7 requires the cap be enforced before the 6th
	// submission is processed, i.e. >= rather than a strict >.
	if count >= maxPosPerSP {
		util.Infof("farmer: over-capacity proof of space dropped for sp_hash=%s", spHash)
		return
	}

	if !f.sp.Has(spHash) {
		util.Warnf("farmer: proof of space for unknown signage point sp_hash=%s", spHash)
		return
	}

	for _, sp := range f.sp.Get(spHash) {
		q, err := consensus.VerifyAndGetQualityString(f.constants, &pos.Proof, pos.ChallengeHash, spHash, sp.PeakHeight)
		if err != nil {
			util.Errorf("farmer: invalid proof of space sp_hash=%s: %v", spHash, err)
			return
		}

		f.mu.Lock()
		f.responsesForSP[spHash]++
		f.mu.Unlock()

		var prevTxBlockHeight uint32
		if sp.LastTxHeight != nil {
			prevTxBlockHeight = *sp.LastTxHeight
		}
		requiredIters := consensus.CalculateIterationsQuality(f.constants, q, pos.Proof.Size.K, sp.Difficulty, sp.ChallengeChainSP, sp.SubSlotIters, prevTxBlockHeight)
		spIntervalIters := consensus.CalculateSPIntervalIters(f.constants, sp.SubSlotIters)
		if requiredIters >= spIntervalIters {
			continue
		}

		f.candidates.Add(spHash, pos.PlotIdentifier, pos.Proof, q, now)
		f.candidates.RegisterQuality(q, cache.QualityRecord{
			PlotIdentifier:  pos.PlotIdentifier,
			ChallengeHash:   pos.ChallengeHash,
			SPHash:          spHash,
			HarvesterPeerID: harvesterPeerID,
		})

		reqSig := protocol.RequestSignatures{
			PlotIdentifier: pos.PlotIdentifier,
			ChallengeHash:  pos.ChallengeHash,
			SPHash:         spHash,
			Messages:       []protocol.Hash32{sp.ChallengeChainSP, sp.RewardChainSP},
		}

		peer, ok := f.harvesters.Get(harvesterPeerID)
		if !ok {
			util.Warnf("farmer: harvester %s disconnected before RequestSignatures could be sent", harvesterPeerID)
			continue
		}
		if err := peer.Send("request_signatures", reqSig); err != nil {
			util.Warnf("farmer: RequestSignatures dispatch to %s failed: %v", harvesterPeerID, err)
		}
	}
}
