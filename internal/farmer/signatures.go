package farmer

import (
	"encoding/binary"

	"github.com/chia-farm/farmer-core/internal/cache"
	"github.com/chia-farm/farmer-core/internal/consensus"
	"github.com/chia-farm/farmer-core/internal/keystore"
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/util"
	"github.com/herumi/bls-eth-go-binary/bls"
)

// RequestSignedValues handles the Full Node's block-phase signing request
// (spec.md §4.H entry point): it resolves the quality string back to the
// harvester/plot that produced it and asks that harvester to sign the
// foliage hashes, mirroring RequestSignatures' SP-phase dispatch.
func (f *Farmer) RequestSignedValues(req protocol.RequestSignedValues) {
	rec, ok := f.candidates.ResolveQuality(req.QualityString)
	if !ok {
		util.Warnf("farmer: request_signed_values for unknown quality_string=%s", req.QualityString)
		return
	}

	peer, ok := f.harvesters.Get(rec.HarvesterPeerID)
	if !ok {
		util.Warnf("farmer: harvester %s gone before block-phase signatures could be requested", rec.HarvesterPeerID)
		return
	}

	reqSig := protocol.RequestSignatures{
		PlotIdentifier: rec.PlotIdentifier,
		ChallengeHash:  rec.ChallengeHash,
		SPHash:         rec.SPHash,
		Messages:       []protocol.Hash32{req.FoliageBlockDataHash, req.FoliageTransactionBlockHash},
	}
	if err := peer.Send("request_signatures", reqSig); err != nil {
		util.Warnf("farmer: block-phase RequestSignatures dispatch to %s failed: %v", rec.HarvesterPeerID, err)
	}
}

// RespondSignatures implements component H (spec.md §4.H): combines a
// harvester's signature shares with the Farmer's own shares over the same
// aggregate plot public key, for either the SP-phase pair
// (challenge_chain_sp, reward_chain_sp) or the block-phase pair
// (foliage_block_data_hash, foliage_transaction_block_hash). Both phases
// share one wire message; they are disambiguated by whether the first
// signed message equals the sp_hash the harvester was originally asked
// about (true only for the SP phase).
func (f *Farmer) RespondSignatures(resp protocol.RespondSignatures, harvesterPeerID string) {
	if len(resp.MessageSignatures) < 2 {
		util.Warnf("farmer: respond_signatures with too few signatures from %s", harvesterPeerID)
		return
	}

	// OQ3: a plot whose farmer key this Farmer no longer holds is dropped
	// silently, not logged as an error — legitimate after a key rotation.
	farmerSKs := f.keys.FarmerSKsFor(resp.FarmerPublicKey)
	if len(farmerSKs) == 0 {
		return
	}

	candidate, ok := f.findCandidate(resp.SPHash, resp.PlotIdentifier)
	if !ok {
		util.Warnf("farmer: respond_signatures for unknown candidate plot=%s sp_hash=%s", resp.PlotIdentifier, resp.SPHash)
		return
	}

	includeTaproot := candidate.Proof.PoolContractPuzzleHash != nil
	plotPK := consensus.GeneratePlotPublicKey(resp.LocalPublicKey, resp.FarmerPublicKey, includeTaproot)

	if resp.MessageSignatures[0].Message == resp.SPHash {
		f.respondSPPhase(resp, candidate, plotPK, farmerSKs[0])
		return
	}
	f.respondBlockPhase(resp, candidate, plotPK, farmerSKs[0])
}

func (f *Farmer) findCandidate(spHash protocol.Hash32, plotIdentifier string) (cache.Candidate, bool) {
	for _, c := range f.candidates.Get(spHash) {
		if c.PlotIdentifier == plotIdentifier {
			return c, true
		}
	}
	return cache.Candidate{}, false
}

func (f *Farmer) respondSPPhase(resp protocol.RespondSignatures, candidate cache.Candidate, plotPK protocol.G1, farmerSK bls.SecretKey) {
	var matchedSP protocol.SignagePoint
	found := false
	for _, sp := range f.sp.Get(resp.SPHash) {
		if sp.RewardChainSP == resp.MessageSignatures[1].Message {
			matchedSP = sp
			found = true
			break
		}
	}
	if !found {
		util.Warnf("farmer: respond_signatures sp-phase: no matching signage point for sp_hash=%s", resp.SPHash)
		return
	}

	ccMsg := resp.MessageSignatures[0].Message
	rcMsg := resp.MessageSignatures[1].Message

	ccSig, err := keystore.Aggregate(resp.MessageSignatures[0].Signature, keystore.Sign(farmerSK, ccMsg[:], plotPK))
	if err != nil || !keystore.VerifyAggregate(plotPK, ccMsg[:], ccSig) {
		util.Errorf("farmer: sp-phase challenge_chain_sp aggregation/verification failed: %v", err)
		return
	}
	rcSig, err := keystore.Aggregate(resp.MessageSignatures[1].Signature, keystore.Sign(farmerSK, rcMsg[:], plotPK))
	if err != nil || !keystore.VerifyAggregate(plotPK, rcMsg[:], rcSig) {
		util.Errorf("farmer: sp-phase reward_chain_sp aggregation/verification failed: %v", err)
		return
	}

	f.targetsMu.RLock()
	farmerPuzzleHash := f.farmerTarget
	poolPuzzleHash := f.poolTarget
	f.targetsMu.RUnlock()

	decl := protocol.DeclareProofOfSpace{
		ChallengeHash:             resp.ChallengeHash,
		ChallengeChainSP:          ccMsg,
		SignagePointIndex:         matchedSP.SignagePointIndex,
		RewardChainSP:             rcMsg,
		ProofOfSpace:              candidate.Proof,
		ChallengeChainSPSignature: ccSig,
		RewardChainSPSignature:    rcSig,
		FarmerPuzzleHash:          farmerPuzzleHash,
	}

	if candidate.Proof.PoolPublicKey != nil {
		poolSK, ok := f.keys.PoolSKFor(*candidate.Proof.PoolPublicKey)
		if !ok {
			// spec.md §7 MissingPoolSecretKey: log and drop rather than
			// declare a proof with no pool signature for a solo-pool plot.
			util.Errorf("farmer: no pool secret key configured for %x", *candidate.Proof.PoolPublicKey)
			return
		}
		target := protocol.PoolTarget{PuzzleHash: poolPuzzleHash, MaxHeight: 0}
		sig := keystore.PoolSign(poolSK, poolTargetBytes(target))
		decl.PoolTarget = &target
		decl.PoolSignature = &sig
	}

	f.fullNodes.Broadcast("declare_proof_of_space", decl)
	f.emit("proof", map[string]any{
		"sp_hash":         resp.SPHash,
		"plot_identifier": resp.PlotIdentifier,
		"quality_string":  candidate.QualityString,
	})
}

func (f *Farmer) respondBlockPhase(resp protocol.RespondSignatures, candidate cache.Candidate, plotPK protocol.G1, farmerSK bls.SecretKey) {
	blockMsg := resp.MessageSignatures[0].Message
	txMsg := resp.MessageSignatures[1].Message

	blockSig, err := keystore.Aggregate(resp.MessageSignatures[0].Signature, keystore.Sign(farmerSK, blockMsg[:], plotPK))
	if err != nil || !keystore.VerifyAggregate(plotPK, blockMsg[:], blockSig) {
		util.Errorf("farmer: block-phase foliage_block_data aggregation/verification failed: %v", err)
		return
	}
	txSig, err := keystore.Aggregate(resp.MessageSignatures[1].Signature, keystore.Sign(farmerSK, txMsg[:], plotPK))
	if err != nil || !keystore.VerifyAggregate(plotPK, txMsg[:], txSig) {
		util.Errorf("farmer: block-phase foliage_transaction_block aggregation/verification failed: %v", err)
		return
	}

	signed := protocol.SignedValues{
		QualityString:                    candidate.QualityString,
		FoliageBlockDataSignature:        blockSig,
		FoliageTransactionBlockSignature: txSig,
	}
	f.fullNodes.Broadcast("signed_values", signed)
	f.emit("signed_values", map[string]any{
		"sp_hash":         resp.SPHash,
		"plot_identifier": resp.PlotIdentifier,
		"quality_string":  candidate.QualityString,
	})
}

// poolTargetBytes is the canonical serialization signed directly (no
// aggregate-key augmentation) for a solo-pool plot's pool target.
func poolTargetBytes(t protocol.PoolTarget) []byte {
	buf := make([]byte, 36)
	copy(buf[:32], t.PuzzleHash[:])
	binary.BigEndian.PutUint32(buf[32:], t.MaxHeight)
	return buf
}
