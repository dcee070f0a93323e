package farmer

import (
	"github.com/chia-farm/farmer-core/internal/cache"
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/util"
)

// PartialProofs implements components I and J (spec.md §4.I/§4.J): a
// v2-plot harvester submits one or more partial-proof fingerprints for a
// signage point it cannot finish alone, and the Farmer dispatches each to
// every connected solver. A dispatch that no solver's Send accepts is
// rolled back immediately — there is nothing a solver can ever respond to.
func (f *Farmer) PartialProofs(data protocol.PartialProofsData, harvesterPeerID string) {
	now := f.nowUnix()

	// spec.md §4.I step 1: responses_for_sp is seeded on first sight of
	// sp_hash even if the B.has guard below rejects it — the same
	// lazy-init proofofspace.go's NewProofOfSpace performs, reclaimed by
	// sweepResponsesForSP once the sp_hash ages out of B.
	f.mu.Lock()
	if _, ok := f.responsesForSP[data.SPHash]; !ok {
		f.responsesForSP[data.SPHash] = 0
	}
	f.mu.Unlock()

	if !f.sp.Has(data.SPHash) {
		util.Warnf("farmer: received partial proofs for a signage point that we do not have %s", data.SPHash)
		return
	}

	inserted := make([]string, 0, len(data.PartialProofs))
	for _, tuple := range data.PartialProofs {
		key := tuple.Key()
		f.solver.Insert(key, cache.PartialProofPeer{ProofData: data, PeerID: harvesterPeerID}, now)
		inserted = append(inserted, key)
	}

	req := protocol.SolverRequest{Data: data}
	dispatched := 0
	for _, peer := range f.solvers.All() {
		if err := peer.Send("solver_request", req); err != nil {
			util.Warnf("farmer: solver_request dispatch to %s failed: %v", peer.PeerNodeID(), err)
			continue
		}
		dispatched++
	}

	if dispatched == 0 {
		for _, key := range inserted {
			f.solver.Remove(key)
		}
		util.Warnf("farmer: no solver reachable for sp_hash=%s, partial-proof dispatch rolled back", data.SPHash)
	}
}

// SolutionResponse implements component K (spec.md §4.K): a solver's reply
// to an earlier SolverRequest is correlated back to its originating
// harvester submission via Solver.Take, and a completed proof is handed to
// NewProofOfSpace addressed to that original harvester, not the solver.
func (f *Farmer) SolutionResponse(resp protocol.SolverResponse, solverPeerID string) {
	key := resp.PartialProof.Key()

	entry, ok := f.solver.Take(key)
	if !ok {
		util.Warnf("farmer: solution_response for unknown partial-proof key from %s", solverPeerID)
		return
	}

	if len(resp.Proof) == 0 {
		// Solver could not complete this partial proof; cleanup only, no
		// candidate is produced.
		return
	}

	data := entry.ProofData
	pos := protocol.NewProofOfSpace{
		ChallengeHash:  data.ChallengeHash,
		SPHash:         data.SPHash,
		PlotIdentifier: data.PlotIdentifier,
		Proof: protocol.ProofOfSpace{
			Challenge:              data.ChallengeHash,
			PoolPublicKey:          data.PoolPublicKey,
			PoolContractPuzzleHash: data.PoolContractPuzzleHash,
			LocalPublicKey:         data.PlotPublicKey,
			Size:                   protocol.PlotSize{K: data.PlotSizeK, IsV2: true, Strength: data.Strength},
			Proof:                  resp.Proof,
			FarmerPublicKey:        data.FarmerPublicKey,
		},
		SignagePointIndex: data.SignagePointIndex,
	}

	f.NewProofOfSpace(pos, entry.PeerID)
}
