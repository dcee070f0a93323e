package farmer

import "github.com/chia-farm/farmer-core/internal/protocol"

// GetRewardTargets returns the currently configured farmer and pool reward
// puzzle hashes, grounded on farmer.py's get_reward_targets.
func (f *Farmer) GetRewardTargets() (farmerTarget, poolTarget protocol.Hash32) {
	f.targetsMu.RLock()
	defer f.targetsMu.RUnlock()
	return f.farmerTarget, f.poolTarget
}

// SetRewardTargets updates the farmer and pool reward puzzle hashes used
// for subsequently declared proofs, grounded on farmer.py's
// set_reward_targets.
func (f *Farmer) SetRewardTargets(farmerTarget, poolTarget protocol.Hash32) {
	f.targetsMu.Lock()
	defer f.targetsMu.Unlock()
	f.farmerTarget = farmerTarget
	f.poolTarget = poolTarget
}
