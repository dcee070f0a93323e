package farmer

import "github.com/chia-farm/farmer-core/internal/transport"

// Stats is a snapshot of farmer-internal state for the status API,
// grounded on farmer.py's get_connections-backed /farmer endpoints but
// flattened into the counters SPEC_FULL.md's API component actually needs.
type Stats struct {
	Harvesters           int                       `json:"harvesters"`
	Solvers              int                       `json:"solvers"`
	FullNodes            []transport.FullNodeState `json:"full_nodes"`
	FullNodesHealthy     int                       `json:"full_nodes_healthy"`
	SignagePoints        int                       `json:"signage_points_cached"`
	Candidates           int                       `json:"candidates_cached"`
	PendingPartialProofs int                       `json:"pending_partial_proofs"`
}

// Stats returns a point-in-time snapshot of connection and cache sizes.
func (f *Farmer) Stats() Stats {
	s := Stats{
		Harvesters:           f.harvesters.Len(),
		SignagePoints:        f.sp.Len(),
		Candidates:           f.candidates.Len(),
		PendingPartialProofs: f.solver.Len(),
	}
	if f.solvers != nil {
		s.Solvers = f.solvers.Len()
	}
	if f.fullNodes != nil {
		s.FullNodes = f.fullNodes.States()
		s.FullNodesHealthy = f.fullNodes.HealthyCount()
	}
	return s
}
