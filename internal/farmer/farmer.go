// Package farmer implements components F-K: signage-point intake, the
// proof-of-space handler, the two-phase signature coordinator, and the
// solver orchestration for v2 partial proofs. It is the direct Go port of
// chia/farmer/farmer.py and chia/farmer/farmer_api.py (original_source),
// translated from that file's single-threaded-event-loop model to Go's
// goroutine-per-connection model via the mutex discipline described in
// SPEC_FULL.md §5.
package farmer

import (
	"context"
	"sync"
	"time"

	"github.com/chia-farm/farmer-core/internal/cache"
	"github.com/chia-farm/farmer-core/internal/consensus"
	"github.com/chia-farm/farmer-core/internal/keystore"
	"github.com/chia-farm/farmer-core/internal/missingsp"
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/transport"
	"github.com/chia-farm/farmer-core/internal/util"
)

// maxPosPerSP is spec.md §9 OQ2: kept as an unexported constant, not
// promoted to config ("will likely never happen for a farmer with <10%
// space" — a consensus-adjacent magic number, not an operator knob).
const maxPosPerSP = 5

// Event is an observer state-change notification, delivered at best effort
// to whatever subscriber the process wiring (cmd/farmer) registers — the
// webhook notifier, New Relic, or the event bus. Mirrors farmer.py's
// state_changed(event, data) calls.
type Event struct {
	Type string
	Data map[string]any
}

// Farmer holds components B, C, I, D, E and the keystore, and implements
// F-K as methods. Farmer-owned state not already guarded by a cache's own
// internal mutex is guarded here: responses_for_sp and the missing-SP
// detector by mu, the reward targets by targetsMu — see SPEC_FULL.md §5.
type Farmer struct {
	constants consensus.Constants
	keys      *keystore.Keystore

	sp         *cache.SignagePoints
	candidates *cache.Candidates
	solver     *cache.Solver
	janitor    *cache.Janitor
	detector   *missingsp.Detector

	harvesters *transport.Registry
	solvers    *transport.Registry
	fullNodes  *transport.FullNodeClient

	mu             sync.Mutex
	responsesForSP map[protocol.Hash32]int

	targetsMu    sync.RWMutex
	farmerTarget protocol.Hash32
	poolTarget   protocol.Hash32

	eventsMu sync.Mutex
	eventSubs []chan Event

	now func() time.Time
}

// Config bundles the pieces New needs to wire a Farmer instance.
type Config struct {
	Constants    consensus.Constants
	Keystore     *keystore.Keystore
	Harvesters   *transport.Registry
	Solvers      *transport.Registry
	FullNodes    *transport.FullNodeClient
	FarmerTarget protocol.Hash32
	PoolTarget   protocol.Hash32
}

// New constructs a Farmer with fresh, empty caches.
func New(cfg Config) *Farmer {
	sp := cache.NewSignagePoints()
	candidates := cache.NewCandidates()
	solver := cache.NewSolver()

	f := &Farmer{
		constants:      cfg.Constants,
		keys:           cfg.Keystore,
		sp:             sp,
		candidates:     candidates,
		solver:         solver,
		detector:       missingsp.New(cfg.Constants),
		harvesters:     cfg.Harvesters,
		solvers:        cfg.Solvers,
		fullNodes:      cfg.FullNodes,
		responsesForSP: make(map[protocol.Hash32]int),
		farmerTarget:   cfg.FarmerTarget,
		poolTarget:     cfg.PoolTarget,
		now:            time.Now,
	}

	f.janitor = cache.NewJanitor(sp, candidates, solver, time.Duration(cfg.Constants.SubSlotTimeTarget)*time.Second, nil)
	f.janitor.OnSweep(f.sweepResponsesForSP)

	if f.harvesters != nil {
		f.harvesters.OnConnect(f.onHarvesterConnect)
		f.harvesters.OnDisconnect(f.onHarvesterDisconnect)
	}

	return f
}

// Start begins the cache janitor. The transport listeners/clients are
// started independently by cmd/farmer, which wires their Handler callbacks
// to this Farmer's NewSignagePoint/NewProofOfSpace/RespondSignatures/
// RequestSignedValues/PartialProofs/SolutionResponse methods.
func (f *Farmer) Start(ctx context.Context) {
	f.janitor.Start(ctx)
	util.Info("farmer: started")
}

// Stop tears down the janitor and closes every event subscriber channel.
func (f *Farmer) Stop() {
	f.janitor.Stop()
	f.eventsMu.Lock()
	for _, ch := range f.eventSubs {
		close(ch)
	}
	f.eventSubs = nil
	f.eventsMu.Unlock()
	util.Info("farmer: stopped")
}

// Subscribe returns a channel receiving every emitted Event, grounded on
// farmer.py's state_changed callback consumer (spec.md §7 "delivered to a
// callback consumer... at best effort").
func (f *Farmer) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	f.eventsMu.Lock()
	f.eventSubs = append(f.eventSubs, ch)
	f.eventsMu.Unlock()
	return ch
}

func (f *Farmer) emit(eventType string, data map[string]any) {
	f.eventsMu.Lock()
	subs := append([]chan Event{}, f.eventSubs...)
	f.eventsMu.Unlock()

	ev := Event{Type: eventType, Data: data}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			util.Warnf("farmer: event subscriber channel full, dropping %s", eventType)
		}
	}
}

func (f *Farmer) onHarvesterConnect(p transport.Peer) {
	handshake := protocol.HarvesterHandshake{
		FarmerPublicKeys: f.keys.FarmerPublicKeys(),
		PoolPublicKeys:   f.keys.PoolPublicKeys(),
	}
	if err := p.Send("harvester_handshake", handshake); err != nil {
		util.Warnf("farmer: handshake send to %s failed: %v", p.PeerNodeID(), err)
	}
}

func (f *Farmer) onHarvesterDisconnect(p transport.Peer) {
	f.emit("close_connection", map[string]any{"peer_node_id": p.PeerNodeID(), "connection_type": p.ConnectionType().String()})
}

// sweepResponsesForSP is the janitor OnSweep hook: it removes
// responses_for_sp entries whose originating sp_hash no longer exists in
// the signage-point cache, piggybacking on the same cutoff without
// maintaining a second cache-add-time map for a counter that is cheap to
// just recompute presence for.
func (f *Farmer) sweepResponsesForSP(cutoff int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for spHash := range f.responsesForSP {
		if !f.sp.Has(spHash) {
			delete(f.responsesForSP, spHash)
		}
	}
}

func (f *Farmer) nowUnix() int64 { return f.now().Unix() }
