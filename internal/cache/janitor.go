package cache

import (
	"context"
	"sync"
	"time"

	"github.com/chia-farm/farmer-core/internal/util"
)

// Janitor is component D: a single goroutine that wakes every ~1s and,
// every SubSlotTimeTarget seconds, sweeps SignagePoints, Candidates and
// Solver, removing entries older than 2*SubSlotTimeTarget. Lifecycle is
// grounded on the teacher's master.go ticker-loop idiom
// (jobRefreshLoop/unlockerLoop): a context.Context for cancellation and a
// sync.WaitGroup so Stop blocks until the loop has actually exited.
type Janitor struct {
	sp         *SignagePoints
	candidates *Candidates
	solver     *Solver

	subSlotTimeTarget time.Duration
	now               func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onSweep func(cutoff int64)
}

// OnSweep registers a callback invoked at the end of every Sweep with the
// same cutoff used for B/C/I, letting internal/farmer.Farmer piggyback
// cleanup of its own responses_for_sp bookkeeping on the same cadence
// without this package knowing about the Farmer's internal state.
func (j *Janitor) OnSweep(fn func(cutoff int64)) {
	j.onSweep = fn
}

// NewJanitor constructs a janitor over the three caches. nowFn defaults to
// time.Now when nil (tests supply a controllable clock).
func NewJanitor(sp *SignagePoints, candidates *Candidates, solver *Solver, subSlotTimeTarget time.Duration, nowFn func() time.Time) *Janitor {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Janitor{
		sp:                sp,
		candidates:        candidates,
		solver:            solver,
		subSlotTimeTarget: subSlotTimeTarget,
		now:               nowFn,
	}
}

// Start begins the janitor loop. Safe to call once.
func (j *Janitor) Start(ctx context.Context) {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.loop()
}

// Stop cancels the janitor and waits for its loop to exit — honors
// "prompt cancellation (at most one sleep cycle of latency)" per spec.md §5.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	var lastSweep time.Time

	for {
		select {
		case <-j.ctx.Done():
			return
		case now := <-tick.C:
			if lastSweep.IsZero() {
				lastSweep = now
			}
			if now.Sub(lastSweep) >= j.subSlotTimeTarget {
				j.Sweep(now)
				lastSweep = now
			}
		}
	}
}

// Sweep runs one eviction pass across all three caches, removing entries
// older than 2*SubSlotTimeTarget relative to at. Idempotent: running it
// twice with no intervening inserts removes nothing the second time
// (spec.md §8 P7).
func (j *Janitor) Sweep(at time.Time) {
	cutoff := at.Add(-2 * j.subSlotTimeTarget).Unix()

	spRemoved := j.sp.EvictOlderThan(cutoff)
	candRemoved := j.candidates.EvictOlderThan(cutoff)
	solverRemoved := j.solver.EvictOlderThan(cutoff)

	util.Debugf("janitor sweep: evicted sp=%d candidates=%d solver=%d (sp_remaining=%d candidates_remaining=%d solver_remaining=%d)",
		spRemoved, candRemoved, solverRemoved, j.sp.Len(), j.candidates.Len(), j.solver.Len())

	if j.onSweep != nil {
		j.onSweep(cutoff)
	}
}
