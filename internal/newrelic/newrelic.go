// Package newrelic provides New Relic APM integration for monitoring.
package newrelic

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/chia-farm/farmer-core/internal/config"
	"github.com/chia-farm/farmer-core/internal/util"
)

// Agent wraps New Relic APM functionality
type Agent struct {
	cfg   *config.NewRelicConfig
	app   *newrelic.Application
	mu    sync.RWMutex
}

// NewAgent creates a new New Relic agent
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{
		cfg: cfg,
	}
}

// Start initializes the New Relic agent
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}

	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	// Wait for connection (up to 5 seconds)
	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("Shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

// Application returns the underlying New Relic application (for middleware)
func (a *Agent) Application() *newrelic.Application {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app
}

// IsEnabled returns true if New Relic is enabled and connected
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

// StartTransaction starts a new New Relic transaction
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// RecordCustomEvent records a custom event
func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

// RecordCustomMetric records a custom metric
func (a *Agent) RecordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NoticeError records an error
func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// NewContext adds transaction to context
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// FromContext gets transaction from context
func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// RecordProofSubmission records a harvester proof-of-space submission.
func (a *Agent) RecordProofSubmission(harvesterPeerID, plotIdentifier string, requiredIters uint64, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	a.RecordCustomEvent("ProofSubmission", map[string]interface{}{
		"harvester":      harvesterPeerID,
		"plotIdentifier": plotIdentifier,
		"requiredIters":  requiredIters,
		"status":         status,
	})
}

// RecordSignedValues records a completed block-phase signature round.
func (a *Agent) RecordSignedValues(spHash, plotIdentifier string) {
	a.RecordCustomEvent("SignedValues", map[string]interface{}{
		"spHash":         spHash,
		"plotIdentifier": plotIdentifier,
	})
}

// RecordSolverDispatch records a v2 partial-proof dispatch to the solver pool.
func (a *Agent) RecordSolverDispatch(spHash string, tupleCount int, dispatched bool) {
	a.RecordCustomEvent("SolverDispatch", map[string]interface{}{
		"spHash":     spHash,
		"tupleCount": tupleCount,
		"dispatched": dispatched,
	})
}

// RecordMissingSignagePoints records a gap detected between expected and
// observed signage points from the full node.
func (a *Agent) RecordMissingSignagePoints(at int64, skipped uint32) {
	a.RecordCustomEvent("MissingSignagePoints", map[string]interface{}{
		"at":      at,
		"skipped": skipped,
	})
}

// RecordPeerConnected records a harvester, solver, or full-node connection.
func (a *Agent) RecordPeerConnected(kind, peerID string) {
	a.RecordCustomEvent("PeerConnected", map[string]interface{}{
		"kind":   kind,
		"peerID": peerID,
	})
}

// RecordPeerDisconnected records a harvester, solver, or full-node disconnection.
func (a *Agent) RecordPeerDisconnected(kind, peerID string) {
	a.RecordCustomEvent("PeerDisconnected", map[string]interface{}{
		"kind":   kind,
		"peerID": peerID,
	})
}

// UpdateNetworkMetrics updates network metrics
func (a *Agent) UpdateNetworkMetrics(height uint64, difficulty uint64, hashrate float64) {
	a.RecordCustomMetric("Custom/Network/Height", float64(height))
	a.RecordCustomMetric("Custom/Network/Difficulty", float64(difficulty))
	a.RecordCustomMetric("Custom/Network/Hashrate", hashrate)
}
