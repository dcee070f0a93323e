// Farmer Core - standalone BLS farming daemon for a proof-of-space chain.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chia-farm/farmer-core/internal/api"
	"github.com/chia-farm/farmer-core/internal/config"
	"github.com/chia-farm/farmer-core/internal/consensus"
	"github.com/chia-farm/farmer-core/internal/farmer"
	"github.com/chia-farm/farmer-core/internal/keystore"
	"github.com/chia-farm/farmer-core/internal/newrelic"
	"github.com/chia-farm/farmer-core/internal/notify"
	"github.com/chia-farm/farmer-core/internal/profiling"
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/transport"
	"github.com/chia-farm/farmer-core/internal/util"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Farmer Core v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("Farmer Core v%s starting", version)

	keys, err := loadKeystore(cfg.Keystore)
	if err != nil {
		util.Fatalf("Failed to load keystore: %v", err)
	}

	farmerTarget, err := parseHash32(cfg.Targets.FarmerPuzzleHash)
	if err != nil {
		util.Fatalf("Invalid targets.farmer_puzzle_hash: %v", err)
	}
	poolTarget, err := parseHash32(cfg.Targets.PoolPuzzleHash)
	if err != nil {
		util.Fatalf("Invalid targets.pool_puzzle_hash: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var f *farmer.Farmer

	harvesterListener := transport.NewListener(transport.Harvester, func(peer transport.Peer, frame transport.Frame) {
		dispatchHarvesterFrame(f, peer, frame)
	})
	solverListener := transport.NewListener(transport.Solver, func(peer transport.Peer, frame transport.Frame) {
		dispatchSolverFrame(f, peer, frame)
	})
	fullNodes := transport.NewFullNodeClient(cfg.FullNode.URLs, cfg.FullNode.MaxFailures, func(frame transport.Frame) {
		dispatchFullNodeFrame(f, frame)
	})

	f = farmer.New(farmer.Config{
		Constants:    constantsFromConfig(cfg.Consensus),
		Keystore:     keys,
		Harvesters:   harvesterListener.Registry,
		Solvers:      solverListener.Registry,
		FullNodes:    fullNodes,
		FarmerTarget: farmerTarget,
		PoolTarget:   poolTarget,
	})

	var pprofServer *profiling.Server
	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Errorf("Failed to start pprof server: %v", err)
		}
	}

	var nrAgent *newrelic.Agent
	if cfg.NewRelic.Enabled {
		nrAgent = newrelic.NewAgent(&cfg.NewRelic)
		if err := nrAgent.Start(); err != nil {
			util.Errorf("Failed to start New Relic agent: %v", err)
		}
	}

	notifier := notify.NewNotifier(&cfg.Webhook)

	var eventBus *farmer.EventBus
	if cfg.EventBus.Enabled {
		eventBus = farmer.NewEventBus(cfg.EventBus.Addr, cfg.EventBus.Password, cfg.EventBus.DB, cfg.EventBus.Channel)
		go eventBus.Run(ctx, f.Subscribe())
	}

	go watchEvents(f, notifier, nrAgent)

	var apiServer *api.Server
	if cfg.API.Enabled {
		setRewardTargets := func(farmerTarget, poolTarget protocol.Hash32) error {
			f.SetRewardTargets(farmerTarget, poolTarget)
			if err := config.PersistRewardTargets(*configPath, farmerTarget.String(), poolTarget.String()); err != nil {
				util.Warnf("reward targets rotated in memory but not persisted to config: %v", err)
				return err
			}
			return nil
		}
		apiServer = api.NewServer(&cfg.API, f.Stats, f.GetRewardTargets, setRewardTargets)
		if err := apiServer.Start(); err != nil {
			util.Fatalf("Failed to start API server: %v", err)
		}
	}

	f.Start(ctx)

	if err := harvesterListener.Start(cfg.Harvester.Bind); err != nil {
		util.Fatalf("Failed to start harvester listener: %v", err)
	}
	if err := solverListener.Start(cfg.Solver.Bind); err != nil {
		util.Fatalf("Failed to start solver listener: %v", err)
	}
	fullNodes.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("Farmer started successfully. Press Ctrl+C to stop.")

	<-sigChan
	util.Info("Shutting down...")

	if apiServer != nil {
		apiServer.Stop()
	}
	fullNodes.Stop()
	solverListener.Stop()
	harvesterListener.Stop()
	f.Stop()
	if eventBus != nil {
		eventBus.Close()
	}
	if pprofServer != nil {
		pprofServer.Stop()
	}
	if nrAgent != nil {
		nrAgent.Stop()
	}

	util.Info("Farmer stopped")
}

// watchEvents bridges Farmer.Subscribe into the webhook notifier and New
// Relic custom events, grounded on the teacher's share-callback wiring in
// the deleted cmd/tos-pool/main.go.
func watchEvents(f *farmer.Farmer, notifier *notify.Notifier, nrAgent *newrelic.Agent) {
	for ev := range f.Subscribe() {
		switch ev.Type {
		case "proof":
			spHash, _ := ev.Data["sp_hash"].(protocol.Hash32)
			plotIdentifier, _ := ev.Data["plot_identifier"].(string)
			qualityString, _ := ev.Data["quality_string"].(protocol.Hash32)
			notifier.NotifyProofFound(spHash.String(), plotIdentifier, qualityString.String())
			if nrAgent != nil {
				nrAgent.RecordProofSubmission(plotIdentifier, plotIdentifier, 0, true)
			}
		case "missing_signage_points":
			at, _ := ev.Data["at"].(int64)
			skipped, _ := ev.Data["skipped"].(uint32)
			notifier.NotifyMissingSignagePoints(at, skipped)
			if nrAgent != nil {
				nrAgent.RecordMissingSignagePoints(at, skipped)
			}
		case "signed_values":
			if nrAgent != nil {
				spHash, _ := ev.Data["sp_hash"].(protocol.Hash32)
				plotIdentifier, _ := ev.Data["plot_identifier"].(string)
				nrAgent.RecordSignedValues(spHash.String(), plotIdentifier)
			}
		case "close_connection":
			if nrAgent != nil {
				peerID, _ := ev.Data["peer_node_id"].(string)
				connType, _ := ev.Data["connection_type"].(string)
				nrAgent.RecordPeerDisconnected(connType, peerID)
			}
		}
	}
}

// dispatchHarvesterFrame routes a decoded frame from a harvester connection
// to the matching Farmer method, grounded on farmer_api.py's message
// handler table.
func dispatchHarvesterFrame(f *farmer.Farmer, peer transport.Peer, frame transport.Frame) {
	switch frame.Type {
	case "new_proof_of_space":
		var pos protocol.NewProofOfSpace
		if err := json.Unmarshal(frame.Payload, &pos); err != nil {
			util.Warnf("farmer: malformed new_proof_of_space from %s: %v", peer.PeerNodeID(), err)
			return
		}
		f.NewProofOfSpace(pos, peer.PeerNodeID())
	case "respond_signatures":
		var resp protocol.RespondSignatures
		if err := json.Unmarshal(frame.Payload, &resp); err != nil {
			util.Warnf("farmer: malformed respond_signatures from %s: %v", peer.PeerNodeID(), err)
			return
		}
		f.RespondSignatures(resp, peer.PeerNodeID())
	case "partial_proofs":
		var data protocol.PartialProofsData
		if err := json.Unmarshal(frame.Payload, &data); err != nil {
			util.Warnf("farmer: malformed partial_proofs from %s: %v", peer.PeerNodeID(), err)
			return
		}
		f.PartialProofs(data, peer.PeerNodeID())
	default:
		util.Warnf("farmer: unknown harvester frame type %q from %s", frame.Type, peer.PeerNodeID())
	}
}

// dispatchSolverFrame routes a decoded frame from a solver connection.
func dispatchSolverFrame(f *farmer.Farmer, peer transport.Peer, frame transport.Frame) {
	switch frame.Type {
	case "solution_response":
		var resp protocol.SolverResponse
		if err := json.Unmarshal(frame.Payload, &resp); err != nil {
			util.Warnf("farmer: malformed solution_response from %s: %v", peer.PeerNodeID(), err)
			return
		}
		f.SolutionResponse(resp, peer.PeerNodeID())
	default:
		util.Warnf("farmer: unknown solver frame type %q from %s", frame.Type, peer.PeerNodeID())
	}
}

// dispatchFullNodeFrame routes an inbound push from a full-node connection.
func dispatchFullNodeFrame(f *farmer.Farmer, frame transport.Frame) {
	switch frame.Type {
	case "new_signage_point":
		var sp protocol.SignagePoint
		if err := json.Unmarshal(frame.Payload, &sp); err != nil {
			util.Warnf("farmer: malformed new_signage_point: %v", err)
			return
		}
		f.NewSignagePoint(sp)
	case "request_signed_values":
		var req protocol.RequestSignedValues
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			util.Warnf("farmer: malformed request_signed_values: %v", err)
			return
		}
		f.RequestSignedValues(req)
	default:
		util.Warnf("farmer: unknown full-node frame type %q", frame.Type)
	}
}

// loadKeystore decodes the configured hex-encoded secret keys and builds a
// Keystore, surfacing keystore.ErrNoKeys verbatim for the caller's Fatalf.
func loadKeystore(cfg config.KeystoreConfig) (*keystore.Keystore, error) {
	farmerSKs, err := decodeHexKeys(cfg.FarmerSecretKeys)
	if err != nil {
		return nil, err
	}
	poolSKs, err := decodeHexKeys(cfg.PoolSecretKeys)
	if err != nil {
		return nil, err
	}
	return keystore.New(farmerSKs, poolSKs)
}

func decodeHexKeys(hexKeys []string) ([][]byte, error) {
	out := make([][]byte, 0, len(hexKeys))
	for _, h := range hexKeys {
		b, err := util.HexToBytes(h)
		if err != nil {
			return nil, fmt.Errorf("invalid secret key hex: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func parseHash32(hexStr string) (protocol.Hash32, error) {
	var h protocol.Hash32
	if hexStr == "" {
		return h, nil
	}
	b, err := util.HexToBytes(hexStr)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func constantsFromConfig(cfg config.ConsensusConfig) consensus.Constants {
	return consensus.Constants{
		SubSlotTimeTarget:        cfg.SubSlotTimeTarget,
		NumSPsSubSlot:            uint32(cfg.NumSPsSubSlot),
		NumSPIntervalsExtra:      uint32(cfg.NumSPIntervalsExtra),
		DifficultyConstantFactor: cfg.DifficultyConstantFactor,
		MinPlotSize:              cfg.MinPlotSize,
		MaxPlotSize:              cfg.MaxPlotSize,
		HardFork2Height:          cfg.HardFork2Height,
	}
}
