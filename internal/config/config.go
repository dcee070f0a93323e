// Package config handles configuration loading and validation for the
// farmer daemon.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/chia-farm/farmer-core/internal/notify"
)

// Config holds all configuration for the farmer process.
type Config struct {
	Consensus ConsensusConfig      `mapstructure:"consensus"`
	Keystore  KeystoreConfig       `mapstructure:"keystore"`
	Targets   TargetsConfig        `mapstructure:"targets"`
	Harvester HarvesterConfig      `mapstructure:"harvester"`
	Solver    SolverConfig         `mapstructure:"solver"`
	FullNode  FullNodeConfig       `mapstructure:"full_node"`
	EventBus  EventBusConfig       `mapstructure:"event_bus"`
	API       APIConfig            `mapstructure:"api"`
	Profiling ProfilingConfig      `mapstructure:"profiling"`
	NewRelic  NewRelicConfig       `mapstructure:"newrelic"`
	Webhook   notify.WebhookConfig `mapstructure:"webhook"`
	Log       LogConfig            `mapstructure:"log"`
}

// ConsensusConfig carries the network constants component E and the
// consensus package need (spec.md §4.E, §9).
type ConsensusConfig struct {
	SubSlotTimeTarget       uint64 `mapstructure:"sub_slot_time_target"`
	NumSPsSubSlot           uint64 `mapstructure:"num_sps_sub_slot"`
	NumSPIntervalsExtra     uint64 `mapstructure:"num_sp_intervals_extra"`
	DifficultyConstantFactor uint64 `mapstructure:"difficulty_constant_factor"`
	MinPlotSize             uint8  `mapstructure:"min_plot_size"`
	MaxPlotSize             uint8  `mapstructure:"max_plot_size"`
	HardFork2Height         uint32 `mapstructure:"hard_fork2_height"`
}

// KeystoreConfig points at the raw farmer/pool secret key material a
// keychain has already derived (spec.md §1 Non-goals: keychain persistence
// and key derivation themselves are out of scope).
type KeystoreConfig struct {
	FarmerSecretKeys []string `mapstructure:"farmer_secret_keys"`
	PoolSecretKeys   []string `mapstructure:"pool_secret_keys"`
}

// TargetsConfig seeds the initial reward targets (spec.md §9 supplemented
// get/set_reward_targets feature).
type TargetsConfig struct {
	FarmerPuzzleHash string `mapstructure:"farmer_puzzle_hash"`
	PoolPuzzleHash   string `mapstructure:"pool_puzzle_hash"`
}

// HarvesterConfig is the listener bind address harvesters connect to.
type HarvesterConfig struct {
	Bind string `mapstructure:"bind"`
}

// SolverConfig is the listener bind address solvers connect to.
type SolverConfig struct {
	Bind string `mapstructure:"bind"`
}

// FullNodeConfig is the set of full-node URLs the farmer dials outbound and
// broadcasts DeclareProofOfSpace/SignedValues to.
type FullNodeConfig struct {
	URLs        []string `mapstructure:"urls"`
	MaxFailures int32    `mapstructure:"max_failures"`
}

// EventBusConfig configures the optional Redis pub/sub mirror of farmer
// events (component O).
type EventBusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// APIConfig defines the HTTP status API server settings.
type APIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Bind        string        `mapstructure:"bind"`
	StatsCache  time.Duration `mapstructure:"stats_cache"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

// ProfilingConfig defines the pprof debug server settings.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// NewRelicConfig defines APM agent settings.
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/farmer")
	}

	v.SetEnvPrefix("FARMER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// PersistRewardTargets rewrites the targets.farmer_puzzle_hash and
// targets.pool_puzzle_hash keys of the on-disk config file, grounded on
// farmer.py's set_reward_targets writing the rotated targets back to
// config.yaml so they survive a restart. configPath must name a real file;
// runtime-only rotation (no --config flag given) has nowhere to persist to.
func PersistRewardTargets(configPath, farmerPuzzleHashHex, poolPuzzleHashHex string) error {
	if configPath == "" {
		return fmt.Errorf("config: cannot persist reward targets without an explicit --config file path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	v.Set("targets.farmer_puzzle_hash", farmerPuzzleHashHex)
	v.Set("targets.pool_puzzle_hash", poolPuzzleHashHex)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Consensus defaults mirror consensus.DefaultConstants.
	v.SetDefault("consensus.sub_slot_time_target", 600)
	v.SetDefault("consensus.num_sps_sub_slot", 64)
	v.SetDefault("consensus.num_sp_intervals_extra", 3)
	v.SetDefault("consensus.difficulty_constant_factor", uint64(1)<<67)
	v.SetDefault("consensus.min_plot_size", 32)
	v.SetDefault("consensus.max_plot_size", 50)
	v.SetDefault("consensus.hard_fork2_height", 0)

	// Harvester/solver defaults.
	v.SetDefault("harvester.bind", "0.0.0.0:8447")
	v.SetDefault("solver.bind", "0.0.0.0:8448")

	// Full node defaults.
	v.SetDefault("full_node.max_failures", 3)

	// Event bus defaults.
	v.SetDefault("event_bus.enabled", false)
	v.SetDefault("event_bus.addr", "127.0.0.1:6379")
	v.SetDefault("event_bus.db", 0)
	v.SetDefault("event_bus.channel", "farmer.events")

	// API defaults.
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "0.0.0.0:8560")
	v.SetDefault("api.stats_cache", "5s")
	v.SetDefault("api.cors_origins", []string{"*"})

	// Profiling defaults.
	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6061")

	// NewRelic defaults.
	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("newrelic.app_name", "chia-farmer-core")

	// Webhook defaults.
	v.SetDefault("webhook.enabled", false)

	// Log defaults.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if len(c.Keystore.FarmerSecretKeys) == 0 {
		return fmt.Errorf("keystore.farmer_secret_keys is required")
	}

	if c.Consensus.NumSPsSubSlot == 0 {
		return fmt.Errorf("consensus.num_sps_sub_slot must be > 0")
	}

	if c.Consensus.MinPlotSize > c.Consensus.MaxPlotSize {
		return fmt.Errorf("consensus.min_plot_size must be <= max_plot_size")
	}

	if c.Harvester.Bind == "" {
		return fmt.Errorf("harvester.bind is required")
	}

	if c.Solver.Bind == "" {
		return fmt.Errorf("solver.bind is required")
	}

	return nil
}
