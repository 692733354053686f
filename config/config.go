// Package config loads the process-level settings a host wires around
// the core (§6 "Process-level configuration"): which AIDs this node
// controls, whether it runs in direct or indirect witness mode, and how
// long each escrow class waits before the engine gives up on it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keriproto/go-keri-core/kerierr"
)

// Mode selects how this node participates in witnessing (§6): a direct
// mode node only receipts events for AIDs it controls, an indirect mode
// node also receipts on behalf of AIDs that have named it as a witness.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeIndirect Mode = "indirect"
)

// EscrowTimeouts overrides the default per-class expiry durations. A
// zero value leaves the corresponding class at escrow.DefaultTimeouts's
// built-in default rather than expiring it immediately.
type EscrowTimeouts struct {
	OutOfOrder                      time.Duration `yaml:"out_of_order"`
	PartiallySigned                  time.Duration `yaml:"partially_signed"`
	PartiallyWitnessed                time.Duration `yaml:"partially_witnessed"`
	LikelyDuplicitous                 time.Duration `yaml:"likely_duplicitous"`
	UnverifiedWitnessReceipt           time.Duration `yaml:"unverified_witness_receipt"`
	UnverifiedNonTransferableReceipt   time.Duration `yaml:"unverified_non_transferable_receipt"`
	UnverifiedTransferableReceipt      time.Duration `yaml:"unverified_transferable_receipt"`
}

// AsMap converts the overrides into the map shape escrow.Engine.Timeouts
// expects, merging zero entries in from defaults rather than overwriting
// them with a zero duration.
func (t EscrowTimeouts) AsMap(defaults map[kerierr.EscrowKind]time.Duration) map[kerierr.EscrowKind]time.Duration {
	out := make(map[kerierr.EscrowKind]time.Duration, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	overrides := map[kerierr.EscrowKind]time.Duration{
		kerierr.EscrowOutOfOrder:                      t.OutOfOrder,
		kerierr.EscrowPartiallySigned:                 t.PartiallySigned,
		kerierr.EscrowPartiallyWitnessed:               t.PartiallyWitnessed,
		kerierr.EscrowLikelyDuplicitous:                t.LikelyDuplicitous,
		kerierr.EscrowUnverifiedWitnessReceipt:         t.UnverifiedWitnessReceipt,
		kerierr.EscrowUnverifiedNonTransferableReceipt: t.UnverifiedNonTransferableReceipt,
		kerierr.EscrowUnverifiedTransferableReceipt:    t.UnverifiedTransferableReceipt,
	}
	for k, v := range overrides {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// Config is the top-level node configuration, loaded from a YAML file
// with environment variables permitted to override a handful of
// deployment-specific fields.
type Config struct {
	// OwnedAIDs lists the AIDs this node holds signing keys for.
	// Verifier.IsOwn and the receipt-cue suppression it gates (§4.G Cue
	// emission) are both driven from this set.
	OwnedAIDs []string `yaml:"owned_aids"`

	Mode Mode `yaml:"mode"`

	DigestCode string `yaml:"digest_code"`

	Escrow EscrowTimeouts `yaml:"escrow_timeouts"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and validates a YAML config file, applying the KERI_MODE
// environment override a host's process manager typically injects
// per-deployment rather than baking into the checked-in file. No other
// field is read from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if mode := os.Getenv("KERI_MODE"); mode != "" {
		cfg.Mode = Mode(mode)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the node running in direct mode over no
// owned AIDs, leaving every escrow class at its built-in timeout.
func Default() *Config {
	return &Config{
		Mode:       ModeDirect,
		DigestCode: "E",
		Logging:    LoggingConfig{Level: "info"},
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDirect, ModeIndirect:
	default:
		return fmt.Errorf("mode %q is neither %q nor %q", c.Mode, ModeDirect, ModeIndirect)
	}
	if c.DigestCode == "" {
		return fmt.Errorf("digest_code must not be empty")
	}
	return nil
}

// IsOwn builds the predicate Verifier.IsOwn expects from OwnedAIDs.
func (c *Config) IsOwn() func(aid string) bool {
	owned := make(map[string]bool, len(c.OwnedAIDs))
	for _, aid := range c.OwnedAIDs {
		owned[aid] = true
	}
	return func(aid string) bool { return owned[aid] }
}
