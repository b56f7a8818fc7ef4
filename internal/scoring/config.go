package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trustgate/internal/model"
)

// SignalSpec declares one signal type inside a category: its weight in
// the category aggregate, the accepted raw value range, and any direct
// point adjustment it carries. Positive signals reset the decay clock.
type SignalSpec struct {
	Weight   float64 `yaml:"weight"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	Positive bool    `yaml:"positive"`
	Invert   bool    `yaml:"invert"` // high raw value = bad (violations, risk)
	Points   float64 `yaml:"points"`
	OneTime  bool    `yaml:"one_time"`
}

// CategorySpec declares a category weight and its signal types.
// Signal weights inside a category sum to 1.0.
type CategorySpec struct {
	Weight  float64               `yaml:"weight"`
	Signals map[string]SignalSpec `yaml:"signals"`
}

// VelocityCaps bound cumulative positive point delta per rolling window.
type VelocityCaps struct {
	Daily   float64 `yaml:"daily"`
	Weekly  float64 `yaml:"weekly"`
	Monthly float64 `yaml:"monthly"`
}

// AnomalySpec configures the anomaly detectors. Flagged signals are
// dampened, never blocked: the flag travels to the evidence chain.
type AnomalySpec struct {
	RateFactor     float64 `yaml:"rate_factor"`     // vs trailing 30-day daily average
	PerfectStreak  int     `yaml:"perfect_streak"`  // consecutive max-value compliance signals
	DampenFactor   float64 `yaml:"dampen_factor"`   // multiplier applied to flagged signals
	TrailingWindow int     `yaml:"trailing_window"` // days of history for the rate baseline
}

// Config holds all scoring parameters. InitialScore doubles as the
// neutral prior: unobserved signal types sit at InitialScore/1000, so a
// sparse history moves the score gradually instead of pinning it to an
// extreme.
type Config struct {
	InitialScore   int                              `yaml:"initial_score"`
	PriorWeight    float64                          `yaml:"prior_weight"`
	Categories     map[model.Category]CategorySpec  `yaml:"categories"`
	Velocity       VelocityCaps                     `yaml:"velocity"`
	Anomaly        AnomalySpec                      `yaml:"anomaly"`
	RepeatDecay    float64                          `yaml:"repeat_decay"`
	RepeatWindow   model.Duration                   `yaml:"repeat_window"`
	SnapshotMaxAge model.Duration                   `yaml:"snapshot_max_age"`
}

// Spec returns the declaration for a signal type, if known.
func (c *Config) Spec(cat model.Category, signalType string) (SignalSpec, bool) {
	cs, ok := c.Categories[cat]
	if !ok {
		return SignalSpec{}, false
	}
	spec, ok := cs.Signals[signalType]
	return spec, ok
}

// DefaultConfig returns the built-in scoring parameters.
// Category weights: behavioral 0.40, compliance 0.25, identity 0.20,
// context 0.15. Signal weights sum to 1.0 inside each category.
func DefaultConfig() *Config {
	return &Config{
		InitialScore: 400,
		PriorWeight:  1.0,
		Categories: map[model.Category]CategorySpec{
			model.CategoryBehavioral: {
				Weight: 0.40,
				Signals: map[string]SignalSpec{
					"task_completed":      {Weight: 0.35, Min: 0, Max: 1, Positive: true},
					"task_accuracy":       {Weight: 0.25, Min: 0, Max: 1, Positive: true},
					"resource_discipline": {Weight: 0.20, Min: 0, Max: 1, Positive: true},
					"clean_day":           {Weight: 0.20, Min: 0, Max: 1, Positive: true, Points: 2},
				},
			},
			model.CategoryCompliance: {
				Weight: 0.25,
				Signals: map[string]SignalSpec{
					"policy_adherence": {Weight: 0.50, Min: 0, Max: 1, Positive: true},
					"audit_pass":       {Weight: 0.30, Min: 0, Max: 1, Positive: true},
					"policy_violation": {Weight: 0.20, Min: 0, Max: 1, Invert: true, Points: -100},
				},
			},
			model.CategoryIdentity: {
				Weight: 0.20,
				Signals: map[string]SignalSpec{
					"mfa_enabled":    {Weight: 0.40, Min: 0, Max: 1, Positive: true, Points: 50, OneTime: true},
					"credential_age": {Weight: 0.30, Min: 0, Max: 1, Positive: true},
					"attestation":    {Weight: 0.30, Min: 0, Max: 1, Positive: true},
				},
			},
			model.CategoryContext: {
				Weight: 0.15,
				Signals: map[string]SignalSpec{
					"environment_risk": {Weight: 0.50, Min: 0, Max: 1, Invert: true},
					"session_anomaly":  {Weight: 0.50, Min: 0, Max: 1, Invert: true},
				},
			},
		},
		Velocity: VelocityCaps{Daily: 20, Weekly: 80, Monthly: 200},
		Anomaly: AnomalySpec{
			RateFactor:     5,
			PerfectStreak:  30,
			DampenFactor:   0.5,
			TrailingWindow: 30,
		},
		RepeatDecay:    0.9,
		RepeatWindow:   model.Duration(24 * time.Hour),
		SnapshotMaxAge: model.Duration(60 * time.Second),
	}
}

// LoadConfig loads scoring configuration from a YAML file.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads scoring configuration and returns the
// SHA-256 hash of the raw YAML bytes on disk. When no file exists the
// hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		h := sha256.Sum256(nil)
		return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("failed to read scoring config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse scoring config: %w", err)
	}

	return cfg, hash, nil
}
