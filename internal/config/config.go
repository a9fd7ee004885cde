// Package config manages global (~/.config/stackmem/config.toml) and
// per-project (.stackmem/config.toml) configuration for stackmem.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stackmem/stackmem/internal/retrieval"
	"github.com/stackmem/stackmem/internal/scoring"
	"github.com/stackmem/stackmem/internal/tier"
)

// Config holds all tunable policy. It is an immutable value: components
// receive it per call, and reloads swap in a fresh value atomically.
type Config struct {
	Scoring   ScoringConfig   `toml:"scoring"`
	Tiers     TiersConfig     `toml:"tiers"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Keys      KeysConfig      `toml:"keys"`
}

// ScoringConfig carries the four weights, the tool score table, and the
// saturation points for the impact and reference terms.
type ScoringConfig struct {
	Base                float64            `toml:"base"`
	Impact              float64            `toml:"impact"`
	Persistence         float64            `toml:"persistence"`
	Reference           float64            `toml:"reference"`
	ImpactSaturation    int                `toml:"impact_saturation"`
	ReferenceSaturation int                `toml:"reference_saturation"`
	Tools               map[string]float64 `toml:"tools"`
}

// TiersConfig is the tier-transition policy.
type TiersConfig struct {
	HotMaxAgeHours       int     `toml:"hot_max_age_hours"`
	WarmMaxAgeHours      int     `toml:"warm_max_age_hours"`
	LowScoreThreshold    float64 `toml:"low_score_threshold"`
	CleanupRetentionDays int     `toml:"cleanup_retention_days"`
	LockStaleMinutes     int     `toml:"lock_stale_minutes"`
	HotCostPerGB         float64 `toml:"hot_cost_per_gb"`
	WarmCostPerGB        float64 `toml:"warm_cost_per_gb"`
	ColdCostPerGB        float64 `toml:"cold_cost_per_gb"`
}

// RetrievalConfig controls the query path.
type RetrievalConfig struct {
	Provider            string  `toml:"provider"` // "", "claude", "openai", "mock"
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	TokenBudget         int     `toml:"token_budget"`
	ProviderTimeoutMS   int     `toml:"provider_timeout_ms"`
	MaxResults          int     `toml:"max_results"`
	CacheWindowMinutes  int     `toml:"cache_window_minutes"`
	AuditRetentionDays  int     `toml:"audit_retention_days"`
	CandidateLimit      int     `toml:"candidate_limit"`
}

// KeysConfig carries provider API keys; env vars take precedence.
type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Scoring: ScoringConfig{
			Base:                0.4,
			Impact:              0.3,
			Persistence:         0.2,
			Reference:           0.1,
			ImpactSaturation:    10,
			ReferenceSaturation: 5,
			Tools:               map[string]float64{},
		},
		Tiers: TiersConfig{
			HotMaxAgeHours:       24,
			WarmMaxAgeHours:      720,
			LowScoreThreshold:    0.4,
			CleanupRetentionDays: 90,
			LockStaleMinutes:     60,
			HotCostPerGB:         0.10,
			WarmCostPerGB:        0.01,
			ColdCostPerGB:        0.001,
		},
		Retrieval: RetrievalConfig{
			ConfidenceThreshold: 0.6,
			TokenBudget:         8000,
			ProviderTimeoutMS:   5000,
			MaxResults:          10,
			CacheWindowMinutes:  15,
			AuditRetentionDays:  30,
			CandidateLimit:      200,
		},
	}
}

// Weights returns the normalized scoring weights.
func (c Config) Weights() (scoring.Weights, error) {
	w := scoring.Weights{
		Base:        c.Scoring.Base,
		Impact:      c.Scoring.Impact,
		Persistence: c.Scoring.Persistence,
		Reference:   c.Scoring.Reference,
	}
	return w.Normalize()
}

// ToolScores returns the tool score table.
func (c Config) ToolScores() scoring.ToolScores {
	table := make(scoring.ToolScores, len(c.Scoring.Tools))
	for k, v := range c.Scoring.Tools {
		table[k] = v
	}
	return table
}

// TierConfig converts to the tier manager's policy value.
func (c Config) TierConfig() tier.Config {
	return tier.Config{
		HotMaxAge:         time.Duration(c.Tiers.HotMaxAgeHours) * time.Hour,
		WarmMaxAge:        time.Duration(c.Tiers.WarmMaxAgeHours) * time.Hour,
		LowScoreThreshold: c.Tiers.LowScoreThreshold,
		LockStale:         time.Duration(c.Tiers.LockStaleMinutes) * time.Minute,
		HotCostPerGB:      c.Tiers.HotCostPerGB,
		WarmCostPerGB:     c.Tiers.WarmCostPerGB,
		ColdCostPerGB:     c.Tiers.ColdCostPerGB,
	}
}

// RetrievalConfigValue converts to the retrieval engine's policy value.
// The weights must already have passed Validate.
func (c Config) RetrievalConfigValue() retrieval.Config {
	w, err := c.Weights()
	if err != nil {
		w = scoring.DefaultWeights()
	}
	return retrieval.Config{
		ConfidenceThreshold: c.Retrieval.ConfidenceThreshold,
		TokenBudget:         c.Retrieval.TokenBudget,
		ProviderTimeout:     time.Duration(c.Retrieval.ProviderTimeoutMS) * time.Millisecond,
		MaxResults:          c.Retrieval.MaxResults,
		CacheWindow:         time.Duration(c.Retrieval.CacheWindowMinutes) * time.Minute,
		CandidateLimit:      c.Retrieval.CandidateLimit,
		Weights:             w,
		ToolScores:          c.ToolScores(),
	}
}

// Validate rejects configuration that cannot be used: weights that cannot
// be normalized, tool scores outside [0,1], nonsensical thresholds.
// Malformed configuration is an error at load time, never at scoring time.
func (c Config) Validate() error {
	if _, err := c.Weights(); err != nil {
		return err
	}
	for tool, v := range c.Scoring.Tools {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: tool score for %q is %v, want [0,1]", tool, v)
		}
	}
	if c.Tiers.LowScoreThreshold < 0 || c.Tiers.LowScoreThreshold > 1 {
		return fmt.Errorf("config: low_score_threshold is %v, want [0,1]", c.Tiers.LowScoreThreshold)
	}
	if c.Retrieval.ConfidenceThreshold < 0 || c.Retrieval.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence_threshold is %v, want [0,1]", c.Retrieval.ConfidenceThreshold)
	}
	if c.Retrieval.TokenBudget < 0 {
		return fmt.Errorf("config: token_budget is %d, want >= 0", c.Retrieval.TokenBudget)
	}
	return nil
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stackmem", "config.toml"), nil
}

// ProjectDir returns the project's .stackmem directory.
func ProjectDir(root string) string {
	return filepath.Join(root, ".stackmem")
}

// ProjectDBPath returns the path to the project's SQLite database.
func ProjectDBPath(root string) string {
	return filepath.Join(root, ".stackmem", "stackmem.db")
}

// ProjectTierDir returns the directory holding warm/cold tier payloads.
func ProjectTierDir(root string) string {
	return filepath.Join(root, ".stackmem", "tiers")
}

// ProjectConfigPath returns the per-project config file path.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, ".stackmem", "config.toml")
}

// Load returns the effective, validated config for a project root: defaults,
// overlaid by the global file, overlaid by the project file, with env vars
// overriding API keys.
func Load(root string) (Config, error) {
	cfg := Default()

	if path, err := GlobalPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("config: load global: %w", err)
			}
		}
	}

	if root != "" {
		path := ProjectConfigPath(root)
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("config: load project: %w", err)
			}
		}
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes a config to the project's .stackmem/config.toml.
func Save(root string, cfg Config) error {
	dir := ProjectDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir project: %w", err)
	}

	f, err := os.Create(ProjectConfigPath(root))
	if err != nil {
		return fmt.Errorf("config: create project config: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
