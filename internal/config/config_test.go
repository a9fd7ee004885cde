package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate keeps tests away from any real global config in $HOME.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfig_Weights_Normalized(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Base = 4
	cfg.Scoring.Impact = 3
	cfg.Scoring.Persistence = 2
	cfg.Scoring.Reference = 1

	w, err := cfg.Weights()
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if w.Base != 0.4 || w.Impact != 0.3 || w.Persistence != 0.2 || w.Reference != 0.1 {
		t.Errorf("not proportionally rescaled: %+v", w)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"all-zero weights", func(c *Config) {
			c.Scoring.Base = 0
			c.Scoring.Impact = 0
			c.Scoring.Persistence = 0
			c.Scoring.Reference = 0
		}},
		{"negative weight", func(c *Config) { c.Scoring.Impact = -0.3 }},
		{"tool score above 1", func(c *Config) {
			c.Scoring.Tools = map[string]float64{"edit": 1.5}
		}},
		{"negative tool score", func(c *Config) {
			c.Scoring.Tools = map[string]float64{"edit": -0.1}
		}},
		{"low score threshold above 1", func(c *Config) { c.Tiers.LowScoreThreshold = 1.2 }},
		{"confidence threshold negative", func(c *Config) { c.Retrieval.ConfidenceThreshold = -0.5 }},
		{"negative token budget", func(c *Config) { c.Retrieval.TokenBudget = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tiers.HotMaxAgeHours != 24 {
		t.Errorf("hot max age: got %d, want 24", cfg.Tiers.HotMaxAgeHours)
	}
	if cfg.Retrieval.Provider != "" {
		t.Errorf("provider: got %q, want empty", cfg.Retrieval.Provider)
	}
}

func TestLoad_ProjectOverridesDefaults(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	if err := os.MkdirAll(ProjectDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	project := `
[tiers]
hot_max_age_hours = 48

[retrieval]
provider = "mock"
max_results = 5
`
	if err := os.WriteFile(ProjectConfigPath(root), []byte(project), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tiers.HotMaxAgeHours != 48 {
		t.Errorf("hot max age: got %d, want 48", cfg.Tiers.HotMaxAgeHours)
	}
	if cfg.Retrieval.Provider != "mock" {
		t.Errorf("provider: got %q, want mock", cfg.Retrieval.Provider)
	}
	if cfg.Retrieval.MaxResults != 5 {
		t.Errorf("max results: got %d, want 5", cfg.Retrieval.MaxResults)
	}
	// Untouched sections keep their defaults.
	if cfg.Retrieval.TokenBudget != 8000 {
		t.Errorf("token budget: got %d, want 8000", cfg.Retrieval.TokenBudget)
	}
}

func TestLoad_GlobalThenProject(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	root := t.TempDir()

	globalDir := filepath.Join(home, ".config", "stackmem")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	global := `
[tiers]
hot_max_age_hours = 12
low_score_threshold = 0.3
`
	if err := os.WriteFile(filepath.Join(globalDir, "config.toml"), []byte(global), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(ProjectDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	project := `
[tiers]
hot_max_age_hours = 6
`
	if err := os.WriteFile(ProjectConfigPath(root), []byte(project), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tiers.HotMaxAgeHours != 6 {
		t.Errorf("project should win: got %d, want 6", cfg.Tiers.HotMaxAgeHours)
	}
	if cfg.Tiers.LowScoreThreshold != 0.3 {
		t.Errorf("global value lost: got %v, want 0.3", cfg.Tiers.LowScoreThreshold)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	if err := os.MkdirAll(ProjectDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	bad := `
[scoring]
base = 0.0
impact = 0.0
persistence = 0.0
reference = 0.0
`
	if err := os.WriteFile(ProjectConfigPath(root), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(root); err == nil {
		t.Error("expected error for unnormalizable weights")
	}
}

func TestLoad_EnvKeysOverride(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Keys.Anthropic != "sk-from-env" {
		t.Errorf("anthropic key: got %q, want env value", cfg.Keys.Anthropic)
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	cfg := Default()
	cfg.Tiers.HotMaxAgeHours = 36
	cfg.Retrieval.Provider = "mock"
	cfg.Scoring.Tools = map[string]float64{"edit": 0.9}

	if err := Save(root, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Tiers.HotMaxAgeHours != 36 {
		t.Errorf("hot max age: got %d, want 36", got.Tiers.HotMaxAgeHours)
	}
	if got.Retrieval.Provider != "mock" {
		t.Errorf("provider: got %q, want mock", got.Retrieval.Provider)
	}
	if got.Scoring.Tools["edit"] != 0.9 {
		t.Errorf("tool score: got %v, want 0.9", got.Scoring.Tools["edit"])
	}
}

func TestConfig_TierConfig(t *testing.T) {
	cfg := Default()
	tc := cfg.TierConfig()
	if tc.HotMaxAge != 24*time.Hour {
		t.Errorf("hot max age: got %v, want 24h", tc.HotMaxAge)
	}
	if tc.WarmMaxAge != 720*time.Hour {
		t.Errorf("warm max age: got %v, want 720h", tc.WarmMaxAge)
	}
	if tc.LockStale != time.Hour {
		t.Errorf("lock stale: got %v, want 1h", tc.LockStale)
	}
}

func TestConfig_RetrievalConfigValue(t *testing.T) {
	cfg := Default()
	rc := cfg.RetrievalConfigValue()
	if rc.ProviderTimeout != 5*time.Second {
		t.Errorf("provider timeout: got %v, want 5s", rc.ProviderTimeout)
	}
	if rc.CacheWindow != 15*time.Minute {
		t.Errorf("cache window: got %v, want 15m", rc.CacheWindow)
	}
	if sum := rc.Weights.Sum(); sum < 0.999 || sum > 1.001 {
		t.Errorf("weights not normalized, sum %v", sum)
	}
}
