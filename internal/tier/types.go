// Package tier owns the physical placement of archived trace payloads
// across hot, warm, and cold storage. It decides where a score+age
// combination should live, never what is important.
package tier

import (
	"errors"
	"time"
)

// Tier identifies one storage class.
type Tier string

const (
	Hot  Tier = "hot"
	Warm Tier = "warm"
	Cold Tier = "cold"
)

// ErrNotFound is returned when no tier record exists for a trace.
var ErrNotFound = errors.New("tier: trace not found")

// Record is the single tier entry for one archived trace.
type Record struct {
	TraceID        string     `json:"trace_id"`
	Tier           Tier       `json:"tier"`
	OriginalSize   int64      `json:"original_size"`
	CompressedSize int64      `json:"compressed_size"`
	Score          float64    `json:"score"`
	AccessCount    int        `json:"access_count"`
	CreatedAt      time.Time  `json:"created_at"`
	MigratedAt     *time.Time `json:"migrated_at,omitempty"`
	Location       string     `json:"location"`
}

// Trace is a retrieved payload together with its tier record.
type Trace struct {
	Record  Record `json:"record"`
	Payload []byte `json:"payload"`
}

// Config holds the tier-transition policy. Values come from the active
// configuration and are passed per call so reloads take effect between
// operations.
type Config struct {
	HotMaxAge         time.Duration
	WarmMaxAge        time.Duration
	LowScoreThreshold float64
	LockStale         time.Duration
	HotCostPerGB      float64
	WarmCostPerGB     float64
	ColdCostPerGB     float64
}

// DefaultConfig returns the standard policy: hot entries age out after 24h,
// warm after 30 days, and anything scoring under 0.4 is demoted early.
func DefaultConfig() Config {
	return Config{
		HotMaxAge:         24 * time.Hour,
		WarmMaxAge:        720 * time.Hour,
		LowScoreThreshold: 0.4,
		LockStale:         time.Hour,
		HotCostPerGB:      0.10,
		WarmCostPerGB:     0.01,
		ColdCostPerGB:     0.001,
	}
}

// MigrateResult summarises one sweep pass.
type MigrateResult struct {
	HotToWarm  int      `json:"hot_to_warm"`
	WarmToCold int      `json:"warm_to_cold"`
	Errors     []string `json:"errors,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"` // another sweep held the lock
}

// TierStats aggregates one tier for capacity reporting.
type TierStats struct {
	Count            int     `json:"count"`
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"` // 1 - compressed/original
	MonthlyCostUSD   float64 `json:"monthly_cost_usd"`  // advisory only
}

// Stats is the full capacity report.
type Stats struct {
	ByTier         map[Tier]TierStats `json:"by_tier"`
	ByAge          map[string]int     `json:"by_age"` // buckets: <1d, 1d-7d, 7d-30d, >30d
	TotalSize      int64              `json:"total_size"`
	CompressedSize int64              `json:"compressed_size"`
}
