// Package retrieval selects and ranks relevant frames for a query, with an
// audited decision trail and a deterministic heuristic fallback for when no
// scoring provider is available.
package retrieval

import (
	"time"

	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/scoring"
)

// Provider path values recorded in audit entries. The value is the path
// actually taken, never the one merely attempted.
const (
	PathExternal  = "external"
	PathCached    = "cached"
	PathHeuristic = "heuristic"
)

// Query complexity labels.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// Config is the retrieval policy, passed per query so config reloads take
// effect between operations.
type Config struct {
	ConfidenceThreshold float64       // minimum provider confidence to trust its ranking
	TokenBudget         int           // max serialized size of returned results
	ProviderTimeout     time.Duration // bound on one provider call
	MaxResults          int
	CacheWindow         time.Duration // audit-cache freshness window; 0 disables
	CandidateLimit      int           // how many recent frames to consider

	Weights    scoring.Weights // pre-normalized
	ToolScores scoring.ToolScores
}

// DefaultConfig returns the standard retrieval policy.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		TokenBudget:         8000,
		ProviderTimeout:     5 * time.Second,
		MaxResults:          10,
		CacheWindow:         15 * time.Minute,
		CandidateLimit:      200,
		Weights:             scoring.DefaultWeights(),
		ToolScores:          scoring.ToolScores{},
	}
}

// RankedFrame is one result with its final rank score.
type RankedFrame struct {
	frame.Frame
	RankScore float64 `json:"rank_score"`
}

// Result is what a query returns. Retrieval always returns a result set,
// worst case empty, never an error for provider problems.
type Result struct {
	Frames     []RankedFrame `json:"frames"`
	Provider   string        `json:"provider"` // external | cached | heuristic
	Confidence float64       `json:"confidence"`
	Complexity string        `json:"complexity"`
	TokensUsed int           `json:"tokens_used"`
	AuditID    string        `json:"audit_id"`
}

// AuditEntry is the immutable record of one retrieval decision.
type AuditEntry struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Query          string    `json:"query"`
	Provider       string    `json:"provider"`
	Confidence     float64   `json:"confidence"`
	TokensUsed     int       `json:"tokens_used"`
	TokenBudget    int       `json:"token_budget"`
	AnalysisTimeMS int64     `json:"analysis_time_ms"`
	Complexity     string    `json:"query_complexity"`
	FrameIDs       []string  `json:"frames_retrieved"`
	Reasoning      string    `json:"reasoning"`
}
