package retrieval

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/provider"
	"github.com/stackmem/stackmem/internal/scoring"
)

// Engine answers "what is relevant right now". Each query walks a fixed
// path: analyze, score (provider, cached, or heuristic), rank against the
// token budget, audit. The audit row names the path actually taken.
type Engine struct {
	frames    *frame.Store
	audit     *AuditStore
	scorer    *scoring.Engine
	tokenizer *Tokenizer // nil: estimate tokens as len/4
	provider  provider.Provider
}

// NewEngine creates an Engine. provider may be nil (heuristic-only);
// tokenizer may be nil, in which case token counts are estimated.
func NewEngine(frames *frame.Store, audit *AuditStore, scorer *scoring.Engine, tokenizer *Tokenizer, p provider.Provider) *Engine {
	return &Engine{frames: frames, audit: audit, scorer: scorer, tokenizer: tokenizer, provider: p}
}

// Query selects and ranks relevant frames. Provider timeouts and errors
// trigger the heuristic fallback and are never surfaced; only the audit
// write itself can fail, because returning unaudited results would break
// the explainability guarantee.
func (e *Engine) Query(ctx context.Context, query, runID string, cfg Config) (Result, error) {
	start := time.Now()

	// The caller's deadline bounds only the provider call. Local analysis,
	// the heuristic fallback, and the audit write proceed past an expired
	// deadline, so retrieval still returns an audited result.
	local := context.WithoutCancel(ctx)

	// ANALYZE
	queryKws := keywords(query)
	pathDepth := 0
	if runID != "" {
		if path, err := e.frames.ActivePath(local, runID); err == nil {
			pathDepth = len(path)
		}
	}
	label := complexity(queryKws, pathDepth)

	cands, err := e.candidates(local, cfg)
	if err != nil {
		return Result{}, err
	}

	// PROVIDER_SCORED / CACHED / HEURISTIC_SCORED
	ranked, path, confidence, reasoning := e.rank(ctx, query, queryKws, cands, cfg)

	// RANKED: truncate to the caller's maximum, then to the token budget,
	// dropping lowest-ranked items first.
	if cfg.MaxResults > 0 && len(ranked) > cfg.MaxResults {
		ranked = ranked[:cfg.MaxResults]
	}
	tokensUsed := 0
	kept := ranked[:0]
	for _, r := range ranked {
		n := e.countTokens(summarize(r.Frame))
		if cfg.TokenBudget > 0 && tokensUsed+n > cfg.TokenBudget {
			break
		}
		tokensUsed += n
		kept = append(kept, r)
	}
	ranked = kept

	// AUDITED: exactly one entry per query, written before returning.
	frameIDs := make([]string, len(ranked))
	for i, r := range ranked {
		frameIDs[i] = r.ID
	}
	auditID, err := e.audit.Insert(local, AuditEntry{
		Query:          query,
		Provider:       path,
		Confidence:     confidence,
		TokensUsed:     tokensUsed,
		TokenBudget:    cfg.TokenBudget,
		AnalysisTimeMS: time.Since(start).Milliseconds(),
		Complexity:     label,
		FrameIDs:       frameIDs,
		Reasoning:      reasoning,
	})
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: audit query: %w", err)
	}

	return Result{
		Frames:     ranked,
		Provider:   path,
		Confidence: confidence,
		Complexity: label,
		TokensUsed: tokensUsed,
		AuditID:    auditID,
	}, nil
}

// candidates enumerates recent frames and recomputes each one's importance
// from its recorded signals.
func (e *Engine) candidates(ctx context.Context, cfg Config) ([]candidate, error) {
	frames, err := e.frames.Recent(ctx, cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: enumerate candidates: %w", err)
	}

	cands := make([]candidate, 0, len(frames))
	for _, f := range frames {
		sig, err := e.frames.SignalsFor(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		imp := e.scorer.Score(sig.Tool, scoring.Signals{
			FilesAffected: sig.FilesAffected,
			IsPermanent:   sig.IsPermanent,
			RefCount:      sig.RefCount,
		}, cfg.Weights, cfg.ToolScores)
		cands = append(cands, candidate{
			frame:      f,
			keywords:   candidateKeywords(f),
			importance: imp,
			summary:    summarize(f),
		})
	}
	return cands, nil
}

// rank picks the scoring path and returns the ordered frames plus the
// audit fields describing the decision.
func (e *Engine) rank(ctx context.Context, query string, queryKws []string, cands []candidate, cfg Config) ([]RankedFrame, string, float64, string) {
	now := time.Now().UTC()
	heuristic := heuristicRank(cands, queryKws, now)

	// Audit-cache: an identical fresh query replays the previous
	// provider-backed decision without another provider call.
	if cached, err := e.audit.LatestFor(context.WithoutCancel(ctx), query, cfg.CacheWindow); err == nil && cached != nil {
		if replay, ok := e.replay(cached.FrameIDs, heuristic); ok {
			return replay, PathCached, cached.Confidence,
				fmt.Sprintf("replayed audit entry %s from %s", cached.ID, cached.CreatedAt.Format(time.RFC3339))
		}
	}

	if e.provider == nil {
		return heuristic, PathHeuristic, heuristicConfidence(heuristic), "no provider configured; ranked by keyword overlap, recency, and importance"
	}
	if err := ctx.Err(); err != nil {
		// Caller deadline already expired: skip the provider entirely.
		return heuristic, PathHeuristic, heuristicConfidence(heuristic), "caller deadline expired before provider call; heuristic fallback"
	}
	if len(cands) == 0 {
		return heuristic, PathHeuristic, 0, "no candidate frames"
	}

	pcands := make([]provider.Candidate, len(cands))
	for i, c := range cands {
		pcands[i] = provider.Candidate{ID: c.frame.ID, Summary: c.summary}
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
	defer cancel()
	res, err := e.provider.Rank(pctx, query, pcands)
	if err != nil {
		log.Printf("[retrieval] provider %s failed, falling back to heuristic: %v", e.provider.Name(), err)
		return heuristic, PathHeuristic, heuristicConfidence(heuristic),
			fmt.Sprintf("provider %s error: %v; heuristic fallback", e.provider.Name(), err)
	}
	if res.Confidence < cfg.ConfidenceThreshold {
		return heuristic, PathHeuristic, heuristicConfidence(heuristic),
			fmt.Sprintf("provider %s confidence %.2f below threshold %.2f; heuristic fallback",
				e.provider.Name(), res.Confidence, cfg.ConfidenceThreshold)
	}

	ordered := e.orderByProvider(res.RankedIDs, heuristic)
	reasoning := res.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("ranked by provider %s", e.provider.Name())
	}
	return ordered, PathExternal, res.Confidence, reasoning
}

// orderByProvider applies the provider's ordering; candidates the provider
// did not mention keep their heuristic order after the ranked ones.
func (e *Engine) orderByProvider(rankedIDs []string, heuristic []RankedFrame) []RankedFrame {
	byID := make(map[string]RankedFrame, len(heuristic))
	for _, r := range heuristic {
		byID[r.ID] = r
	}

	out := make([]RankedFrame, 0, len(heuristic))
	used := make(map[string]bool, len(rankedIDs))
	for i, id := range rankedIDs {
		r, ok := byID[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		r.RankScore = 1 - float64(i)/float64(len(rankedIDs))
		out = append(out, r)
	}
	for _, r := range heuristic {
		if !used[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// replay rebuilds a result list from a cached audit entry's frame IDs.
// Frames deleted since the entry was written are skipped; replay is
// rejected when none survive.
func (e *Engine) replay(frameIDs []string, heuristic []RankedFrame) ([]RankedFrame, bool) {
	if len(frameIDs) == 0 {
		return nil, false
	}
	byID := make(map[string]RankedFrame, len(heuristic))
	for _, r := range heuristic {
		byID[r.ID] = r
	}
	var out []RankedFrame
	for i, id := range frameIDs {
		r, ok := byID[id]
		if !ok {
			continue
		}
		r.RankScore = 1 - float64(i)/float64(len(frameIDs))
		out = append(out, r)
	}
	return out, len(out) > 0
}

// heuristicConfidence reports the top heuristic score as the decision
// confidence, 0 for an empty ranking.
func heuristicConfidence(ranked []RankedFrame) float64 {
	if len(ranked) == 0 {
		return 0
	}
	return ranked[0].RankScore
}

func (e *Engine) countTokens(s string) int {
	if e.tokenizer != nil {
		return e.tokenizer.Count(s)
	}
	// Rough fallback when no encoding is available offline.
	return len(s)/4 + 1
}
