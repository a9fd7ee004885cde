package retrieval

import (
	"sort"
	"strings"
	"time"

	"github.com/stackmem/stackmem/internal/frame"
)

// candidate pairs a frame with everything the ranking paths need.
type candidate struct {
	frame      frame.Frame
	keywords   map[string]bool
	importance float64 // recomputed score, not a stored value
	summary    string
}

// summarize builds the one-line description shown to providers and counted
// against the token budget.
func summarize(f frame.Frame) string {
	parts := []string{string(f.Type) + " " + f.Name}
	if len(f.Inputs) > 0 {
		parts = append(parts, "inputs: "+strings.Join(f.Inputs, "; "))
	}
	if len(f.Outputs) > 0 {
		parts = append(parts, "outputs: "+strings.Join(f.Outputs, "; "))
	}
	s := strings.Join(parts, " | ")
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

// candidateKeywords indexes a frame's searchable text.
func candidateKeywords(f frame.Frame) map[string]bool {
	text := f.Name + " " + strings.Join(f.Inputs, " ") + " " + strings.Join(f.Outputs, " ")
	kws := make(map[string]bool)
	for _, k := range keywords(text) {
		kws[k] = true
	}
	return kws
}

// recency maps a frame age onto [0,1] with a 7-day linear falloff.
func recency(f frame.Frame, now time.Time) float64 {
	age := now.Sub(f.CreatedAt)
	const window = 7 * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	if age >= window {
		return 0
	}
	return 1 - float64(age)/float64(window)
}

// heuristicRank is the deterministic fallback ranking:
// 0.4*keyword overlap + 0.3*recency + 0.3*importance. Ties break on
// creation time (newest first) then ID, so the order is stable.
func heuristicRank(cands []candidate, queryKws []string, now time.Time) []RankedFrame {
	ranked := make([]RankedFrame, 0, len(cands))
	for _, c := range cands {
		score := 0.4*overlap(queryKws, c.keywords) +
			0.3*recency(c.frame, now) +
			0.3*c.importance
		ranked = append(ranked, RankedFrame{Frame: c.frame, RankScore: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].RankScore != ranked[j].RankScore {
			return ranked[i].RankScore > ranked[j].RankScore
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
