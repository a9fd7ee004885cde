// Package provider wraps external relevance-ranking services behind a
// narrow interface. A provider is always optional: retrieval falls back to
// its local heuristic whenever no provider is configured or a call fails.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider name constants.
const (
	NameClaude = "claude"
	NameOpenAI = "openai"
	NameMock   = "mock"
)

// Candidate is one frame offered to the provider for ranking.
type Candidate struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Result is a provider's ranking of the candidates.
type Result struct {
	Confidence float64  `json:"confidence"` // 0-1
	RankedIDs  []string `json:"ranked_ids"` // most relevant first
	Reasoning  string   `json:"reasoning"`
}

// Provider ranks candidates for a query. Implementations must respect ctx
// cancellation; the caller bounds every call with a timeout.
type Provider interface {
	// Rank returns a confidence-scored ordering of the candidates.
	Rank(ctx context.Context, query string, candidates []Candidate) (Result, error)

	// Name identifies the provider in audit entries and logs.
	Name() string
}

// New constructs the Provider for the named backend. An empty name means
// no provider is configured and retrieval runs heuristic-only.
func New(name, apiKey string) (Provider, error) {
	switch name {
	case "":
		return nil, nil
	case NameClaude:
		return NewClaude(apiKey), nil
	case NameOpenAI:
		return NewOpenAI(apiKey), nil
	case NameMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("provider: unknown provider %q; valid providers: claude, openai, mock", name)
	}
}

// rankPrompt builds the shared instruction both LLM providers send.
func rankPrompt(query string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("You rank units of recorded work by relevance to a query.\n")
	b.WriteString("Respond with JSON only: {\"confidence\": 0.0-1.0, \"ranked_ids\": [...], \"reasoning\": \"...\"}\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s: %s\n", c.ID, c.Summary)
	}
	return b.String()
}

// parseResult extracts the JSON result from an LLM response, tolerating
// markdown code fences around the object.
func parseResult(text string) (Result, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i >= 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			text = text[i : j+1]
		}
	}
	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return Result{}, fmt.Errorf("provider: parse response: %w", err)
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	return res, nil
}
