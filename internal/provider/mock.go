package provider

import "context"

// Mock is a deterministic in-process provider for tests and offline use.
// It returns the candidates in the order given with a fixed confidence,
// or a scripted result/error when one is set.
type Mock struct {
	Confidence float64
	Err        error
	Fixed      *Result
	Calls      int
}

// NewMock creates a Mock with confidence 0.9.
func NewMock() *Mock {
	return &Mock{Confidence: 0.9}
}

func (m *Mock) Name() string { return NameMock }

func (m *Mock) Rank(ctx context.Context, query string, candidates []Candidate) (Result, error) {
	m.Calls++
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	if m.Fixed != nil {
		return *m.Fixed, nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return Result{Confidence: m.Confidence, RankedIDs: ids, Reasoning: "mock ranking"}, nil
}
