// Package scoring converts raw work signals into a normalized importance
// score. The engine is a pure function of its arguments: no I/O, no state.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

// DefaultToolBase is used when a tool has no entry in the score table.
const DefaultToolBase = 0.5

// ErrInvalidWeights is returned when a weight tuple cannot be normalized.
var ErrInvalidWeights = errors.New("scoring: weights cannot be normalized")

// Weights are the four scoring weights. After Normalize they sum to 1.0.
type Weights struct {
	Base        float64 `toml:"base" json:"base"`
	Impact      float64 `toml:"impact" json:"impact"`
	Persistence float64 `toml:"persistence" json:"persistence"`
	Reference   float64 `toml:"reference" json:"reference"`
}

// DefaultWeights returns the standard profile.
func DefaultWeights() Weights {
	return Weights{Base: 0.4, Impact: 0.3, Persistence: 0.2, Reference: 0.1}
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Base + w.Impact + w.Persistence + w.Reference
}

// Normalize rescales the weights proportionally so they sum to 1.0.
// Profile edits that drift off 1.0 are repaired rather than rejected;
// only a tuple that sums to zero or less (or carries a negative weight)
// is invalid, and that is caught at configuration-load time.
func (w Weights) Normalize() (Weights, error) {
	if w.Base < 0 || w.Impact < 0 || w.Persistence < 0 || w.Reference < 0 {
		return Weights{}, fmt.Errorf("%w: negative weight", ErrInvalidWeights)
	}
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, fmt.Errorf("%w: sum is %v", ErrInvalidWeights, sum)
	}
	return Weights{
		Base:        w.Base / sum,
		Impact:      w.Impact / sum,
		Persistence: w.Persistence / sum,
		Reference:   w.Reference / sum,
	}, nil
}

// ToolScores maps a tool name to its base importance in [0,1].
type ToolScores map[string]float64

// Base returns the base score for a tool, defaulting when absent.
func (t ToolScores) Base(tool string) float64 {
	if v, ok := t[tool]; ok {
		return clamp01(v)
	}
	return DefaultToolBase
}

// Signals are the raw inputs to one score computation. Zero values
// contribute nothing to their term.
type Signals struct {
	FilesAffected int
	IsPermanent   bool
	RefCount      int
}

// Engine computes scores. Saturation points control how quickly the impact
// and reference terms reach 1.0.
type Engine struct {
	ImpactSaturation    int
	ReferenceSaturation int
}

// NewEngine creates an Engine with the given saturation points; zero or
// negative values fall back to the defaults (10 files, 5 references).
func NewEngine(impactSaturation, referenceSaturation int) *Engine {
	if impactSaturation <= 0 {
		impactSaturation = 10
	}
	if referenceSaturation <= 0 {
		referenceSaturation = 5
	}
	return &Engine{ImpactSaturation: impactSaturation, ReferenceSaturation: referenceSaturation}
}

// Score computes the importance of one unit of work:
//
//	base*toolBase + impact*min(1, files/N) + persistence*(0|1) + reference*min(1, refs/M)
//
// Weights must be pre-normalized. The result is clamped to [0,1] regardless
// of signal magnitude.
func (e *Engine) Score(tool string, sig Signals, w Weights, table ToolScores) float64 {
	impact := saturate(sig.FilesAffected, e.ImpactSaturation)
	reference := saturate(sig.RefCount, e.ReferenceSaturation)
	persistence := 0.0
	if sig.IsPermanent {
		persistence = 1.0
	}

	score := w.Base*table.Base(tool) +
		w.Impact*impact +
		w.Persistence*persistence +
		w.Reference*reference
	return clamp01(score)
}

func saturate(n, at int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(1, float64(n)/float64(at))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
