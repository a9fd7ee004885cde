package scoring

import (
	"math"
	"testing"
)

func TestWeights_Normalize_PreservesRatios(t *testing.T) {
	w := Weights{Base: 2, Impact: 1, Persistence: 1, Reference: 0}
	n, err := w.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if math.Abs(n.Sum()-1.0) > 0.001 {
		t.Errorf("sum: got %v, want 1.0", n.Sum())
	}
	if math.Abs(n.Base-0.5) > 1e-9 || math.Abs(n.Impact-0.25) > 1e-9 {
		t.Errorf("ratios not preserved: %+v", n)
	}
}

func TestWeights_Normalize_AlreadyNormalized(t *testing.T) {
	n, err := DefaultWeights().Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if math.Abs(n.Sum()-1.0) > 0.001 {
		t.Errorf("sum: got %v", n.Sum())
	}
}

func TestWeights_Normalize_Invalid(t *testing.T) {
	cases := []struct {
		name string
		w    Weights
	}{
		{"all zero", Weights{}},
		{"negative", Weights{Base: -0.5, Impact: 1, Persistence: 0.3, Reference: 0.2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.w.Normalize(); err == nil {
				t.Errorf("expected error for %+v", tc.w)
			}
		})
	}
}

func TestEngine_Score_WorkedExample(t *testing.T) {
	// edit with base 0.8, 5 files at saturation 10, permanent, no refs:
	// 0.4*0.8 + 0.3*0.5 + 0.2*1 + 0.1*0 = 0.67
	e := NewEngine(10, 5)
	w := Weights{Base: 0.4, Impact: 0.3, Persistence: 0.2, Reference: 0.1}
	table := ToolScores{"edit": 0.8}

	got := e.Score("edit", Signals{FilesAffected: 5, IsPermanent: true, RefCount: 0}, w, table)
	if math.Abs(got-0.67) > 1e-9 {
		t.Errorf("score: got %v, want 0.67", got)
	}
}

func TestEngine_Score_DefaultToolBase(t *testing.T) {
	e := NewEngine(10, 5)
	w := Weights{Base: 1, Impact: 0, Persistence: 0, Reference: 0}

	got := e.Score("unknown-tool", Signals{}, w, ToolScores{})
	if got != DefaultToolBase {
		t.Errorf("got %v, want %v", got, DefaultToolBase)
	}
}

func TestEngine_Score_Saturation(t *testing.T) {
	e := NewEngine(10, 5)
	w := Weights{Impact: 1}

	if got := e.Score("edit", Signals{FilesAffected: 1000}, w, nil); got != 1 {
		t.Errorf("impact should saturate at 1, got %v", got)
	}
	if got := e.Score("edit", Signals{FilesAffected: 5}, w, nil); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("impact at half saturation: got %v, want 0.5", got)
	}
}

func TestEngine_Score_Clamped(t *testing.T) {
	e := NewEngine(10, 5)
	// Pathological weights that sum past 1.0 still clamp to [0,1].
	w := Weights{Base: 5, Impact: 5, Persistence: 5, Reference: 5}
	sig := Signals{FilesAffected: 100, IsPermanent: true, RefCount: 100}

	got := e.Score("edit", sig, w, ToolScores{"edit": 1})
	if got < 0 || got > 1 {
		t.Errorf("score out of range: %v", got)
	}
}

func TestEngine_Score_MissingSignals(t *testing.T) {
	e := NewEngine(10, 5)
	w := Weights{Base: 0.4, Impact: 0.3, Persistence: 0.2, Reference: 0.1}

	// Zero signals contribute nothing beyond the tool base term.
	got := e.Score("read", Signals{}, w, ToolScores{"read": 0.5})
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("got %v, want 0.2", got)
	}
}

func TestToolScores_Base_ClampsTableValues(t *testing.T) {
	table := ToolScores{"weird": 3.5}
	if got := table.Base("weird"); got != 1 {
		t.Errorf("got %v, want clamp to 1", got)
	}
}
