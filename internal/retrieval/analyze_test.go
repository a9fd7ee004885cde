package retrieval

import (
	"reflect"
	"testing"
	"time"

	"github.com/stackmem/stackmem/internal/frame"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"stopwords dropped", "what is the auth bug", []string{"auth", "bug"}},
		{"lowercased and deduped", "Auth AUTH auth", []string{"auth"}},
		{"punctuation splits", "fix(auth): token-refresh", []string{"auth", "fix", "refresh", "token"}},
		{"short terms dropped", "a b fix", []string{"fix"}},
		{"underscores kept", "run_id lookup", []string{"lookup", "run_id"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keywords(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("keywords(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestComplexity(t *testing.T) {
	tests := []struct {
		kws   int
		depth int
		want  string
	}{
		{1, 0, ComplexitySimple},
		{3, 0, ComplexitySimple},
		{2, 2, ComplexityModerate},
		{8, 0, ComplexityModerate},
		{6, 3, ComplexityComplex},
	}
	for _, tt := range tests {
		kws := make([]string, tt.kws)
		if got := complexity(kws, tt.depth); got != tt.want {
			t.Errorf("complexity(%d kws, depth %d) = %q, want %q", tt.kws, tt.depth, got, tt.want)
		}
	}
}

func TestOverlap(t *testing.T) {
	cand := map[string]bool{"auth": true, "token": true, "refresh": true}

	if got := overlap([]string{"auth", "token"}, cand); got != 1.0 {
		t.Errorf("full overlap = %v, want 1", got)
	}
	if got := overlap([]string{"auth", "database"}, cand); got != 0.5 {
		t.Errorf("half overlap = %v, want 0.5", got)
	}
	if got := overlap([]string{"database"}, cand); got != 0 {
		t.Errorf("no overlap = %v, want 0", got)
	}
	if got := overlap(nil, cand); got != 0 {
		t.Errorf("empty query = %v, want 0", got)
	}
}

func TestRecency(t *testing.T) {
	now := time.Now().UTC()

	fresh := frame.Frame{CreatedAt: now}
	if got := recency(fresh, now); got != 1 {
		t.Errorf("fresh = %v, want 1", got)
	}

	old := frame.Frame{CreatedAt: now.Add(-8 * 24 * time.Hour)}
	if got := recency(old, now); got != 0 {
		t.Errorf("older than window = %v, want 0", got)
	}

	half := frame.Frame{CreatedAt: now.Add(-3*24*time.Hour - 12*time.Hour)}
	got := recency(half, now)
	if got < 0.49 || got > 0.51 {
		t.Errorf("half window = %v, want ~0.5", got)
	}
}

func TestHeuristicRank_Ordering(t *testing.T) {
	now := time.Now().UTC()
	cands := []candidate{
		{
			frame:    frame.Frame{ID: "stale-match", CreatedAt: now.Add(-8 * 24 * time.Hour)},
			keywords: map[string]bool{"auth": true},
		},
		{
			frame:    frame.Frame{ID: "fresh-miss", CreatedAt: now},
			keywords: map[string]bool{"docs": true},
		},
		{
			frame:    frame.Frame{ID: "fresh-match", CreatedAt: now},
			keywords: map[string]bool{"auth": true},
		},
	}

	ranked := heuristicRank(cands, []string{"auth"}, now)
	if ranked[0].ID != "fresh-match" {
		t.Errorf("first: got %q, want fresh-match", ranked[0].ID)
	}
	// Overlap (0.4) outweighs recency (0.3): a stale match beats a fresh miss.
	if ranked[1].ID != "stale-match" {
		t.Errorf("second: got %q, want stale-match", ranked[1].ID)
	}
}

func TestSummarize(t *testing.T) {
	f := frame.Frame{
		Type:    frame.TypeTask,
		Name:    "fix auth",
		Inputs:  []string{"token expires"},
		Outputs: []string{"rotated keys"},
	}
	got := summarize(f)
	want := "task fix auth | inputs: token expires | outputs: rotated keys"
	if got != want {
		t.Errorf("summarize = %q, want %q", got, want)
	}

	long := frame.Frame{Type: frame.TypeTask, Name: string(make([]byte, 600))}
	if n := len(summarize(long)); n != 500 {
		t.Errorf("summary length = %d, want capped at 500", n)
	}
}
