// Package archive turns closed frame subtrees into scored, tier-managed
// traces: the hand-off point between the frame stack and tiered storage.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/scoring"
	"github.com/stackmem/stackmem/internal/tier"
)

// Trace is the serialized archive payload for one closed root frame.
type Trace struct {
	TraceID    string        `json:"trace_id"`
	RunID      string        `json:"run_id"`
	ArchivedAt time.Time     `json:"archived_at"`
	Frames     []frame.Frame `json:"frames"`
	Signals    frame.Signals `json:"signals"`
	Score      float64       `json:"score"`
}

// Archiver packages closed work and places it in the hot tier.
type Archiver struct {
	frames  *frame.Store
	scorer  *scoring.Engine
	manager *tier.Manager
}

// NewArchiver creates an Archiver.
func NewArchiver(frames *frame.Store, scorer *scoring.Engine, manager *tier.Manager) *Archiver {
	return &Archiver{frames: frames, scorer: scorer, manager: manager}
}

// Result summarises one archive pass.
type Result struct {
	Archived int      `json:"archived"`
	Skipped  int      `json:"skipped"` // already archived
	Errors   []string `json:"errors,omitempty"`
}

// Run archives every closed root frame for a run (all runs when runID is
// empty) that does not yet have a tier record. The trace ID is the root
// frame's ID, so the pass is idempotent. Per-root failures are collected;
// the pass never aborts.
func (a *Archiver) Run(ctx context.Context, runID string, weights scoring.Weights, table scoring.ToolScores) (Result, error) {
	roots, err := a.frames.ClosedRoots(ctx, runID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, root := range roots {
		if _, err := a.manager.Get(ctx, root.ID); err == nil {
			res.Skipped++
			continue
		} else if !errors.Is(err, tier.ErrNotFound) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", root.ID, err))
			continue
		}

		if err := a.archiveRoot(ctx, root, weights, table); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", root.ID, err))
			continue
		}
		res.Archived++
	}
	return res, nil
}

func (a *Archiver) archiveRoot(ctx context.Context, root frame.Frame, weights scoring.Weights, table scoring.ToolScores) error {
	frames, err := a.frames.Subtree(ctx, root.ID)
	if err != nil {
		return err
	}
	sig, err := a.frames.SubtreeSignals(ctx, root.ID)
	if err != nil {
		return err
	}

	score := a.scorer.Score(sig.Tool, scoring.Signals{
		FilesAffected: sig.FilesAffected,
		IsPermanent:   sig.IsPermanent,
		RefCount:      sig.RefCount,
	}, weights, table)

	payload, err := json.Marshal(Trace{
		TraceID:    root.ID,
		RunID:      root.RunID,
		ArchivedAt: time.Now().UTC(),
		Frames:     frames,
		Signals:    sig,
		Score:      score,
	})
	if err != nil {
		return fmt.Errorf("archive: marshal trace: %w", err)
	}

	if _, err := a.manager.Place(ctx, root.ID, payload, score); err != nil {
		return err
	}
	log.Printf("[archive] placed trace %s (%d frames, score %.2f)", root.ID, len(frames), score)
	return nil
}

// Rescore recomputes the score snapshot for an archived trace from its
// current signals. Cached tier scores are snapshots; this is the
// recompute path when a tiering decision needs fresh numbers.
func (a *Archiver) Rescore(ctx context.Context, traceID string, weights scoring.Weights, table scoring.ToolScores) (float64, error) {
	sig, err := a.frames.SubtreeSignals(ctx, traceID)
	if err != nil {
		return 0, err
	}
	score := a.scorer.Score(sig.Tool, scoring.Signals{
		FilesAffected: sig.FilesAffected,
		IsPermanent:   sig.IsPermanent,
		RefCount:      sig.RefCount,
	}, weights, table)
	if err := a.manager.UpdateScore(ctx, traceID, score); err != nil {
		return 0, err
	}
	return score, nil
}
