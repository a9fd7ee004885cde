package frame

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stackmem/stackmem/internal/db"
)

// Store provides durable access to frames and tool events. Every mutation
// is committed before the call returns; nothing survives only in memory.
type Store struct {
	db *db.DB

	mu   sync.Mutex
	runs map[string]*sync.Mutex
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, runs: make(map[string]*sync.Mutex)}
}

// runLock returns the mutex serializing pushes within one run. Operations
// on different runs never contend with each other here.
func (s *Store) runLock(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.runs[runID]
	if !ok {
		m = &sync.Mutex{}
		s.runs[runID] = m
	}
	return m
}

// Push creates and activates a frame under parentID, or as a new root when
// parentID is empty. The parent must exist, be active, and belong to runID.
func (s *Store) Push(ctx context.Context, runID, parentID, name string, frameType FrameType) (Frame, error) {
	if frameType == "" {
		frameType = TypeTask
	}

	lock := s.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	if parentID != "" {
		parent, err := s.Get(ctx, parentID)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: parent %q does not exist", ErrInvalidParent, parentID)
		}
		if parent.State == StateClosed {
			return Frame{}, fmt.Errorf("%w: parent %q is closed", ErrInvalidParent, parentID)
		}
		if parent.RunID != runID {
			return Frame{}, fmt.Errorf("%w: parent %q belongs to run %q", ErrInvalidParent, parentID, parent.RunID)
		}
	}

	now := time.Now().UTC()
	var id string
	err := s.db.Conn().QueryRowContext(ctx, `
		INSERT INTO frames (id, parent_id, name, frame_type, state, run_id, created_at)
		VALUES (lower(hex(randomblob(16))), NULLIF(?, ''), ?, ?, 'active', ?, ?)
		RETURNING id`,
		parentID, name, string(frameType), runID, now.Unix(),
	).Scan(&id)
	if err != nil {
		return Frame{}, fmt.Errorf("store: push frame: %w", err)
	}

	return Frame{
		ID:        id,
		ParentID:  parentID,
		Name:      name,
		Type:      frameType,
		State:     StateActive,
		RunID:     runID,
		CreatedAt: now,
	}, nil
}

// Close transitions a frame to closed, recording the closure timestamp.
// Closing is bottom-up: a frame with active children cannot close.
func (s *Store) Close(ctx context.Context, id string) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if f.State == StateClosed {
		return fmt.Errorf("%w: frame %q", ErrAlreadyClosed, id)
	}

	var open int
	err = s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM frames WHERE parent_id = ? AND state = 'active'`, id,
	).Scan(&open)
	if err != nil {
		return fmt.Errorf("store: count open children: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: frame %q has %d active children", ErrChildrenOpen, id, open)
	}

	_, err = s.db.Conn().ExecContext(ctx,
		`UPDATE frames SET state = 'closed', closed_at = ? WHERE id = ? AND state = 'active'`,
		time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("store: close frame: %w", err)
	}
	return nil
}

// Get returns a single frame by ID.
func (s *Store) Get(ctx context.Context, id string) (Frame, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, COALESCE(parent_id, ''), name, frame_type, state, run_id, inputs, outputs, created_at, closed_at
		FROM frames WHERE id = ?`, id)
	f, err := scanFrame(row)
	if err == sql.ErrNoRows {
		return Frame{}, fmt.Errorf("%w: frame %q", ErrNotFound, id)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("store: get frame: %w", err)
	}
	return f, nil
}

// ActivePath returns the current nesting chain for a run, root first.
// The chain is computed by walking parent links up from the most recently
// pushed active frame; an empty slice means nothing is active.
func (s *Store) ActivePath(ctx context.Context, runID string) ([]Frame, error) {
	var leafID string
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT f.id FROM frames f
		WHERE f.run_id = ? AND f.state = 'active'
		  AND NOT EXISTS (SELECT 1 FROM frames c WHERE c.parent_id = f.id AND c.state = 'active')
		ORDER BY f.created_at DESC, f.rowid DESC
		LIMIT 1`, runID,
	).Scan(&leafID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active leaf: %w", err)
	}

	rows, err := s.db.Conn().QueryContext(ctx, `
		WITH RECURSIVE chain(id, parent_id, name, frame_type, state, run_id, inputs, outputs, created_at, closed_at, depth) AS (
			SELECT id, parent_id, name, frame_type, state, run_id, inputs, outputs, created_at, closed_at, 0
			FROM frames WHERE id = ?
			UNION ALL
			SELECT f.id, f.parent_id, f.name, f.frame_type, f.state, f.run_id, f.inputs, f.outputs, f.created_at, f.closed_at, chain.depth + 1
			FROM frames f JOIN chain ON f.id = chain.parent_id
			WHERE f.state = 'active'
		)
		SELECT id, COALESCE(parent_id, ''), name, frame_type, state, run_id, inputs, outputs, created_at, closed_at
		FROM chain ORDER BY depth DESC`, leafID)
	if err != nil {
		return nil, fmt.Errorf("store: active path: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var path []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		path = append(path, f)
	}
	return path, rows.Err()
}

// AppendInput appends a serialized input to an active frame.
func (s *Store) AppendInput(ctx context.Context, id, input string) error {
	return s.appendField(ctx, id, "inputs", input)
}

// AppendOutput appends a serialized output to an active frame.
func (s *Store) AppendOutput(ctx context.Context, id, output string) error {
	return s.appendField(ctx, id, "outputs", output)
}

func (s *Store) appendField(ctx context.Context, id, column, value string) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if f.State == StateClosed {
		return fmt.Errorf("%w: frame %q cannot be mutated", ErrAlreadyClosed, id)
	}

	var items []string
	if column == "inputs" {
		items = append(f.Inputs, value)
	} else {
		items = append(f.Outputs, value)
	}
	b, _ := json.Marshal(items)

	// column is one of two fixed identifiers, never caller input.
	_, err = s.db.Conn().ExecContext(ctx,
		fmt.Sprintf(`UPDATE frames SET %s = ? WHERE id = ?`, column), string(b), id,
	)
	if err != nil {
		return fmt.Errorf("store: append %s: %w", column, err)
	}
	return nil
}

// RecordToolEvent logs one tool invocation against a frame.
func (s *Store) RecordToolEvent(ctx context.Context, ev ToolEvent) error {
	if _, err := s.Get(ctx, ev.FrameID); err != nil {
		return err
	}
	permanent := 0
	if ev.IsPermanent {
		permanent = 1
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO tool_events (frame_id, tool, files_affected, is_permanent, ref_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.FrameID, ev.Tool, ev.FilesAffected, permanent, ev.RefCount, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: record tool event: %w", err)
	}
	return nil
}

// SignalsFor aggregates tool events for one frame into scoring signals:
// dominant tool, summed files affected, any-permanent, summed references.
func (s *Store) SignalsFor(ctx context.Context, frameID string) (Signals, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT tool, files_affected, is_permanent, ref_count
		FROM tool_events WHERE frame_id = ?`, frameID)
	if err != nil {
		return Signals{}, fmt.Errorf("store: signals for %q: %w", frameID, err)
	}
	defer func() { _ = rows.Close() }()

	var sig Signals
	toolCounts := make(map[string]int)
	for rows.Next() {
		var tool string
		var files, permanent, refs int
		if err := rows.Scan(&tool, &files, &permanent, &refs); err != nil {
			return Signals{}, err
		}
		toolCounts[tool]++
		sig.FilesAffected += files
		sig.RefCount += refs
		if permanent != 0 {
			sig.IsPermanent = true
		}
	}
	if err := rows.Err(); err != nil {
		return Signals{}, err
	}

	best := 0
	for tool, n := range toolCounts {
		if n > best || (n == best && tool < sig.Tool) {
			best = n
			sig.Tool = tool
		}
	}
	return sig, nil
}

// SubtreeSignals aggregates signals over a closed root frame and all of its
// descendants, for scoring an archive trace.
func (s *Store) SubtreeSignals(ctx context.Context, rootID string) (Signals, error) {
	frames, err := s.Subtree(ctx, rootID)
	if err != nil {
		return Signals{}, err
	}

	var out Signals
	toolCounts := make(map[string]int)
	for _, f := range frames {
		sig, err := s.SignalsFor(ctx, f.ID)
		if err != nil {
			return Signals{}, err
		}
		out.FilesAffected += sig.FilesAffected
		out.RefCount += sig.RefCount
		if sig.IsPermanent {
			out.IsPermanent = true
		}
		if sig.Tool != "" {
			toolCounts[sig.Tool]++
		}
	}

	best := 0
	for tool, n := range toolCounts {
		if n > best || (n == best && tool < out.Tool) {
			best = n
			out.Tool = tool
		}
	}
	return out, nil
}

// Subtree returns a frame and all of its descendants, parents before children.
func (s *Store) Subtree(ctx context.Context, rootID string) ([]Frame, error) {
	if _, err := s.Get(ctx, rootID); err != nil {
		return nil, err
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
		WITH RECURSIVE sub(id, parent_id, name, frame_type, state, run_id, inputs, outputs, created_at, closed_at, depth) AS (
			SELECT id, parent_id, name, frame_type, state, run_id, inputs, outputs, created_at, closed_at, 0
			FROM frames WHERE id = ?
			UNION ALL
			SELECT f.id, f.parent_id, f.name, f.frame_type, f.state, f.run_id, f.inputs, f.outputs, f.created_at, f.closed_at, sub.depth + 1
			FROM frames f JOIN sub ON f.parent_id = sub.id
		)
		SELECT id, COALESCE(parent_id, ''), name, frame_type, state, run_id, inputs, outputs, created_at, closed_at
		FROM sub ORDER BY depth, created_at`, rootID)
	if err != nil {
		return nil, fmt.Errorf("store: subtree: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// ClosedRoots returns closed root frames for a run (or all runs when runID
// is empty) that are candidates for archival.
func (s *Store) ClosedRoots(ctx context.Context, runID string) ([]Frame, error) {
	query := `
		SELECT id, COALESCE(parent_id, ''), name, frame_type, state, run_id, inputs, outputs, created_at, closed_at
		FROM frames
		WHERE parent_id IS NULL AND state = 'closed'`
	args := []any{}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY closed_at`

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: closed roots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// ListByRun returns every frame for a run, oldest first.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]Frame, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, COALESCE(parent_id, ''), name, frame_type, state, run_id, inputs, outputs, created_at, closed_at
		FROM frames WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list by run: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Recent returns the most recently created frames across all runs, newest
// first. Used by retrieval to enumerate candidates.
func (s *Store) Recent(ctx context.Context, limit int) ([]Frame, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, COALESCE(parent_id, ''), name, frame_type, state, run_id, inputs, outputs, created_at, closed_at
		FROM frames ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent frames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// DeleteSubtree removes an archived frame subtree. Tier cleanup calls this
// after a trace has aged out; normal operation never deletes frames.
func (s *Store) DeleteSubtree(ctx context.Context, rootID string) error {
	frames, err := s.Subtree(ctx, rootID)
	if err != nil {
		return err
	}
	// Children first: the parent_id reference has no cascade.
	for i := len(frames) - 1; i >= 0; i-- {
		if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM frames WHERE id = ?`, frames[i].ID); err != nil {
			return fmt.Errorf("store: delete frame %q: %w", frames[i].ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(row rowScanner) (Frame, error) {
	var f Frame
	var frameType, state, inputs, outputs string
	var createdAt int64
	var closedAt sql.NullInt64
	err := row.Scan(&f.ID, &f.ParentID, &f.Name, &frameType, &state, &f.RunID, &inputs, &outputs, &createdAt, &closedAt)
	if err != nil {
		return f, err
	}
	f.Type = FrameType(frameType)
	f.State = State(state)
	f.CreatedAt = time.Unix(createdAt, 0).UTC()
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0).UTC()
		f.ClosedAt = &t
	}
	if inputs != "" && inputs != "[]" {
		_ = json.Unmarshal([]byte(inputs), &f.Inputs)
	}
	if outputs != "" && outputs != "[]" {
		_ = json.Unmarshal([]byte(outputs), &f.Outputs)
	}
	return f, nil
}
