package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stackmem/stackmem/internal/db"
)

// AuditStore persists retrieval audit entries. Entries are write-once and
// retained until explicit cleanup by age.
type AuditStore struct {
	db *db.DB
}

// NewAuditStore creates an AuditStore backed by the given DB.
func NewAuditStore(database *db.DB) *AuditStore {
	return &AuditStore{db: database}
}

// Insert writes one audit entry and returns its generated ID.
func (s *AuditStore) Insert(ctx context.Context, e AuditEntry) (string, error) {
	frameIDs := "[]"
	if len(e.FrameIDs) > 0 {
		b, _ := json.Marshal(e.FrameIDs)
		frameIDs = string(b)
	}

	var id string
	err := s.db.Conn().QueryRowContext(ctx, `
		INSERT INTO audit_log (id, created_at, query, provider, confidence, tokens_used, token_budget, analysis_time_ms, query_complexity, frames_retrieved, reasoning)
		VALUES (lower(hex(randomblob(16))), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		time.Now().UTC().Unix(), e.Query, e.Provider, e.Confidence,
		e.TokensUsed, e.TokenBudget, e.AnalysisTimeMS, e.Complexity,
		frameIDs, e.Reasoning,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("audit: insert: %w", err)
	}
	return id, nil
}

// List returns the most recent audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, created_at, query, provider, confidence, tokens_used, token_budget, analysis_time_ms, query_complexity, frames_retrieved, COALESCE(reasoning, '')
		FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestFor returns the newest entry for an identical query within the
// freshness window, or sql.ErrNoRows-wrapped absence as (nil, nil).
// Only provider-backed entries are cache sources: replaying a heuristic
// result would gain nothing over recomputing it.
func (s *AuditStore) LatestFor(ctx context.Context, query string, window time.Duration) (*AuditEntry, error) {
	if window <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().Add(-window).Unix()
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, created_at, query, provider, confidence, tokens_used, token_budget, analysis_time_ms, query_complexity, frames_retrieved, COALESCE(reasoning, '')
		FROM audit_log
		WHERE query = ? AND created_at >= ? AND provider IN ('external', 'cached')
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, query, cutoff)
	e, err := scanAudit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: latest for query: %w", err)
	}
	return &e, nil
}

// PruneOlderThan deletes entries older than the given number of days and
// returns the number removed.
func (s *AuditStore) PruneOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Unix()
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the total number of audit entries.
func (s *AuditStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}

func scanAudit(row interface{ Scan(...any) error }) (AuditEntry, error) {
	var e AuditEntry
	var createdAt int64
	var frameIDs string
	err := row.Scan(&e.ID, &createdAt, &e.Query, &e.Provider, &e.Confidence,
		&e.TokensUsed, &e.TokenBudget, &e.AnalysisTimeMS, &e.Complexity,
		&frameIDs, &e.Reasoning)
	if err != nil {
		return e, err
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	if frameIDs != "" && frameIDs != "[]" {
		_ = json.Unmarshal([]byte(frameIDs), &e.FrameIDs)
	}
	return e, nil
}
