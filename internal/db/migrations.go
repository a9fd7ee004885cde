package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	// Migration 0: frame stack
	`CREATE TABLE IF NOT EXISTS frames (
		id         TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
		parent_id  TEXT REFERENCES frames(id),
		name       TEXT NOT NULL,
		frame_type TEXT NOT NULL DEFAULT 'task',
		state      TEXT NOT NULL DEFAULT 'active',
		run_id     TEXT NOT NULL,
		inputs     TEXT NOT NULL DEFAULT '[]',
		outputs    TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		closed_at  INTEGER
	)`,

	`CREATE INDEX IF NOT EXISTS idx_frames_run    ON frames(run_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_frames_parent ON frames(parent_id)`,

	// Migration 1: tool invocation log (raw scoring signals)
	`CREATE TABLE IF NOT EXISTS tool_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		frame_id       TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
		tool           TEXT NOT NULL,
		files_affected INTEGER NOT NULL DEFAULT 0,
		is_permanent   INTEGER NOT NULL DEFAULT 0,
		ref_count      INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tool_events_frame ON tool_events(frame_id)`,

	// Migration 2: tier records and hot payloads
	`CREATE TABLE IF NOT EXISTS tier_records (
		trace_id        TEXT PRIMARY KEY,
		tier            TEXT NOT NULL DEFAULT 'hot',
		original_size   INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		score           REAL NOT NULL DEFAULT 0.5,
		access_count    INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		migrated_at     INTEGER,
		location        TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tier_records_tier ON tier_records(tier, created_at)`,

	`CREATE TABLE IF NOT EXISTS hot_payloads (
		key  TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,

	// Migration 3: retrieval audit log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id               TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
		created_at       INTEGER NOT NULL,
		query            TEXT NOT NULL,
		provider         TEXT NOT NULL,
		confidence       REAL NOT NULL DEFAULT 0,
		tokens_used      INTEGER NOT NULL DEFAULT 0,
		token_budget     INTEGER NOT NULL DEFAULT 0,
		analysis_time_ms INTEGER NOT NULL DEFAULT 0,
		query_complexity TEXT NOT NULL DEFAULT 'simple',
		frames_retrieved TEXT NOT NULL DEFAULT '[]',
		reasoning        TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_query   ON audit_log(query, created_at DESC)`,

	// Migration 4: advisory sweep locks (cross-process, survive restarts)
	`CREATE TABLE IF NOT EXISTS sweep_locks (
		sweep_type TEXT PRIMARY KEY,
		owner      TEXT NOT NULL,
		locked_at  INTEGER NOT NULL
	)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}
