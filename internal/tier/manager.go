package tier

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stackmem/stackmem/internal/db"
)

// Manager places, migrates, promotes, and evicts trace payloads across the
// three tiers. All tier-record state lives in SQLite: a transition commits
// there before the source payload is removed, so a crash mid-migration
// leaves the pointer at the pre-migration tier and the sweep retries.
type Manager struct {
	db       *db.DB
	backends map[Tier]Backend
}

// NewManager creates a Manager over the three backends.
func NewManager(database *db.DB, hot, warm, cold Backend) *Manager {
	return &Manager{
		db: database,
		backends: map[Tier]Backend{
			Hot:  hot,
			Warm: warm,
			Cold: cold,
		},
	}
}

// NewDefaultManager wires the standard backends: SQLite BLOBs for hot,
// gzip files under tierDir/{warm,cold} for the lower tiers.
func NewDefaultManager(database *db.DB, tierDir string) *Manager {
	return NewManager(database,
		NewSQLiteBackend(database),
		NewFSBackend("warm", tierDir+string(os.PathSeparator)+"warm"),
		NewFSBackend("cold", tierDir+string(os.PathSeparator)+"cold"),
	)
}

// Place inserts a new trace. New data is always hot and stored uncompressed
// for read latency; the compressed size is recorded up front so stats and
// later migrations know what the payload gzips down to.
func (m *Manager) Place(ctx context.Context, traceID string, payload []byte, score float64) (Record, error) {
	compressed, err := compress(payload)
	if err != nil {
		return Record{}, err
	}

	if err := m.backends[Hot].Put(traceID, payload); err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	_, err = m.db.Conn().ExecContext(ctx, `
		INSERT INTO tier_records (trace_id, tier, original_size, compressed_size, score, access_count, created_at, location)
		VALUES (?, 'hot', ?, ?, ?, 0, ?, ?)
		ON CONFLICT(trace_id) DO UPDATE SET
		    original_size   = excluded.original_size,
		    compressed_size = excluded.compressed_size,
		    score           = excluded.score`,
		traceID, len(payload), len(compressed), score, now.Unix(), "hot:"+traceID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("tier: place %q: %w", traceID, err)
	}

	return Record{
		TraceID:        traceID,
		Tier:           Hot,
		OriginalSize:   int64(len(payload)),
		CompressedSize: int64(len(compressed)),
		Score:          score,
		CreatedAt:      now,
		Location:       "hot:" + traceID,
	}, nil
}

// Get returns the tier record for a trace.
func (m *Manager) Get(ctx context.Context, traceID string) (Record, error) {
	row := m.db.Conn().QueryRowContext(ctx, `
		SELECT trace_id, tier, original_size, compressed_size, score, access_count, created_at, migrated_at, location
		FROM tier_records WHERE trace_id = ?`, traceID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, traceID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("tier: get record %q: %w", traceID, err)
	}
	return rec, nil
}

// Retrieve fetches a trace from whichever tier holds it, bumps its access
// count, and promotes warm/cold entries back to hot: a retrieved trace is,
// by definition, currently relevant.
func (m *Manager) Retrieve(ctx context.Context, traceID string) (Trace, error) {
	rec, err := m.Get(ctx, traceID)
	if err != nil {
		return Trace{}, err
	}

	raw, err := m.backends[rec.Tier].Get(traceID)
	if err != nil {
		return Trace{}, err
	}

	payload := raw
	if rec.Tier != Hot {
		payload, err = decompress(raw)
		if err != nil {
			return Trace{}, err
		}
	}

	if _, err := m.db.Conn().ExecContext(ctx,
		`UPDATE tier_records SET access_count = access_count + 1 WHERE trace_id = ?`, traceID,
	); err != nil {
		return Trace{}, fmt.Errorf("tier: bump access %q: %w", traceID, err)
	}
	rec.AccessCount++

	if rec.Tier != Hot {
		if err := m.move(ctx, &rec, Hot, payload); err != nil {
			// Promotion is best-effort; the read itself already succeeded.
			log.Printf("[tier] promote %s from %s failed: %v", traceID, rec.Tier, err)
		}
	}

	return Trace{Record: rec, Payload: payload}, nil
}

// Migrate runs one sweep pass: age rule first (hot past HotMaxAge to warm,
// warm past WarmMaxAge to cold), then the low-score rule (one tier down),
// never more than one tier per trace per pass. Per-entry failures are
// collected and retried on the next sweep; the pass never aborts.
//
// A cross-process advisory lock keyed by sweep type makes concurrent
// invocations no-ops.
func (m *Manager) Migrate(ctx context.Context, cfg Config) (MigrateResult, error) {
	if !m.acquireLock(ctx, "migrate", cfg.LockStale) {
		return MigrateResult{Skipped: true}, nil
	}
	defer m.releaseLock("migrate")

	var res MigrateResult
	now := time.Now().UTC()

	// Warm to cold first, so entries demoted from hot in this pass are not
	// picked up again below.
	warmRecs, err := m.listTier(ctx, Warm)
	if err != nil {
		return res, err
	}
	for _, rec := range warmRecs {
		if now.Sub(rec.CreatedAt) < cfg.WarmMaxAge && rec.Score >= cfg.LowScoreThreshold {
			continue
		}
		if err := m.demote(ctx, rec, Cold); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.TraceID, err))
			continue
		}
		res.WarmToCold++
	}

	hotRecs, err := m.listTier(ctx, Hot)
	if err != nil {
		return res, err
	}
	for _, rec := range hotRecs {
		if now.Sub(rec.CreatedAt) < cfg.HotMaxAge && rec.Score >= cfg.LowScoreThreshold {
			continue
		}
		if err := m.demote(ctx, rec, Warm); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.TraceID, err))
			continue
		}
		res.HotToWarm++
	}

	return res, nil
}

// demote moves one record a single tier down, compressing on the way out
// of hot.
func (m *Manager) demote(ctx context.Context, rec Record, to Tier) error {
	raw, err := m.backends[rec.Tier].Get(rec.TraceID)
	if err != nil {
		return err
	}
	data := raw
	if rec.Tier == Hot {
		data, err = compress(raw)
		if err != nil {
			return err
		}
	}
	return m.moveData(ctx, &rec, to, data)
}

// move relocates a record, handling compression for the destination tier.
// payload is the uncompressed trace content.
func (m *Manager) move(ctx context.Context, rec *Record, to Tier, payload []byte) error {
	data := payload
	if to != Hot {
		var err error
		data, err = compress(payload)
		if err != nil {
			return err
		}
	}
	return m.moveData(ctx, rec, to, data)
}

// moveData is the copy-then-flip-pointer-then-delete-source primitive every
// transition goes through. The tier_records row is the source of truth: it
// flips only after the destination write succeeds, and the source payload
// is removed only after the flip commits. A retrieval racing this sees
// either the old tier or the new one, never neither.
func (m *Manager) moveData(ctx context.Context, rec *Record, to Tier, data []byte) error {
	from := rec.Tier

	if err := m.backends[to].Put(rec.TraceID, data); err != nil {
		return err
	}

	now := time.Now().UTC()
	location := string(to) + ":" + rec.TraceID
	compressedSize := rec.CompressedSize
	if to != Hot {
		compressedSize = int64(len(data))
	}
	_, err := m.db.Conn().ExecContext(ctx, `
		UPDATE tier_records
		SET tier = ?, migrated_at = ?, location = ?, compressed_size = ?
		WHERE trace_id = ? AND tier = ?`,
		string(to), now.Unix(), location, compressedSize, rec.TraceID, string(from),
	)
	if err != nil {
		return fmt.Errorf("tier: flip %q %s->%s: %w", rec.TraceID, from, to, err)
	}

	if err := m.backends[from].Delete(rec.TraceID); err != nil {
		// The pointer already flipped; a leftover source payload is garbage,
		// not an inconsistency.
		log.Printf("[tier] delete source %s:%s failed: %v", from, rec.TraceID, err)
	}

	rec.Tier = to
	rec.MigratedAt = &now
	rec.Location = location
	rec.CompressedSize = compressedSize
	return nil
}

// Cleanup permanently deletes cold entries older than maxAgeDays that have
// never been accessed, returning the trace IDs removed so the caller can
// drop the source frames too. Any trace with a single access is retained
// forever.
func (m *Manager) Cleanup(ctx context.Context, maxAgeDays int, cfg Config) ([]string, error) {
	if !m.acquireLock(ctx, "cleanup", cfg.LockStale) {
		return nil, nil
	}
	defer m.releaseLock("cleanup")

	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays).Unix()
	rows, err := m.db.Conn().QueryContext(ctx, `
		SELECT trace_id FROM tier_records
		WHERE tier = 'cold' AND access_count = 0 AND created_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("tier: cleanup query: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var deleted []string
	for _, id := range candidates {
		if err := m.backends[Cold].Delete(id); err != nil {
			log.Printf("[tier] cleanup delete payload %s: %v", id, err)
			continue
		}
		if _, err := m.db.Conn().ExecContext(ctx, `DELETE FROM tier_records WHERE trace_id = ?`, id); err != nil {
			log.Printf("[tier] cleanup delete record %s: %v", id, err)
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// Stats aggregates counts, sizes, compression ratios, and advisory cost per
// tier, plus age-bucket counts for capacity reporting.
func (m *Manager) Stats(ctx context.Context, cfg Config) (Stats, error) {
	stats := Stats{
		ByTier: make(map[Tier]TierStats),
		ByAge:  map[string]int{"<1d": 0, "1d-7d": 0, "7d-30d": 0, ">30d": 0},
	}

	rows, err := m.db.Conn().QueryContext(ctx, `
		SELECT tier, COUNT(*), COALESCE(SUM(original_size), 0), COALESCE(SUM(compressed_size), 0)
		FROM tier_records GROUP BY tier`)
	if err != nil {
		return stats, fmt.Errorf("tier: stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rates := map[Tier]float64{Hot: cfg.HotCostPerGB, Warm: cfg.WarmCostPerGB, Cold: cfg.ColdCostPerGB}
	for rows.Next() {
		var t string
		var ts TierStats
		if err := rows.Scan(&t, &ts.Count, &ts.OriginalSize, &ts.CompressedSize); err != nil {
			return stats, err
		}
		if ts.OriginalSize > 0 {
			ts.CompressionRatio = 1 - float64(ts.CompressedSize)/float64(ts.OriginalSize)
		}
		// Hot stores raw bytes; warm/cold store the compressed form.
		stored := ts.CompressedSize
		if Tier(t) == Hot {
			stored = ts.OriginalSize
		}
		ts.MonthlyCostUSD = float64(stored) / (1 << 30) * rates[Tier(t)]
		stats.ByTier[Tier(t)] = ts
		stats.TotalSize += ts.OriginalSize
		stats.CompressedSize += ts.CompressedSize
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	ageRows, err := m.db.Conn().QueryContext(ctx, `SELECT created_at FROM tier_records`)
	if err != nil {
		return stats, fmt.Errorf("tier: stats ages: %w", err)
	}
	defer func() { _ = ageRows.Close() }()

	now := time.Now().UTC()
	for ageRows.Next() {
		var created int64
		if err := ageRows.Scan(&created); err != nil {
			return stats, err
		}
		age := now.Sub(time.Unix(created, 0))
		switch {
		case age < 24*time.Hour:
			stats.ByAge["<1d"]++
		case age < 7*24*time.Hour:
			stats.ByAge["1d-7d"]++
		case age < 30*24*time.Hour:
			stats.ByAge["7d-30d"]++
		default:
			stats.ByAge[">30d"]++
		}
	}
	return stats, ageRows.Err()
}

// UpdateScore refreshes the cached score snapshot on a tier record.
func (m *Manager) UpdateScore(ctx context.Context, traceID string, score float64) error {
	res, err := m.db.Conn().ExecContext(ctx,
		`UPDATE tier_records SET score = ? WHERE trace_id = ?`, score, traceID)
	if err != nil {
		return fmt.Errorf("tier: update score %q: %w", traceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, traceID)
	}
	return nil
}

// listTier snapshots the records currently in one tier, oldest first.
func (m *Manager) listTier(ctx context.Context, t Tier) ([]Record, error) {
	rows, err := m.db.Conn().QueryContext(ctx, `
		SELECT trace_id, tier, original_size, compressed_size, score, access_count, created_at, migrated_at, location
		FROM tier_records WHERE tier = ? ORDER BY created_at`, string(t))
	if err != nil {
		return nil, fmt.Errorf("tier: list %s: %w", t, err)
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// acquireLock takes the advisory lock for a sweep type. The lock is a row
// in SQLite, so it survives process restarts and is visible to every
// worker sharing the database. Locks older than stale are taken over.
func (m *Manager) acquireLock(ctx context.Context, sweepType string, stale time.Duration) bool {
	if stale <= 0 {
		stale = time.Hour
	}
	now := time.Now().UTC()
	owner := fmt.Sprintf("pid-%d", os.Getpid())

	res, err := m.db.Conn().ExecContext(ctx, `
		INSERT INTO sweep_locks (sweep_type, owner, locked_at) VALUES (?, ?, ?)
		ON CONFLICT(sweep_type) DO UPDATE SET owner = excluded.owner, locked_at = excluded.locked_at
		WHERE sweep_locks.locked_at < ?`,
		sweepType, owner, now.Unix(), now.Add(-stale).Unix(),
	)
	if err != nil {
		log.Printf("[tier] acquire %s lock: %v", sweepType, err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (m *Manager) releaseLock(sweepType string) {
	if _, err := m.db.Conn().Exec(`DELETE FROM sweep_locks WHERE sweep_type = ?`, sweepType); err != nil {
		log.Printf("[tier] release %s lock: %v", sweepType, err)
	}
}

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	var t string
	var createdAt int64
	var migratedAt sql.NullInt64
	err := row.Scan(&rec.TraceID, &t, &rec.OriginalSize, &rec.CompressedSize,
		&rec.Score, &rec.AccessCount, &createdAt, &migratedAt, &rec.Location)
	if err != nil {
		return rec, err
	}
	rec.Tier = Tier(t)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	if migratedAt.Valid {
		mt := time.Unix(migratedAt.Int64, 0).UTC()
		rec.MigratedAt = &mt
	}
	return rec, nil
}
