package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"studylog/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the entry store and the persisted totals cache. It
// is the only component that touches durable storage.
type SQLiteRepository struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs
// migrations.
func New(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and
	// serializes statement execution at the driver level.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// NewMemory creates an in-memory repository for testing.
func NewMemory() (*SQLiteRepository, error) {
	return New(":memory:")
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// unavailable tags a persistence failure so callers can classify it with
// errors.Is while keeping the driver error in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(core.ErrStoreUnavailable, err))
}

// Create inserts an empty entry for the given date and returns its id.
// The entry_date UNIQUE constraint enforces at most one entry per date.
func (r *SQLiteRepository) Create(ctx context.Context, date core.Date) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO study_entries (id, entry_date) VALUES (?, ?)`,
		id, date.String(),
	)
	if err != nil {
		return "", unavailable("create entry", err)
	}
	return id, nil
}

// AppendHour appends a record at the end of the entry's sequence.
func (r *SQLiteRepository) AppendHour(ctx context.Context, id string, rec core.HourRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("append hour", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM study_entries WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return unavailable("append hour", err)
	}
	if exists == 0 {
		return fmt.Errorf("append hour: entry %s: %w", id, core.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO hour_records (entry_id, position, category, hours)
		 VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM hour_records WHERE entry_id = ?), ?, ?)`,
		id, id, string(rec.Category), rec.Hours,
	)
	if err != nil {
		return unavailable("append hour", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("append hour", err)
	}
	return nil
}

// RemoveHourAt deletes the record at the given position and re-packs the
// remaining positions so the sequence stays dense. Removing the last
// record deletes the entry itself; the return value reports that.
func (r *SQLiteRepository) RemoveHourAt(ctx context.Context, id string, index int) (entryDeleted bool, err error) {
	if index < 0 {
		return false, fmt.Errorf("remove hour: index %d: %w", index, core.ErrNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable("remove hour", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM hour_records WHERE entry_id = ? AND position = ?`, id, index)
	if err != nil {
		return false, unavailable("remove hour", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("remove hour", err)
	}
	if affected == 0 {
		return false, fmt.Errorf("remove hour: entry %s index %d: %w", id, index, core.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE hour_records SET position = position - 1 WHERE entry_id = ? AND position > ?`,
		id, index)
	if err != nil {
		return false, unavailable("remove hour", err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hour_records WHERE entry_id = ?`, id).Scan(&remaining)
	if err != nil {
		return false, unavailable("remove hour", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM study_entries WHERE id = ?`, id); err != nil {
			return false, unavailable("remove hour", err)
		}
		entryDeleted = true
	}

	if err := tx.Commit(); err != nil {
		return false, unavailable("remove hour", err)
	}
	return entryDeleted, nil
}

// FindByDate returns the entry for the given date, or nil when absent.
func (r *SQLiteRepository) FindByDate(ctx context.Context, date core.Date) (*core.StudyEntry, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM study_entries WHERE entry_date = ?`, date.String()).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find by date", err)
	}

	records, err := r.hourRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	return &core.StudyEntry{ID: id, Date: date, HourRecords: records}, nil
}

// GetEntry returns the entry with the given id, or nil when absent.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (*core.StudyEntry, error) {
	var dateStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT entry_date FROM study_entries WHERE id = ?`, id).Scan(&dateStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get entry", err)
	}

	date, err := core.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("get entry: stored date %q: %w", dateStr, err)
	}
	records, err := r.hourRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	return &core.StudyEntry{ID: id, Date: date, HourRecords: records}, nil
}

func (r *SQLiteRepository) hourRecords(ctx context.Context, entryID string) ([]core.HourRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, hours FROM hour_records WHERE entry_id = ? ORDER BY position`,
		entryID)
	if err != nil {
		return nil, unavailable("load hour records", err)
	}
	defer rows.Close()

	var records []core.HourRecord
	for rows.Next() {
		var rec core.HourRecord
		var category string
		if err := rows.Scan(&category, &rec.Hours); err != nil {
			return nil, unavailable("load hour records", err)
		}
		rec.Category = core.Category(category)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load hour records", err)
	}
	return records, nil
}

// ListAll returns every entry sorted by date, hour records in position
// order.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.StudyEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.entry_date, h.category, h.hours
		 FROM study_entries e
		 JOIN hour_records h ON h.entry_id = e.id
		 ORDER BY e.entry_date, h.position`)
	if err != nil {
		return nil, unavailable("list entries", err)
	}
	defer rows.Close()

	var entries []core.StudyEntry
	for rows.Next() {
		var id, dateStr, category string
		var hours float64
		if err := rows.Scan(&id, &dateStr, &category, &hours); err != nil {
			return nil, unavailable("list entries", err)
		}
		if len(entries) == 0 || entries[len(entries)-1].ID != id {
			date, err := core.ParseDate(dateStr)
			if err != nil {
				return nil, fmt.Errorf("list entries: stored date %q: %w", dateStr, err)
			}
			entries = append(entries, core.StudyEntry{ID: id, Date: date})
		}
		last := &entries[len(entries)-1]
		last.HourRecords = append(last.HourRecords, core.HourRecord{
			Category: core.Category(category),
			Hours:    hours,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list entries", err)
	}
	return entries, nil
}

// ClearAll deletes every entry, every hour record and the cached totals
// in one transaction. Observers see either the full pre-reset state or
// the empty post-reset state, never a partial clear.
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("clear all", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM hour_records`,
		`DELETE FROM study_entries`,
		`DELETE FROM progress_totals`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return unavailable("clear all", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("clear all", err)
	}

	// The transaction is all-or-nothing, but a leftover row here would
	// mean the store is in an unverified state, which callers must learn
	// about distinctly.
	var leftover int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM study_entries`).Scan(&leftover); err != nil {
		return fmt.Errorf("verify reset: %w", errors.Join(core.ErrResetIncomplete, err))
	}
	if leftover != 0 {
		return fmt.Errorf("verify reset: %d entries remain: %w", leftover, core.ErrResetIncomplete)
	}
	return nil
}

// ReadTotals returns the cached totals. ok is false on a cache miss;
// callers recompute from the entry set in that case.
func (r *SQLiteRepository) ReadTotals(ctx context.Context) (totals core.ProgressTotals, ok bool, err error) {
	var weekly, monthly, allTime, updated string
	err = r.db.QueryRowContext(ctx,
		`SELECT weekly, monthly, all_time, last_updated FROM progress_totals WHERE id = 1`).
		Scan(&weekly, &monthly, &allTime, &updated)
	if err == sql.ErrNoRows {
		return core.ProgressTotals{}, false, nil
	}
	if err != nil {
		return core.ProgressTotals{}, false, unavailable("read totals", err)
	}

	for _, pair := range []struct {
		raw  string
		into *map[core.Category]float64
	}{
		{weekly, &totals.Weekly},
		{monthly, &totals.Monthly},
		{allTime, &totals.AllTime},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.into); err != nil {
			return core.ProgressTotals{}, false, fmt.Errorf("read totals: decode: %w", err)
		}
	}
	totals.LastUpdated, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return core.ProgressTotals{}, false, fmt.Errorf("read totals: parse last_updated: %w", err)
	}
	return totals, true, nil
}

// WriteTotals replaces the single cached totals row, stamping
// last_updated with the totals' own timestamp.
func (r *SQLiteRepository) WriteTotals(ctx context.Context, totals core.ProgressTotals) error {
	weekly, err := json.Marshal(totals.Weekly)
	if err != nil {
		return fmt.Errorf("write totals: encode weekly: %w", err)
	}
	monthly, err := json.Marshal(totals.Monthly)
	if err != nil {
		return fmt.Errorf("write totals: encode monthly: %w", err)
	}
	allTime, err := json.Marshal(totals.AllTime)
	if err != nil {
		return fmt.Errorf("write totals: encode all-time: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO progress_totals (id, weekly, monthly, all_time, last_updated)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     weekly = excluded.weekly,
		     monthly = excluded.monthly,
		     all_time = excluded.all_time,
		     last_updated = excluded.last_updated`,
		string(weekly), string(monthly), string(allTime),
		totals.LastUpdated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable("write totals", err)
	}
	return nil
}

// InvalidateTotals drops the cached totals row.
func (r *SQLiteRepository) InvalidateTotals(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM progress_totals`); err != nil {
		return unavailable("invalidate totals", err)
	}
	return nil
}
