// Package history persists the list of past captures in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded capture. Image bytes live in the snapshot store under
// SnapshotID.
type Entry struct {
	ID         string
	URL        string
	CacheKey   string
	SnapshotID string
	Title      string
	CreatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	cache_key   TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_created_at ON captures(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_captures_cache_key ON captures(cache_key);
`

// Store is a SQLite-backed history of captures.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers for file databases.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applySchema(db *sql.DB) error {
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA synchronous=NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts an entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" || e.SnapshotID == "" {
		return errors.New("history: entry id and snapshot id are required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (id, url, cache_key, snapshot_id, title, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.URL, e.CacheKey, e.SnapshotID, e.Title, e.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT id, url, cache_key, snapshot_id, title, created_at FROM captures ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, cache_key, snapshot_id, title, created_at FROM captures WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Delete removes an entry and returns it so callers can clean up its image.
func (s *Store) Delete(ctx context.Context, id string) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id); err != nil {
		return Entry{}, fmt.Errorf("history: delete: %w", err)
	}
	return e, nil
}

// Prune keeps the newest keep entries and deletes the rest, returning the
// removed entries. keep <= 0 is a no-op.
func (s *Store) Prune(ctx context.Context, keep int) ([]Entry, error) {
	if keep <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("history: begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, url, cache_key, snapshot_id, title, created_at FROM captures ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`, keep)
	if err != nil {
		return nil, fmt.Errorf("history: select prune: %w", err)
	}
	var removed []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("history: scan prune: %w", err)
		}
		removed = append(removed, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: select prune: %w", err)
	}

	for _, e := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, e.ID); err != nil {
			return nil, fmt.Errorf("history: delete prune: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("history: commit prune: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e       Entry
		created int64
	)
	if err := sc.Scan(&e.ID, &e.URL, &e.CacheKey, &e.SnapshotID, &e.Title, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("history: scan: %w", err)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	return e, nil
}
