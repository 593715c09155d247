// Package reportstore persists a history of processed units in SQLite.
package reportstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    unit_id       TEXT NOT NULL,
    narration     TEXT NOT NULL,
    music         TEXT NOT NULL,
    output        TEXT NOT NULL,
    status        TEXT NOT NULL,
    strategy      TEXT NOT NULL DEFAULT '',
    verdict       TEXT NOT NULL DEFAULT '',
    quality_ratio REAL NOT NULL DEFAULT 0,
    final_ms      REAL NOT NULL DEFAULT 0,
    target_ms     REAL NOT NULL DEFAULT 0,
    diff_ms       REAL NOT NULL DEFAULT 0,
    warnings      TEXT NOT NULL DEFAULT '',
    error         TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
`

// Run is one recorded unit.
type Run struct {
	ID           string  `db:"id"`
	UnitID       string  `db:"unit_id"`
	Narration    string  `db:"narration"`
	Music        string  `db:"music"`
	Output       string  `db:"output"`
	Status       string  `db:"status"`
	Strategy     string  `db:"strategy"`
	Verdict      string  `db:"verdict"`
	QualityRatio float64 `db:"quality_ratio"`
	FinalMS      float64 `db:"final_ms"`
	TargetMS     float64 `db:"target_ms"`
	DiffMS       float64 `db:"diff_ms"`
	// Warnings is newline separated.
	Warnings  string `db:"warnings"`
	Error     string `db:"error"`
	CreatedAt string `db:"created_at"`
}

// Created parses CreatedAt.
func (r Run) Created() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return t
}

// Store records runs. A Store opened with an empty path is disabled and
// every call is a no-op.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open initializes or connects to the history database.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Enabled reports whether runs are persisted.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Path returns the database path, empty when disabled.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Close()
}

// Record inserts run, assigning an ID and timestamp when missing.
func (s *Store) Record(ctx context.Context, run Run) error {
	if !s.Enabled() {
		return nil
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO runs (
            id, unit_id, narration, music, output, status, strategy, verdict,
            quality_ratio, final_ms, target_ms, diff_ms, warnings, error, created_at
        ) VALUES (
            :id, :unit_id, :narration, :music, :output, :status, :strategy, :verdict,
            :quality_ratio, :final_ms, :target_ms, :diff_ms, :warnings, :error, :created_at
        )`, run)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return runs, nil
}
