// Package history persists finished run reports into a local SQLite
// database, giving the workspace an append-only record of past runs and
// their per-operation outcomes.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vk/buildgridgo/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_operations (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	op_key       TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL,
	cache_hit    BOOLEAN NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	completed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, op_key)
);
`

// Store is a SQLite-backed run history.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one finished run and all its operation outcomes in a
// single transaction.
func (s *Store) Append(ctx context.Context, r *report.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at, duration_ms, error) VALUES (?, ?, ?, ?, ?)`,
		r.RunID, string(r.Overall), r.StartedAt, r.Duration.Milliseconds(), r.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, o := range r.Operations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_operations (run_id, op_key, status, duration_ms, cache_hit, reason, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, o.Key, o.Status, o.DurationMs, o.CacheHit, o.Reason, o.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting outcome %s: %w", o.Key, err)
		}
	}

	return tx.Commit()
}

// RunRow is one persisted run summary.
type RunRow struct {
	ID         string    `db:"id"`
	Status     string    `db:"status"`
	StartedAt  time.Time `db:"started_at"`
	DurationMs int64     `db:"duration_ms"`
	Error      string    `db:"error"`
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RunRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, status, started_at, duration_ms, error FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return rows, nil
}

// OperationRow is one persisted operation outcome.
type OperationRow struct {
	RunID       string    `db:"run_id"`
	Key         string    `db:"op_key"`
	Status      string    `db:"status"`
	DurationMs  int64     `db:"duration_ms"`
	CacheHit    bool      `db:"cache_hit"`
	Reason      string    `db:"reason"`
	CompletedAt time.Time `db:"completed_at"`
}

// Operations returns the outcomes of one run in completion order.
func (s *Store) Operations(ctx context.Context, runID string) ([]OperationRow, error) {
	var rows []OperationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT run_id, op_key, status, duration_ms, cache_hit, reason, completed_at
		 FROM run_operations WHERE run_id = ? ORDER BY completed_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run operations: %w", err)
	}
	return rows, nil
}
