// Package history records query runs in a SQLite metastore: what ran,
// against which backend, how long it took, and how it ended. Recording
// failures are the caller's to log; they never fail the query itself.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite DSN parameters for production hardening.
const (
	busyTimeout = "5000" // 5 seconds
	synchronous = "NORMAL"
	journalMode = "WAL"
)

// Run is one recorded query execution.
type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"` // cli | repl | server
	Label      string    `json:"label,omitempty"`
	SQL        string    `json:"sql"`
	Backend    string    `json:"backend,omitempty"`
	Rows       int       `json:"rows"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"` // ok | error
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Store is the query-run metastore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the metastore at path and runs pending
// migrations. The pool is sized for a single writer, which is all the
// recorder needs.
func Open(path string) (*Store, error) {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeout)
	params.Set("_synchronous", synchronous)
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history store: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Record inserts one run. A zero ID gets a fresh UUID; a zero StartedAt
// gets the current time.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_runs (id, source, query_label, sql_text, backend, rows, duration_ms, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Label, run.SQL, run.Backend,
		run.Rows, run.DurationMS, run.Status, run.Error,
		run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, query_label, sql_text, backend, rows, duration_ms, status, error, started_at
		FROM query_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		if err := rows.Scan(&run.ID, &run.Source, &run.Label, &run.SQL, &run.Backend,
			&run.Rows, &run.DurationMS, &run.Status, &run.Error, &startedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Close closes the metastore.
func (s *Store) Close() error {
	return s.db.Close()
}
