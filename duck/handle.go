// Package duck wraps the embedded DuckDB engine: one Handle per opened
// database, dedicated sessions drawn from it, a per-session statement cache,
// and chunked result streaming.
package duck

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"

	_ "github.com/duckdb/duckdb-go/v2"

	sqlkit "github.com/tylerbarker/sql-kit"
)

// MemoryLocation is the reserved location for an in-memory database.
const MemoryLocation = ":memory:"

// Handle owns the single underlying engine instance for a pool (or for one
// standalone caller). It is shared by every session drawn from it and is
// released exactly once, by whoever opened it.
type Handle struct {
	db       *sql.DB
	location string
	logger   *slog.Logger

	releaseOnce sync.Once
	releases    atomic.Int64
	onRelease   func()
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	maxSessions int
	onRelease   func()
	logger      *slog.Logger
}

// WithMaxSessions caps the number of concurrent sessions the handle hands
// out. The pool sets this to its size.
func WithMaxSessions(n int) OpenOption {
	return func(c *openConfig) { c.maxSessions = n }
}

// WithReleaseHook installs a function called once, when the handle is
// actually released. Used by lifecycle tests and teardown instrumentation.
func WithReleaseHook(fn func()) OpenOption {
	return func(c *openConfig) { c.onRelease = fn }
}

// WithLogger sets the handle's logger. Nil means discard.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(c *openConfig) { c.logger = logger }
}

// Open opens the DuckDB database at location, a filesystem path or
// ":memory:" (or empty) for an in-memory instance. The handle is pinged
// eagerly so bad paths, lock contention, and corrupt files surface here as
// *sqlkit.OpenError rather than on first query. Open failures are never
// retried.
func Open(ctx context.Context, location string, opts ...OpenOption) (*Handle, error) {
	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	dsn := location
	if dsn == MemoryLocation {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, &sqlkit.OpenError{Location: location, Err: err}
	}
	if cfg.maxSessions > 0 {
		db.SetMaxOpenConns(cfg.maxSessions)
		db.SetMaxIdleConns(cfg.maxSessions)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &sqlkit.OpenError{Location: location, Err: err}
	}

	cfg.logger.Debug("engine opened", "location", location)

	return &Handle{
		db:        db,
		location:  location,
		logger:    cfg.logger,
		onRelease: cfg.onRelease,
	}, nil
}

// Location returns the location the handle was opened at.
func (h *Handle) Location() string { return h.location }

// Connect draws one dedicated session from the handle and equips it with a
// fresh statement cache. The session shares the handle but never owns it;
// closing the Conn never releases the Handle.
func (h *Handle) Connect(ctx context.Context) (*Conn, error) {
	sess, err := h.db.Conn(ctx)
	if err != nil {
		return nil, &sqlkit.OpenError{Location: h.location, Err: err}
	}
	return newConn(h, sess), nil
}

// Release closes the underlying engine instance. Safe to call more than
// once: only the first call closes; the rest are no-ops returning nil.
// Sessions drawn from the handle must be closed before Release; the pool
// enforces this by teardown ordering.
func (h *Handle) Release() error {
	var err error
	h.releaseOnce.Do(func() {
		err = h.db.Close()
		h.releases.Add(1)
		if h.onRelease != nil {
			h.onRelease()
		}
		h.logger.Info("engine released", "location", h.location)
	})
	return err
}

// Releases reports how many times the handle was actually released: 0 or 1.
// Exists for lifecycle tests.
func (h *Handle) Releases() int {
	return int(h.releases.Load())
}
