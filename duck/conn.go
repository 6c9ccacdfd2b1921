package duck

import (
	"context"
	"database/sql"
	"sync"

	sqlkit "github.com/tylerbarker/sql-kit"
)

// Conn is one logical session against an engine Handle: a pinned
// database/sql connection plus its own statement cache. A Conn supports at
// most one operation at a time; the pool guarantees this by checkout
// exclusivity, and standalone use is serialized by an internal mutex.
type Conn struct {
	handle *Handle
	sess   *sql.Conn

	mu       sync.Mutex
	stmts    stmtCache
	executed int
	closed   bool
}

// ConnStats are per-connection instrumentation counters.
type ConnStats struct {
	// Prepared counts actual statement compilations. Two executions of
	// the same SQL text with caching enabled cost one prepare.
	Prepared int
	// CacheSize is the number of distinct SQL texts cached.
	CacheSize int
	// Executed counts statement executions through this connection.
	Executed int
}

// stmtCache maps verbatim SQL text to its compiled statement. No
// normalization: two textually different but semantically identical queries
// occupy separate entries, deliberately, to avoid the cost and risk of SQL
// normalization. Unbounded, no eviction: the accepted tradeoff is that a
// connection's cache grows with the distinct SQL texts it has seen and dies
// with the connection.
type stmtCache struct {
	stmts    map[string]*sql.Stmt
	prepared int
}

// lookupOrPrepare returns the cached statement for query, compiling and
// caching it on miss.
func (c *stmtCache) lookupOrPrepare(ctx context.Context, sess *sql.Conn, query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := sess.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.stmts == nil {
		c.stmts = make(map[string]*sql.Stmt)
	}
	c.stmts[query] = stmt
	c.prepared++
	return stmt, nil
}

func (c *stmtCache) closeAll() {
	for _, stmt := range c.stmts {
		_ = stmt.Close()
	}
	c.stmts = nil
}

func newConn(h *Handle, sess *sql.Conn) *Conn {
	return &Conn{handle: h, sess: sess}
}

// Query executes a statement and materializes the full result: columns,
// rows, []byte→string, and 128-bit pair recombination applied to every
// value. Caching is on by default; sqlkit.WithoutCache bypasses the
// statement cache for this call. Failures are *sqlkit.QueryError carrying
// the SQL text; a failed query says nothing about connection health.
func (c *Conn) Query(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) (*sqlkit.QueryResult, error) {
	o := sqlkit.ApplyOptions(opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.queryLocked(ctx, query, args, o.Cache)
	if err != nil {
		return nil, &sqlkit.QueryError{SQL: query, Err: err}
	}
	defer rows.Close()

	res, err := sqlkit.ScanRows(rows, query)
	if err != nil {
		return nil, &sqlkit.QueryError{SQL: query, Err: err}
	}
	return res, nil
}

// MustQuery is the raising form of Query: it panics with the typed error.
func (c *Conn) MustQuery(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) *sqlkit.QueryResult {
	res, err := c.Query(ctx, query, args, opts...)
	if err != nil {
		panic(err)
	}
	return res
}

// Exec executes a statement whose result shape is not wanted (DDL, INSERT).
func (c *Conn) Exec(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) error {
	o := sqlkit.ApplyOptions(opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Cache {
		stmt, err := c.stmts.lookupOrPrepare(ctx, c.sess, query)
		if err != nil {
			return &sqlkit.QueryError{SQL: query, Err: err}
		}
		c.executed++
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &sqlkit.QueryError{SQL: query, Err: err}
		}
		return nil
	}

	c.executed++
	if _, err := c.sess.ExecContext(ctx, query, args...); err != nil {
		return &sqlkit.QueryError{SQL: query, Err: err}
	}
	return nil
}

// MustExec is the raising form of Exec.
func (c *Conn) MustExec(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) {
	if err := c.Exec(ctx, query, args, opts...); err != nil {
		panic(err)
	}
}

// queryLocked runs the statement through the cache or directly. Callers
// hold c.mu.
func (c *Conn) queryLocked(ctx context.Context, query string, args []any, cache bool) (*sql.Rows, error) {
	c.executed++
	if cache {
		stmt, err := c.stmts.lookupOrPrepare(ctx, c.sess, query)
		if err != nil {
			return nil, err
		}
		return stmt.QueryContext(ctx, args...)
	}
	return c.sess.QueryContext(ctx, query, args...)
}

// Stats snapshots the connection's instrumentation counters.
func (c *Conn) Stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnStats{
		Prepared:  c.stmts.prepared,
		CacheSize: len(c.stmts.stmts),
		Executed:  c.executed,
	}
}

// Close discards the statement cache and returns the session to the engine.
// Idempotent. Never releases the Handle.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stmts.closeAll()
	return c.sess.Close()
}
