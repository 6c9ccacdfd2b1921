package pool

import (
	"context"

	sqlkit "github.com/tylerbarker/sql-kit"
	"github.com/tylerbarker/sql-kit/duck"
)

// Verdict is a checkout callback's health signal for its connection,
// interpreted by checkin. It travels separately from the callback's error:
// a query that failed says nothing about connection health, so any
// combination of verdict and error is legal.
type Verdict int

const (
	// Keep returns the connection to the pool as healthy. State changes
	// made through the connection (cached statements, session pragmas)
	// are kept with it.
	Keep Verdict = iota
	// Discard closes the connection and frees its slot; the pool
	// recreates it lazily on next demand.
	Discard
)

// Query checks out a connection, executes through it, and checks it back in
// healthy regardless of the query's outcome. Caching defaults to on;
// per-call behavior rides sqlkit options (WithoutCache, WithTimeout).
func (p *Pool) Query(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) (*sqlkit.QueryResult, error) {
	o := sqlkit.ApplyOptions(opts)

	conn, err := p.checkout(ctx, o.Timeout)
	if err != nil {
		return nil, err
	}
	defer p.checkin(conn, Keep)

	return conn.Query(ctx, query, args, opts...)
}

// MustQuery is the raising form of Query: it panics with the typed error.
func (p *Pool) MustQuery(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) *sqlkit.QueryResult {
	res, err := p.Query(ctx, query, args, opts...)
	if err != nil {
		panic(err)
	}
	return res
}

// Exec is Query for statements whose result shape is not wanted.
func (p *Pool) Exec(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) error {
	o := sqlkit.ApplyOptions(opts)

	conn, err := p.checkout(ctx, o.Timeout)
	if err != nil {
		return err
	}
	defer p.checkin(conn, Keep)

	return conn.Exec(ctx, query, args, opts...)
}

// MustExec is the raising form of Exec.
func (p *Pool) MustExec(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) {
	if err := p.Exec(ctx, query, args, opts...); err != nil {
		panic(err)
	}
}

// WithConnection runs fn with exclusive use of one connection, then checks
// it back in healthy. Errors from fn propagate unchanged and never demote
// the connection; use Checkout when fn needs to signal health explicitly.
func (p *Pool) WithConnection(ctx context.Context, fn func(*duck.Conn) error, opts ...sqlkit.QueryOption) error {
	return p.Checkout(ctx, func(conn *duck.Conn) (Verdict, error) {
		return Keep, fn(conn)
	}, opts...)
}

// Checkout runs fn with exclusive use of one connection and interprets its
// verdict at checkin. The verdict and the error are separate channels: a
// failing fn may still Keep its connection, and a succeeding fn may Discard
// one it knows is wedged.
func (p *Pool) Checkout(ctx context.Context, fn func(*duck.Conn) (Verdict, error), opts ...sqlkit.QueryOption) error {
	o := sqlkit.ApplyOptions(opts)

	conn, err := p.checkout(ctx, o.Timeout)
	if err != nil {
		return err
	}

	verdict := Keep
	defer func() { p.checkin(conn, verdict) }()

	verdict, err = fn(conn)
	return err
}

// WithStream begins chunked execution and hands the live chunk sequence to
// fn. The connection stays checked out for the full duration of fn, and the
// sequence dies with the checkout: fn must fully consume or deliberately
// abandon it before returning.
func (p *Pool) WithStream(ctx context.Context, query string, args []any, fn func(*duck.Chunks) error, opts ...sqlkit.QueryOption) error {
	return p.WithConnection(ctx, func(conn *duck.Conn) error {
		chunks, err := conn.QueryChunked(ctx, query, args, opts...)
		if err != nil {
			return err
		}
		defer chunks.Close()
		return fn(chunks)
	}, opts...)
}

// Ping verifies the pool can serve a trivial query.
func (p *Pool) Ping(ctx context.Context) error {
	return p.WithConnection(ctx, func(conn *duck.Conn) error {
		_, err := conn.Query(ctx, "SELECT 1", nil, sqlkit.WithoutCache())
		return err
	})
}
