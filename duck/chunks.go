package duck

import (
	"context"
	"database/sql"

	sqlkit "github.com/tylerbarker/sql-kit"
)

// Chunks is a single-pass sequence of row-batches over a live native
// cursor, bounding memory for large result sets. It follows the sql.Rows
// idiom:
//
//	chunks, err := conn.QueryChunked(ctx, query, args)
//	...
//	defer chunks.Close()
//	for chunks.Next() {
//	    use(chunks.Chunk())
//	}
//	err = chunks.Err()
//
// The sequence is finite and not restartable: exhausting it terminates the
// underlying cursor, and further Next calls yield nothing.
type Chunks struct {
	rows    *sql.Rows
	columns []string
	size    int

	chunk  [][]any
	err    error
	closed bool
}

// QueryChunked begins chunked execution of a statement. The caller owns the
// returned sequence and must Close it (exhaustion also closes it). Chunk
// size defaults to DefaultChunkSize; override with sqlkit.WithChunkSize.
// Caching applies to the statement compilation exactly as in Query.
//
// The cursor pins this connection: run nothing else on the Conn until the
// sequence is consumed or abandoned. Under the pool this is enforced by
// holding the checkout for the sequence's lifetime.
func (c *Conn) QueryChunked(ctx context.Context, query string, args []any, opts ...sqlkit.QueryOption) (*Chunks, error) {
	o := sqlkit.ApplyOptions(opts)

	c.mu.Lock()
	rows, err := c.queryLocked(ctx, query, args, o.Cache)
	c.mu.Unlock()
	if err != nil {
		return nil, &sqlkit.QueryError{SQL: query, Err: err}
	}

	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, &sqlkit.QueryError{SQL: query, Err: err}
	}

	return &Chunks{rows: rows, columns: columns, size: o.ChunkSize}, nil
}

// Columns returns the result's ordered column names.
func (ch *Chunks) Columns() []string { return ch.columns }

// Next advances to the next chunk, reporting whether one is available. The
// final chunk may be short; after the last chunk the cursor is closed and
// Next returns false forever.
func (ch *Chunks) Next() bool {
	if ch.closed || ch.err != nil {
		return false
	}

	chunk := make([][]any, 0, ch.size)
	for len(chunk) < ch.size && ch.rows.Next() {
		values := make([]any, len(ch.columns))
		ptrs := make([]any, len(ch.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := ch.rows.Scan(ptrs...); err != nil {
			ch.err = err
			_ = ch.Close()
			return false
		}
		for i, v := range values {
			values[i] = sqlkit.NormalizeValue(v)
		}
		chunk = append(chunk, values)
	}

	if len(chunk) < ch.size {
		// Cursor exhausted; surface any iteration error and terminate.
		if err := ch.rows.Err(); err != nil && ch.err == nil {
			ch.err = err
		}
		_ = ch.Close()
	}
	if len(chunk) == 0 {
		return false
	}
	ch.chunk = chunk
	return true
}

// Chunk returns the current chunk of normalized rows. Valid until the next
// Next call.
func (ch *Chunks) Chunk() [][]any { return ch.chunk }

// Err returns the first error encountered during iteration, if any.
func (ch *Chunks) Err() error { return ch.err }

// Close terminates the underlying cursor. Idempotent; called implicitly on
// exhaustion.
func (ch *Chunks) Close() error {
	if ch.closed {
		return nil
	}
	ch.closed = true
	return ch.rows.Close()
}
