package sqlkit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Queryer is the execution surface shared by pooled and standalone embedded
// backends. *pool.Pool and *duck.Conn both satisfy it.
type Queryer interface {
	Query(ctx context.Context, query string, args []any, opts ...QueryOption) (*QueryResult, error)
	Exec(ctx context.Context, query string, args []any, opts ...QueryOption) error
}

// Query routes a statement to the backend's execution path and normalizes
// the result. Supported backends:
//
//   - anything implementing Queryer (pooled or standalone embedded
//     connections);
//   - *sql.DB, *sql.Conn, *sql.Tx: conventional SQL servers through
//     database/sql.
//
// Anything else fails with *UnsupportedResultError naming the concrete type.
func Query(ctx context.Context, backend any, query string, args []any, opts ...QueryOption) (*QueryResult, error) {
	switch b := backend.(type) {
	case Queryer:
		return b.Query(ctx, query, args, opts...)
	case *sql.DB:
		return queryStd(ctx, b.QueryContext, query, args)
	case *sql.Conn:
		return queryStd(ctx, b.QueryContext, query, args)
	case *sql.Tx:
		return queryStd(ctx, b.QueryContext, query, args)
	default:
		return nil, &UnsupportedResultError{Shape: fmt.Sprintf("%T", backend)}
	}
}

// Exec routes a no-result statement the same way Query routes queries.
func Exec(ctx context.Context, backend any, query string, args []any, opts ...QueryOption) error {
	switch b := backend.(type) {
	case Queryer:
		return b.Exec(ctx, query, args, opts...)
	case *sql.DB:
		return execStd(ctx, b.ExecContext, query, args)
	case *sql.Conn:
		return execStd(ctx, b.ExecContext, query, args)
	case *sql.Tx:
		return execStd(ctx, b.ExecContext, query, args)
	default:
		return &UnsupportedResultError{Shape: fmt.Sprintf("%T", backend)}
	}
}

// One executes a query expected to produce exactly one row and binds it to
// T. Zero rows fail with *NoResultsError, more than one with
// *MultipleResultsError; WithLabel names the query in those errors.
func One[T any](ctx context.Context, backend any, query string, args []any, opts ...QueryOption) (T, error) {
	res, err := Query(ctx, backend, query, args, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return CollectOne[T](res, opts...)
}

// OneRecord is One for generic records. Column admission follows the usual
// allow-list options (WithColumns, WithDynamicColumns).
func OneRecord(ctx context.Context, backend any, query string, args []any, opts ...QueryOption) (Record, error) {
	res, err := Query(ctx, backend, query, args, opts...)
	if err != nil {
		return nil, err
	}
	return res.OneRecord(opts...)
}

// MustOne is the raising form of One: it panics with the typed error.
func MustOne[T any](ctx context.Context, backend any, query string, args []any, opts ...QueryOption) T {
	item, err := One[T](ctx, backend, query, args, opts...)
	if err != nil {
		panic(err)
	}
	return item
}

// MustOneRecord is the raising form of OneRecord.
func MustOneRecord(ctx context.Context, backend any, query string, args []any, opts ...QueryOption) Record {
	rec, err := OneRecord(ctx, backend, query, args, opts...)
	if err != nil {
		panic(err)
	}
	return rec
}

// MustQuery is the raising form of Query: it panics with the typed error.
func MustQuery(ctx context.Context, backend any, query string, args []any, opts ...QueryOption) *QueryResult {
	res, err := Query(ctx, backend, query, args, opts...)
	if err != nil {
		panic(err)
	}
	return res
}

// MustExec is the raising form of Exec.
func MustExec(ctx context.Context, backend any, query string, args []any, opts ...QueryOption) {
	if err := Exec(ctx, backend, query, args, opts...); err != nil {
		panic(err)
	}
}

// Rows normalizes a driver-native result object into a QueryResult:
//
//   - *QueryResult passes through;
//   - *sql.Rows is drained through the standard scan loop;
//   - pgx.Rows (jackc/pgx v5 native protocol) is drained via its field
//     descriptions and Values.
//
// Unrecognized shapes fail with *UnsupportedResultError rather than
// guessing at the object's layout.
func Rows(result any) (*QueryResult, error) {
	switch r := result.(type) {
	case *QueryResult:
		return r, nil
	case *sql.Rows:
		defer r.Close()
		return ScanRows(r, "")
	case pgx.Rows:
		return scanPgxRows(r)
	default:
		return nil, &UnsupportedResultError{Shape: fmt.Sprintf("%T", result)}
	}
}

func queryStd(ctx context.Context, queryFn func(context.Context, string, ...any) (*sql.Rows, error), query string, args []any) (*QueryResult, error) {
	rows, err := queryFn(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	defer rows.Close()

	res, err := ScanRows(rows, query)
	if err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	return res, nil
}

func execStd(ctx context.Context, execFn func(context.Context, string, ...any) (sql.Result, error), query string, args []any) error {
	if _, err := execFn(ctx, query, args...); err != nil {
		return &QueryError{SQL: query, Err: err}
	}
	return nil
}

func scanPgxRows(rows pgx.Rows) (*QueryResult, error) {
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = NormalizeValue(v)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return NewResult(cols, out, ""), nil
}
