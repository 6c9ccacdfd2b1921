// Package sqlkit executes parameterized SQL against pooled embedded-engine
// connections, standalone connections, or conventional database/sql servers,
// and normalizes driver-specific results into a uniform QueryResult that can
// be materialized into generic or typed records.
package sqlkit

import (
	"database/sql"
	"math/big"
)

// QueryResult is the uniform result shape produced by every backend path:
// ordered column names and ordered rows of already-normalized values.
// Produced fresh per call and never mutated afterwards.
type QueryResult struct {
	Columns  []string
	Rows     [][]any
	RowCount int

	// sql is the originating statement text, kept for default query
	// labels. Empty when the result was normalized from a driver object
	// whose SQL is unknown.
	sql string
}

// NewResult builds a QueryResult from pre-normalized columns and rows.
// query may be empty; it only feeds default error labels.
func NewResult(columns []string, rows [][]any, query string) *QueryResult {
	return &QueryResult{Columns: columns, Rows: rows, RowCount: len(rows), sql: query}
}

// Label returns the query label for error reporting: the truncated SQL text,
// or "query" when the SQL is unknown.
func (r *QueryResult) Label() string {
	if r.sql == "" {
		return "query"
	}
	return TruncateSQL(r.sql)
}

// ScanRows drains a *sql.Rows cursor into a QueryResult, applying value
// normalization to every cell. The cursor is fully consumed but not closed;
// callers own Close.
func ScanRows(rows *sql.Rows, query string) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
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

	return NewResult(cols, out, query), nil
}

// NormalizeValue converts driver-specific value encodings into plain Go
// values, recursively through list and struct-shaped collections:
//
//   - a 2-element list whose elements are both ordinary integers is
//     recombined into one 128-bit integer (hi<<64 | lo), collapsed to int64
//     when it fits;
//   - []byte becomes string;
//   - []any elements and map[string]any values are normalized in place.
//
// The 2-integer-pair rule is a heuristic tied to how the native DuckDB
// driver encodes HUGEINT. Any future native type that happens to serialize
// as a 2-integer tuple would be misidentified; verify the driver's type
// catalog before widening this rule.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case [2]any:
		return NormalizeValue([]any{val[0], val[1]})
	case []any:
		if wide, ok := widePair(val); ok {
			return wide
		}
		for i, elem := range val {
			val[i] = NormalizeValue(elem)
		}
		return val
	case map[string]any:
		for k, elem := range val {
			val[k] = NormalizeValue(elem)
		}
		return val
	default:
		return v
	}
}

// widePair recombines a (hi, lo) integer pair into a single wide integer.
func widePair(pair []any) (any, bool) {
	if len(pair) != 2 {
		return nil, false
	}
	hi, ok := asInt64(pair[0])
	if !ok {
		return nil, false
	}
	lo, ok := asUint64(pair[1])
	if !ok {
		return nil, false
	}

	wide := BigIntFromPair(hi, lo)
	if wide.IsInt64() {
		return wide.Int64(), true
	}
	return wide, true
}

// BigIntFromPair recombines the high and low 64-bit halves of a 128-bit
// integer: hi<<64 | lo.
func BigIntFromPair(hi int64, lo uint64) *big.Int {
	wide := new(big.Int).SetInt64(hi)
	wide.Lsh(wide, 64)
	return wide.Add(wide, new(big.Int).SetUint64(lo))
}

// asInt64 accepts any ordinary signed or unsigned integer that fits int64.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > 1<<63-1 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// asUint64 accepts any ordinary integer, reinterpreting negative signed
// values as the raw low 64 bits of the pair encoding.
func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), true
	case int8:
		return uint64(n), true
	case int16:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}
