package sqlkit

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// OpenError reports a failure to open the embedded engine at a location.
// Open failures are fatal to pool startup and are never retried.
type OpenError struct {
	Location string
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open engine at %q: %v", e.Location, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// QueryError reports a failed statement execution. The SQL text is carried
// verbatim so callers can log or label the failing statement.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", TruncateSQL(e.SQL), e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// CheckoutTimeoutError reports that no pooled connection became available
// within the checkout timeout. The wait is cancelled; no connection is
// consumed or harmed.
type CheckoutTimeoutError struct {
	Pool    string
	Timeout time.Duration
}

func (e *CheckoutTimeoutError) Error() string {
	return fmt.Sprintf("pool %q: checkout timed out after %s", e.Pool, e.Timeout)
}

// PoolClosedError reports use of a pool after Close.
type PoolClosedError struct {
	Pool string
}

func (e *PoolClosedError) Error() string {
	return fmt.Sprintf("pool %q is closed", e.Pool)
}

// UnsupportedResultError reports a backend or driver result object whose
// shape the dispatcher does not recognize. The concrete Go type is named
// rather than guessed at.
type UnsupportedResultError struct {
	Shape string
}

func (e *UnsupportedResultError) Error() string {
	return fmt.Sprintf("unsupported backend or result shape %s", e.Shape)
}

// UnknownColumnError reports a result column that is not in the declared
// column allow-list and dynamic column admission is disabled.
type UnknownColumnError struct {
	Column  string
	Allowed []string
}

func (e *UnknownColumnError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("unknown column %q: no columns declared (use WithColumns or WithDynamicColumns)", e.Column)
	}
	return fmt.Sprintf("unknown column %q: declared columns are [%s]", e.Column, strings.Join(e.Allowed, ", "))
}

// RecordError reports a failure to bind a result column to a field of the
// requested target type.
type RecordError struct {
	Target string
	Column string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("column %q has no matching field on %s", e.Column, e.Target)
}

// NoResultsError reports a one-row retrieval that matched zero rows.
type NoResultsError struct {
	Label string
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("no results for %q", e.Label)
}

// MultipleResultsError reports a one-row retrieval that matched more than
// one row.
type MultipleResultsError struct {
	Label string
	Count int
}

func (e *MultipleResultsError) Error() string {
	return fmt.Sprintf("expected one result for %q, got %d", e.Label, e.Count)
}

// labelMaxLen bounds default query labels derived from SQL text.
const labelMaxLen = 50

// TruncateSQL shortens SQL text to a label-sized prefix for error messages
// and logging. Truncation counts runes, never splitting a multi-byte
// character.
func TruncateSQL(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if utf8.RuneCountInString(sql) <= labelMaxLen {
		return sql
	}
	runes := []rune(sql)
	return string(runes[:labelMaxLen]) + "..."
}
