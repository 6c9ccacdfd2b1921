package sqlkit

import "time"

// DefaultChunkSize is the row count per chunk for streamed results. It
// matches DuckDB's internal vector width so one chunk maps to one native
// data chunk in the common case.
const DefaultChunkSize = 2048

// Options collects per-call query behavior. Zero values are filled in by
// DefaultOptions; callers use the With* functional options rather than
// building an Options by hand.
type Options struct {
	// Cache routes execution through the per-connection statement cache.
	Cache bool
	// Timeout bounds the wait for a pooled connection. Zero means the
	// pool's configured default.
	Timeout time.Duration
	// ChunkSize is the row count per chunk for chunked execution.
	ChunkSize int
	// Columns is the declared column allow-list for record
	// materialization. Nil with DynamicColumns false rejects every
	// column.
	Columns []string
	// DynamicColumns admits any result column name during record
	// materialization.
	DynamicColumns bool
	// Label overrides the query label used in one-row retrieval errors.
	Label string
}

// QueryOption mutates the per-call Options.
type QueryOption func(*Options)

// DefaultOptions returns the baseline: caching on, default chunk size, no
// declared columns.
func DefaultOptions() Options {
	return Options{Cache: true, ChunkSize: DefaultChunkSize}
}

// ApplyOptions folds opts over DefaultOptions.
func ApplyOptions(opts []QueryOption) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithoutCache bypasses the statement cache for this call.
func WithoutCache() QueryOption {
	return func(o *Options) { o.Cache = false }
}

// WithTimeout overrides the pool's checkout timeout for this call.
func WithTimeout(d time.Duration) QueryOption {
	return func(o *Options) { o.Timeout = d }
}

// WithChunkSize overrides the rows-per-chunk count for chunked execution.
// Non-positive values are ignored.
func WithChunkSize(n int) QueryOption {
	return func(o *Options) {
		if n > 0 {
			o.ChunkSize = n
		}
	}
}

// WithColumns declares the expected result columns for record
// materialization. Columns outside the set fail with UnknownColumnError.
func WithColumns(columns ...string) QueryOption {
	return func(o *Options) { o.Columns = columns }
}

// WithDynamicColumns admits any result column name during record
// materialization. Off by default so attacker-influenced column names
// cannot mint unbounded map keys.
func WithDynamicColumns() QueryOption {
	return func(o *Options) { o.DynamicColumns = true }
}

// WithLabel names the query in one-row retrieval errors instead of the
// truncated SQL text.
func WithLabel(label string) QueryOption {
	return func(o *Options) { o.Label = label }
}
