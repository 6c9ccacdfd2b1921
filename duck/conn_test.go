package duck

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlkit "github.com/tylerbarker/sql-kit"
)

func connectMemory(t *testing.T) *Conn {
	t.Helper()

	h := openMemory(t)
	conn, err := h.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStatementCacheReuse(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)
	ctx := context.Background()

	const query = "SELECT ?::INTEGER AS n"
	_, err := conn.Query(ctx, query, []any{1})
	require.NoError(t, err)
	_, err = conn.Query(ctx, query, []any{2})
	require.NoError(t, err)

	stats := conn.Stats()
	assert.Equal(t, 1, stats.Prepared, "second execution must reuse the cached statement")
	assert.Equal(t, 1, stats.CacheSize)
	assert.Equal(t, 2, stats.Executed)
}

func TestStatementCacheVerbatimKeys(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)
	ctx := context.Background()

	// Textually different, semantically identical: cached separately.
	_, err := conn.Query(ctx, "SELECT 1", nil)
	require.NoError(t, err)
	_, err = conn.Query(ctx, "SELECT  1", nil)
	require.NoError(t, err)

	stats := conn.Stats()
	assert.Equal(t, 2, stats.Prepared)
	assert.Equal(t, 2, stats.CacheSize)
}

func TestWithoutCacheSkipsPrepare(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)
	ctx := context.Background()

	_, err := conn.Query(ctx, "SELECT 1", nil, sqlkit.WithoutCache())
	require.NoError(t, err)
	_, err = conn.Query(ctx, "SELECT 1", nil, sqlkit.WithoutCache())
	require.NoError(t, err)

	stats := conn.Stats()
	assert.Equal(t, 0, stats.Prepared)
	assert.Equal(t, 0, stats.CacheSize)
	assert.Equal(t, 2, stats.Executed)
}

func TestQueryRoundTrip(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)
	ctx := context.Background()

	require.NoError(t, conn.Exec(ctx, "CREATE TABLE users (id INTEGER, name VARCHAR, age INTEGER)", nil))
	require.NoError(t, conn.Exec(ctx,
		"INSERT INTO users VALUES (1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 35)", nil))

	res, err := conn.Query(ctx, "SELECT id, name, age FROM users ORDER BY id", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "age"}, res.Columns)
	require.Equal(t, 3, res.RowCount)
	assert.Equal(t, "Alice", res.Rows[0][1])
	assert.Equal(t, "Bob", res.Rows[1][1])
	assert.Equal(t, "Charlie", res.Rows[2][1])
}

func TestQueryHugeint(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)
	ctx := context.Background()

	res, err := conn.Query(ctx, "SELECT 170141183460469231731687303715884105727::HUGEINT AS wide", nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount)

	wide, ok := res.Rows[0][0].(*big.Int)
	require.True(t, ok, "HUGEINT should surface as *big.Int, got %T", res.Rows[0][0])
	assert.Equal(t, "170141183460469231731687303715884105727", wide.String())
}

func TestQueryErrorKeepsConnectionUsable(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)
	ctx := context.Background()

	_, err := conn.Query(ctx, "SELECT * FROM no_such_table", nil)
	var queryErr *sqlkit.QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, "SELECT * FROM no_such_table", queryErr.SQL)

	// A failed query says nothing about connection health.
	res, err := conn.Query(ctx, "SELECT 1 AS n", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestMustQueryPanicsWithTypedError(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		_, ok := recovered.(*sqlkit.QueryError)
		assert.True(t, ok, "panic value should be *sqlkit.QueryError, got %T", recovered)
	}()

	conn.MustQuery(context.Background(), "SELECT * FROM no_such_table", nil)
}

func TestMustExecPanicsWithTypedError(t *testing.T) {
	t.Parallel()

	conn := connectMemory(t)

	conn.MustExec(context.Background(), "CREATE TABLE scratch (n INTEGER)", nil)

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		_, ok := recovered.(*sqlkit.QueryError)
		assert.True(t, ok, "panic value should be *sqlkit.QueryError, got %T", recovered)
	}()

	conn.MustExec(context.Background(), "INSERT INTO no_such_table VALUES (1)", nil)
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()

	h := openMemory(t)
	conn, err := h.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}
