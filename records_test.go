package sqlkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersResult() *QueryResult {
	return NewResult(
		[]string{"id", "name", "age"},
		[][]any{
			{int64(1), "Alice", int64(30)},
			{int64(2), "Bob", int64(25)},
			{int64(3), "Charlie", int64(35)},
		},
		"SELECT * FROM users",
	)
}

func TestRecordsColumnAdmission(t *testing.T) {
	t.Parallel()

	t.Run("no declaration rejects first column", func(t *testing.T) {
		t.Parallel()
		_, err := usersResult().Records()

		var unknownErr *UnknownColumnError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "id", unknownErr.Column)
		assert.Empty(t, unknownErr.Allowed)
	})

	t.Run("declared columns admit", func(t *testing.T) {
		t.Parallel()
		records, err := usersResult().Records(WithColumns("id", "name", "age"))
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, Record{"id": int64(1), "name": "Alice", "age": int64(30)}, records[0])
	})

	t.Run("undeclared column rejected", func(t *testing.T) {
		t.Parallel()
		_, err := usersResult().Records(WithColumns("id", "name"))

		var unknownErr *UnknownColumnError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "age", unknownErr.Column)
		assert.Equal(t, []string{"id", "name"}, unknownErr.Allowed)
	})

	t.Run("dynamic columns admit anything", func(t *testing.T) {
		t.Parallel()
		records, err := usersResult().Records(WithDynamicColumns())
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})
}

type user struct {
	ID   int64 `db:"id"`
	Name string
	Age  int64
}

func TestCollect(t *testing.T) {
	t.Parallel()

	t.Run("binds tags and case-insensitive names", func(t *testing.T) {
		t.Parallel()
		users, err := Collect[user](usersResult())
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, user{ID: 1, Name: "Alice", Age: 30}, users[0])
		assert.Equal(t, user{ID: 3, Name: "Charlie", Age: 35}, users[2])
	})

	t.Run("unbound column fails", func(t *testing.T) {
		t.Parallel()
		res := NewResult([]string{"id", "email"}, [][]any{{int64(1), "a@b.c"}}, "")
		_, err := Collect[user](res)

		var recErr *RecordError
		require.ErrorAs(t, err, &recErr)
		assert.Equal(t, "email", recErr.Column)
		assert.Contains(t, recErr.Target, "user")
	})

	t.Run("numeric conversion", func(t *testing.T) {
		t.Parallel()
		type narrow struct {
			ID int32 `db:"id"`
		}
		res := NewResult([]string{"id"}, [][]any{{int64(7)}}, "")
		out, err := Collect[narrow](res)
		require.NoError(t, err)
		assert.Equal(t, int32(7), out[0].ID)
	})

	t.Run("nil values leave zero fields", func(t *testing.T) {
		t.Parallel()
		res := NewResult([]string{"id", "name", "age"}, [][]any{{int64(1), nil, int64(20)}}, "")
		out, err := Collect[user](res)
		require.NoError(t, err)
		assert.Equal(t, user{ID: 1, Name: "", Age: 20}, out[0])
	})

	t.Run("non-struct target fails", func(t *testing.T) {
		t.Parallel()
		_, err := Collect[int](usersResult())
		assert.Error(t, err)
	})
}

func TestOneRecord(t *testing.T) {
	t.Parallel()

	t.Run("zero rows", func(t *testing.T) {
		t.Parallel()
		res := NewResult([]string{"id"}, nil, "SELECT id FROM users WHERE false")
		_, err := res.OneRecord(WithDynamicColumns())

		var noResults *NoResultsError
		require.ErrorAs(t, err, &noResults)
		assert.Equal(t, "SELECT id FROM users WHERE false", noResults.Label)
	})

	t.Run("one row", func(t *testing.T) {
		t.Parallel()
		res := NewResult([]string{"id"}, [][]any{{int64(1)}}, "")
		rec, err := res.OneRecord(WithDynamicColumns())
		require.NoError(t, err)
		assert.Equal(t, Record{"id": int64(1)}, rec)
	})

	t.Run("three rows", func(t *testing.T) {
		t.Parallel()
		_, err := usersResult().OneRecord(WithDynamicColumns())

		var multiple *MultipleResultsError
		require.ErrorAs(t, err, &multiple)
		assert.Equal(t, 3, multiple.Count)
		assert.Equal(t, "SELECT * FROM users", multiple.Label)
	})

	t.Run("caller label wins", func(t *testing.T) {
		t.Parallel()
		_, err := usersResult().OneRecord(WithDynamicColumns(), WithLabel("all users"))

		var multiple *MultipleResultsError
		require.ErrorAs(t, err, &multiple)
		assert.Equal(t, "all users", multiple.Label)
	})
}

func TestCollectOne(t *testing.T) {
	t.Parallel()

	res := NewResult([]string{"id", "name", "age"}, [][]any{{int64(2), "Bob", int64(25)}}, "")
	got, err := CollectOne[user](res)
	require.NoError(t, err)
	assert.Equal(t, user{ID: 2, Name: "Bob", Age: 25}, got)

	_, err = CollectOne[user](usersResult())
	var multiple *MultipleResultsError
	require.ErrorAs(t, err, &multiple)
	assert.Equal(t, 3, multiple.Count)
}

func TestMustRecords(t *testing.T) {
	t.Parallel()

	records := usersResult().MustRecords(WithDynamicColumns())
	assert.Len(t, records, 3)

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		_, ok := recovered.(*UnknownColumnError)
		assert.True(t, ok, "panic value should be the typed error, got %T", recovered)
	}()
	usersResult().MustRecords()
}

func TestMustCollect(t *testing.T) {
	t.Parallel()

	users := MustCollect[user](usersResult())
	require.Len(t, users, 3)
	assert.Equal(t, "Bob", users[1].Name)

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		_, ok := recovered.(*RecordError)
		assert.True(t, ok, "panic value should be the typed error, got %T", recovered)
	}()
	MustCollect[user](NewResult([]string{"email"}, [][]any{{"a@b.c"}}, ""))
}

func TestMustCollectOne(t *testing.T) {
	t.Parallel()

	one := NewResult([]string{"id", "name", "age"}, [][]any{{int64(2), "Bob", int64(25)}}, "")
	assert.Equal(t, user{ID: 2, Name: "Bob", Age: 25}, MustCollectOne[user](one))

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		_, ok := recovered.(*MultipleResultsError)
		assert.True(t, ok, "panic value should be the typed error, got %T", recovered)
	}()
	MustCollectOne[user](usersResult())
}

func TestMustOneRecord(t *testing.T) {
	t.Parallel()

	one := NewResult([]string{"id"}, [][]any{{int64(1)}}, "")
	assert.Equal(t, Record{"id": int64(1)}, one.MustOneRecord(WithDynamicColumns()))

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		_, ok := recovered.(*MultipleResultsError)
		assert.True(t, ok, "panic value should be the typed error, got %T", recovered)
	}()
	usersResult().MustOneRecord(WithDynamicColumns())
}
