package sqlkit

import (
	"math/big"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigIntFromPair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hi   int64
		lo   uint64
		want string
	}{
		{name: "zero", hi: 0, lo: 0, want: "0"},
		{name: "low only", hi: 0, lo: 42, want: "42"},
		{name: "one high unit", hi: 1, lo: 0, want: "18446744073709551616"},
		{name: "high and low", hi: 1, lo: 1, want: "18446744073709551617"},
		{name: "negative", hi: -1, lo: 18446744073709551615, want: "-1"},
		{name: "max int128", hi: 9223372036854775807, lo: 18446744073709551615,
			want: "170141183460469231731687303715884105727"},
		{name: "min int128", hi: -9223372036854775808, lo: 0,
			want: "-170141183460469231731687303715884105728"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BigIntFromPair(tt.hi, tt.lo).String())
		})
	}
}

func TestNormalizeValuePairs(t *testing.T) {
	t.Parallel()

	t.Run("small pair collapses to int64", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{int64(0), int64(42)})
		assert.Equal(t, int64(42), got)
	})

	t.Run("wide pair stays big", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{int64(1), int64(0)})
		wide, ok := got.(*big.Int)
		require.True(t, ok, "expected *big.Int, got %T", got)
		assert.Equal(t, "18446744073709551616", wide.String())
	})

	t.Run("negative low half is raw bits", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{int64(-1), int64(-1)})
		assert.Equal(t, int64(-1), got)
	})

	t.Run("mixed integer kinds", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{int(0), uint32(7)})
		assert.Equal(t, int64(7), got)
	})
}

func TestNormalizeValueRecursion(t *testing.T) {
	t.Parallel()

	t.Run("nested list", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{"a", []any{int64(0), int64(5)}, "b"})
		assert.Equal(t, []any{"a", int64(5), "b"}, got)
	})

	t.Run("struct-shaped map", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue(map[string]any{
			"wide":  []any{int64(1), int64(2)},
			"plain": "x",
		})
		m, ok := got.(map[string]any)
		require.True(t, ok)
		wide, ok := m["wide"].(*big.Int)
		require.True(t, ok)
		assert.Equal(t, "18446744073709551618", wide.String())
		assert.Equal(t, "x", m["plain"])
	})

	t.Run("deeply nested", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{
			map[string]any{"inner": []any{[]any{int64(0), int64(9)}, "keep", "it"}},
		})
		list := got.([]any)
		inner := list[0].(map[string]any)["inner"].([]any)
		assert.Equal(t, []any{int64(9), "keep", "it"}, inner)
	})
}

func TestNormalizeValueNonPairs(t *testing.T) {
	t.Parallel()

	t.Run("bytes become string", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "hello", NormalizeValue([]byte("hello")))
	})

	t.Run("three-element list untouched as pair", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{int64(1), int64(2), int64(3)})
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)
	})

	t.Run("pair with non-integer element untouched", func(t *testing.T) {
		t.Parallel()
		got := NormalizeValue([]any{int64(1), "two"})
		assert.Equal(t, []any{int64(1), "two"}, got)
	})

	t.Run("scalars pass through", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, int64(7), NormalizeValue(int64(7)))
		assert.Equal(t, 3.14, NormalizeValue(3.14))
		assert.Nil(t, NormalizeValue(nil))
	})
}

func TestTruncateSQL(t *testing.T) {
	t.Parallel()

	short := "SELECT 1"
	assert.Equal(t, short, TruncateSQL(short))

	long := "SELECT a, b, c, d, e, f, g FROM a_rather_long_table_name WHERE a = 1 AND b = 2"
	got := TruncateSQL(long)
	assert.Len(t, got, 53) // 50 + "..."
	assert.Equal(t, long[:50]+"...", got)

	assert.Equal(t, "SELECT 1 FROM t", TruncateSQL("SELECT  1\n  FROM\tt"))

	// Truncation must land on a rune boundary, not mid-character.
	wide := "SELECT '" + strings.Repeat("é", 60) + "'"
	got = TruncateSQL(wide)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 53, utf8.RuneCountInString(got))
	assert.Equal(t, "SELECT '"+strings.Repeat("é", 42)+"...", got)
}

func TestQueryResultLabel(t *testing.T) {
	t.Parallel()

	res := NewResult([]string{"a"}, nil, "SELECT a FROM t")
	assert.Equal(t, "SELECT a FROM t", res.Label())

	unknown := NewResult([]string{"a"}, nil, "")
	assert.Equal(t, "query", unknown.Label())
}
