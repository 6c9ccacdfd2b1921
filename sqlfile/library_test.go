package sqlfile

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiledLibrary(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/users/list.sql":   {Data: []byte("SELECT * FROM users")},
		"sql/users/by_id.sql":  {Data: []byte("SELECT * FROM users WHERE id = ?")},
		"sql/orders/count.sql": {Data: []byte("SELECT count(*) FROM orders")},
		"sql/readme.txt":       {Data: []byte("not sql")},
	}

	lib, err := Compiled(fsys, "sql")
	require.NoError(t, err)

	text, err := lib.Load("users/list")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users", text)

	assert.Equal(t, []string{"orders/count", "users/by_id", "users/list"}, lib.Names())

	_, err = lib.Load("users/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users/missing")
}

func TestCompiledIgnoresDiskEdits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1"), 0o644))

	lib, err := Compiled(os.DirFS(dir), ".")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("SELECT 2"), 0o644))

	text, err := lib.Load("q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text, "compiled mode caches at load time")
}

func TestDynamicObservesDiskEdits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1"), 0o644))

	lib := Dynamic(dir)

	text, err := lib.Load("q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text)

	require.NoError(t, os.WriteFile(path, []byte("SELECT 2"), 0o644))

	text, err = lib.Load("q")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", text, "dynamic mode re-reads per lookup")
}

func TestDynamicMissing(t *testing.T) {
	t.Parallel()

	lib := Dynamic(t.TempDir())
	_, err := lib.Load("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestDynamicNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sql"), []byte("SELECT 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.sql"), []byte("SELECT 2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("x"), 0o644))

	lib := Dynamic(dir)
	assert.Equal(t, []string{"a", "nested/b"}, lib.Names())
}
