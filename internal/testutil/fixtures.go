// Package testutil provides shared test fixtures: in-memory pools, the
// seeded users table, and temporary history stores.
package testutil

import (
	"context"
	"testing"

	"github.com/tylerbarker/sql-kit/internal/history"
	"github.com/tylerbarker/sql-kit/pool"
)

// StartMemoryPool starts an in-memory pool of the given size and registers
// its teardown.
func StartMemoryPool(t *testing.T, size int) *pool.Pool {
	t.Helper()

	p, err := pool.Start(context.Background(), pool.Config{
		Name:     t.Name(),
		Location: ":memory:",
		Size:     size,
	})
	if err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// SeedUsers creates the users table with the canonical three rows:
// (1, Alice, 30), (2, Bob, 25), (3, Charlie, 35).
func SeedUsers(t *testing.T, p *pool.Pool) {
	t.Helper()

	ctx := context.Background()
	stmts := []string{
		"CREATE TABLE users (id INTEGER, name VARCHAR, age INTEGER)",
		"INSERT INTO users VALUES (1, 'Alice', 30), (2, 'Bob', 25), (3, 'Charlie', 35)",
	}
	for _, stmt := range stmts {
		if err := p.Exec(ctx, stmt, nil); err != nil {
			t.Fatalf("seed users: %v", err)
		}
	}
}

// OpenTestHistory opens a history store in t.TempDir() and registers its
// teardown.
func OpenTestHistory(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(t.TempDir() + "/history.sqlite")
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
