package database

import (
	"context"
	"testing"
)

// TestDB returns an isolated in-memory store with the schema applied.
func TestDB(t *testing.T) *Engine {
	t.Helper()

	engine := NewEngine(":memory:")
	db, err := engine.Open(context.Background())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = engine.Close()
	})

	return engine
}

// TestDBHandle is TestDB returning the raw handle for repository tests.
func TestDBHandle(t *testing.T) DBTX {
	t.Helper()

	db, err := TestDB(t).DB()
	if err != nil {
		t.Fatalf("failed to get test database handle: %v", err)
	}
	return db
}
