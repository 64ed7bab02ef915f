// Package database provides the embedded SQLite storage engine and schema
// management for the local store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thantzin/pocketledger/internal/logger"
)

// DBTX is the subset of database/sql used by repositories. Both *sql.DB and
// *sql.Tx satisfy this interface, which is essential for running bulk
// operations and tests inside transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner can start a database transaction. Implemented by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ensure types implement the interfaces at compile time.
var (
	_ DBTX       = (*sql.DB)(nil)
	_ DBTX       = (*sql.Tx)(nil)
	_ TxBeginner = (*sql.DB)(nil)
)

// WithTx runs fn inside a transaction, committing on nil return and rolling
// back on error or panic (panics are rethrown). If db cannot begin a
// transaction (it is already a *sql.Tx), fn runs against db directly so bulk
// helpers compose when a caller already holds a transaction.
func WithTx(ctx context.Context, db DBTX, fn func(ctx context.Context, tx DBTX) error) (err error) {
	beginner, ok := db.(TxBeginner)
	if !ok {
		return fn(ctx, db)
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// domainTables are the tables reported by Stats, in schema order.
var domainTables = []string{
	"banks",
	"categories",
	"transactions",
	"budgets",
	"budget_alerts",
	"sync_metadata",
	"app_settings",
}

// Engine owns the single connection handle to the embedded store. The first
// successful Open wins; concurrent callers before that share one in-flight
// initialization behind the mutex, and a failed open leaves the engine
// unopened so a later call retries.
type Engine struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewEngine returns an unopened engine for the store at path. Use ":memory:"
// for an ephemeral store.
func NewEngine(path string) *Engine {
	return &Engine{path: path}
}

// Open lazily opens the store exactly once and returns the shared handle.
func (e *Engine) Open(ctx context.Context) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openLocked(ctx)
}

func (e *Engine) openLocked(ctx context.Context) (*sql.DB, error) {
	if e.db != nil {
		return e.db, nil
	}

	if e.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Cross-entity links are resolved by joins at read time, not enforced
	// foreign keys: local-owned rows must be writable before master data has
	// ever synced.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", e.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writes; one connection avoids SQLITE_BUSY
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Log.Debug().Str("path", e.path).Msg("storage engine opened")
	e.db = db
	return db, nil
}

// DB returns the open handle, or an error if the engine was never opened.
func (e *Engine) DB() (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil, fmt.Errorf("storage engine is not open")
	}
	return e.db, nil
}

// Close releases the connection handle. A closed engine can be reopened.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// Stats returns row counts per domain table, for diagnostics.
func (e *Engine) Stats(ctx context.Context) (map[string]int64, error) {
	db, err := e.DB()
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(domainTables))
	for _, table := range domainTables {
		var n int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count rows in %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

// Reset destroys the store and rebuilds an empty one: close, delete the
// file, reopen, re-apply the schema. Intended for test and support tooling
// only.
func (e *Engine) Reset(ctx context.Context) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			return nil, fmt.Errorf("close database: %w", err)
		}
		e.db = nil
	}

	if e.path != ":memory:" {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove database file: %w", err)
		}
	}

	db, err := e.openLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	logger.Log.Warn().Str("path", e.path).Msg("storage engine reset")
	return db, nil
}

// Now returns UTC time for audit stamps.
func Now() time.Time {
	return time.Now().UTC()
}
