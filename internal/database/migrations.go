package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/thantzin/pocketledger/internal/logger"
)

// migration is one schema step. Versions must be declared strictly ascending;
// each migration runs inside its own transaction and the persisted schema
// version (PRAGMA user_version) only advances when that transaction commits.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS banks (
				remote_id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				color TEXT NOT NULL DEFAULT '',
				image_url TEXT NOT NULL DEFAULT '',
				last_synced_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			)`,

			`CREATE TABLE IF NOT EXISTS categories (
				remote_id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				user_id INTEGER,
				origin TEXT NOT NULL DEFAULT 'synced',
				last_synced_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			)`,

			`CREATE TABLE IF NOT EXISTS transactions (
				local_id TEXT PRIMARY KEY,
				remote_id INTEGER,
				bank_id INTEGER NOT NULL,
				category_id INTEGER NOT NULL,
				amount_cents INTEGER NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
				date TIMESTAMP NOT NULL,
				sync_status TEXT NOT NULL DEFAULT 'local',
				last_synced_at TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			)`,

			`CREATE TABLE IF NOT EXISTS budgets (
				local_id TEXT PRIMARY KEY,
				remote_id INTEGER,
				category_id INTEGER NOT NULL,
				amount_cents INTEGER NOT NULL,
				period TEXT NOT NULL CHECK (period IN ('monthly', 'yearly')),
				start_date TIMESTAMP NOT NULL,
				end_date TIMESTAMP NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				alert_at REAL NOT NULL DEFAULT 80,
				description TEXT NOT NULL DEFAULT '',
				sync_status TEXT NOT NULL DEFAULT 'local',
				last_synced_at TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			)`,

			`CREATE TABLE IF NOT EXISTS budget_alerts (
				local_id TEXT PRIMARY KEY,
				budget_id TEXT NOT NULL,
				percentage REAL NOT NULL,
				spent_cents INTEGER NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				is_read INTEGER NOT NULL DEFAULT 0,
				sync_status TEXT NOT NULL DEFAULT 'local',
				last_synced_at TIMESTAMP,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			)`,

			`CREATE TABLE IF NOT EXISTS sync_metadata (
				entity_type TEXT PRIMARY KEY,
				last_sync_at TIMESTAMP NOT NULL,
				last_sync_version INTEGER NOT NULL DEFAULT 0,
				sync_status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS app_settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "filtered read indexes",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_category_id ON transactions(category_id)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_bank_id ON transactions(bank_id)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_deleted_at ON transactions(deleted_at)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_sync_status ON transactions(sync_status)`,
			`CREATE INDEX IF NOT EXISTS idx_budgets_category_id ON budgets(category_id)`,
			`CREATE INDEX IF NOT EXISTS idx_budgets_is_active ON budgets(is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_budgets_deleted_at ON budgets(deleted_at)`,
			`CREATE INDEX IF NOT EXISTS idx_budget_alerts_budget_id ON budget_alerts(budget_id)`,
			`CREATE INDEX IF NOT EXISTS idx_budget_alerts_is_read ON budget_alerts(is_read)`,
			`CREATE INDEX IF NOT EXISTS idx_budget_alerts_deleted_at ON budget_alerts(deleted_at)`,
		},
	},
}

// SchemaVersion reads the persisted schema version.
func SchemaVersion(ctx context.Context, db DBTX) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// TargetSchemaVersion is the version EnsureSchema migrates to.
func TargetSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// EnsureSchema applies every migration newer than the persisted schema
// version, strictly ascending, one transaction per migration. It is
// idempotent: a store already at the target version is left untouched. On
// failure the persisted version is not advanced, so a retry replays the same
// migration.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	ctx, span := otel.Tracer("pocketledger/database").Start(ctx, "schema.ensure")
	defer span.End()

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		logger.Log.Info().
			Int("version", m.version).
			Str("name", m.name).
			Msg("applied schema migration")
		current = m.version
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	return WithTx(ctx, db, func(ctx context.Context, tx DBTX) error {
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		// PRAGMA does not support placeholders.
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version))
		return err
	})
}

// defaultCategories seed the store when the backend has never been reached.
// They are device-origin rows with ids from the local negative keyspace.
var defaultCategories = []string{
	"Food & Dining",
	"Groceries",
	"Transportation",
	"Housing",
	"Utilities",
	"Health",
	"Entertainment",
	"Education",
	"Shopping",
	"Travel",
	"Subscriptions",
	"Others",
}

// SeedCategories inserts the default device-origin categories. Idempotent:
// rows are keyed by their position in the seed list.
func SeedCategories(ctx context.Context, db DBTX) error {
	now := Now()
	for i, name := range defaultCategories {
		id := -int64(i + 1)
		_, err := db.ExecContext(ctx, `
			INSERT INTO categories (remote_id, name, origin, last_synced_at, created_at, updated_at)
			VALUES (?, ?, 'device', ?, ?, ?)
			ON CONFLICT (remote_id) DO NOTHING
		`, id, name, now, now, now)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", name, err)
		}
	}
	return nil
}
