// Package repository implements the typed repositories over the embedded
// store: soft-delete-aware reads, audit stamping and optimistic versioning
// for local-owned entities, upsert-only caching for master data.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/thantzin/pocketledger/internal/database"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// base is the contract shared by every repository: soft-delete-aware reads,
// id generation, existence and count checks, bulk insert. Concrete
// repositories embed it with their table, identity column and row scanner.
type base[T any] struct {
	db      database.DBTX
	table   string
	idCol   string
	columns string
	scan    func(rowScanner) (T, error)
}

// FindAll returns rows ordered by creation time descending. Soft-deleted
// rows are excluded unless includeDeleted is set.
func (b *base[T]) FindAll(ctx context.Context, includeDeleted bool) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", b.columns, b.table)
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY created_at DESC"
	return b.queryMany(ctx, query)
}

// findByID returns the non-deleted row with the given identity, or nil.
func (b *base[T]) findByID(ctx context.Context, id any) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND deleted_at IS NULL", b.columns, b.table, b.idCol)
	return b.queryOne(ctx, query, id)
}

// Delete soft-deletes a row and reports whether one was affected.
func (b *base[T]) Delete(ctx context.Context, id any) (bool, error) {
	now := database.Now()
	res, err := b.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET deleted_at = ?, updated_at = ? WHERE %s = ? AND deleted_at IS NULL", b.table, b.idCol),
		now, now, id)
	if err != nil {
		return false, fmt.Errorf("soft delete from %s: %w", b.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// HardDelete removes the row unconditionally, bypassing the audit trail.
// Dangerous; soft delete is the default path.
func (b *base[T]) HardDelete(ctx context.Context, id any) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", b.table, b.idCol), id)
	if err != nil {
		return false, fmt.Errorf("hard delete from %s: %w", b.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of rows, honoring the soft-delete filter.
func (b *base[T]) Count(ctx context.Context, includeDeleted bool) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", b.table)
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	var n int64
	if err := b.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", b.table, err)
	}
	return n, nil
}

// Exists reports whether a non-deleted row with the given identity exists.
func (b *base[T]) Exists(ctx context.Context, id any) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? AND deleted_at IS NULL", b.table, b.idCol)
	var one int
	err := b.db.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check existence in %s: %w", b.table, err)
	}
	return true, nil
}

// BulkInsert writes every row as one insert-or-replace batch inside a single
// transaction.
func (b *base[T]) BulkInsert(ctx context.Context, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		b.table, strings.Join(columns, ", "), placeholders)

	return database.WithTx(ctx, b.db, func(ctx context.Context, tx database.DBTX) error {
		for _, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("bulk insert into %s: row has %d values for %d columns", b.table, len(row), len(columns))
			}
			if _, err := tx.ExecContext(ctx, query, row...); err != nil {
				return fmt.Errorf("bulk insert into %s: %w", b.table, err)
			}
		}
		return nil
	})
}

func (b *base[T]) queryMany(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", b.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := b.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", b.table, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", b.table, err)
	}
	return out, nil
}

// queryOne returns a single row or nil when none matched. Not-found is never
// an error; callers branch on the nil result.
func (b *base[T]) queryOne(ctx context.Context, query string, args ...any) (*T, error) {
	row := b.db.QueryRowContext(ctx, query, args...)
	item, err := b.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query one %s: %w", b.table, err)
	}
	return &item, nil
}

// newLocalID generates a device-unique identifier for local-owned rows.
func newLocalID() string {
	return uuid.NewString()
}
