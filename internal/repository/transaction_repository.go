package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

const transactionColumns = "local_id, remote_id, bank_id, category_id, amount_cents, description, type, date, sync_status, last_synced_at, version, created_at, updated_at, deleted_at"

// TransactionRepository owns the lifecycle of local income/expense entries:
// generated identifiers, optimistic versioning, soft delete.
type TransactionRepository struct {
	base[models.Transaction]
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db database.DBTX) *TransactionRepository {
	return &TransactionRepository{base: base[models.Transaction]{
		db:      db,
		table:   "transactions",
		idCol:   "local_id",
		columns: transactionColumns,
		scan:    scanTransaction,
	}}
}

func scanTransaction(s rowScanner) (models.Transaction, error) {
	var t models.Transaction
	var cents int64
	err := s.Scan(&t.LocalID, &t.RemoteID, &t.BankID, &t.CategoryID, &cents,
		&t.Description, &t.Type, &t.Date, &t.SyncStatus, &t.LastSyncedAt,
		&t.Version, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return t, err
	}
	t.Amount = decimalFromCents(cents)
	return t, nil
}

// FindByID returns the non-deleted transaction with the given local id, or nil.
func (r *TransactionRepository) FindByID(ctx context.Context, localID string) (*models.Transaction, error) {
	return r.findByID(ctx, localID)
}

// Create inserts a new transaction, generating its local id and stamping
// sync_status=local, version=1 and audit timestamps onto t.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	now := database.Now()
	t.LocalID = newLocalID()
	t.SyncStatus = models.SyncStatusLocal
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (local_id, bank_id, category_id, amount_cents, description, type, date, sync_status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.LocalID, t.BankID, t.CategoryID, centsFromDecimal(t.Amount),
		t.Description, t.Type, t.Date, t.SyncStatus, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// TransactionUpdate enumerates the updatable fields. Nil fields are left
// untouched.
type TransactionUpdate struct {
	BankID      *int64
	CategoryID  *int64
	Amount      *decimal.Decimal
	Description *string
	Type        *models.TransactionType
	Date        *time.Time
}

// Update applies the supplied fields, bumps the version by exactly 1 and
// refreshes updated_at. An empty update is a no-op returning the unchanged
// row. A missing target returns nil without error.
func (r *TransactionRepository) Update(ctx context.Context, localID string, u TransactionUpdate) (*models.Transaction, error) {
	var set []string
	var args []any

	if u.BankID != nil {
		set = append(set, "bank_id = ?")
		args = append(args, *u.BankID)
	}
	if u.CategoryID != nil {
		set = append(set, "category_id = ?")
		args = append(args, *u.CategoryID)
	}
	if u.Amount != nil {
		set = append(set, "amount_cents = ?")
		args = append(args, centsFromDecimal(*u.Amount))
	}
	if u.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Type != nil {
		set = append(set, "type = ?")
		args = append(args, *u.Type)
	}
	if u.Date != nil {
		set = append(set, "date = ?")
		args = append(args, *u.Date)
	}

	if len(set) == 0 {
		return r.FindByID(ctx, localID)
	}

	set = append(set, "version = version + 1", "updated_at = ?")
	args = append(args, database.Now(), localID)

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE transactions SET %s WHERE local_id = ? AND deleted_at IS NULL", strings.Join(set, ", ")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, localID)
}

// TransactionFilter narrows FindWithFilters. Date bounds are inclusive.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Type       *models.TransactionType
	BankID     *int64
	CategoryID *int64
	Limit      int
	Offset     int
}

// FindWithFilters returns non-deleted transactions matching the filter,
// ordered by date descending then creation time descending.
func (r *TransactionRepository) FindWithFilters(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	if f.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, *f.EndDate)
	}
	if f.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *f.Type)
	}
	if f.BankID != nil {
		where = append(where, "bank_id = ?")
		args = append(args, *f.BankID)
	}
	if f.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *f.CategoryID)
	}

	query := fmt.Sprintf("SELECT %s FROM transactions WHERE %s ORDER BY date DESC, created_at DESC",
		transactionColumns, strings.Join(where, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		// sqlite requires a LIMIT clause before OFFSET; -1 means unbounded.
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}

	return r.queryMany(ctx, query, args...)
}

// GetStats returns income, expense, net and count over an optional inclusive
// date range. All totals default to zero on an empty set.
func (r *TransactionRepository) GetStats(ctx context.Context, startDate, endDate *time.Time) (models.TransactionStats, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if startDate != nil {
		where = append(where, "date >= ?")
		args = append(args, *startDate)
	}
	if endDate != nil {
		where = append(where, "date <= ?")
		args = append(args, *endDate)
	}

	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0),
			COUNT(*)
		FROM transactions WHERE %s
	`, strings.Join(where, " AND "))

	var incomeCents, expenseCents, count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&incomeCents, &expenseCents, &count); err != nil {
		return models.TransactionStats{}, fmt.Errorf("transaction stats: %w", err)
	}

	income := decimalFromCents(incomeCents)
	expense := decimalFromCents(expenseCents)
	return models.TransactionStats{
		TotalIncome:  income,
		TotalExpense: expense,
		NetAmount:    income.Sub(expense),
		Count:        count,
	}, nil
}

// GetSpendingByCategory aggregates expense transactions per category over an
// optional inclusive date range, largest total first.
func (r *TransactionRepository) GetSpendingByCategory(ctx context.Context, startDate, endDate *time.Time) ([]models.CategorySpending, error) {
	where := []string{"t.deleted_at IS NULL", "t.type = 'expense'"}
	var args []any
	if startDate != nil {
		where = append(where, "t.date >= ?")
		args = append(args, *startDate)
	}
	if endDate != nil {
		where = append(where, "t.date <= ?")
		args = append(args, *endDate)
	}

	query := fmt.Sprintf(`
		SELECT t.category_id, COALESCE(c.name, ''), SUM(t.amount_cents), COUNT(*)
		FROM transactions t
		LEFT JOIN categories c ON t.category_id = c.remote_id
		WHERE %s
		GROUP BY t.category_id, c.name
		ORDER BY SUM(t.amount_cents) DESC
	`, strings.Join(where, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("spending by category: %w", err)
	}
	defer rows.Close()

	var out []models.CategorySpending
	for rows.Next() {
		var cs models.CategorySpending
		var cents int64
		if err := rows.Scan(&cs.CategoryID, &cs.CategoryName, &cents, &cs.Count); err != nil {
			return nil, fmt.Errorf("scan category spending: %w", err)
		}
		cs.Total = decimalFromCents(cents)
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category spending: %w", err)
	}
	return out, nil
}
