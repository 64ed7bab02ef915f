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

const budgetColumns = "local_id, remote_id, category_id, amount_cents, period, start_date, end_date, is_active, alert_at, description, sync_status, last_synced_at, version, created_at, updated_at, deleted_at"

// defaultAlertAt is the warning threshold applied when a budget is created
// without one.
const defaultAlertAt = 80.0

// BudgetRepository owns local budget definitions and computes their spend
// rollups by joining against transaction aggregates.
type BudgetRepository struct {
	base[models.Budget]
}

// NewBudgetRepository creates a new BudgetRepository.
func NewBudgetRepository(db database.DBTX) *BudgetRepository {
	return &BudgetRepository{base: base[models.Budget]{
		db:      db,
		table:   "budgets",
		idCol:   "local_id",
		columns: budgetColumns,
		scan:    scanBudget,
	}}
}

func scanBudget(s rowScanner) (models.Budget, error) {
	var b models.Budget
	var cents int64
	err := s.Scan(&b.LocalID, &b.RemoteID, &b.CategoryID, &cents, &b.Period,
		&b.StartDate, &b.EndDate, &b.IsActive, &b.AlertAt, &b.Description,
		&b.SyncStatus, &b.LastSyncedAt, &b.Version, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	if err != nil {
		return b, err
	}
	b.Amount = decimalFromCents(cents)
	return b, nil
}

func scanBudgetWithCategory(s rowScanner) (models.Budget, error) {
	var b models.Budget
	var cents int64
	err := s.Scan(&b.LocalID, &b.RemoteID, &b.CategoryID, &cents, &b.Period,
		&b.StartDate, &b.EndDate, &b.IsActive, &b.AlertAt, &b.Description,
		&b.SyncStatus, &b.LastSyncedAt, &b.Version, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
		&b.CategoryName)
	if err != nil {
		return b, err
	}
	b.Amount = decimalFromCents(cents)
	return b, nil
}

// FindByID returns the non-deleted budget with the given local id, or nil.
func (r *BudgetRepository) FindByID(ctx context.Context, localID string) (*models.Budget, error) {
	return r.findByID(ctx, localID)
}

// Create inserts a new budget. The end date is always derived from the start
// date and period, never taken from the caller. Field validation is a caller
// concern.
func (r *BudgetRepository) Create(ctx context.Context, b *models.Budget) error {
	now := database.Now()
	b.LocalID = newLocalID()
	b.EndDate = b.Period.EndDate(b.StartDate)
	b.SyncStatus = models.SyncStatusLocal
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.AlertAt == 0 {
		b.AlertAt = defaultAlertAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (local_id, category_id, amount_cents, period, start_date, end_date, is_active, alert_at, description, sync_status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.LocalID, b.CategoryID, centsFromDecimal(b.Amount), b.Period, b.StartDate, b.EndDate,
		b.IsActive, b.AlertAt, b.Description, b.SyncStatus, b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

// BudgetUpdate enumerates the updatable fields. Nil fields are left
// untouched; EndDate has no slot because it is always recomputed when
// StartDate or Period changes.
type BudgetUpdate struct {
	CategoryID  *int64
	Amount      *decimal.Decimal
	Period      *models.BudgetPeriod
	StartDate   *time.Time
	IsActive    *bool
	AlertAt     *float64
	Description *string
}

// Update applies the supplied fields, re-deriving end_date whenever the start
// date or period changes, bumps the version and refreshes updated_at. An
// empty update is a no-op returning the unchanged row; a missing target
// returns nil without error.
func (r *BudgetRepository) Update(ctx context.Context, localID string, u BudgetUpdate) (*models.Budget, error) {
	var set []string
	var args []any

	if u.CategoryID != nil {
		set = append(set, "category_id = ?")
		args = append(args, *u.CategoryID)
	}
	if u.Amount != nil {
		set = append(set, "amount_cents = ?")
		args = append(args, centsFromDecimal(*u.Amount))
	}
	if u.Period != nil {
		set = append(set, "period = ?")
		args = append(args, *u.Period)
	}
	if u.StartDate != nil {
		set = append(set, "start_date = ?")
		args = append(args, *u.StartDate)
	}
	if u.IsActive != nil {
		set = append(set, "is_active = ?")
		args = append(args, *u.IsActive)
	}
	if u.AlertAt != nil {
		set = append(set, "alert_at = ?")
		args = append(args, *u.AlertAt)
	}
	if u.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *u.Description)
	}

	if len(set) == 0 {
		return r.FindByID(ctx, localID)
	}

	if u.Period != nil || u.StartDate != nil {
		current, err := r.FindByID(ctx, localID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
		period := current.Period
		if u.Period != nil {
			period = *u.Period
		}
		start := current.StartDate
		if u.StartDate != nil {
			start = *u.StartDate
		}
		set = append(set, "end_date = ?")
		args = append(args, period.EndDate(start))
	}

	set = append(set, "version = version + 1", "updated_at = ?")
	args = append(args, database.Now(), localID)

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE budgets SET %s WHERE local_id = ? AND deleted_at IS NULL", strings.Join(set, ", ")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("update budget: %w", err)
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

// FindActive returns non-deleted active budgets joined with the category
// display name, newest first.
func (r *BudgetRepository) FindActive(ctx context.Context) ([]models.Budget, error) {
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(c.name, '')
		FROM budgets b
		LEFT JOIN categories c ON b.category_id = c.remote_id
		WHERE b.deleted_at IS NULL AND b.is_active = 1
		ORDER BY b.created_at DESC
	`, prefixColumns("b", budgetColumns))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find active budgets: %w", err)
	}
	defer rows.Close()

	var out []models.Budget
	for rows.Next() {
		b, err := scanBudgetWithCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// FindWithStats computes the spend rollup for every active budget: one
// aggregate query per budget, recomputed from scratch on every call.
func (r *BudgetRepository) FindWithStats(ctx context.Context) ([]models.BudgetWithStats, error) {
	budgets, err := r.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	now := database.Now()
	out := make([]models.BudgetWithStats, 0, len(budgets))
	for _, b := range budgets {
		spent, err := r.spentInWindow(ctx, b.CategoryID, b.StartDate, b.EndDate)
		if err != nil {
			return nil, err
		}

		pct := 0.0
		if b.Amount.IsPositive() {
			pct, _ = spent.Div(b.Amount).Mul(decimal.NewFromInt(100)).Float64()
		} else if spent.IsPositive() {
			pct = 100
		}

		out = append(out, models.BudgetWithStats{
			Budget:          b,
			SpentAmount:     spent,
			RemainingAmount: b.Amount.Sub(spent),
			PercentageUsed:  pct,
			Status:          models.StatusFor(pct, b.AlertAt),
			DaysRemaining:   models.DaysRemaining(b.EndDate, now),
		})
	}
	return out, nil
}

func (r *BudgetRepository) spentInWindow(ctx context.Context, categoryID int64, start, end time.Time) (decimal.Decimal, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE deleted_at IS NULL AND type = 'expense' AND category_id = ? AND date >= ? AND date <= ?
	`, categoryID, start, end).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("budget spend for category %d: %w", categoryID, err)
	}
	return decimalFromCents(cents), nil
}

// FindByCategory returns the most recently created active budget for the
// category, or nil.
func (r *BudgetRepository) FindByCategory(ctx context.Context, categoryID int64) (*models.Budget, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM budgets
		WHERE deleted_at IS NULL AND is_active = 1 AND category_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, budgetColumns)
	return r.queryOne(ctx, query, categoryID)
}

// DeactivateExpired flips is_active off for every active budget whose end
// date has passed, in one bulk update, returning the affected count.
func (r *BudgetRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	now := database.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets
		SET is_active = 0, version = version + 1, updated_at = ?
		WHERE deleted_at IS NULL AND is_active = 1 AND end_date < ?
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired budgets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
