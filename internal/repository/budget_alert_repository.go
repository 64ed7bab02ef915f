package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

const alertColumns = "local_id, budget_id, percentage, spent_cents, message, is_read, sync_status, last_synced_at, version, created_at, updated_at, deleted_at"

// BudgetAlertRepository records threshold-crossing snapshots against budgets
// and manages their read/cleanup lifecycle.
type BudgetAlertRepository struct {
	base[models.BudgetAlert]
}

// NewBudgetAlertRepository creates a new BudgetAlertRepository.
func NewBudgetAlertRepository(db database.DBTX) *BudgetAlertRepository {
	return &BudgetAlertRepository{base: base[models.BudgetAlert]{
		db:      db,
		table:   "budget_alerts",
		idCol:   "local_id",
		columns: alertColumns,
		scan:    scanAlert,
	}}
}

func scanAlert(s rowScanner) (models.BudgetAlert, error) {
	var a models.BudgetAlert
	var spentCents int64
	err := s.Scan(&a.LocalID, &a.BudgetID, &a.Percentage, &spentCents, &a.Message,
		&a.IsRead, &a.SyncStatus, &a.LastSyncedAt, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		return a, err
	}
	a.SpentAmount = decimalFromCents(spentCents)
	return a, nil
}

// FindByID returns the non-deleted alert with the given local id, or nil.
func (r *BudgetAlertRepository) FindByID(ctx context.Context, localID string) (*models.BudgetAlert, error) {
	return r.findByID(ctx, localID)
}

// Create records a triggered-alert snapshot. New alerts default to unread.
func (r *BudgetAlertRepository) Create(ctx context.Context, a *models.BudgetAlert) error {
	now := database.Now()
	a.LocalID = newLocalID()
	a.IsRead = false
	a.SyncStatus = models.SyncStatusLocal
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_alerts (local_id, budget_id, percentage, spent_cents, message, is_read, sync_status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
	`, a.LocalID, a.BudgetID, a.Percentage, centsFromDecimal(a.SpentAmount),
		a.Message, a.SyncStatus, a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create budget alert: %w", err)
	}
	return nil
}

// MarkAsRead marks one alert read, bumping version and updated_at. Reports
// whether a row was affected.
func (r *BudgetAlertRepository) MarkAsRead(ctx context.Context, localID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_alerts
		SET is_read = 1, version = version + 1, updated_at = ?
		WHERE local_id = ? AND deleted_at IS NULL
	`, database.Now(), localID)
	if err != nil {
		return false, fmt.Errorf("mark alert read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkMultipleAsRead marks the given alerts read in a single batched update,
// returning the affected count.
func (r *BudgetAlertRepository) MarkMultipleAsRead(ctx context.Context, localIDs []string) (int64, error) {
	if len(localIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(localIDs)), ", ")
	args := make([]any, 0, len(localIDs)+1)
	args = append(args, database.Now())
	for _, id := range localIDs {
		args = append(args, id)
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE budget_alerts
		SET is_read = 1, version = version + 1, updated_at = ?
		WHERE local_id IN (%s) AND deleted_at IS NULL
	`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// AlertQueryOptions narrows FindAllWithOptions.
type AlertQueryOptions struct {
	UnreadOnly     bool
	IncludeDeleted bool
}

// FindAllWithOptions returns alerts joined with their budget amount and
// category display name, newest first.
func (r *BudgetAlertRepository) FindAllWithOptions(ctx context.Context, opts AlertQueryOptions) ([]models.BudgetAlert, error) {
	where := []string{"1 = 1"}
	if !opts.IncludeDeleted {
		where = append(where, "a.deleted_at IS NULL")
	}
	if opts.UnreadOnly {
		where = append(where, "a.is_read = 0")
	}

	query := fmt.Sprintf(`
		SELECT %s, COALESCE(b.amount_cents, 0), COALESCE(c.name, '')
		FROM budget_alerts a
		LEFT JOIN budgets b ON a.budget_id = b.local_id
		LEFT JOIN categories c ON b.category_id = c.remote_id
		WHERE %s
		ORDER BY a.created_at DESC
	`, prefixColumns("a", alertColumns), strings.Join(where, " AND "))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query budget alerts: %w", err)
	}
	defer rows.Close()

	var out []models.BudgetAlert
	for rows.Next() {
		var a models.BudgetAlert
		var spentCents, budgetCents int64
		if err := rows.Scan(&a.LocalID, &a.BudgetID, &a.Percentage, &spentCents, &a.Message,
			&a.IsRead, &a.SyncStatus, &a.LastSyncedAt, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
			&budgetCents, &a.CategoryName); err != nil {
			return nil, fmt.Errorf("scan budget alert: %w", err)
		}
		a.SpentAmount = decimalFromCents(spentCents)
		a.BudgetAmount = decimalFromCents(budgetCents)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budget alerts: %w", err)
	}
	return out, nil
}

// GetUnreadCount counts non-deleted unread alerts.
func (r *BudgetAlertRepository) GetUnreadCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budget_alerts WHERE deleted_at IS NULL AND is_read = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread alert count: %w", err)
	}
	return n, nil
}

// ExistsForBudgetAndPercentage is the dedupe guard callers consult before
// creating an alert, so at most one non-deleted alert exists per
// (budget, threshold) pair. Advisory only: not backed by a unique index.
func (r *BudgetAlertRepository) ExistsForBudgetAndPercentage(ctx context.Context, budgetID string, percentage float64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM budget_alerts
		WHERE deleted_at IS NULL AND budget_id = ? AND percentage = ?
		LIMIT 1
	`, budgetID, percentage).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check alert existence: %w", err)
	}
	return true, nil
}

// DeleteOldReadAlerts soft-deletes read alerts created more than daysOld days
// ago, returning the affected count. Intended for periodic cleanup.
func (r *BudgetAlertRepository) DeleteOldReadAlerts(ctx context.Context, daysOld int) (int64, error) {
	now := database.Now()
	cutoff := now.AddDate(0, 0, -daysOld)
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_alerts
		SET deleted_at = ?, updated_at = ?
		WHERE deleted_at IS NULL AND is_read = 1 AND created_at < ?
	`, now, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old read alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
