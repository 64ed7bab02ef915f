package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

func seedAlert(t *testing.T, repo *BudgetAlertRepository, budgetID string, percentage float64) models.BudgetAlert {
	t.Helper()
	a := models.BudgetAlert{
		BudgetID:    budgetID,
		Percentage:  percentage,
		SpentAmount: decimal.RequireFromString("85.50"),
		Message:     "budget threshold crossed",
	}
	require.NoError(t, repo.Create(context.Background(), &a))
	return a
}

func TestBudgetAlertRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewBudgetAlertRepository(database.TestDBHandle(t))

	a := models.BudgetAlert{
		BudgetID:    "b-1",
		Percentage:  80,
		SpentAmount: decimal.RequireFromString("85.50"),
		Message:     "budget threshold crossed",
		IsRead:      true, // ignored: new alerts always start unread
	}
	require.NoError(t, repo.Create(ctx, &a))
	require.False(t, a.IsRead)

	got, err := repo.FindByID(ctx, a.LocalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.False(t, got.IsRead)
	require.True(t, got.SpentAmount.Equal(decimal.RequireFromString("85.50")))
	require.EqualValues(t, 1, got.Version)
}

func TestBudgetAlertRepositoryMarkAsRead(t *testing.T) {
	ctx := context.Background()
	repo := NewBudgetAlertRepository(database.TestDBHandle(t))

	a := seedAlert(t, repo, "b-1", 80)

	ok, err := repo.MarkAsRead(ctx, a.LocalID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.FindByID(ctx, a.LocalID)
	require.NoError(t, err)
	require.True(t, got.IsRead)
	require.EqualValues(t, 2, got.Version)

	ok, err = repo.MarkAsRead(ctx, "no-such-id")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBudgetAlertRepositoryMarkMultipleAsRead(t *testing.T) {
	ctx := context.Background()
	repo := NewBudgetAlertRepository(database.TestDBHandle(t))

	first := seedAlert(t, repo, "b-1", 80)
	second := seedAlert(t, repo, "b-2", 80)
	third := seedAlert(t, repo, "b-3", 100)

	n, err := repo.MarkMultipleAsRead(ctx, []string{first.LocalID, second.LocalID, "no-such-id"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	unread, err := repo.GetUnreadCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)

	got, err := repo.FindByID(ctx, third.LocalID)
	require.NoError(t, err)
	require.False(t, got.IsRead)

	n, err = repo.MarkMultipleAsRead(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBudgetAlertRepositoryFindAllWithOptions(t *testing.T) {
	ctx := context.Background()
	db := database.TestDBHandle(t)
	repo := NewBudgetAlertRepository(db)
	budgets := NewBudgetRepository(db)
	categories := NewCategoryRepository(db)

	require.NoError(t, categories.Upsert(ctx, &models.Category{RemoteID: 1, Name: "Food"}))
	budget := seedBudget(t, budgets, 1, "100", models.BudgetPeriodMonthly, date(2025, time.March, 1))

	read := seedAlert(t, repo, budget.LocalID, 80)
	unread := seedAlert(t, repo, budget.LocalID, 100)
	deleted := seedAlert(t, repo, budget.LocalID, 120)

	_, err := repo.MarkAsRead(ctx, read.LocalID)
	require.NoError(t, err)
	_, err = repo.Delete(ctx, deleted.LocalID)
	require.NoError(t, err)

	t.Run("default excludes deleted and joins display fields", func(t *testing.T) {
		got, err := repo.FindAllWithOptions(ctx, AlertQueryOptions{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, a := range got {
			require.Equal(t, "Food", a.CategoryName)
			require.True(t, a.BudgetAmount.Equal(decimal.RequireFromString("100")))
		}
	})

	t.Run("unread only", func(t *testing.T) {
		got, err := repo.FindAllWithOptions(ctx, AlertQueryOptions{UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, unread.LocalID, got[0].LocalID)
	})

	t.Run("include deleted", func(t *testing.T) {
		got, err := repo.FindAllWithOptions(ctx, AlertQueryOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.Len(t, got, 3)
	})

	t.Run("orphaned budget join degrades to empty display fields", func(t *testing.T) {
		orphan := seedAlert(t, repo, "no-such-budget", 80)
		got, err := repo.FindAllWithOptions(ctx, AlertQueryOptions{})
		require.NoError(t, err)
		for _, a := range got {
			if a.LocalID == orphan.LocalID {
				require.Empty(t, a.CategoryName)
				require.True(t, a.BudgetAmount.IsZero())
				return
			}
		}
		t.Fatal("orphan alert not returned")
	})
}

func TestBudgetAlertRepositoryDedupeGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewBudgetAlertRepository(database.TestDBHandle(t))

	exists, err := repo.ExistsForBudgetAndPercentage(ctx, "b-1", 80)
	require.NoError(t, err)
	require.False(t, exists)

	a := seedAlert(t, repo, "b-1", 80)

	exists, err = repo.ExistsForBudgetAndPercentage(ctx, "b-1", 80)
	require.NoError(t, err)
	require.True(t, exists)

	// Other thresholds and budgets stay alertable.
	exists, err = repo.ExistsForBudgetAndPercentage(ctx, "b-1", 100)
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = repo.ExistsForBudgetAndPercentage(ctx, "b-2", 80)
	require.NoError(t, err)
	require.False(t, exists)

	// A soft-deleted alert no longer blocks re-alerting.
	_, err = repo.Delete(ctx, a.LocalID)
	require.NoError(t, err)
	exists, err = repo.ExistsForBudgetAndPercentage(ctx, "b-1", 80)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestBudgetAlertRepositoryDeleteOldReadAlerts(t *testing.T) {
	ctx := context.Background()
	db := database.TestDBHandle(t)
	repo := NewBudgetAlertRepository(db)

	oldRead := seedAlert(t, repo, "b-1", 80)
	_, err := repo.MarkAsRead(ctx, oldRead.LocalID)
	require.NoError(t, err)
	oldUnread := seedAlert(t, repo, "b-2", 80)
	freshRead := seedAlert(t, repo, "b-3", 80)
	_, err = repo.MarkAsRead(ctx, freshRead.LocalID)
	require.NoError(t, err)

	// Age two alerts past the cutoff.
	aged := database.Now().AddDate(0, 0, -40)
	for _, id := range []string{oldRead.LocalID, oldUnread.LocalID} {
		_, err := db.ExecContext(ctx, `UPDATE budget_alerts SET created_at = ? WHERE local_id = ?`, aged, id)
		require.NoError(t, err)
	}

	n, err := repo.DeleteOldReadAlerts(ctx, 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// Only the old, read alert went away.
	got, err := repo.FindByID(ctx, oldRead.LocalID)
	require.NoError(t, err)
	require.Nil(t, got)

	for _, id := range []string{oldUnread.LocalID, freshRead.LocalID} {
		got, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
	}
}
