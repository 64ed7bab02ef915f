package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

func TestCategoryRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(database.TestDBHandle(t))

	userID := int64(42)
	cat := models.Category{RemoteID: 7, Name: "Food", Description: "Meals out", UserID: &userID}

	require.NoError(t, repo.Upsert(ctx, &cat))
	require.NoError(t, repo.Upsert(ctx, &cat))

	count, err := repo.Count(ctx, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	got, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Food", got.Name)
	require.Equal(t, models.CategoryOriginSynced, got.Origin)
	require.NotNil(t, got.UserID)
	require.EqualValues(t, 42, *got.UserID)
}

func TestCategoryRepositoryCreateLocal(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(database.TestDBHandle(t))

	require.NoError(t, repo.Upsert(ctx, &models.Category{RemoteID: 5, Name: "Transport"}))

	first, err := repo.CreateLocal(ctx, "Side Hustle", "freelance income", nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, models.CategoryOriginDevice, first.Origin)
	require.Negative(t, first.RemoteID)

	second, err := repo.CreateLocal(ctx, "Pets", "", nil)
	require.NoError(t, err)
	require.Less(t, second.RemoteID, first.RemoteID)

	// Device-origin rows never shadow backend ids.
	synced, err := repo.FindByID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, models.CategoryOriginSynced, synced.Origin)
}

func TestCategoryRepositoryIsReadOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(database.TestDBHandle(t))

	require.NoError(t, repo.Upsert(ctx, &models.Category{RemoteID: 1, Name: "Food"}))
	local, err := repo.CreateLocal(ctx, "Pets", "", nil)
	require.NoError(t, err)

	require.ErrorIs(t, repo.Create(ctx, &models.Category{RemoteID: 2, Name: "New"}), ErrReadOnlyMasterData)
	require.ErrorIs(t, repo.Update(ctx, 1), ErrReadOnlyMasterData)

	// Deletion is rejected for synced and device-origin rows alike.
	for _, id := range []int64{1, local.RemoteID} {
		ok, err := repo.Delete(ctx, id)
		require.ErrorIs(t, err, ErrReadOnlyMasterData)
		require.False(t, ok)
	}
}

func TestCategoryRepositorySearch(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(database.TestDBHandle(t))

	require.NoError(t, repo.BulkUpsert(ctx, []models.Category{
		{RemoteID: 1, Name: "Food & Dining"},
		{RemoteID: 2, Name: "Fast Food"},
		{RemoteID: 3, Name: "Transport"},
	}))

	got, err := repo.Search(ctx, "food")
	require.NoError(t, err)
	require.Len(t, got, 2)
}
