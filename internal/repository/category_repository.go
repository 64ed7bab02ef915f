package repository

import (
	"context"
	"fmt"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

const categoryColumns = "remote_id, name, description, user_id, origin, last_synced_at, created_at, updated_at, deleted_at"

// CategoryRepository maintains the local read cache of backend-owned spending
// categories. Rows change only through sync upserts, with one escape hatch:
// CreateLocal makes a device-origin row that the backend never sees.
type CategoryRepository struct {
	base[models.Category]
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db database.DBTX) *CategoryRepository {
	return &CategoryRepository{base: base[models.Category]{
		db:      db,
		table:   "categories",
		idCol:   "remote_id",
		columns: categoryColumns,
		scan:    scanCategory,
	}}
}

func scanCategory(s rowScanner) (models.Category, error) {
	var c models.Category
	err := s.Scan(&c.RemoteID, &c.Name, &c.Description, &c.UserID, &c.Origin,
		&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return c, err
}

// FindByID returns the non-deleted category with the given remote id, or nil.
func (r *CategoryRepository) FindByID(ctx context.Context, remoteID int64) (*models.Category, error) {
	return r.findByID(ctx, remoteID)
}

// Upsert inserts or replaces the category keyed by its remote id, refreshing
// last_synced_at. Origin is forced to synced: only backend snapshots arrive
// here.
func (r *CategoryRepository) Upsert(ctx context.Context, category *models.Category) error {
	return upsertCategory(ctx, r.db, category)
}

func upsertCategory(ctx context.Context, db database.DBTX, category *models.Category) error {
	now := database.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO categories (remote_id, name, description, user_id, origin, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'synced', ?, ?, ?)
		ON CONFLICT (remote_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			user_id = excluded.user_id,
			origin = excluded.origin,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
	`, category.RemoteID, category.Name, category.Description, category.UserID, now, now, now)
	if err != nil {
		return fmt.Errorf("upsert category %d: %w", category.RemoteID, err)
	}
	return nil
}

// BulkUpsert applies the whole batch inside one transaction.
func (r *CategoryRepository) BulkUpsert(ctx context.Context, categories []models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		for i := range categories {
			if err := upsertCategory(ctx, tx, &categories[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search matches the display name with a case-insensitive substring.
func (r *CategoryRepository) Search(ctx context.Context, text string) ([]models.Category, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM categories
		WHERE deleted_at IS NULL AND LOWER(name) LIKE '%%' || LOWER(?) || '%%'
		ORDER BY name ASC
	`, categoryColumns)
	return r.queryMany(ctx, query, text)
}

// CreateLocal creates a device-origin category outside the read-only master
// contract. Provenance lives in the origin column; ids come from a negative
// local sequence only so they can never collide with backend-assigned
// positive ids.
func (r *CategoryRepository) CreateLocal(ctx context.Context, name, description string, userID *int64) (*models.Category, error) {
	var next int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(remote_id), 0) FROM categories WHERE remote_id < 0`).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("allocate device category id: %w", err)
	}
	next--

	now := database.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO categories (remote_id, name, description, user_id, origin, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'device', ?, ?, ?)
	`, next, name, description, userID, now, now, now)
	if err != nil {
		return nil, fmt.Errorf("create device category: %w", err)
	}

	return r.FindByID(ctx, next)
}

// Create is rejected: categories are backend-owned. Use CreateLocal for the
// device-only escape hatch.
func (r *CategoryRepository) Create(ctx context.Context, _ *models.Category) error {
	return ErrReadOnlyMasterData
}

// Update is rejected: categories are backend-owned.
func (r *CategoryRepository) Update(ctx context.Context, _ int64) error {
	return ErrReadOnlyMasterData
}

// Delete is rejected for synced and device-origin rows alike; removal of
// device-origin categories is not implemented upstream.
func (r *CategoryRepository) Delete(ctx context.Context, _ int64) (bool, error) {
	return false, ErrReadOnlyMasterData
}
