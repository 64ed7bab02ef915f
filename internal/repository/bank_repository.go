package repository

import (
	"context"
	"fmt"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

const bankColumns = "remote_id, name, color, image_url, last_synced_at, created_at, updated_at, deleted_at"

// BankRepository maintains the local read cache of backend-owned bank and
// payment-method records. Rows change only through sync upserts; direct
// mutation attempts are rejected.
type BankRepository struct {
	base[models.Bank]
}

// NewBankRepository creates a new BankRepository.
func NewBankRepository(db database.DBTX) *BankRepository {
	return &BankRepository{base: base[models.Bank]{
		db:      db,
		table:   "banks",
		idCol:   "remote_id",
		columns: bankColumns,
		scan:    scanBank,
	}}
}

func scanBank(s rowScanner) (models.Bank, error) {
	var b models.Bank
	err := s.Scan(&b.RemoteID, &b.Name, &b.Color, &b.ImageURL,
		&b.LastSyncedAt, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	return b, err
}

// FindByID returns the non-deleted bank with the given remote id, or nil.
func (r *BankRepository) FindByID(ctx context.Context, remoteID int64) (*models.Bank, error) {
	return r.findByID(ctx, remoteID)
}

// Upsert inserts or replaces the bank keyed by its remote id. Repeated
// upserts of the same snapshot are idempotent; every upsert refreshes
// last_synced_at.
func (r *BankRepository) Upsert(ctx context.Context, bank *models.Bank) error {
	return upsertBank(ctx, r.db, bank)
}

func upsertBank(ctx context.Context, db database.DBTX, bank *models.Bank) error {
	now := database.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO banks (remote_id, name, color, image_url, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (remote_id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			image_url = excluded.image_url,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
	`, bank.RemoteID, bank.Name, bank.Color, bank.ImageURL, now, now, now)
	if err != nil {
		return fmt.Errorf("upsert bank %d: %w", bank.RemoteID, err)
	}
	return nil
}

// BulkUpsert applies the whole batch inside one transaction.
func (r *BankRepository) BulkUpsert(ctx context.Context, banks []models.Bank) error {
	if len(banks) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		for i := range banks {
			if err := upsertBank(ctx, tx, &banks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search matches the display name with a case-insensitive substring.
func (r *BankRepository) Search(ctx context.Context, text string) ([]models.Bank, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM banks
		WHERE deleted_at IS NULL AND LOWER(name) LIKE '%%' || LOWER(?) || '%%'
		ORDER BY name ASC
	`, bankColumns)
	return r.queryMany(ctx, query, text)
}

// Create is rejected: banks are backend-owned.
func (r *BankRepository) Create(ctx context.Context, _ *models.Bank) error {
	return ErrReadOnlyMasterData
}

// Update is rejected: banks are backend-owned.
func (r *BankRepository) Update(ctx context.Context, _ int64) error {
	return ErrReadOnlyMasterData
}

// Delete is rejected: banks are backend-owned.
func (r *BankRepository) Delete(ctx context.Context, _ int64) (bool, error) {
	return false, ErrReadOnlyMasterData
}
