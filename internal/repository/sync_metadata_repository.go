package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
)

// syncEpoch is the beginning of time for incremental sync: a reset or
// first-ever sync pulls everything after this instant.
var syncEpoch = time.Unix(0, 0).UTC()

// SyncMetadataRepository tracks per-entity sync progress and state.
type SyncMetadataRepository struct {
	db database.DBTX
}

// NewSyncMetadataRepository creates a new SyncMetadataRepository.
func NewSyncMetadataRepository(db database.DBTX) *SyncMetadataRepository {
	return &SyncMetadataRepository{db: db}
}

// Get returns the metadata row for the entity type, or nil if the entity has
// never synced.
func (r *SyncMetadataRepository) Get(ctx context.Context, entityType models.EntityType) (*models.SyncMetadata, error) {
	var m models.SyncMetadata
	err := r.db.QueryRowContext(ctx, `
		SELECT entity_type, last_sync_at, last_sync_version, sync_status, error_message, updated_at
		FROM sync_metadata WHERE entity_type = ?
	`, entityType).Scan(&m.EntityType, &m.LastSyncAt, &m.LastSyncVersion, &m.Status, &m.ErrorMessage, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata for %s: %w", entityType, err)
	}
	return &m, nil
}

// GetAll returns every tracked entity's metadata.
func (r *SyncMetadataRepository) GetAll(ctx context.Context) ([]models.SyncMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, last_sync_at, last_sync_version, sync_status, error_message, updated_at
		FROM sync_metadata ORDER BY entity_type
	`)
	if err != nil {
		return nil, fmt.Errorf("list sync metadata: %w", err)
	}
	defer rows.Close()

	var out []models.SyncMetadata
	for rows.Next() {
		var m models.SyncMetadata
		if err := rows.Scan(&m.EntityType, &m.LastSyncAt, &m.LastSyncVersion, &m.Status, &m.ErrorMessage, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync metadata: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync metadata: %w", err)
	}
	return out, nil
}

// MarkInProgress flags the entity as syncing, creating its row on first use
// and clearing any error left by a previous failed pass. The last successful
// sync timestamp is left untouched.
func (r *SyncMetadataRepository) MarkInProgress(ctx context.Context, entityType models.EntityType) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (entity_type, last_sync_at, last_sync_version, sync_status, error_message, updated_at)
		VALUES (?, ?, 0, 'in_progress', '', ?)
		ON CONFLICT (entity_type) DO UPDATE SET
			sync_status = 'in_progress',
			error_message = '',
			updated_at = excluded.updated_at
	`, entityType, syncEpoch, database.Now())
	if err != nil {
		return fmt.Errorf("mark %s sync in progress: %w", entityType, err)
	}
	return nil
}

// MarkCompleted records a successful pass: fresh last_sync_at, bumped sync
// version, cleared error.
func (r *SyncMetadataRepository) MarkCompleted(ctx context.Context, entityType models.EntityType, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_metadata
		SET last_sync_at = ?, last_sync_version = last_sync_version + 1,
		    sync_status = 'completed', error_message = '', updated_at = ?
		WHERE entity_type = ?
	`, syncedAt, database.Now(), entityType)
	if err != nil {
		return fmt.Errorf("mark %s sync completed: %w", entityType, err)
	}
	return nil
}

// MarkFailed records a failed pass. The last successful sync timestamp is
// preserved so the next attempt retries the same window.
func (r *SyncMetadataRepository) MarkFailed(ctx context.Context, entityType models.EntityType, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_metadata
		SET sync_status = 'failed', error_message = ?, updated_at = ?
		WHERE entity_type = ?
	`, message, database.Now(), entityType)
	if err != nil {
		return fmt.Errorf("mark %s sync failed: %w", entityType, err)
	}
	return nil
}

// Reset rewinds last_sync_at to the epoch for one entity type, or for every
// tracked entity when entityType is nil, forcing a full resync.
func (r *SyncMetadataRepository) Reset(ctx context.Context, entityType *models.EntityType) error {
	query := `
		UPDATE sync_metadata
		SET last_sync_at = ?, last_sync_version = 0, sync_status = 'pending', error_message = '', updated_at = ?
	`
	args := []any{syncEpoch, database.Now()}
	if entityType != nil {
		query += ` WHERE entity_type = ?`
		args = append(args, *entityType)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("reset sync metadata: %w", err)
	}
	return nil
}

// LastSyncAt returns the last successful sync time for the entity, or the
// epoch if it has never completed a sync.
func (r *SyncMetadataRepository) LastSyncAt(ctx context.Context, entityType models.EntityType) (time.Time, error) {
	m, err := r.Get(ctx, entityType)
	if err != nil {
		return time.Time{}, err
	}
	if m == nil {
		return syncEpoch, nil
	}
	return m.LastSyncAt, nil
}
