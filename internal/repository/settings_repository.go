package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/thantzin/pocketledger/internal/database"
)

// deviceIDKey persists the installation's generated identity.
const deviceIDKey = "device_id"

// SettingsRepository is the app_settings key/value store for process-scoped
// values that must survive restarts.
type SettingsRepository struct {
	db database.DBTX
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db database.DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the value for key, or "" when the key is absent.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the value for key.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, database.Now())
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// Delete removes the key if present.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM app_settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

// EnsureDeviceID returns the persisted device id, generating and storing one
// on first call.
func (r *SettingsRepository) EnsureDeviceID(ctx context.Context) (string, error) {
	id, err := r.Get(ctx, deviceIDKey)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := r.Set(ctx, deviceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}
