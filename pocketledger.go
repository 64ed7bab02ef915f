// Package pocketledger is the offline-first local data store and sync engine
// backing the personal-finance tracker. The host application mounts it at its
// composition root via Initialize and consumes the typed repositories
// directly; backend reference data flows down through the sync service, local
// records never flow up.
package pocketledger

import (
	"context"
	"fmt"

	"github.com/thantzin/pocketledger/internal/config"
	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/logger"
	"github.com/thantzin/pocketledger/internal/models"
	"github.com/thantzin/pocketledger/internal/repository"
	syncsvc "github.com/thantzin/pocketledger/internal/sync"
)

// Store is the assembled data layer. Repositories are owned by the store and
// injected with the shared storage handle; there is no module-level
// singleton.
type Store struct {
	cfg    *config.Config
	engine *database.Engine

	Banks        *repository.BankRepository
	Categories   *repository.CategoryRepository
	Transactions *repository.TransactionRepository
	Budgets      *repository.BudgetRepository
	Alerts       *repository.BudgetAlertRepository
	SyncMetadata *repository.SyncMetadataRepository
	Settings     *repository.SettingsRepository
	Sync         *syncsvc.Service

	deviceID string
}

// Initialize opens the store, applies schema migrations, ensures the device
// identity and wires repositories and the sync service. Storage faults are
// returned for the composition root to log and degrade on, rather than
// crashing the app.
func Initialize(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg.LogLevel != "" {
		logger.SetLevel(cfg.LogLevel)
	}

	engine := database.NewEngine(cfg.DatabasePath)
	db, err := engine.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage fault: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("storage fault: %w", err)
	}

	s := &Store{cfg: cfg, engine: engine}
	s.buildRepositories(db)

	deviceID, err := s.Settings.EnsureDeviceID(ctx)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("storage fault: %w", err)
	}
	s.deviceID = deviceID

	logger.Log.Info().
		Str("path", cfg.DatabasePath).
		Str("device_id", deviceID).
		Msg("store initialized")

	return s, nil
}

func (s *Store) buildRepositories(db database.DBTX) {
	s.Banks = repository.NewBankRepository(db)
	s.Categories = repository.NewCategoryRepository(db)
	s.Transactions = repository.NewTransactionRepository(db)
	s.Budgets = repository.NewBudgetRepository(db)
	s.Alerts = repository.NewBudgetAlertRepository(db)
	s.SyncMetadata = repository.NewSyncMetadataRepository(db)
	s.Settings = repository.NewSettingsRepository(db)

	var client syncsvc.BackendClient
	var conn syncsvc.Connectivity = syncsvc.Offline{}
	if s.cfg.APIBaseURL != "" {
		client = syncsvc.NewHTTPClient(s.cfg.APIBaseURL, s.cfg.SyncTimeout, s.cfg.SyncPageSize)
		if probe, err := syncsvc.NewDialProbe(s.cfg.APIBaseURL, 0); err == nil {
			conn = probe
		}
	}
	s.Sync = syncsvc.NewService(s.Banks, s.Categories, s.SyncMetadata, client, conn)
}

// DeviceID is the persisted identity of this installation.
func (s *Store) DeviceID() string { return s.deviceID }

// Stats returns row counts per domain table, for diagnostics.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	return s.engine.Stats(ctx)
}

// SyncAll triggers a reconciliation pass; see sync.Service.SyncAll.
func (s *Store) SyncAll(ctx context.Context) ([]syncsvc.EntityResult, error) {
	return s.Sync.SyncAll(ctx)
}

// SyncInBackground starts a tracked background reconciliation pass.
func (s *Store) SyncInBackground(ctx context.Context) *syncsvc.Task {
	return s.Sync.SyncInBackground(ctx)
}

// NeedsInitialSync reports whether any master-data table is still empty.
func (s *Store) NeedsInitialSync(ctx context.Context) (bool, error) {
	return s.Sync.NeedsInitialSync(ctx)
}

// SeedDefaults inserts the built-in device-origin categories, for first runs
// that cannot reach the backend.
func (s *Store) SeedDefaults(ctx context.Context) error {
	db, err := s.engine.DB()
	if err != nil {
		return err
	}
	return database.SeedCategories(ctx, db)
}

// ResetSyncMetadata forces a full resync of one entity type, or all when nil.
func (s *Store) ResetSyncMetadata(ctx context.Context, entityType *models.EntityType) error {
	return s.Sync.ResetSyncMetadata(ctx, entityType)
}

// Reset destroys and rebuilds the store, rewiring every repository onto the
// fresh handle. Destructive; test and support tooling only.
func (s *Store) Reset(ctx context.Context) error {
	db, err := s.engine.Reset(ctx)
	if err != nil {
		return fmt.Errorf("storage fault: %w", err)
	}
	s.buildRepositories(db)

	deviceID, err := s.Settings.EnsureDeviceID(ctx)
	if err != nil {
		return fmt.Errorf("storage fault: %w", err)
	}
	s.deviceID = deviceID
	return nil
}

// Close releases the storage handle.
func (s *Store) Close() error {
	return s.engine.Close()
}
