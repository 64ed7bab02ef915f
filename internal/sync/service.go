package sync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/logger"
	"github.com/thantzin/pocketledger/internal/models"
	"github.com/thantzin/pocketledger/internal/repository"
)

// EntityResult reports one entity type's outcome from a sync pass. Failures
// are carried here and in sync_metadata, never raised: one entity failing
// must not block another's success.
type EntityResult struct {
	EntityType models.EntityType `json:"entity_type"`
	Success    bool              `json:"success"`
	Count      int               `json:"count"`
	Error      string            `json:"error,omitempty"`
}

// Service reconciles master-data repositories against the backend.
type Service struct {
	banks      *repository.BankRepository
	categories *repository.CategoryRepository
	meta       *repository.SyncMetadataRepository
	client     BackendClient
	conn       Connectivity
	group      singleflight.Group
	tracer     trace.Tracer
}

// NewService wires the sync service. conn gates every pass; client may be nil
// only when conn never reports online.
func NewService(banks *repository.BankRepository, categories *repository.CategoryRepository,
	meta *repository.SyncMetadataRepository, client BackendClient, conn Connectivity) *Service {
	return &Service{
		banks:      banks,
		categories: categories,
		meta:       meta,
		client:     client,
		conn:       conn,
		tracer:     otel.Tracer("pocketledger/sync"),
	}
}

// SyncAll reconciles every master entity type. Concurrent callers coalesce
// into one in-flight pass and share its result. Offline returns an empty
// result set without error.
func (s *Service) SyncAll(ctx context.Context) ([]EntityResult, error) {
	// Detach cancellation from any single caller: the shared pass must not
	// fail every waiter because one trigger had a short deadline.
	runCtx := context.WithoutCancel(ctx)

	v, err, shared := s.group.Do("sync_all", func() (any, error) {
		return s.syncAll(runCtx), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Log.Debug().Msg("sync pass shared with concurrent caller")
	}
	return v.([]EntityResult), nil
}

func (s *Service) syncAll(ctx context.Context) []EntityResult {
	ctx, span := s.tracer.Start(ctx, "sync.all")
	defer span.End()

	if !s.conn.Online(ctx) {
		logger.Log.Info().Msg("offline, skipping sync")
		return []EntityResult{}
	}

	results := []EntityResult{
		s.syncEntity(ctx, models.EntityTypeBanks, s.pullBanks),
		s.syncEntity(ctx, models.EntityTypeCategories, s.pullCategories),
	}
	return results
}

// syncEntity runs one entity's pass through the metadata state machine:
// in_progress, then completed with a fresh watermark or failed with the error
// recorded. Errors are absorbed into the result.
func (s *Service) syncEntity(ctx context.Context, entityType models.EntityType, pull func(ctx context.Context, since time.Time) (int, error)) EntityResult {
	ctx, span := s.tracer.Start(ctx, "sync.entity",
		trace.WithAttributes(attribute.String("entity_type", string(entityType))))
	defer span.End()

	result := EntityResult{EntityType: entityType}

	if err := s.meta.MarkInProgress(ctx, entityType); err != nil {
		result.Error = err.Error()
		return result
	}

	since, err := s.meta.LastSyncAt(ctx, entityType)
	if err != nil {
		s.fail(ctx, entityType, &result, err)
		return result
	}

	// Watermark from before the fetch, so records updated mid-pass are
	// re-pulled next time instead of being skipped.
	startedAt := database.Now()

	count, err := pull(ctx, since)
	if err != nil {
		s.fail(ctx, entityType, &result, err)
		return result
	}

	if err := s.meta.MarkCompleted(ctx, entityType, startedAt); err != nil {
		s.fail(ctx, entityType, &result, err)
		return result
	}

	logger.Log.Info().
		Str("entity_type", string(entityType)).
		Int("count", count).
		Msg("entity sync completed")

	result.Success = true
	result.Count = count
	return result
}

func (s *Service) fail(ctx context.Context, entityType models.EntityType, result *EntityResult, err error) {
	result.Error = err.Error()
	logger.Log.Error().
		Str("entity_type", string(entityType)).
		Err(err).
		Msg("entity sync failed")
	if markErr := s.meta.MarkFailed(ctx, entityType, err.Error()); markErr != nil {
		logger.Log.Error().Err(markErr).Msg("failed to record sync failure")
	}
}

func (s *Service) pullBanks(ctx context.Context, since time.Time) (int, error) {
	banks, err := s.client.FetchBanks(ctx, since)
	if err != nil {
		return 0, err
	}
	if err := s.banks.BulkUpsert(ctx, banks); err != nil {
		return 0, err
	}
	return len(banks), nil
}

func (s *Service) pullCategories(ctx context.Context, since time.Time) (int, error) {
	categories, err := s.client.FetchCategories(ctx, since)
	if err != nil {
		return 0, err
	}
	if err := s.categories.BulkUpsert(ctx, categories); err != nil {
		return 0, err
	}
	return len(categories), nil
}

// NeedsInitialSync reports whether any master-data table is empty, signaling
// the caller to fall back to local seed data.
func (s *Service) NeedsInitialSync(ctx context.Context) (bool, error) {
	bankCount, err := s.banks.Count(ctx, false)
	if err != nil {
		return false, err
	}
	if bankCount == 0 {
		return true, nil
	}
	categoryCount, err := s.categories.Count(ctx, false)
	if err != nil {
		return false, err
	}
	return categoryCount == 0, nil
}

// ResetSyncMetadata rewinds the sync watermark to the epoch for one entity
// type (or all, when nil), forcing a full resync on the next pass.
func (s *Service) ResetSyncMetadata(ctx context.Context, entityType *models.EntityType) error {
	return s.meta.Reset(ctx, entityType)
}

// Task is a tracked background sync. Callers observe or await it instead of
// losing a detached call's failure.
type Task struct {
	done    chan struct{}
	results []EntityResult
	err     error
}

// Done is closed when the sync pass finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the pass finishes or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) ([]EntityResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.results, t.err
	}
}

// SyncInBackground starts a sync pass and returns its tracked handle.
func (s *Service) SyncInBackground(ctx context.Context) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.results, t.err = s.SyncAll(ctx)
	}()
	return t
}
