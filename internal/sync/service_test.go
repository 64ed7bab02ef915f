package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thantzin/pocketledger/internal/database"
	"github.com/thantzin/pocketledger/internal/models"
	"github.com/thantzin/pocketledger/internal/repository"
)

type fakeClient struct {
	mu            sync.Mutex
	banks         []models.Bank
	categories    []models.Category
	banksErr      error
	categoriesErr error
	bankCalls     atomic.Int64
	categoryCalls atomic.Int64
	block         chan struct{} // when set, FetchBanks parks until closed
}

func (f *fakeClient) FetchBanks(ctx context.Context, updatedAfter time.Time) ([]models.Bank, error) {
	f.bankCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banksErr != nil {
		return nil, f.banksErr
	}
	return f.banks, nil
}

func (f *fakeClient) FetchCategories(ctx context.Context, updatedAfter time.Time) ([]models.Category, error) {
	f.categoryCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return f.categories, nil
}

type online struct{}

func (online) Online(ctx context.Context) bool { return true }

func newTestService(t *testing.T, client BackendClient, conn Connectivity) (*Service, *repository.BankRepository, *repository.CategoryRepository, *repository.SyncMetadataRepository) {
	t.Helper()
	db := database.TestDBHandle(t)
	banks := repository.NewBankRepository(db)
	categories := repository.NewCategoryRepository(db)
	meta := repository.NewSyncMetadataRepository(db)
	return NewService(banks, categories, meta, client, conn), banks, categories, meta
}

func TestServiceSyncAll(t *testing.T) {
	ctx := context.Background()

	t.Run("pulls both entity types", func(t *testing.T) {
		client := &fakeClient{
			banks:      []models.Bank{{RemoteID: 1, Name: "AYA"}, {RemoteID: 2, Name: "KBZ"}},
			categories: []models.Category{{RemoteID: 10, Name: "Food"}},
		}
		svc, banks, categories, meta := newTestService(t, client, online{})

		results, err := svc.SyncAll(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			require.True(t, r.Success, r.Error)
		}
		require.Equal(t, 2, results[0].Count)
		require.Equal(t, 1, results[1].Count)

		bankCount, err := banks.Count(ctx, false)
		require.NoError(t, err)
		require.EqualValues(t, 2, bankCount)
		categoryCount, err := categories.Count(ctx, false)
		require.NoError(t, err)
		require.EqualValues(t, 1, categoryCount)

		for _, entity := range []models.EntityType{models.EntityTypeBanks, models.EntityTypeCategories} {
			m, err := meta.Get(ctx, entity)
			require.NoError(t, err)
			require.NotNil(t, m)
			require.Equal(t, models.SyncStateCompleted, m.Status)
			require.True(t, m.LastSyncAt.After(time.Unix(0, 0)))
		}
	})

	t.Run("offline short-circuits to empty", func(t *testing.T) {
		client := &fakeClient{banks: []models.Bank{{RemoteID: 1, Name: "AYA"}}}
		svc, banks, _, _ := newTestService(t, client, Offline{})

		results, err := svc.SyncAll(ctx)
		require.NoError(t, err)
		require.Empty(t, results)
		require.Zero(t, client.bankCalls.Load())

		count, err := banks.Count(ctx, false)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("one entity failing does not block the other", func(t *testing.T) {
		client := &fakeClient{
			banksErr:   errors.New("backend down"),
			categories: []models.Category{{RemoteID: 10, Name: "Food"}},
		}
		svc, banks, categories, meta := newTestService(t, client, online{})

		results, err := svc.SyncAll(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2)

		require.Equal(t, models.EntityTypeBanks, results[0].EntityType)
		require.False(t, results[0].Success)
		require.Contains(t, results[0].Error, "backend down")

		require.Equal(t, models.EntityTypeCategories, results[1].EntityType)
		require.True(t, results[1].Success)
		require.Equal(t, 1, results[1].Count)

		bankCount, err := banks.Count(ctx, false)
		require.NoError(t, err)
		require.Zero(t, bankCount)
		categoryCount, err := categories.Count(ctx, false)
		require.NoError(t, err)
		require.EqualValues(t, 1, categoryCount)

		m, err := meta.Get(ctx, models.EntityTypeBanks)
		require.NoError(t, err)
		require.Equal(t, models.SyncStateFailed, m.Status)
		require.Contains(t, m.ErrorMessage, "backend down")

		m, err = meta.Get(ctx, models.EntityTypeCategories)
		require.NoError(t, err)
		require.Equal(t, models.SyncStateCompleted, m.Status)
	})

	t.Run("failure preserves the last good watermark", func(t *testing.T) {
		client := &fakeClient{banks: []models.Bank{{RemoteID: 1, Name: "AYA"}}}
		svc, _, _, meta := newTestService(t, client, online{})

		_, err := svc.SyncAll(ctx)
		require.NoError(t, err)
		good, err := meta.LastSyncAt(ctx, models.EntityTypeBanks)
		require.NoError(t, err)

		client.mu.Lock()
		client.banksErr = errors.New("flaky")
		client.mu.Unlock()

		_, err = svc.SyncAll(ctx)
		require.NoError(t, err)

		after, err := meta.LastSyncAt(ctx, models.EntityTypeBanks)
		require.NoError(t, err)
		require.True(t, after.Equal(good))
	})
}

func TestServiceSyncAllCoalescesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		banks:      []models.Bank{{RemoteID: 1, Name: "AYA"}},
		categories: []models.Category{{RemoteID: 10, Name: "Food"}},
		block:      make(chan struct{}),
	}
	svc, _, _, _ := newTestService(t, client, online{})

	const callers = 4
	results := make([][]EntityResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	run := func(i int) {
		defer wg.Done()
		results[i], errs[i] = svc.SyncAll(ctx)
	}

	wg.Add(1)
	go run(0)

	// Park the first pass inside the fetch, then pile the rest of the callers
	// onto it before releasing.
	require.Eventually(t, func() bool {
		return client.bankCalls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(client.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
	// One pass served everybody.
	require.EqualValues(t, 1, client.bankCalls.Load())
	require.EqualValues(t, 1, client.categoryCalls.Load())
}

func TestServiceNeedsInitialSync(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		banks:      []models.Bank{{RemoteID: 1, Name: "AYA"}},
		categories: []models.Category{{RemoteID: 10, Name: "Food"}},
	}
	svc, _, _, _ := newTestService(t, client, online{})

	needed, err := svc.NeedsInitialSync(ctx)
	require.NoError(t, err)
	require.True(t, needed)

	_, err = svc.SyncAll(ctx)
	require.NoError(t, err)

	needed, err = svc.NeedsInitialSync(ctx)
	require.NoError(t, err)
	require.False(t, needed)
}

func TestServiceResetSyncMetadata(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{banks: []models.Bank{{RemoteID: 1, Name: "AYA"}}}
	svc, _, _, meta := newTestService(t, client, online{})

	_, err := svc.SyncAll(ctx)
	require.NoError(t, err)

	banks := models.EntityTypeBanks
	require.NoError(t, svc.ResetSyncMetadata(ctx, &banks))

	at, err := meta.LastSyncAt(ctx, models.EntityTypeBanks)
	require.NoError(t, err)
	require.True(t, at.Equal(time.Unix(0, 0).UTC()))
}

func TestServiceSyncInBackground(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		banks:      []models.Bank{{RemoteID: 1, Name: "AYA"}},
		categories: []models.Category{{RemoteID: 10, Name: "Food"}},
	}
	svc, _, _, _ := newTestService(t, client, online{})

	task := svc.SyncInBackground(ctx)
	results, err := task.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	select {
	case <-task.Done():
	default:
		t.Fatal("done channel must be closed after Wait returns")
	}

	t.Run("wait honors caller cancellation", func(t *testing.T) {
		parked := &fakeClient{block: make(chan struct{})}
		slow, _, _, _ := newTestService(t, parked, online{})
		task := slow.SyncInBackground(ctx)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := task.Wait(cancelled)
		require.ErrorIs(t, err, context.Canceled)

		close(parked.block)
		_, err = task.Wait(ctx)
		require.NoError(t, err)
	})
}
