package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-offline/internal/models"
	"story-offline/internal/sentinel"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	engine, err := NewSQLiteEngine(memoryPath)
	require.NoError(t, err)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	store := NewStore(engine, opts...)
	t.Cleanup(func() { store.Close() })
	return store
}

type faultyEngine struct {
	Engine
	schemaErr   error
	opErr       error
	schemaCalls atomic.Int32
	// hold, when set, blocks EnsureSchema until it is closed
	hold chan struct{}
}

func (e *faultyEngine) EnsureSchema(ctx context.Context) error {
	e.schemaCalls.Add(1)
	time.Sleep(10 * time.Millisecond)
	if e.hold != nil {
		<-e.hold
	}
	if e.schemaErr != nil {
		return e.schemaErr
	}
	return e.Engine.EnsureSchema(ctx)
}

func (e *faultyEngine) ListStories(ctx context.Context) ([]*models.Story, error) {
	if e.opErr != nil {
		return nil, e.opErr
	}
	return e.Engine.ListStories(ctx)
}

func (e *faultyEngine) UpsertStories(ctx context.Context, stories []*models.Story) error {
	if e.opErr != nil {
		return e.opErr
	}
	return e.Engine.UpsertStories(ctx, stories)
}

func newFaultyEngine(t *testing.T) *faultyEngine {
	t.Helper()
	engine, err := NewSQLiteEngine(memoryPath)
	require.NoError(t, err)
	return &faultyEngine{Engine: engine}
}

func TestPut_UpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, &models.Story{ID: "s1", Name: "First", Description: "one"})
	require.NoError(t, err)
	_, err = store.Put(ctx, &models.Story{ID: "s1", Name: "Second", Description: "two"})
	require.NoError(t, err)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Second", all[0].Name)
	assert.Equal(t, "two", all[0].Description)
}

func TestPut_StampsSavedAtAndDefaultsCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	stored, err := store.Put(ctx, &models.Story{
		ID:        "s1",
		Name:      "Hike",
		CreatedAt: created,
		Location:  &models.Location{Lat: -6.2, Lon: 106.8},
	})
	require.NoError(t, err)
	assert.True(t, stored.SavedAt.Equal(fixedNow))
	assert.True(t, stored.CreatedAt.Equal(created))

	got, found, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.SavedAt.Equal(fixedNow))
	require.NotNil(t, got.Location)
	assert.Equal(t, -6.2, got.Location.Lat)
	assert.Equal(t, 106.8, got.Location.Lon)

	noDate, err := store.Put(ctx, &models.Story{ID: "s2"})
	require.NoError(t, err)
	assert.True(t, noDate.CreatedAt.Equal(fixedNow))
	assert.Nil(t, noDate.Location)
}

func TestPut_RejectsEmptyID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put(context.Background(), &models.Story{ID: "  ", Name: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestGet_MissingIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	story, found, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, story)
}

func TestRemove_MissingIDLeavesPartitionUnchanged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, &models.Story{ID: "s1", Name: "Keep"})
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "missing"))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s1", all[0].ID)
}

func TestHas_ConsistentWithGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, &models.Story{ID: "s1"})
	require.NoError(t, err)

	for _, id := range []string{"s1", "s2"} {
		has, err := store.Has(ctx, id)
		require.NoError(t, err)
		_, found, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, has, found, id)
	}

	require.NoError(t, store.Remove(ctx, "s1"))
	has, err := store.Has(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEnqueuePending_IsolatedFromConfirmed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, &models.Story{ID: "s1", Name: "Confirmed"})
	require.NoError(t, err)

	pending, err := store.EnqueuePending(ctx, &models.PendingSubmission{
		Name:        "Offline",
		Description: "made on a train",
		PhotoRef:    "photo-1",
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pending.LocalID)
	assert.True(t, pending.QueuedAt.Equal(fixedNow))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s1", all[0].ID)

	has, err := store.Has(ctx, pending.LocalID)
	require.NoError(t, err)
	assert.False(t, has)

	queued, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, pending.LocalID, queued[0].LocalID)
	assert.Equal(t, "photo-1", queued[0].PhotoRef)

	// Deleting a confirmed story never touches the queue.
	require.NoError(t, store.Remove(ctx, "s1"))
	queued, err = store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestEnqueuePending_RegeneratesCollidingKeys(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}
	store := newTestStore(t, WithIDGenerator(next))
	ctx := context.Background()

	first, err := store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: "a"})
	require.NoError(t, err)
	second, err := store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: "b"})
	require.NoError(t, err)

	assert.Equal(t, "dup", first.LocalID)
	assert.Equal(t, "fresh", second.LocalID)
}

func TestEnqueuePending_RequiresPhoto(t *testing.T) {
	store := newTestStore(t)

	_, err := store.EnqueuePending(context.Background(), &models.PendingSubmission{Description: "x"})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestListPending_OldestFirstAndRemovePending(t *testing.T) {
	now := fixedNow
	store := newTestStore(t, WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()

	var ids []string
	for _, ref := range []string{"a", "b", "c"} {
		p, err := store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: ref})
		require.NoError(t, err)
		ids = append(ids, p.LocalID)
	}

	queued, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 3)
	for i, p := range queued {
		assert.Equal(t, ids[i], p.LocalID)
	}

	require.NoError(t, store.RemovePending(ctx, ids[1]))
	require.NoError(t, store.RemovePending(ctx, "never-existed"))

	queued, err = store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, ids[0], queued[0].LocalID)
	assert.Equal(t, ids[2], queued[1].LocalID)
}

func TestListPending_SameInstantKeepsInsertionOrder(t *testing.T) {
	ids := []string{"c", "b", "a"}
	next := 0
	store := newTestStore(t, WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))
	ctx := context.Background()

	for _, ref := range []string{"first", "second", "third"} {
		_, err := store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: ref})
		require.NoError(t, err)
	}

	queued, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 3)
	refs := []string{queued[0].PhotoRef, queued[1].PhotoRef, queued[2].PhotoRef}
	assert.Equal(t, []string{"first", "second", "third"}, refs)
	assert.True(t, queued[0].QueuedAt.Equal(queued[2].QueuedAt))
}

func TestSQLiteEngine_UpgradesPendingTableInOrder(t *testing.T) {
	ctx := context.Background()
	engine, err := NewSQLiteEngine(memoryPath)
	require.NoError(t, err)
	store := NewStore(engine, WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(func() { store.Close() })

	require.NoError(t, engine.migrate(ctx, 1, sqliteMigrations[0]))
	insert := `INSERT INTO pending_stories
		(local_id, photo_ref, created_at, queued_at) VALUES (?, ?, ?, ?)`
	_, err = engine.db.ExecContext(ctx, insert, "old-2", "p2", fixedNow.UnixNano(), fixedNow.Add(time.Second).UnixNano())
	require.NoError(t, err)
	_, err = engine.db.ExecContext(ctx, insert, "old-1", "p1", fixedNow.UnixNano(), fixedNow.UnixNano())
	require.NoError(t, err)

	require.NoError(t, store.Open(ctx))

	var version int
	require.NoError(t, engine.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version))
	assert.Equal(t, len(sqliteMigrations), version)

	_, err = store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: "p3"})
	require.NoError(t, err)

	queued, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 3)
	assert.Equal(t, "old-1", queued[0].LocalID)
	assert.Equal(t, "old-2", queued[1].LocalID)
	assert.Equal(t, "p3", queued[2].PhotoRef)
}

func TestOpen_ConcurrentCallersShareSchemaCheck(t *testing.T) {
	engine := newFaultyEngine(t)
	store := NewStore(engine)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Open(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, store.Open(ctx))
	assert.Equal(t, int32(1), engine.schemaCalls.Load())
}

func TestOpen_CancelledCallerDoesNotFailOthers(t *testing.T) {
	engine := newFaultyEngine(t)
	engine.hold = make(chan struct{})
	store := NewStore(engine)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- store.Open(ctx) }()
	require.Eventually(t, func() bool { return engine.schemaCalls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- store.Open(context.Background()) }()

	cancel()
	err := <-first
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, sentinel.ErrStorageUnavailable)

	close(engine.hold)
	require.NoError(t, <-second)
	require.NoError(t, store.Open(context.Background()))
	assert.Equal(t, int32(1), engine.schemaCalls.Load())
}

func TestOpen_FailureIsStorageUnavailable(t *testing.T) {
	engine := newFaultyEngine(t)
	engine.schemaErr = errors.New("quota exceeded")
	store := NewStore(engine)
	t.Cleanup(func() { store.Close() })

	err := store.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrStorageUnavailable)

	_, err = store.GetAll(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrStorageUnavailable)
}

func TestEngineFailure_IsStorageError(t *testing.T) {
	engine := newFaultyEngine(t)
	store := NewStore(engine)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Open(ctx))

	cause := errors.New("disk I/O error")
	engine.opErr = cause

	_, err := store.GetAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrStorage)
	assert.ErrorIs(t, err, cause)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get all", se.Op)

	_, err = store.Put(ctx, &models.Story{ID: "s1"})
	assert.ErrorIs(t, err, sentinel.ErrStorage)
}

func TestClose_StoreBecomesUnavailable(t *testing.T) {
	engine, err := NewSQLiteEngine(memoryPath)
	require.NoError(t, err)
	store := NewStore(engine)

	require.NoError(t, store.Open(context.Background()))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.GetAll(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrStorageUnavailable)
}

func TestSQLiteEngine_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stories.db")
	ctx := context.Background()

	engine, err := NewSQLiteEngine(path)
	require.NoError(t, err)
	store := NewStore(engine)
	_, err = store.Put(ctx, &models.Story{ID: "s1", Name: "Sunset Hike"})
	require.NoError(t, err)
	_, err = store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: "p"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteEngine(path)
	require.NoError(t, err)
	store = NewStore(reopened)
	t.Cleanup(func() { store.Close() })

	got, found, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Sunset Hike", got.Name)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, path, reopened.Path())
}
