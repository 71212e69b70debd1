package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"story-offline/internal/models"
	"story-offline/internal/notify"
	"story-offline/internal/photos"
	"story-offline/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tickingClock returns a clock that advances one second per call so queue
// order is deterministic
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	engine, err := repository.NewSQLiteEngine(":memory:")
	require.NoError(t, err)
	store := repository.NewStore(engine, repository.WithClock(tickingClock()))
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSpool(t *testing.T) *photos.FileStore {
	t.Helper()
	spool, err := photos.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return spool
}

type fakeRemote struct {
	mu        sync.Mutex
	stories   []*models.Story
	listErr   error
	createErr map[string]error
	deleteErr error
	noEcho    bool
	created   []*models.NewStory
	deleted   []string
	nextID    int

	// entered and release let a test hold CreateStory mid-flight
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{createErr: make(map[string]error)}
}

func (f *fakeRemote) ListStories(ctx context.Context) ([]*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.stories, nil
}

func (f *fakeRemote) CreateStory(ctx context.Context, story *models.NewStory) (*models.Story, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[story.Description]; err != nil {
		return nil, err
	}
	f.created = append(f.created, story)
	if f.noEcho {
		return nil, nil
	}
	f.nextID++
	return &models.Story{
		ID:          fmt.Sprintf("story-%d", f.nextID),
		Name:        story.Name,
		Description: story.Description,
		PhotoURL:    fmt.Sprintf("https://cdn.example.com/%d.jpg", f.nextID),
		Location:    story.Location,
		CreatedAt:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeRemote) DeleteStory(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) createdDescriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.created))
	for _, s := range f.created {
		out = append(out, s.Description)
	}
	return out
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Kind)
	}
	return out
}

func draft(description string) *models.NewStory {
	return &models.NewStory{
		Description: description,
		Photo:       []byte("jpeg:" + description),
		ContentType: "image/jpeg",
	}
}

func storyIDs(stories []*models.Story) []string {
	ids := make([]string, 0, len(stories))
	for _, s := range stories {
		ids = append(ids, s.ID)
	}
	return ids
}
