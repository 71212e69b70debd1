package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"story-offline/internal/models"
	"story-offline/internal/sentinel"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const maxKeyAttempts = 5

var errStoreClosed = errors.New("store closed")

// Store is the local store owning the confirmed and pending partitions.
// Every operation opens the store lazily.
type Store struct {
	engine Engine
	now    func() time.Time
	newID  func() string

	group  singleflight.Group
	opened atomic.Bool
	closed atomic.Bool
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for saved_at and queued_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides the pending local id generator
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// NewStore creates a store on top of engine
func NewStore(engine Engine, opts ...Option) *Store {
	s := &Store{
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open ensures both partitions exist. Concurrent callers share a single
// schema check that runs to completion even if the caller that started it
// gives up; a caller whose ctx ends first gets the ctx error.
func (s *Store) Open(ctx context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %w", sentinel.ErrStorageUnavailable, errStoreClosed)
	}
	if s.opened.Load() {
		return nil
	}

	schemaCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("open", func() (interface{}, error) {
		if s.opened.Load() {
			return nil, nil
		}
		if err := s.engine.EnsureSchema(schemaCtx); err != nil {
			return nil, err
		}
		s.opened.Store(true)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", sentinel.ErrStorageUnavailable, res.Err)
		}
		return nil
	}
}

// Close releases the engine; the store cannot be reopened
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.engine.Close()
}

// Put upserts a story into the confirmed partition and returns the stored record
func (s *Store) Put(ctx context.Context, story *models.Story) (*models.Story, error) {
	stored, err := s.normalize(story, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	if err := s.engine.UpsertStories(ctx, []*models.Story{stored}); err != nil {
		return nil, storageErr("put", err)
	}
	return stored, nil
}

// PutAll upserts a batch of stories in one transaction
func (s *Store) PutAll(ctx context.Context, stories []*models.Story) ([]*models.Story, error) {
	savedAt := s.now().UTC()
	stored := make([]*models.Story, 0, len(stories))
	for _, story := range stories {
		n, err := s.normalize(story, savedAt)
		if err != nil {
			return nil, err
		}
		stored = append(stored, n)
	}
	if len(stored) == 0 {
		return stored, nil
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	if err := s.engine.UpsertStories(ctx, stored); err != nil {
		return nil, storageErr("put all", err)
	}
	return stored, nil
}

// Get returns the story with id; found is false when it is absent
func (s *Store) Get(ctx context.Context, id string) (*models.Story, bool, error) {
	if err := s.Open(ctx); err != nil {
		return nil, false, err
	}
	story, err := s.engine.GetStory(ctx, id)
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	return story, story != nil, nil
}

// GetAll returns every confirmed story. Order is not meaningful.
func (s *Store) GetAll(ctx context.Context) ([]*models.Story, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	stories, err := s.engine.ListStories(ctx)
	if err != nil {
		return nil, storageErr("get all", err)
	}
	return stories, nil
}

// Remove deletes a confirmed story; removing a missing id succeeds
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	if err := s.engine.DeleteStory(ctx, id); err != nil {
		return storageErr("remove", err)
	}
	return nil
}

// Has checks if a confirmed story exists
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	if err := s.Open(ctx); err != nil {
		return false, err
	}
	exists, err := s.engine.StoryExists(ctx, id)
	if err != nil {
		return false, storageErr("has", err)
	}
	return exists, nil
}

// EnqueuePending appends a submission to the pending partition under a
// freshly generated local id
func (s *Store) EnqueuePending(ctx context.Context, sub *models.PendingSubmission) (*models.PendingSubmission, error) {
	if sub == nil || sub.PhotoRef == "" {
		return nil, fmt.Errorf("%w: pending submission requires a photo", sentinel.ErrInvalidInput)
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := *sub
	rec.QueuedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	} else {
		rec.CreatedAt = rec.CreatedAt.UTC()
	}

	for i := 0; i < maxKeyAttempts; i++ {
		rec.LocalID = s.newID()
		inserted, err := s.engine.InsertPending(ctx, &rec)
		if err != nil {
			return nil, storageErr("enqueue pending", err)
		}
		if inserted {
			return &rec, nil
		}
	}
	return nil, storageErr("enqueue pending",
		fmt.Errorf("failed to generate unique local id after %d attempts", maxKeyAttempts))
}

// ListPending returns the pending queue oldest first
func (s *Store) ListPending(ctx context.Context) ([]*models.PendingSubmission, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	pending, err := s.engine.ListPending(ctx)
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	return pending, nil
}

// RemovePending deletes a pending submission permanently
func (s *Store) RemovePending(ctx context.Context, localID string) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	if err := s.engine.DeletePending(ctx, localID); err != nil {
		return storageErr("remove pending", err)
	}
	return nil
}

func (s *Store) normalize(story *models.Story, savedAt time.Time) (*models.Story, error) {
	if story == nil || strings.TrimSpace(story.ID) == "" {
		return nil, fmt.Errorf("%w: story id is required", sentinel.ErrInvalidInput)
	}
	n := *story
	if story.Location != nil {
		loc := *story.Location
		n.Location = &loc
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = savedAt
	} else {
		n.CreatedAt = n.CreatedAt.UTC()
	}
	n.SavedAt = savedAt
	return &n, nil
}
