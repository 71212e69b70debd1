package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"story-offline/internal/connectivity"
	"story-offline/internal/metrics"
	"story-offline/internal/models"
	"story-offline/internal/photos"
	"story-offline/internal/repository"
	"story-offline/internal/sentinel"

	"github.com/rs/zerolog/log"
)

// Remote is the remote story service
type Remote interface {
	Creator
	ListStories(ctx context.Context) ([]*models.Story, error)
	DeleteStory(ctx context.Context, id string) error
}

// StoryService handles user actions that change stories
type StoryService struct {
	store   *repository.Store
	remote  Remote
	photos  photos.Store
	monitor *connectivity.Monitor
	metrics *metrics.Metrics
}

// NewStoryService creates a new story service. A nil monitor means the
// remote service is assumed reachable.
func NewStoryService(
	store *repository.Store,
	remote Remote,
	spool photos.Store,
	monitor *connectivity.Monitor,
	m *metrics.Metrics,
) *StoryService {
	return &StoryService{
		store:   store,
		remote:  remote,
		photos:  spool,
		monitor: monitor,
		metrics: m,
	}
}

func (s *StoryService) online() bool {
	return s.monitor == nil || s.monitor.Online()
}

// Save stores a story in the confirmed partition
func (s *StoryService) Save(ctx context.Context, story *models.Story) (*models.Story, error) {
	saved, err := s.store.Put(ctx, story)
	if err != nil {
		return nil, err
	}

	log.Info().Str("story_id", saved.ID).Msg("Story saved")
	return saved, nil
}

// Delete removes a story locally and, when online, from the remote service.
// Only the local removal can fail the call.
func (s *StoryService) Delete(ctx context.Context, id string) (*models.DeleteResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: story id is required", sentinel.ErrInvalidInput)
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return nil, err
	}

	result := &models.DeleteResult{ID: id}
	if !s.online() {
		result.RemoteError = sentinel.ErrRemoteUnavailable.Error()
		return result, nil
	}

	if err := s.remote.DeleteStory(ctx, id); err != nil {
		log.Warn().Err(err).Str("story_id", id).Msg("Failed to delete story remotely")
		result.RemoteError = err.Error()
		return result, nil
	}

	result.RemoteDeleted = true
	log.Info().Str("story_id", id).Msg("Story deleted")
	return result, nil
}

// Submit delivers a new story when the remote service is reachable and
// queues it otherwise. Submissions the service refuses are returned as
// errors and not queued.
func (s *StoryService) Submit(ctx context.Context, draft *models.NewStory) (*models.SubmitResult, error) {
	if draft == nil || strings.TrimSpace(draft.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", sentinel.ErrInvalidInput)
	}
	if len(draft.Photo) == 0 {
		return nil, fmt.Errorf("%w: photo is required", sentinel.ErrInvalidInput)
	}

	if s.online() {
		created, err := s.remote.CreateStory(ctx, draft)
		if err == nil {
			return s.delivered(ctx, created), nil
		}
		if !errors.Is(err, sentinel.ErrRemoteUnavailable) {
			return nil, err
		}
		log.Warn().Err(err).Msg("Remote unavailable, queueing story")
	}

	return s.enqueue(ctx, draft)
}

func (s *StoryService) delivered(ctx context.Context, created *models.Story) *models.SubmitResult {
	s.metrics.Submitted(string(models.SubmitDelivered))
	result := &models.SubmitResult{Status: models.SubmitDelivered, Story: created}
	if created == nil {
		return result
	}

	stored, err := s.store.Put(ctx, created)
	if err != nil {
		log.Warn().Err(err).Str("story_id", created.ID).Msg("Failed to cache submitted story")
		return result
	}
	result.Story = stored

	log.Info().Str("story_id", stored.ID).Msg("Story submitted")
	return result
}

func (s *StoryService) enqueue(ctx context.Context, draft *models.NewStory) (*models.SubmitResult, error) {
	ref, err := s.photos.Put(ctx, draft.Photo, draft.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to spool photo: %w", err)
	}

	queued, err := s.store.EnqueuePending(ctx, &models.PendingSubmission{
		Name:        draft.Name,
		Description: draft.Description,
		PhotoRef:    ref,
		ContentType: draft.ContentType,
		Location:    draft.Location,
	})
	if err != nil {
		if delErr := s.photos.Delete(ctx, ref); delErr != nil {
			log.Warn().Err(delErr).Str("photo_ref", ref).Msg("Failed to delete spooled photo")
		}
		return nil, err
	}

	s.metrics.Submitted(string(models.SubmitQueued))
	log.Info().Str("local_id", queued.LocalID).Msg("Story queued for sync")
	return &models.SubmitResult{Status: models.SubmitQueued, Pending: queued}, nil
}

// Pending returns the submissions waiting for delivery
func (s *StoryService) Pending(ctx context.Context) ([]*models.PendingSubmission, error) {
	return s.store.ListPending(ctx)
}

// Fetch loads the remote story list; it is the FetchFunc used by refreshes
func (s *StoryService) Fetch(ctx context.Context) ([]*models.Story, error) {
	if !s.online() {
		return nil, sentinel.ErrRemoteUnavailable
	}
	return s.remote.ListStories(ctx)
}
