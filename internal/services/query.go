package services

import (
	"context"
	"fmt"
	"strings"

	"story-offline/internal/metrics"
	"story-offline/internal/models"
	"story-offline/internal/repository"

	"github.com/rs/zerolog/log"
)

// FetchFunc loads the current story list from the remote service
type FetchFunc func(ctx context.Context) ([]*models.Story, error)

// QueryService handles reads over the confirmed partition
type QueryService struct {
	store      *repository.Store
	reconciler *Reconciler
	metrics    *metrics.Metrics
}

// NewQueryService creates a new query service
func NewQueryService(store *repository.Store, reconciler *Reconciler, m *metrics.Metrics) *QueryService {
	return &QueryService{
		store:      store,
		reconciler: reconciler,
		metrics:    m,
	}
}

// Search returns stories whose name or description contains query, ignoring
// case. A blank query returns every story.
func (s *QueryService) Search(ctx context.Context, query string) ([]*models.Story, error) {
	stories, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return stories, nil
	}

	matches := make([]*models.Story, 0, len(stories))
	for _, story := range stories {
		if story.Matches(term) {
			matches = append(matches, story)
		}
	}
	return matches, nil
}

// Refresh fetches the remote list and reconciles it into the store. When the
// fetch fails the cached partition is served instead and the result is
// marked as coming from the cache.
func (s *QueryService) Refresh(ctx context.Context, fetch FetchFunc) (*models.RefreshResult, error) {
	fetched, fetchErr := fetch(ctx)
	if fetchErr == nil {
		stories, err := s.reconciler.Apply(ctx, fetched)
		if err != nil {
			log.Error().Err(err).Int("count", len(fetched)).Msg("Failed to cache fetched stories")
			stories = withIDs(fetched)
		}
		s.metrics.Refreshed(string(models.SourceRemote))
		return &models.RefreshResult{Stories: stories, Source: models.SourceRemote}, nil
	}

	log.Warn().Err(fetchErr).Msg("Remote fetch failed, serving cached stories")

	cached, err := s.reconciler.Fallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached stories: %w", err)
	}
	s.metrics.Refreshed(string(models.SourceCache))
	return &models.RefreshResult{Stories: cached, Source: models.SourceCache, RemoteErr: fetchErr}, nil
}

// Get returns a story by id; found is false when it is not cached
func (s *QueryService) Get(ctx context.Context, id string) (*models.Story, bool, error) {
	return s.store.Get(ctx, id)
}

// GetAll returns the whole confirmed partition
func (s *QueryService) GetAll(ctx context.Context) ([]*models.Story, error) {
	return s.store.GetAll(ctx)
}

// Has reports whether a story is cached
func (s *QueryService) Has(ctx context.Context, id string) (bool, error) {
	return s.store.Has(ctx, id)
}
