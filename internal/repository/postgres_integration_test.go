//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"story-offline/internal/models"
	"story-offline/internal/repository"
)

type PostgresStoreSuite struct {
	suite.Suite
	engine *repository.PostgresEngine
	store  *repository.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("STORY_PG_DSN") == "" {
		t.Skip("STORY_PG_DSN not set")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	engine, err := repository.NewPostgresEngine(context.Background(), os.Getenv("STORY_PG_DSN"))
	s.Require().NoError(err)
	s.engine = engine
	s.store = repository.NewStore(engine)
	s.Require().NoError(s.store.Open(context.Background()))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.store.Close()
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	stories, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	for _, st := range stories {
		s.Require().NoError(s.store.Remove(ctx, st.ID))
	}
	pending, err := s.store.ListPending(ctx)
	s.Require().NoError(err)
	for _, p := range pending {
		s.Require().NoError(s.store.RemovePending(ctx, p.LocalID))
	}
}

func (s *PostgresStoreSuite) TestUpsertOverwrites() {
	ctx := context.Background()

	_, err := s.store.Put(ctx, &models.Story{ID: "pg-1", Name: "First"})
	s.Require().NoError(err)
	_, err = s.store.Put(ctx, &models.Story{ID: "pg-1", Name: "Second", Location: &models.Location{Lat: 1, Lon: 2}})
	s.Require().NoError(err)

	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("Second", all[0].Name)
	s.Require().NotNil(all[0].Location)
	s.Equal(2.0, all[0].Location.Lon)
}

func (s *PostgresStoreSuite) TestPendingIsolation() {
	ctx := context.Background()

	p, err := s.store.EnqueuePending(ctx, &models.PendingSubmission{PhotoRef: "ref", Description: "queued"})
	s.Require().NoError(err)
	s.WithinDuration(time.Now(), p.QueuedAt, time.Minute)

	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Empty(all)

	pending, err := s.store.ListPending(ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(p.LocalID, pending[0].LocalID)
}

func (s *PostgresStoreSuite) TestSchemaIsIdempotent() {
	s.Require().NoError(s.engine.EnsureSchema(context.Background()))
}
