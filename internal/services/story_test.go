package services

import (
	"context"
	"testing"

	"story-offline/internal/connectivity"
	"story-offline/internal/models"
	"story-offline/internal/sentinel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoryService(t *testing.T, online bool) (*StoryService, *fakeRemote) {
	t.Helper()
	monitor := connectivity.NewMonitor()
	monitor.Set(online)
	remote := newFakeRemote()
	return NewStoryService(newTestStore(t), remote, newTestSpool(t), monitor, nil), remote
}

func TestSubmit_DeliveredWhenOnline(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, true)

	d := draft("Morning coffee")
	d.Location = &models.Location{Lat: 0, Lon: 0}
	res, err := svc.Submit(ctx, d)
	require.NoError(t, err)

	assert.Equal(t, models.SubmitDelivered, res.Status)
	require.NotNil(t, res.Story)
	assert.Equal(t, "story-1", res.Story.ID)
	assert.True(t, res.Story.HasLocation())
	assert.False(t, res.Story.SavedAt.IsZero())
	assert.Equal(t, []string{"Morning coffee"}, remote.createdDescriptions())

	cached, found, err := svc.store.Get(ctx, "story-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Morning coffee", cached.Description)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmit_QueuedWhenOffline(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, false)

	res, err := svc.Submit(ctx, draft("Offline walk"))
	require.NoError(t, err)

	assert.Equal(t, models.SubmitQueued, res.Status)
	require.NotNil(t, res.Pending)
	assert.NotEmpty(t, res.Pending.LocalID)
	assert.Empty(t, remote.createdDescriptions())

	photo, err := svc.photos.Get(ctx, res.Pending.PhotoRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:Offline walk"), photo)

	all, err := svc.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "pending submissions stay out of the confirmed partition")
}

func TestSubmit_QueuedWhenRemoteUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, true)
	remote.createErr["Flaky"] = sentinel.ErrRemoteUnavailable

	res, err := svc.Submit(ctx, draft("Flaky"))
	require.NoError(t, err)
	assert.Equal(t, models.SubmitQueued, res.Status)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmit_RejectedIsNotQueued(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, true)
	remote.createErr["Too big"] = sentinel.ErrRejected

	_, err := svc.Submit(ctx, draft("Too big"))
	assert.ErrorIs(t, err, sentinel.ErrRejected)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmit_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newStoryService(t, false)

	_, err := svc.Submit(ctx, nil)
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = svc.Submit(ctx, &models.NewStory{Description: " ", Photo: []byte("x")})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = svc.Submit(ctx, &models.NewStory{Description: "no photo"})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestDelete_ToleratesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, true)
	remote.deleteErr = sentinel.ErrRemoteUnavailable

	_, err := svc.Save(ctx, &models.Story{ID: "s1", Name: "Saved"})
	require.NoError(t, err)

	res, err := svc.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, res.RemoteDeleted)
	assert.NotEmpty(t, res.RemoteError)

	has, err := svc.store.Has(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDelete_MirrorsRemotelyWhenOnline(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, true)

	_, err := svc.Save(ctx, &models.Story{ID: "s1"})
	require.NoError(t, err)

	res, err := svc.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, res.RemoteDeleted)
	assert.Equal(t, []string{"s1"}, remote.deleted)
}

func TestDelete_OfflineLeavesQueueAlone(t *testing.T) {
	ctx := context.Background()
	svc, remote := newStoryService(t, false)

	queued, err := svc.Submit(ctx, draft("Queued"))
	require.NoError(t, err)

	res, err := svc.Delete(ctx, queued.Pending.LocalID)
	require.NoError(t, err)
	assert.False(t, res.RemoteDeleted)
	assert.Empty(t, remote.deleted)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = svc.Delete(ctx, "")
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestFetch_OfflineIsRemoteUnavailable(t *testing.T) {
	svc, remote := newStoryService(t, false)
	remote.stories = []*models.Story{{ID: "r1"}}

	_, err := svc.Fetch(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrRemoteUnavailable)
}
