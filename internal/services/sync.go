package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"story-offline/internal/connectivity"
	"story-offline/internal/metrics"
	"story-offline/internal/models"
	"story-offline/internal/notify"
	"story-offline/internal/photos"
	"story-offline/internal/repository"
	"story-offline/internal/sentinel"

	"github.com/rs/zerolog/log"
)

// Creator creates stories on the remote service
type Creator interface {
	CreateStory(ctx context.Context, story *models.NewStory) (*models.Story, error)
}

// SyncCoordinator drains the pending partition against the remote service
type SyncCoordinator struct {
	store    *repository.Store
	remote   Creator
	photos   photos.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	promote  bool

	running atomic.Bool

	mu          sync.Mutex
	unsubscribe func()
	cancel      context.CancelFunc
	stopped     bool
	wg          sync.WaitGroup
}

// SyncOption configures a SyncCoordinator
type SyncOption func(*SyncCoordinator)

// WithPromotion mirrors delivered stories into the confirmed partition
func WithPromotion(promote bool) SyncOption {
	return func(c *SyncCoordinator) { c.promote = promote }
}

func WithNotifier(n notify.Notifier) SyncOption {
	return func(c *SyncCoordinator) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) SyncOption {
	return func(c *SyncCoordinator) { c.metrics = m }
}

// NewSyncCoordinator creates a new sync coordinator
func NewSyncCoordinator(store *repository.Store, remote Creator, spool photos.Store, opts ...SyncOption) *SyncCoordinator {
	c := &SyncCoordinator{
		store:    store,
		remote:   remote,
		photos:   spool,
		notifier: notify.Log{},
		promote:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run delivers every pending submission once, one at a time. Failed items
// stay queued for the next run. Run never fails; problems are reported in
// the returned report. A run requested while another is in flight is
// skipped.
func (c *SyncCoordinator) Run(ctx context.Context) models.SyncReport {
	started := time.Now()
	if !c.running.CompareAndSwap(false, true) {
		log.Debug().Msg("Sync already running, skipping")
		c.metrics.SyncSkipped()
		return models.SyncReport{Skipped: true, StartedAt: started}
	}
	defer c.running.Store(false)

	report := models.SyncReport{StartedAt: started}

	pending, err := c.store.ListPending(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending stories")
		report.Error = err.Error()
		report.Duration = time.Since(started)
		return report
	}

	for _, sub := range pending {
		if ctx.Err() != nil {
			log.Info().Int("remaining", len(pending)-report.Attempted).Msg("Sync interrupted")
			break
		}
		report.Attempted++

		storyID, err := c.deliver(ctx, sub)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", sentinel.ErrSyncItemFailed, sub.LocalID, err)
			log.Warn().Err(err).Str("local_id", sub.LocalID).Msg("Failed to sync story")
			report.Failures = append(report.Failures, models.SyncFailure{
				LocalID: sub.LocalID,
				Reason:  err.Error(),
			})
			c.notify(ctx, notify.SyncFailed(sub.LocalID))
			continue
		}

		report.Synced++
		log.Info().
			Str("local_id", sub.LocalID).
			Str("story_id", storyID).
			Msg("Story synced")
		c.notify(ctx, notify.SyncSucceeded(sub.LocalID, storyID))
	}

	report.Duration = time.Since(started)
	c.metrics.SyncCompleted(report.Synced, len(report.Failures), len(pending)-report.Synced, report.Duration.Seconds())

	if report.Attempted > 0 {
		log.Info().
			Int("attempted", report.Attempted).
			Int("synced", report.Synced).
			Int("failed", len(report.Failures)).
			Dur("duration", report.Duration).
			Msg("Sync finished")
	}
	return report
}

// deliver submits one pending item and dequeues it. The returned id is empty
// when the service did not echo the created story.
func (c *SyncCoordinator) deliver(ctx context.Context, sub *models.PendingSubmission) (string, error) {
	photo, err := c.photos.Get(ctx, sub.PhotoRef)
	if err != nil {
		return "", fmt.Errorf("failed to read spooled photo: %w", err)
	}

	created, err := c.remote.CreateStory(ctx, &models.NewStory{
		Name:        sub.Name,
		Description: sub.Description,
		Photo:       photo,
		ContentType: sub.ContentType,
		Location:    sub.Location,
	})
	if err != nil {
		return "", err
	}

	// The remote record exists from here on, so cancellation must not stop
	// the dequeue; only a storage failure leaves the item to be delivered
	// again on the next run.
	ctx = context.WithoutCancel(ctx)
	if err := c.store.RemovePending(ctx, sub.LocalID); err != nil {
		return "", fmt.Errorf("delivered but failed to dequeue: %w", err)
	}
	if err := c.photos.Delete(ctx, sub.PhotoRef); err != nil {
		log.Warn().Err(err).Str("photo_ref", sub.PhotoRef).Msg("Failed to delete spooled photo")
	}

	if created == nil {
		return "", nil
	}
	if c.promote {
		if _, err := c.store.Put(ctx, created); err != nil {
			log.Warn().Err(err).Str("story_id", created.ID).Msg("Failed to promote synced story")
		}
	}
	return created.ID, nil
}

func (c *SyncCoordinator) notify(ctx context.Context, n notify.Notification) {
	if err := c.notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("Failed to deliver notification")
	}
}

// Start subscribes the coordinator to online edges of monitor. Each edge
// launches a run in the background; runs stop between items once ctx is
// done or Stop is called.
func (c *SyncCoordinator) Start(ctx context.Context, monitor *connectivity.Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribe != nil || c.stopped {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.unsubscribe = monitor.OnOnline(func() { c.trigger(runCtx) })

	log.Info().Msg("Sync coordinator started")
}

func (c *SyncCoordinator) trigger(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(ctx)
	}()
}

// Stop removes the subscription and waits for an in-flight run to return
func (c *SyncCoordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
	log.Info().Msg("Sync coordinator stopped")
}
