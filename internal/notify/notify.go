// Package notify delivers user-facing notifications about sync and
// connectivity to whichever sinks are configured.
package notify

import (
	"context"
	"errors"
	"time"

	"story-offline/internal/connectivity"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kind classifies a notification
type Kind string

const (
	KindSyncSuccess Kind = "sync_success"
	KindSyncFailed  Kind = "sync_failed"
	KindOnline      Kind = "online"
	KindOffline     Kind = "offline"
)

// Notification is a message for the user
type Notification struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	LocalID string    `json:"local_id,omitempty"`
	StoryID string    `json:"story_id,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier
type Multi []Notifier

// Notify delivers to all notifiers and joins their errors
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notifications to the global zerolog logger
type Log struct{}

// Notify implements Notifier
func (Log) Notify(ctx context.Context, n Notification) error {
	var ev *zerolog.Event
	switch n.Kind {
	case KindSyncFailed:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Str("kind", string(n.Kind)).
		Str("local_id", n.LocalID).
		Str("story_id", n.StoryID).
		Str("message", n.Message).
		Msg(n.Title)
	return nil
}

// SyncSucceeded builds the notification for a delivered submission
func SyncSucceeded(localID, storyID string) Notification {
	return Notification{
		Kind:    KindSyncSuccess,
		Title:   "Sync Success",
		Message: "Story uploaded successfully!",
		LocalID: localID,
		StoryID: storyID,
		At:      time.Now(),
	}
}

// SyncFailed builds the notification for a submission left in the queue
func SyncFailed(localID string) Notification {
	return Notification{
		Kind:    KindSyncFailed,
		Title:   "Sync Failed",
		Message: "Failed to upload story. Will retry later.",
		LocalID: localID,
		At:      time.Now(),
	}
}

// Connectivity builds the notification for an online/offline edge
func Connectivity(online bool) Notification {
	if online {
		return Notification{
			Kind:    KindOnline,
			Title:   "Online",
			Message: "Connection restored, syncing stories...",
			At:      time.Now(),
		}
	}
	return Notification{
		Kind:    KindOffline,
		Title:   "Offline",
		Message: "You are now offline. Changes will be synced when online.",
		At:      time.Now(),
	}
}

// Watch forwards connectivity edges of monitor to n until the returned
// function is called
func Watch(ctx context.Context, monitor *connectivity.Monitor, n Notifier) func() {
	return monitor.Subscribe(func(ev connectivity.Event) {
		if err := n.Notify(ctx, Connectivity(ev.Online)); err != nil {
			log.Warn().Err(err).Bool("online", ev.Online).Msg("Failed to deliver connectivity notification")
		}
	})
}
