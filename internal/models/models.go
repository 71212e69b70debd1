package models

import (
	"strings"
	"time"
)

// Location is a point on the map
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Story represents a story kept in the confirmed partition
type Story struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photo_url"`
	Location    *Location `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	SavedAt     time.Time `json:"saved_at"`
}

// HasLocation reports whether the story can be placed on the map
func (s *Story) HasLocation() bool {
	return s.Location != nil
}

// Matches reports whether name or description contains the lowercased term
func (s *Story) Matches(term string) bool {
	return strings.Contains(strings.ToLower(s.Name), term) ||
		strings.Contains(strings.ToLower(s.Description), term)
}

// PendingSubmission is a story not yet acknowledged by the remote service
type PendingSubmission struct {
	LocalID     string    `json:"local_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoRef    string    `json:"photo_ref"`
	ContentType string    `json:"content_type"`
	Location    *Location `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	QueuedAt    time.Time `json:"queued_at"`
}

// NewStory is the payload sent to the remote service when creating a story
type NewStory struct {
	Name        string
	Description string
	Photo       []byte
	ContentType string
	Location    *Location
}

// Source tells where a list of stories came from
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// RefreshResult is the outcome of a refresh against the remote service
type RefreshResult struct {
	Stories   []*Story `json:"stories"`
	Source    Source   `json:"source"`
	RemoteErr error    `json:"-"`
}

// Offline reports whether the result was served from the local cache
func (r *RefreshResult) Offline() bool {
	return r.Source == SourceCache
}

// SyncFailure describes a pending submission that could not be delivered
type SyncFailure struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
}

// SyncReport summarizes a single sync coordinator run
type SyncReport struct {
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failures  []SyncFailure `json:"failures,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// SubmitStatus is the outcome of a story submission
type SubmitStatus string

const (
	SubmitDelivered SubmitStatus = "delivered"
	SubmitQueued    SubmitStatus = "queued"
)

// SubmitResult is returned by a story submission
type SubmitResult struct {
	Status  SubmitStatus       `json:"status"`
	Story   *Story             `json:"story,omitempty"`
	Pending *PendingSubmission `json:"pending,omitempty"`
}

// DeleteResult is returned by a story deletion
type DeleteResult struct {
	ID            string `json:"id"`
	RemoteDeleted bool   `json:"remote_deleted"`
	RemoteError   string `json:"remote_error,omitempty"`
}
