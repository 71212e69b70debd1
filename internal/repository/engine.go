package repository

import (
	"context"
	"errors"
	"fmt"

	"story-offline/internal/models"
	"story-offline/internal/sentinel"
)

// Engine is a persistent storage engine holding the confirmed and pending
// partitions. GetStory returns nil without error when the id is absent.
// InsertPending returns false when the local id is already taken.
type Engine interface {
	EnsureSchema(ctx context.Context) error
	UpsertStories(ctx context.Context, stories []*models.Story) error
	GetStory(ctx context.Context, id string) (*models.Story, error)
	StoryExists(ctx context.Context, id string) (bool, error)
	ListStories(ctx context.Context) ([]*models.Story, error)
	DeleteStory(ctx context.Context, id string) error
	InsertPending(ctx context.Context, p *models.PendingSubmission) (bool, error)
	ListPending(ctx context.Context) ([]*models.PendingSubmission, error)
	DeletePending(ctx context.Context, localID string) error
	Close() error
}

// StorageError reports a read or write that could not complete
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match sentinel.ErrStorage
func (e *StorageError) Is(target error) bool {
	return target == sentinel.ErrStorage
}

func storageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
