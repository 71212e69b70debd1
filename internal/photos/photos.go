// Package photos spools the photos of pending submissions until they are
// delivered to the remote service.
package photos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"story-offline/internal/sentinel"

	"github.com/google/uuid"
)

// Store keeps photo bytes under opaque references
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// FileStore keeps photos as files in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates the spool directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes data and returns its reference
func (s *FileStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := uuid.NewString()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close photo file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref)); err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}
	return ref, nil
}

// Get reads the photo stored under ref
func (s *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("photo %s: %w", ref, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	return data, nil
}

// Delete removes the photo; a missing ref is not an error
func (s *FileStore) Delete(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

func (s *FileStore) path(ref string) (string, error) {
	if ref == "" || filepath.Base(ref) != ref || ref[0] == '.' {
		return "", fmt.Errorf("%w: bad photo reference %q", sentinel.ErrInvalidInput, ref)
	}
	return filepath.Join(s.dir, ref), nil
}
