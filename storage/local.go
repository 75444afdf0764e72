package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps files in a directory on local disk, one file per id.
type LocalStore struct {
	Root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("error creating storage directory %s: %w", root, err)
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	if err := validateFileID(fileID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.Root, fileID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if err != nil {
		return nil, &UnavailableError{Driver: "local", FileID: fileID, Err: err}
	}
	return data, nil
}

func (s *LocalStore) Put(ctx context.Context, fileID string, data []byte) error {
	if err := validateFileID(fileID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Root, fileID), data, 0644)
}

// Delete removes the file. Deleting a missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, fileID string) error {
	if err := validateFileID(fileID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.Root, fileID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
