package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File stores one JSON file per key below a base directory.
// Writes go through a temporary file and rename, so readers never see a partial value.
type File struct {
	basePath string
	now      func() time.Time
}

// NewFile creates a file store rooted at basePath, creating the directory if needed.
func NewFile(basePath string) (*File, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base path %s: %w", basePath, err)
	}

	return &File{
		basePath: basePath,
		now:      time.Now,
	}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.basePath, key+".json"), nil
}

// Get returns the value stored under key, or ErrNotFound when it is absent or expired.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	r, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}

	if r.expired(f.now()) {
		_ = os.Remove(path)
		return nil, ErrNotFound
	}

	return r.Value, nil
}

// Put stores value under key. A non-positive ttl keeps it until Forget.
func (f *File) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	data, err := encodeRecord(newRecord(value, ttl, f.now()))
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.basePath, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	return nil
}

// Forget removes key. Removing an absent key is not an error.
func (f *File) Forget(ctx context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

var _ Store = (*File)(nil)
