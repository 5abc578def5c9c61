package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores objects as plain files under a base directory. Writes go
// through a temp file and rename in the target directory, so a crash never
// leaves a partially written object at its final path.
type Local struct {
	base string
}

// NewLocal creates the base directory if needed and returns a Local store.
func NewLocal(baseDir string) (*Local, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &Local{base: baseDir}, nil
}

// Save writes src to path atomically.
func (l *Local) Save(_ context.Context, path string, src io.Reader, _ int64, _ string) error {
	full := l.fullPath(path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp object: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("place object: %w", err)
	}

	return nil
}

// Load opens the object at path for reading.
func (l *Local) Load(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, ErrNotExist)
		}
		return nil, fmt.Errorf("load object: %w", err)
	}

	return f, nil
}

// Delete removes the object at path. Missing objects are not an error.
func (l *Local) Delete(_ context.Context, path string) error {
	if err := os.Remove(l.fullPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

// DeleteAll removes the whole subtree under prefix.
func (l *Local) DeleteAll(_ context.Context, prefix string) error {
	if err := os.RemoveAll(l.fullPath(prefix)); err != nil {
		return fmt.Errorf("delete objects under %s: %w", prefix, err)
	}

	return nil
}

// Ping verifies the base directory still exists and is a directory.
func (l *Local) Ping(_ context.Context) error {
	info, err := os.Stat(l.base)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", l.base)
	}

	return nil
}

func (l *Local) fullPath(path string) string {
	return filepath.Join(l.base, filepath.FromSlash(path))
}
