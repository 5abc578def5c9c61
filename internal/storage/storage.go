// Package storage persists raw image bytes under canonical slash-separated
// paths. Backends: the local filesystem and S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Load when no object lives at the given path.
var ErrNotExist = errors.New("object does not exist")

// Storage is the blob backend. Save must be atomic: a reader never observes
// a half-written object. Delete and DeleteAll are idempotent; removing a
// missing object is not an error.
type Storage interface {
	Save(ctx context.Context, path string, src io.Reader, size int64, contentType string) error
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error

	// DeleteAll removes every object under the given path prefix.
	DeleteAll(ctx context.Context, prefix string) error

	// Ping reports whether the backend is reachable and writable.
	Ping(ctx context.Context) error
}
