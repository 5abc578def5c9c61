// Package metadata persists the UUID-keyed index of stored images. Two
// backends implement the same contract: a single-file JSON index and a
// PostgreSQL table.
package metadata

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-storage/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for a UUID.
	ErrNotFound = errors.New("image record not found")

	// ErrDuplicateID is returned by Put when the UUID is already taken.
	ErrDuplicateID = errors.New("image record already exists")
)

// Store is the durable image index. Every successful Put or Delete is on
// stable storage before the call returns. Mutation of a single UUID is
// serialized; reads may run concurrently with unrelated writes. Deleted
// UUIDs never resolve again.
type Store interface {
	Put(ctx context.Context, rec model.ImageRecord) error
	Get(ctx context.Context, id uuid.UUID) (model.ImageRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns records whose stored path lies under pathPrefix, newest
	// first, along with the total number of matches.
	List(ctx context.Context, pathPrefix string, limit, offset int) ([]model.ImageRecord, int, error)

	Close() error
}
