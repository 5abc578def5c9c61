package metadata_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-storage/internal/metadata"
	"github.com/aliskhannn/image-storage/internal/model"
)

func newFileStore(t *testing.T) (*metadata.FileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.json")
	s, err := metadata.NewFileStore(path)
	require.NoError(t, err)

	return s, path
}

func record(userPath string, createdAt time.Time) model.ImageRecord {
	id := uuid.New()
	return model.ImageRecord{
		UUID:         id,
		OriginalName: "cat.jpg",
		StoredPath:   userPath + "/" + id.String() + ".jpg",
		UserPath:     userPath,
		SizeBytes:    3,
		Format:       model.FormatJPEG,
		Width:        1,
		Height:       1,
		CreatedAt:    createdAt,
	}
}

func TestFileStorePutGet(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	rec := record("user1/photos", time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, rec.UUID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestFileStoreDuplicateID(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	rec := record("user1", time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))

	err := s.Put(ctx, rec)
	assert.ErrorIs(t, err, metadata.ErrDuplicateID)
}

func TestFileStoreGetMissing(t *testing.T) {
	s, _ := newFileStore(t)

	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestFileStoreDelete(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	rec := record("user1", time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Delete(ctx, rec.UUID))

	_, err := s.Get(ctx, rec.UUID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, rec.UUID), metadata.ErrNotFound)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	recs := []model.ImageRecord{
		record("user1/a", time.Now().UTC()),
		record("user1/b", time.Now().UTC()),
		record("user2", time.Now().UTC()),
	}
	for _, rec := range recs {
		require.NoError(t, s.Put(ctx, rec))
	}
	require.NoError(t, s.Close())

	reopened, err := metadata.NewFileStore(path)
	require.NoError(t, err)

	for _, rec := range recs {
		got, err := reopened.Get(ctx, rec.UUID)
		require.NoError(t, err)
		assert.Equal(t, rec.StoredPath, got.StoredPath)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at changed across reopen")
	}
}

func TestFileStoreOpensMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "index.json")

	s, err := metadata.NewFileStore(path)
	require.NoError(t, err)

	_, total, err := s.List(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestFileStoreListPagination(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		rec := record("user1/album", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Put(ctx, rec))
	}

	first, total, err := s.List(ctx, "user1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, first, 20)

	second, total, err := s.List(ctx, "user1", 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, second, 5)

	// Newest first, and no record appears on both pages.
	seen := make(map[uuid.UUID]bool)
	prev := first[0].CreatedAt
	for _, rec := range append(first, second...) {
		assert.False(t, rec.CreatedAt.After(prev), "records out of order")
		prev = rec.CreatedAt
		assert.False(t, seen[rec.UUID], "record %s paged twice", rec.UUID)
		seen[rec.UUID] = true
	}
	assert.Len(t, seen, 25)
}

func TestFileStoreListPrefixBoundary(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	inside := record("user1", time.Now().UTC())
	lookalike := record("user10", time.Now().UTC())
	require.NoError(t, s.Put(ctx, inside))
	require.NoError(t, s.Put(ctx, lookalike))

	got, total, err := s.List(ctx, "user1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, inside.UUID, got[0].UUID)
}

func TestFileStoreListOffsetPastEnd(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, record("user1", time.Now().UTC())))

	got, total, err := s.List(ctx, "user1", 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, got)
}

func TestFileStoreConcurrentPuts(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Put(ctx, record(fmt.Sprintf("user1/%d", i), time.Now().UTC()))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "put %d failed", i)
	}

	_, total, err := s.List(ctx, "user1", n, 0)
	require.NoError(t, err)
	assert.Equal(t, n, total)
}
