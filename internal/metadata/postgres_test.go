package metadata_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-storage/internal/metadata"
	"github.com/aliskhannn/image-storage/internal/model"
)

// newPostgresStore connects to the database named by TEST_DATABASE_DSN and
// skips the test when it is unset. Each test works in its own path namespace
// so runs do not interfere.
func newPostgresStore(t *testing.T) *metadata.PostgresStore {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	require.NoError(t, metadata.Migrate(dsn))

	db, err := dbpg.New(dsn, nil, &dbpg.Options{MaxOpenConns: 5, MaxIdleConns: 2})
	require.NoError(t, err)

	store := metadata.NewPostgresStore(db)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func postgresRecord(base string, createdAt time.Time) model.ImageRecord {
	id := uuid.New()
	return model.ImageRecord{
		UUID:         id,
		OriginalName: "cat.jpg",
		StoredPath:   base + "/" + id.String() + ".jpg",
		UserPath:     base,
		SizeBytes:    1234,
		Format:       model.FormatJPEG,
		Width:        640,
		Height:       480,
		CreatedAt:    createdAt,
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	base := "pgtest/" + uuid.NewString()

	rec := postgresRecord(base, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.Put(ctx, rec))
	t.Cleanup(func() { _ = store.Delete(ctx, rec.UUID) })

	got, err := store.Get(ctx, rec.UUID)
	require.NoError(t, err)
	assert.Equal(t, rec.UUID, got.UUID)
	assert.Equal(t, rec.StoredPath, got.StoredPath)
	assert.Equal(t, rec.Format, got.Format)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	assert.ErrorIs(t, store.Put(ctx, rec), metadata.ErrDuplicateID)

	require.NoError(t, store.Delete(ctx, rec.UUID))
	assert.ErrorIs(t, store.Delete(ctx, rec.UUID), metadata.ErrNotFound)

	_, err = store.Get(ctx, rec.UUID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestPostgresStoreList(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	base := "pgtest/" + uuid.NewString()

	start := time.Now().UTC().Truncate(time.Microsecond)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := postgresRecord(base+"/a", start.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Put(ctx, rec))
		ids = append(ids, rec.UUID)
	}
	neighbor := postgresRecord(base+"/ab", start)
	require.NoError(t, store.Put(ctx, neighbor))
	t.Cleanup(func() {
		for _, id := range ids {
			_ = store.Delete(ctx, id)
		}
		_ = store.Delete(ctx, neighbor.UUID)
	})

	recs, total, err := store.List(ctx, base+"/a", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, recs, 3)

	// Newest first.
	assert.Equal(t, ids[4], recs[0].UUID)
	assert.Equal(t, ids[3], recs[1].UUID)

	rest, total, err := store.List(ctx, base+"/a", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rest, 2)

	// "a" does not absorb its sibling "ab".
	for _, rec := range append(recs, rest...) {
		assert.NotEqual(t, neighbor.UUID, rec.UUID)
	}
}
