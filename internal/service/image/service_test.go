package image_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/metadata"
	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/notify"
	"github.com/aliskhannn/image-storage/internal/processor"
	imagesvc "github.com/aliskhannn/image-storage/internal/service/image"
	"github.com/aliskhannn/image-storage/internal/storage"
)

// fakeNotifier records published events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Publish(_ context.Context, ev notify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) byType(typ string) []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []notify.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc      *imagesvc.Service
	engine   *processor.Engine
	notifier *fakeNotifier
	blobDir  string
}

func newFixture(t *testing.T, limits imagesvc.Limits) fixture {
	t.Helper()

	meta, err := metadata.NewFileStore(filepath.Join(t.TempDir(), "index.json"))
	require.NoError(t, err)

	blobDir := t.TempDir()
	blobs, err := storage.NewLocal(blobDir)
	require.NoError(t, err)

	engine := processor.New(processor.Options{})
	notifier := &fakeNotifier{}

	return fixture{
		svc:      imagesvc.NewService(meta, blobs, engine, notifier, limits),
		engine:   engine,
		notifier: notifier,
		blobDir:  blobDir,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}

	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestStoreAndFetchOriginal(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})
	ctx := context.Background()
	data := pngBytes(t, 120, 80)

	rec, err := f.svc.Store(ctx, "user1/photos", "cat.png", data)
	require.NoError(t, err)

	assert.Equal(t, "cat.png", rec.OriginalName)
	assert.Equal(t, "user1/photos", rec.UserPath)
	assert.True(t, strings.HasPrefix(rec.StoredPath, "user1/photos/"), "stored path %q", rec.StoredPath)
	assert.True(t, strings.HasSuffix(rec.StoredPath, ".png"), "stored path %q", rec.StoredPath)
	assert.Contains(t, rec.StoredPath, rec.UUID.String())
	assert.Equal(t, model.FormatPNG, rec.Format)
	assert.Equal(t, 120, rec.Width)
	assert.Equal(t, 80, rec.Height)
	assert.Equal(t, int64(len(data)), rec.SizeBytes)

	got, format, err := f.svc.Fetch(ctx, rec, processor.Params{})
	require.NoError(t, err)
	assert.Equal(t, model.FormatPNG, format)
	assert.Equal(t, data, got, "original bytes must round-trip untouched")

	stored := f.notifier.byType(notify.EventImageStored)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.UUID.String(), stored[0].Data["uuid"])
}

func TestStoreRejectsEmptyFile(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})

	_, err := f.svc.Store(context.Background(), "user1", "cat.png", nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidFileContent), "got %v", err)
}

func TestStoreRejectsBadExtension(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})

	_, err := f.svc.Store(context.Background(), "user1", "cat.txt", pngBytes(t, 10, 10))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidFileType), "got %v", err)

	_, err = f.svc.Store(context.Background(), "user1", "cat", pngBytes(t, 10, 10))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidFileType), "got %v", err)
}

func TestStoreRejectsMislabeledContent(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})

	_, err := f.svc.Store(context.Background(), "user1", "cat.png", []byte("just some text, not pixels"))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidFileContent), "got %v", err)
}

func TestStoreMaxSizeBoundary(t *testing.T) {
	data := pngBytes(t, 40, 40)
	ctx := context.Background()

	t.Run("exactly at the limit", func(t *testing.T) {
		f := newFixture(t, imagesvc.Limits{MaxFileSize: int64(len(data))})
		_, err := f.svc.Store(ctx, "user1", "cat.png", data)
		assert.NoError(t, err)
	})

	t.Run("one byte over", func(t *testing.T) {
		f := newFixture(t, imagesvc.Limits{MaxFileSize: int64(len(data)) - 1})
		_, err := f.svc.Store(ctx, "user1", "cat.png", data)
		assert.True(t, apperr.Is(err, apperr.CodeFileTooLarge), "got %v", err)
	})
}

func TestStoreUsesDetectedFormat(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})

	// PNG pixels with a jpg name: the extension passes the whitelist, but
	// the stored object is named by what the bytes actually are.
	rec, err := f.svc.Store(context.Background(), "user1", "cat.jpg", pngBytes(t, 10, 10))
	require.NoError(t, err)

	assert.Equal(t, model.FormatPNG, rec.Format)
	assert.True(t, strings.HasSuffix(rec.StoredPath, ".png"), "stored path %q", rec.StoredPath)
}

func TestInfoUnknownID(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})

	rec, err := f.svc.Store(context.Background(), "user1", "cat.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	got, err := f.svc.Info(context.Background(), rec.UUID)
	require.NoError(t, err)
	assert.Equal(t, rec.StoredPath, got.StoredPath)
}

func TestFetchTransformIsCached(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})
	ctx := context.Background()

	rec, err := f.svc.Store(ctx, "user1", "cat.png", pngBytes(t, 200, 100))
	require.NoError(t, err)

	params, err := f.engine.ParseParams(processor.RawParams{Width: "50"})
	require.NoError(t, err)

	derived, format, err := f.svc.Fetch(ctx, rec, params)
	require.NoError(t, err)
	assert.Equal(t, model.FormatPNG, format)

	variantRel := filepath.Join("variants", rec.UUID.String(), f.engine.VariantKey(params)+".png")
	variantAbs := filepath.Join(f.blobDir, variantRel)
	_, err = os.Stat(variantAbs)
	require.NoError(t, err, "derived rendition must be cached on disk")

	// Replace the cached rendition with a sentinel: a second fetch must be
	// served from the cache, not recomputed.
	sentinel := []byte("sentinel bytes")
	require.NoError(t, os.WriteFile(variantAbs, sentinel, 0o644))

	cached, _, err := f.svc.Fetch(ctx, rec, params)
	require.NoError(t, err)
	assert.Equal(t, sentinel, cached)
	assert.NotEqual(t, derived, cached)
}

func TestRemove(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})
	ctx := context.Background()

	rec, err := f.svc.Store(ctx, "user1", "cat.png", pngBytes(t, 200, 100))
	require.NoError(t, err)

	// Materialize a cached variant so Remove has something to sweep.
	params, err := f.engine.ParseParams(processor.RawParams{Width: "50"})
	require.NoError(t, err)
	_, _, err = f.svc.Fetch(ctx, rec, params)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, rec))

	_, err = f.svc.Info(ctx, rec.UUID)
	assert.True(t, apperr.Is(err, apperr.CodeImageNotFound), "got %v", err)

	_, err = os.Stat(filepath.Join(f.blobDir, filepath.FromSlash(rec.StoredPath)))
	assert.True(t, os.IsNotExist(err), "stored file must be gone")

	_, err = os.Stat(filepath.Join(f.blobDir, "variants", rec.UUID.String()))
	assert.True(t, os.IsNotExist(err), "variant directory must be gone")

	assert.Len(t, f.notifier.byType(notify.EventImageDeleted), 1)

	err = f.svc.Remove(ctx, rec)
	assert.True(t, apperr.Is(err, apperr.CodeImageNotFound), "second remove, got %v", err)
}

func TestRemoveSurvivesMissingBlob(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})
	ctx := context.Background()

	rec, err := f.svc.Store(ctx, "user1", "cat.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.blobDir, filepath.FromSlash(rec.StoredPath))))

	assert.NoError(t, f.svc.Remove(ctx, rec))

	_, err = f.svc.Info(ctx, rec.UUID)
	assert.True(t, apperr.Is(err, apperr.CodeImageNotFound), "got %v", err)
}

func TestFetchMissingBlobReportsNotFound(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})
	ctx := context.Background()

	rec, err := f.svc.Store(ctx, "user1", "cat.png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.blobDir, filepath.FromSlash(rec.StoredPath))))

	_, _, err = f.svc.Fetch(ctx, rec, processor.Params{})
	assert.True(t, apperr.Is(err, apperr.CodeImageNotFound), "got %v", err)
}

func TestListScopesByPrefix(t *testing.T) {
	f := newFixture(t, imagesvc.Limits{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Store(ctx, "user1/a", "cat.png", pngBytes(t, 10+i, 10))
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := f.svc.Store(ctx, "user1/b", "cat.png", pngBytes(t, 20+i, 10))
		require.NoError(t, err)
	}

	_, total, err := f.svc.List(ctx, "user1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	recs, total, err := f.svc.List(ctx, "user1/a", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, rec := range recs {
		assert.Equal(t, "user1/a", rec.UserPath)
	}
}
