// Package image implements the object store: validated ingestion of
// uploads, retrieval with on-demand transformation, listing and deletion.
// All filesystem and index mutation flows through here; handlers never
// touch storage directly.
package image

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/metadata"
	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/notify"
	"github.com/aliskhannn/image-storage/internal/processor"
	"github.com/aliskhannn/image-storage/internal/storage"
)

// maxIDAttempts bounds retries when a freshly generated UUID collides.
const maxIDAttempts = 3

var allowedExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {},
}

var allowedMIMETypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp",
}

// metadataStore is the slice of the metadata index the service needs.
type metadataStore interface {
	Put(ctx context.Context, rec model.ImageRecord) error
	Get(ctx context.Context, id uuid.UUID) (model.ImageRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, pathPrefix string, limit, offset int) ([]model.ImageRecord, int, error)
}

// fileStorage is the slice of the blob backend the service needs.
type fileStorage interface {
	Save(ctx context.Context, path string, src io.Reader, size int64, contentType string) error
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	DeleteAll(ctx context.Context, prefix string) error
}

// transformer derives renditions and probes uploaded bytes.
type transformer interface {
	Probe(data []byte) (model.Format, int, int, error)
	Transform(data []byte, p processor.Params) ([]byte, model.Format, error)
	VariantKey(p processor.Params) string
}

// notifier publishes service events.
type notifier interface {
	Publish(ctx context.Context, ev notify.Event)
}

// Limits bounds single-upload processing.
type Limits struct {
	MaxFileSize   int64
	UploadTimeout time.Duration
}

// Service provides business logic for stored images.
type Service struct {
	meta     metadataStore
	files    fileStorage
	engine   transformer
	notifier notifier
	limits   Limits
}

// NewService creates a new Service.
func NewService(meta metadataStore, files fileStorage, engine transformer, n notifier, limits Limits) *Service {
	return &Service{
		meta:     meta,
		files:    files,
		engine:   engine,
		notifier: n,
		limits:   limits,
	}
}

// Store validates and persists one upload under canonicalPath. The stored
// file name is always derived from a fresh UUID and the detected format,
// never from the client-supplied name. On any failure after the blob write
// the partial file is removed, so a record and its bytes exist together or
// not at all.
func (s *Service) Store(ctx context.Context, canonicalPath, originalName string, data []byte) (model.ImageRecord, error) {
	if s.limits.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.UploadTimeout)
		defer cancel()
	}

	if len(data) == 0 {
		return model.ImageRecord{}, apperr.New(apperr.CodeInvalidFileContent, "file is empty")
	}
	if s.limits.MaxFileSize > 0 && int64(len(data)) > s.limits.MaxFileSize {
		return model.ImageRecord{}, apperr.New(apperr.CodeFileTooLarge, "file exceeds the maximum allowed size").
			WithDetail("max_file_size", s.limits.MaxFileSize)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return model.ImageRecord{}, apperr.New(apperr.CodeInvalidFileType, "file extension is not allowed").
			WithDetail("allowed", []string{"jpg", "jpeg", "png", "gif", "webp"})
	}

	if mt := mimetype.Detect(data); !isAllowedMIME(mt) {
		return model.ImageRecord{}, apperr.New(apperr.CodeInvalidFileContent, "file content is not an allowed image type").
			WithDetail("detected", mt.String())
	}

	format, width, height, err := s.engine.Probe(data)
	if err != nil {
		return model.ImageRecord{}, err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := uuid.New()
		storedPath := canonicalPath + "/" + id.String() + "." + processor.Ext(format)

		if err := s.files.Save(ctx, storedPath, bytes.NewReader(data), int64(len(data)), processor.ContentType(format)); err != nil {
			return model.ImageRecord{}, apperr.Wrap(apperr.CodeStorageError, "failed to store file", err)
		}

		rec := model.ImageRecord{
			UUID:         id,
			OriginalName: filepath.Base(originalName),
			StoredPath:   storedPath,
			UserPath:     canonicalPath,
			SizeBytes:    int64(len(data)),
			Format:       format,
			Width:        width,
			Height:       height,
			CreatedAt:    time.Now().UTC(),
		}

		err := s.meta.Put(ctx, rec)
		if err == nil {
			s.notifier.Publish(ctx, notify.ImageStored(rec))
			return rec, nil
		}

		// The blob must not outlive a failed index insert.
		if delErr := s.files.Delete(ctx, storedPath); delErr != nil {
			zlog.Logger.Err(delErr).Str("path", storedPath).Msg("failed to remove orphaned file")
		}

		if errors.Is(err, metadata.ErrDuplicateID) {
			zlog.Logger.Warn().Str("uuid", id.String()).Msg("uuid collision, retrying with a fresh id")
			continue
		}

		return model.ImageRecord{}, apperr.Wrap(apperr.CodeStorageError, "failed to index file", err)
	}

	return model.ImageRecord{}, apperr.New(apperr.CodeDuplicateUUID, "could not allocate a unique image id")
}

// Info returns the record for id.
func (s *Service) Info(ctx context.Context, id uuid.UUID) (model.ImageRecord, error) {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return model.ImageRecord{}, apperr.New(apperr.CodeImageNotFound, "image not found")
		}
		return model.ImageRecord{}, apperr.Wrap(apperr.CodeStorageError, "failed to look up image", err)
	}

	return rec, nil
}

// Fetch returns the image bytes for rec. With zero params the original
// bytes are returned untouched. Otherwise the derived rendition is served
// from the variant cache when present, or computed and cached best-effort:
// a concurrent recompute of the same variant is harmless since both writers
// produce identical content.
func (s *Service) Fetch(ctx context.Context, rec model.ImageRecord, p processor.Params) ([]byte, model.Format, error) {
	if p.IsZero() {
		data, err := s.readOriginal(ctx, rec)
		if err != nil {
			return nil, "", err
		}
		return data, rec.Format, nil
	}

	outFormat := p.Format
	if outFormat == "" {
		outFormat = rec.Format
	}
	vpath := variantPath(rec.UUID, s.engine.VariantKey(p), outFormat)

	cached, err := s.readBlob(ctx, vpath)
	if err == nil {
		return cached, outFormat, nil
	}
	if !errors.Is(err, storage.ErrNotExist) {
		zlog.Logger.Err(err).Str("path", vpath).Msg("variant cache read failed")
	}

	original, err := s.readOriginal(ctx, rec)
	if err != nil {
		return nil, "", err
	}

	derived, outFormat, err := s.engine.Transform(original, p)
	if err != nil {
		return nil, "", err
	}

	if err := s.files.Save(ctx, vpath, bytes.NewReader(derived), int64(len(derived)), processor.ContentType(outFormat)); err != nil {
		zlog.Logger.Err(err).Str("path", vpath).Msg("variant cache write failed")
	}

	return derived, outFormat, nil
}

// Remove deletes rec. The index entry goes first: once it is gone the
// object is logically deleted, and physical cleanup failures are logged
// rather than surfaced. A crash in between leaves an orphaned file, never a
// record pointing at missing bytes.
func (s *Service) Remove(ctx context.Context, rec model.ImageRecord) error {
	if err := s.meta.Delete(ctx, rec.UUID); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return apperr.New(apperr.CodeImageNotFound, "image not found")
		}
		return apperr.Wrap(apperr.CodeStorageError, "failed to delete record", err)
	}

	if err := s.files.Delete(ctx, rec.StoredPath); err != nil {
		zlog.Logger.Err(err).Str("path", rec.StoredPath).Msg("failed to delete stored file")
	}
	if err := s.files.DeleteAll(ctx, variantDir(rec.UUID)); err != nil {
		zlog.Logger.Err(err).Str("uuid", rec.UUID.String()).Msg("failed to delete cached variants")
	}

	s.notifier.Publish(ctx, notify.ImageDeleted(rec))

	return nil
}

// List returns one page of records under pathPrefix, newest first, plus the
// total number of matches.
func (s *Service) List(ctx context.Context, pathPrefix string, page, limit int) ([]model.ImageRecord, int, error) {
	offset := (page - 1) * limit

	records, total, err := s.meta.List(ctx, pathPrefix, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeStorageError, "failed to list images", err)
	}

	return records, total, nil
}

func (s *Service) readOriginal(ctx context.Context, rec model.ImageRecord) ([]byte, error) {
	data, err := s.readBlob(ctx, rec.StoredPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			zlog.Logger.Error().
				Str("uuid", rec.UUID.String()).
				Str("path", rec.StoredPath).
				Msg("stored file missing for indexed record")
			return nil, apperr.New(apperr.CodeImageNotFound, "image not found")
		}
		return nil, apperr.Wrap(apperr.CodeStorageError, "failed to read file", err)
	}

	return data, nil
}

func (s *Service) readBlob(ctx context.Context, path string) ([]byte, error) {
	rc, err := s.files.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func isAllowedMIME(mt *mimetype.MIME) bool {
	for _, want := range allowedMIMETypes {
		if mt.Is(want) {
			return true
		}
	}
	return false
}

func variantDir(id uuid.UUID) string {
	return model.VariantCacheRoot + "/" + id.String()
}

func variantPath(id uuid.UUID, key string, f model.Format) string {
	return variantDir(id) + "/" + key + "." + processor.Ext(f)
}
