package model

import (
	"time"

	"github.com/google/uuid"
)

// VariantCacheRoot is the storage subtree reserved for derived renditions.
// Credential prefixes may not claim it.
const VariantCacheRoot = "variants"

// Format identifies the decoded image format of a stored object.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
)

// ImageRecord describes a single stored image. It is created once on a
// successful upload and never mutated afterwards; deletion removes the
// record entirely. Derived renditions are cached separately and are not
// part of the record.
type ImageRecord struct {
	UUID         uuid.UUID `json:"uuid"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"` // canonical relative path of the original bytes
	UserPath     string    `json:"user_path"`   // canonical directory the client uploaded into
	SizeBytes    int64     `json:"size_bytes"`
	Format       Format    `json:"format"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"created_at"`
}
