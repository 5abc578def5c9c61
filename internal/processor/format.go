package processor

import "github.com/aliskhannn/image-storage/internal/model"

// ParseFormat maps a client-supplied format name to its canonical form.
func ParseFormat(name string) (model.Format, bool) {
	switch name {
	case "jpeg", "jpg":
		return model.FormatJPEG, true
	case "png":
		return model.FormatPNG, true
	case "gif":
		return model.FormatGIF, true
	case "webp":
		return model.FormatWEBP, true
	default:
		return "", false
	}
}

// Ext returns the file extension used for stored objects of a format.
func Ext(f model.Format) string {
	if f == model.FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type served for a format.
func ContentType(f model.Format) string {
	switch f {
	case model.FormatJPEG:
		return "image/jpeg"
	case model.FormatPNG:
		return "image/png"
	case model.FormatGIF:
		return "image/gif"
	case model.FormatWEBP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
