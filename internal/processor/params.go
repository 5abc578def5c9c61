package processor

import (
	"strconv"

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/model"
)

// Resize modes.
const (
	ModeFit  = "fit"  // preserve aspect ratio within the bounding box
	ModeFill = "fill" // preserve aspect ratio, crop the overflow
	ModeCrop = "crop" // fixed-size centered crop, no scaling
)

// RawParams carries transform query values exactly as the client sent them.
type RawParams struct {
	Width   string
	Height  string
	Quality string
	Format  string
	Mode    string
}

// IsZero reports whether the request asks for the untouched original. Mode
// alone changes nothing, so it does not count as a transform request.
func (r RawParams) IsZero() bool {
	return r.Width == "" && r.Height == "" && r.Quality == "" && r.Format == ""
}

// Params is a validated transform request.
type Params struct {
	Width   int
	Height  int
	Quality int
	Format  model.Format // empty keeps the original format
	Mode    string
}

// IsZero reports whether no transform was requested.
func (p Params) IsZero() bool {
	return p == Params{}
}

// ParseParams validates raw transform values. Dimensions must be integers
// in [1, maxDimension]; quality must be an integer and is clamped to
// [1, 100]; format and mode must come from their closed sets.
func (e *Engine) ParseParams(raw RawParams) (Params, error) {
	p := Params{Quality: e.defaultQuality, Mode: ModeFit}

	if raw.Width != "" {
		w, err := strconv.Atoi(raw.Width)
		if err != nil {
			return Params{}, apperr.New(apperr.CodeInvalidDimensions, "width must be an integer")
		}
		if w < 1 || w > e.maxDimension {
			return Params{}, apperr.New(apperr.CodeInvalidDimensions, "width is out of range").
				WithDetail("max_dimension", e.maxDimension)
		}
		p.Width = w
	}

	if raw.Height != "" {
		h, err := strconv.Atoi(raw.Height)
		if err != nil {
			return Params{}, apperr.New(apperr.CodeInvalidDimensions, "height must be an integer")
		}
		if h < 1 || h > e.maxDimension {
			return Params{}, apperr.New(apperr.CodeInvalidDimensions, "height is out of range").
				WithDetail("max_dimension", e.maxDimension)
		}
		p.Height = h
	}

	if raw.Quality != "" {
		q, err := strconv.Atoi(raw.Quality)
		if err != nil {
			return Params{}, apperr.New(apperr.CodeInvalidQuality, "quality must be an integer")
		}
		if q < 1 {
			q = 1
		}
		if q > 100 {
			q = 100
		}
		p.Quality = q
	}

	if raw.Format != "" {
		f, ok := ParseFormat(raw.Format)
		if !ok {
			return Params{}, apperr.New(apperr.CodeInvalidFormat, "unsupported output format").
				WithDetail("allowed", []string{"jpeg", "png", "gif", "webp"})
		}
		p.Format = f
	}

	if raw.Mode != "" {
		switch raw.Mode {
		case ModeFit, ModeFill, ModeCrop:
			p.Mode = raw.Mode
		default:
			return Params{}, apperr.New(apperr.CodeInvalidMode, "unsupported resize mode").
				WithDetail("allowed", []string{ModeFit, ModeFill, ModeCrop})
		}
	}

	return p, nil
}
