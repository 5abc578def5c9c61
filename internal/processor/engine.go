// Package processor derives image renditions: decoding, resizing,
// re-encoding and optional watermarking. Originals are never mutated; every
// transform produces fresh bytes.
package processor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	_ "golang.org/x/image/webp" // register WEBP decoding

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/model"
)

const (
	defaultMaxDimension = 8192
	defaultQuality      = 85
)

// Options configures an Engine.
type Options struct {
	MaxDimension   int
	DefaultQuality int

	// WatermarkText, when non-empty, is stamped onto every derived
	// rendition. FontPath must point to a TTF file.
	WatermarkText     string
	WatermarkFontPath string
}

// Engine performs image transforms. It is stateless and safe for
// concurrent use.
type Engine struct {
	maxDimension   int
	defaultQuality int
	wmText         string
	wmFontPath     string
}

// New creates an Engine, falling back to sane defaults for unset options.
func New(opts Options) *Engine {
	e := &Engine{
		maxDimension:   opts.MaxDimension,
		defaultQuality: opts.DefaultQuality,
		wmText:         opts.WatermarkText,
		wmFontPath:     opts.WatermarkFontPath,
	}
	if e.maxDimension <= 0 {
		e.maxDimension = defaultMaxDimension
	}
	if e.defaultQuality <= 0 {
		e.defaultQuality = defaultQuality
	}

	return e
}

// Probe decodes just enough of data to report its format and pixel size.
func (e *Engine) Probe(data []byte) (model.Format, int, int, error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, apperr.Wrap(apperr.CodeInvalidFileContent, "file is not a decodable image", err)
	}

	format, ok := ParseFormat(name)
	if !ok {
		return "", 0, 0, apperr.New(apperr.CodeInvalidFileContent, "unsupported image format").
			WithDetail("detected", name)
	}

	return format, cfg.Width, cfg.Height, nil
}

// VariantKey returns a stable cache key for a transform. The watermark
// configuration is part of the key, so changing it invalidates old
// renditions instead of serving stale ones.
func (e *Engine) VariantKey(p Params) string {
	seed := fmt.Sprintf("w=%d;h=%d;q=%d;f=%s;m=%s;wt=%s;wf=%s",
		p.Width, p.Height, p.Quality, p.Format, p.Mode, e.wmText, e.wmFontPath)

	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

// Transform decodes data, applies p and re-encodes. It returns the derived
// bytes and the format they were encoded in.
func (e *Engine) Transform(data []byte, p Params) ([]byte, model.Format, error) {
	src, srcName, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeInvalidFileContent, "file is not a decodable image", err)
	}

	outFormat := p.Format
	if outFormat == "" {
		f, ok := ParseFormat(srcName)
		if !ok {
			return nil, "", apperr.New(apperr.CodeInvalidFileContent, "unsupported image format").
				WithDetail("detected", srcName)
		}
		outFormat = f
	}

	img := resize(src, p)

	if e.wmText != "" {
		img, err = e.stamp(img)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.CodeInternal, "failed to watermark image", err)
		}
	}

	out, err := e.encode(img, outFormat, p.Quality)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeInternal, "failed to encode image", err)
	}

	return out, outFormat, nil
}

// resize applies the dimension parameters. With both dimensions the mode
// decides the strategy; with one, the image is scaled proportionally.
func resize(img image.Image, p Params) image.Image {
	switch {
	case p.Width > 0 && p.Height > 0:
		switch p.Mode {
		case ModeFill:
			return imaging.Fill(img, p.Width, p.Height, imaging.Center, imaging.Lanczos)
		case ModeCrop:
			return imaging.CropCenter(img, p.Width, p.Height)
		default:
			return imaging.Fit(img, p.Width, p.Height, imaging.Lanczos)
		}
	case p.Width > 0:
		return imaging.Resize(img, p.Width, 0, imaging.Lanczos)
	case p.Height > 0:
		return imaging.Resize(img, 0, p.Height, imaging.Lanczos)
	default:
		return img
	}
}

// encode serializes img in the requested format. Quality applies to the
// lossy formats only. JPEG cannot carry an alpha channel, so the image is
// flattened onto white first.
func (e *Engine) encode(img image.Image, format model.Format, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)

	switch format {
	case model.FormatJPEG:
		flat := flatten(img)
		if err := imaging.Encode(buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case model.FormatPNG:
		if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case model.FormatGIF:
		if err := imaging.Encode(buf, img, imaging.GIF); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case model.FormatWEBP:
		if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return buf.Bytes(), nil
}

// flatten composites img onto a white background.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// stamp draws the watermark text in the bottom-right corner.
func (e *Engine) stamp(img image.Image) (image.Image, error) {
	dc := gg.NewContextForImage(img)
	dc.SetColor(color.White)

	fontSize := float64(dc.Width()) * 0.05 // 5% of the image width

	if err := dc.LoadFontFace(e.wmFontPath, fontSize); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	tw, th := dc.MeasureString(e.wmText)

	margin := 10.0
	x := float64(dc.Width()) - tw - margin
	y := float64(dc.Height()) - th - margin

	dc.DrawStringAnchored(e.wmText, x, y, 1, 1) // bottom-right corner
	dc.Fill()

	return dc.Image(), nil
}
