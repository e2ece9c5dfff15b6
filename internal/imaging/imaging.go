// Package imaging wraps image decoding, normalization, and thumbnail
// generation behind a small interface so the orchestrator and handlers can
// be tested without touching pixels.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // webp decode support for uploads
)

const (
	MinDimension = 256
	MaxDimension = 4096
	MaxMegapixels = 25

	ThumbnailSize       = 300
	ResultThumbnailSize = 400

	jpegQuality      = 92
	thumbnailQuality = 80
)

var ErrInvalidImage = errors.New("invalid image")

// Meta describes a decoded image.
type Meta struct {
	Width  int
	Height int
	Format string
}

// Transformer is the image-transform collaborator.
type Transformer interface {
	// Normalize validates dimensions, applies EXIF orientation, drops all
	// metadata, and re-encodes as JPEG.
	Normalize(data []byte) ([]byte, Meta, error)
	// Thumbnail produces a square center-cropped JPEG thumbnail.
	Thumbnail(data []byte, size int) ([]byte, error)
	// ThumbnailFromURL fetches an image and thumbnails it.
	ThumbnailFromURL(ctx context.Context, url string, size int) ([]byte, error)
}

// JPEGTransformer implements Transformer with disintegration/imaging.
type JPEGTransformer struct {
	httpc *http.Client
}

func NewJPEGTransformer() *JPEGTransformer {
	return &JPEGTransformer{httpc: &http.Client{Timeout: 30 * time.Second}}
}

func (t *JPEGTransformer) Normalize(data []byte) ([]byte, Meta, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	// AutoOrientation bakes the EXIF rotation into the pixels; the JPEG
	// re-encode below then carries no metadata at all.
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	meta := Meta{Width: bounds.Dx(), Height: bounds.Dy(), Format: format}
	if err := validateDimensions(meta); err != nil {
		return nil, Meta{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, Meta{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), meta, nil
}

func (t *JPEGTransformer) Thumbnail(data []byte, size int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *JPEGTransformer) ThumbnailFromURL(ctx context.Context, url string, size int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return t.Thumbnail(data, size)
}

func validateDimensions(meta Meta) error {
	if meta.Width < MinDimension || meta.Height < MinDimension {
		return fmt.Errorf("%w: too small, minimum %dx%dpx", ErrInvalidImage, MinDimension, MinDimension)
	}
	if meta.Width > MaxDimension || meta.Height > MaxDimension {
		return fmt.Errorf("%w: too large, maximum %dx%dpx", ErrInvalidImage, MaxDimension, MaxDimension)
	}
	if meta.Width*meta.Height > MaxMegapixels*1_000_000 {
		return fmt.Errorf("%w: resolution above %dMP", ErrInvalidImage, MaxMegapixels)
	}
	ratio := float64(meta.Width) / float64(meta.Height)
	if ratio > 3 || ratio < 1.0/3.0 {
		return fmt.Errorf("%w: aspect ratio must be between 1:3 and 3:1", ErrInvalidImage)
	}
	return nil
}

var _ Transformer = (*JPEGTransformer)(nil)
