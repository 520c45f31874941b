// Package decode turns encoded image bytes into RGBA bitmaps suitable for
// direct GPU upload.
//
// The default StdDecoder delegates to image.Decode with JPEG, PNG and GIF
// registered from the standard library and WebP, BMP and TIFF from
// golang.org/x/image. Callers needing other formats (or hardware decoding)
// implement Decoder themselves.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for images with a zero-area bounding box.
var ErrEmptyImage = errors.New("decode: image has no pixels")

// Bitmap is a decoded image in RGBA layout, 4 bytes per pixel, row-major.
//
// Bitmaps are shared-ownership values: the cache and every caller that
// obtained one hold it independently, and it stays valid until the last
// holder drops it. Nothing in this module ever frees or reuses Pix.
type Bitmap struct {
	Pix    []uint8
	Width  int
	Height int
}

// ByteSize returns the memory cost of the bitmap at 4 bytes per pixel.
func (b *Bitmap) ByteSize() int64 {
	return int64(b.Width) * int64(b.Height) * 4
}

// Decoder produces a Bitmap from encoded image bytes.
type Decoder interface {
	// Decode reads one encoded image from r. Implementations must be safe
	// for concurrent use and must honor ctx cancellation between steps.
	Decode(ctx context.Context, r io.Reader) (*Bitmap, error)
}

// StdDecoder decodes via image.Decode and converts the result to RGBA.
type StdDecoder struct{}

var _ Decoder = StdDecoder{}

// Decode implements Decoder.
func (StdDecoder) Decode(ctx context.Context, r io.Reader) (*Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(r)
	if err != nil {
		if format != "" {
			return nil, fmt.Errorf("decode %s: %w", format, err)
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return FromImage(img)
}

// FromImage converts any image.Image into a Bitmap.
// An *image.RGBA anchored at the origin is reused without copying.
func FromImage(img image.Image) (*Bitmap, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyImage
	}

	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) && rgba.Stride == w*4 {
		return &Bitmap{Pix: rgba.Pix, Width: w, Height: h}, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	return &Bitmap{Pix: dst.Pix, Width: w, Height: h}, nil
}
