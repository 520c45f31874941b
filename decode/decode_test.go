package decode

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xFF})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStdDecoder_PNG(t *testing.T) {
	src := encodePNG(t, 3, 2)

	bmp, err := StdDecoder{}.Decode(context.Background(), bytes.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 3, bmp.Width)
	assert.Equal(t, 2, bmp.Height)
	assert.Len(t, bmp.Pix, 3*2*4)
	assert.Equal(t, int64(24), bmp.ByteSize())
}

func TestStdDecoder_CorruptBytes(t *testing.T) {
	_, err := StdDecoder{}.Decode(context.Background(), bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestStdDecoder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StdDecoder{}.Decode(ctx, bytes.NewReader(encodePNG(t, 1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromImage_ReusesOriginRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Pix[0] = 0xAB

	bmp, err := FromImage(img)
	require.NoError(t, err)

	assert.Equal(t, &img.Pix[0], &bmp.Pix[0], "origin-anchored RGBA is not copied")
}

func TestFromImage_ConvertsOffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 14, 12))

	bmp, err := FromImage(img)
	require.NoError(t, err)

	assert.Equal(t, 4, bmp.Width)
	assert.Equal(t, 2, bmp.Height)
	assert.Len(t, bmp.Pix, 4*2*4)
}

func TestFromImage_EmptyImage(t *testing.T) {
	_, err := FromImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptyImage)
}
