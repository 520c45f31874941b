package thumbcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	k := DeriveKey("volume-9", "page-3")

	assert.Len(t, string(k), 16)
	assert.Equal(t, k, DeriveKey("volume-9", "page-3"), "stable across calls")
	assert.NotEqual(t, k, DeriveKey("volume-9", "page-4"))

	// Length prefixing keeps part boundaries significant.
	assert.NotEqual(t, DeriveKey("ab", "c"), DeriveKey("a", "bc"))
}

func TestBytesSource(t *testing.T) {
	src := BytesSource([]byte{0xDE, 0xAD})

	r, err := src.Open(context.Background())
	require.NoError(t, err)
	defer r.Close()

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, b)
}

func TestBytesSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BytesSource([]byte{1}).Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thumb.bin")
	require.NoError(t, os.WriteFile(path, []byte("encoded"), 0o600))

	r, err := FileSource(path).Open(context.Background())
	require.NoError(t, err)
	defer r.Close()

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(b))
}

func TestFileSource_Missing(t *testing.T) {
	_, err := FileSource(filepath.Join(t.TempDir(), "nope")).Open(context.Background())
	assert.Error(t, err)
}

func TestSourceFunc(t *testing.T) {
	called := false
	src := SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		called = true
		return io.NopCloser(nil), nil
	})

	_, err := src.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, called)
}
