package thumbcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Key is the stable identifier for one decodable image source,
// e.g. a catalog item id.
type Key string

// DeriveKey builds a stable compact key from composite identifiers
// (volume id, page number, size class, ...). Parts are length-prefixed
// before hashing so that ("ab","c") and ("a","bc") do not collide.
func DeriveKey(parts ...string) Key {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = fmt.Fprintf(d, "%d:", len(p))
		_, _ = d.WriteString(p)
	}
	return Key(fmt.Sprintf("%016x", d.Sum64()))
}

// Source yields a fresh reader over the encoded image bytes of one catalog
// item. Open may be called at any point between Get and the decode actually
// running, possibly from a worker goroutine; implementations must be safe
// for that. The cache never retains the encoded bytes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

type bytesSource struct {
	b []byte
}

// BytesSource wraps already-loaded encoded bytes as a Source.
// The caller must not mutate b afterwards.
func BytesSource(b []byte) Source {
	return bytesSource{b: b}
}

func (s bytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(s.b)), nil
}

type fileSource struct {
	path string
}

// FileSource reads encoded bytes from a file at decode time.
func FileSource(path string) Source {
	return fileSource{path: path}
}

func (s fileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.path)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}
