package resource

import (
	"context"
	"io"
)

// PacedReader wraps an io.Reader so that reads respect the controller's
// read limit. Close is forwarded when the underlying reader is a Closer.
type PacedReader struct {
	r   io.Reader
	rc  *Controller
	ctx context.Context
}

// NewPacedReader creates a new PacedReader.
func NewPacedReader(r io.Reader, rc *Controller, ctx context.Context) *PacedReader {
	return &PacedReader{
		r:   r,
		rc:  rc,
		ctx: ctx,
	}
}

func (r *PacedReader) Read(p []byte) (n int, err error) {
	// Wait for the full buffer size; actual reads may be shorter, which
	// only makes the pacing conservative.
	if err := r.rc.PaceRead(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func (r *PacedReader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
