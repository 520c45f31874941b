// Package worker runs image decodes on a fixed set of background
// goroutines, correlated to callers by request id.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/thumbcache/decode"
)

// ErrPoolClosed rejects decodes that were in flight when the pool shut down.
var ErrPoolClosed = errors.New("worker: decode pool closed")

// Opener yields a fresh reader over the encoded source bytes.
type Opener func(ctx context.Context) (io.ReadCloser, error)

type request struct {
	id   uint64
	open Opener
}

type response struct {
	id  uint64
	bmp *decode.Bitmap
	err error
}

type result struct {
	bmp *decode.Bitmap
	err error
}

// Pool decodes via background workers after a warm-up window.
//
// During warm-up (the first warmCount requests, or any request before the
// warm-up deadline) decodes run inline on the calling goroutine: for the
// first screenful of a freshly opened catalog that paints faster than
// paying worker hand-off latency. Afterwards each request gets a fresh
// correlation id, is sent to the next worker round-robin, and a dispatcher
// matches the worker's reply back to the caller.
type Pool struct {
	dec decode.Decoder
	log *slog.Logger

	warmLeft     atomic.Int64
	warmDeadline time.Time

	nextID atomic.Uint64
	rr     atomic.Uint64

	inline     atomic.Int64
	background atomic.Int64

	mu      sync.Mutex
	closed  bool
	pending map[uint64]chan result

	reqChs []chan request
	respCh chan response
	quit   chan struct{}
}

// New creates a Pool with n workers. n <= 0 disables background decoding
// entirely; every request then runs inline.
func New(n int, dec decode.Decoder, warmCount int, warmWindow time.Duration, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pool{
		dec:          dec,
		log:          log,
		warmDeadline: time.Now().Add(warmWindow),
		pending:      make(map[uint64]chan result),
		quit:         make(chan struct{}),
	}
	p.warmLeft.Store(int64(warmCount))

	if n > 0 {
		p.reqChs = make([]chan request, n)
		// Buffer for the maximum number of in-flight decodes so a worker
		// reply never blocks, even after the dispatcher has exited.
		p.respCh = make(chan response, n)
		for i := range p.reqChs {
			p.reqChs[i] = make(chan request)
			go p.worker(i, p.reqChs[i])
		}
		go p.dispatch()
	}

	return p
}

// Decode produces a bitmap for the source behind open.
// Failures reject only this request.
func (p *Pool) Decode(ctx context.Context, open Opener) (*decode.Bitmap, error) {
	if len(p.reqChs) == 0 || p.warmupActive() {
		p.inline.Add(1)
		return p.decodeOne(ctx, open)
	}

	resCh := make(chan result, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.inline.Add(1)
		return p.decodeOne(ctx, open)
	}
	id := p.nextID.Add(1)
	p.pending[id] = resCh
	p.mu.Unlock()

	worker := p.reqChs[int(p.rr.Add(1)-1)%len(p.reqChs)]

	select {
	case worker <- request{id: id, open: open}:
		p.background.Add(1)
	case <-p.quit:
		p.forget(id)
		p.inline.Add(1)
		return p.decodeOne(ctx, open)
	case <-ctx.Done():
		p.forget(id)
		return nil, ctx.Err()
	}

	select {
	case res := <-resCh:
		return res.bmp, res.err
	case <-ctx.Done():
		// The worker keeps decoding; its reply is dropped by the
		// dispatcher once the pending slot is gone.
		p.forget(id)
		return nil, ctx.Err()
	}
}

// Counts returns how many decodes ran inline and in the background.
func (p *Pool) Counts() (inline, background int64) {
	return p.inline.Load(), p.background.Load()
}

// Close stops the workers and rejects in-flight decodes with ErrPoolClosed.
// Safe to call multiple times; subsequent Decode calls run inline.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.pending
	p.pending = make(map[uint64]chan result)
	p.mu.Unlock()

	close(p.quit)

	for _, ch := range pending {
		ch <- result{err: ErrPoolClosed}
	}
}

func (p *Pool) warmupActive() bool {
	if time.Now().Before(p.warmDeadline) {
		return true
	}
	return p.warmLeft.Add(-1) >= 0
}

func (p *Pool) forget(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Pool) worker(idx int, reqCh chan request) {
	for {
		select {
		case req := <-reqCh:
			bmp, err := p.safeDecode(req.open)
			select {
			case p.respCh <- response{id: req.id, bmp: bmp, err: err}:
			case <-p.quit:
			}
		case <-p.quit:
			return
		}
	}
}

// safeDecode shields the pool from a decoder that panics: the failure is
// logged and rejects only this request, the worker keeps serving.
func (p *Pool) safeDecode(open Opener) (bmp *decode.Bitmap, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("decode worker recovered from panic", "panic", r)
			bmp = nil
			err = fmt.Errorf("worker: decode panic: %v", r)
		}
	}()
	return p.decodeOne(context.Background(), open)
}

func (p *Pool) dispatch() {
	for {
		select {
		case resp := <-p.respCh:
			p.mu.Lock()
			resCh, ok := p.pending[resp.id]
			if ok {
				delete(p.pending, resp.id)
			}
			p.mu.Unlock()
			if ok {
				resCh <- result{bmp: resp.bmp, err: resp.err}
			}
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) decodeOne(ctx context.Context, open Opener) (*decode.Bitmap, error) {
	r, err := open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return p.dec.Decode(ctx, r)
}
