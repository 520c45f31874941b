package thumbcache

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/thumbcache/decode"
	"github.com/hupe1980/thumbcache/internal/sched"
	"github.com/hupe1980/thumbcache/internal/store"
	"github.com/hupe1980/thumbcache/internal/worker"
	"github.com/hupe1980/thumbcache/resource"
)

// Entry is one resident decoded bitmap plus its dimensions and byte cost.
//
// Entries are shared-ownership values: once returned from Get the caller
// holds the bitmap independently of the cache, and eviction or
// invalidation never tears it down under the caller.
type Entry struct {
	Bitmap *decode.Bitmap
	Width  int
	Height int
	Size   int64
}

// Stats is a read-only snapshot of cache state.
type Stats struct {
	Count       int
	TotalBytes  int64
	MaxBytes    int64
	Utilization float64
	Hits        int64
	Misses      int64
	Evictions   int64
}

// Cache is a bounded-memory thumbnail cache with background decoding.
//
// A cache miss enqueues a decode that is scheduled by priority, then
// visibility, then arrival order, and runs on a background worker (inline
// during warm-up). Concurrent Gets for the same key coalesce onto a single
// decode. All methods are safe for concurrent use.
type Cache struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller

	store *store.LRU[*Entry]
	pool  *worker.Pool
	sched *sched.Scheduler

	mu       sync.Mutex
	flights  map[Key]*flight
	shutdown bool
}

// flight is one in-progress load: at most one exists per key, and every
// concurrent Get for that key waits on the same one.
type flight struct {
	key  Key
	open worker.Opener

	done  chan struct{}
	entry *Entry
	err   error
}

// New creates a Cache. The zero-option cache holds 100 MiB of decoded
// bitmaps, sizes its worker pool from runtime.NumCPU() clamped to [2, 6],
// and decodes the first screenful inline.
func New(optFns ...Option) *Cache {
	opts := applyOptions(optFns)

	c := &Cache{
		opts:    opts,
		logger:  opts.logger,
		metrics: opts.metrics,
		rc:      opts.controller,
		flights: make(map[Key]*flight),
	}

	c.store = store.New[*Entry](opts.maxBytes, opts.controller, func(key string, _ *Entry, size int64) {
		c.logger.LogEviction(Key(key), size)
		c.metrics.RecordEviction(size)
	})

	c.pool = worker.New(opts.numWorkers(), opts.decoder, opts.warmCount, opts.warmWindow, opts.logger.Logger)

	c.sched = sched.New(opts.concurrencyLimit(), c.refVisible, c.startLoad)

	return c
}

// Get returns the decoded bitmap for key, decoding it from src on a miss.
// A hit returns immediately and marks the entry most-recently-used. On a
// miss the caller suspends until the coalesced decode completes or ctx is
// done; ctx cancellation abandons only this caller, never the decode.
func (c *Cache) Get(ctx context.Context, key Key, src Source, optFns ...LoadOption) (*Entry, error) {
	if e, ok := c.store.Get(string(key)); ok {
		c.metrics.RecordGet(true)
		return e, nil
	}
	c.metrics.RecordGet(false)

	lo := applyLoadOptions(optFns)

	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, f)
	}
	// A decode may have settled between the miss above and taking the
	// lock; completion inserts and deregisters under the same lock.
	if e, ok := c.store.Get(string(key)); ok {
		c.mu.Unlock()
		return e, nil
	}

	f := &flight{
		key:  key,
		open: c.opener(src),
		done: make(chan struct{}),
	}
	c.flights[key] = f
	c.mu.Unlock()

	c.sched.Enqueue(&sched.Load{
		Key:      string(key),
		Priority: lo.priority,
		Ref:      lo.ref,
		Payload:  f,
	})

	return c.wait(ctx, f)
}

// GetIfPresent is a cache-only probe: it returns the entry if resident,
// marking it most-recently-used, and never triggers a load.
func (c *Cache) GetIfPresent(key Key) (*Entry, bool) {
	e, ok := c.store.Get(string(key))
	c.metrics.RecordGet(ok)
	return e, ok
}

// PrefetchItem names one load for Prefetch.
type PrefetchItem struct {
	Key           Key
	Source        Source
	Priority      int
	VisibilityRef any
}

// Prefetch warms the cache with the given items, coalescing with any
// concurrent Gets. Individual decode failures are logged and skipped; the
// returned error is non-nil only when ctx ends before all items settle.
func (c *Cache) Prefetch(ctx context.Context, items []PrefetchItem) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, it := range items {
		it := it
		g.Go(func() error {
			_, err := c.Get(ctx, it.Key, it.Source,
				WithPriority(it.Priority),
				WithVisibilityRef(it.VisibilityRef),
			)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("prefetch skipped", "key", string(it.Key), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Invalidate removes the entry for key, if any, along with any queued or
// pending load so a stale decode cannot resurrect it. Invalidating an
// absent key is a no-op. A decode that was already dispatched is allowed
// to finish; its result still resolves callers that joined before the
// invalidation but is discarded instead of inserted.
func (c *Cache) Invalidate(key Key) {
	c.store.Invalidate(string(key))
	c.metrics.RecordInvalidate()

	c.mu.Lock()
	f, ok := c.flights[key]
	if ok {
		delete(c.flights, key)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	if c.sched.Remove(string(key)) != nil {
		// Never dispatched: the decode will not run, reject the waiters.
		f.err = &ErrInvalidated{Key: key}
		close(f.done)
	}
	// Otherwise the load is out of the queue: either its decode is running
	// and complete() drops the unregistered result, or it has not reached
	// the queue yet and startLoad rejects the deregistered flight before
	// decoding.
}

// Clear drops every resident entry and zeroes the byte total. Queued and
// in-flight loads are unaffected.
func (c *Cache) Clear() {
	c.store.Clear()
}

// Stats returns a read-only snapshot of cache state.
func (c *Cache) Stats() Stats {
	s := c.store.Stats()
	return Stats{
		Count:       s.Count,
		TotalBytes:  s.TotalBytes,
		MaxBytes:    s.MaxBytes,
		Utilization: s.Utilization,
		Hits:        s.Hits,
		Misses:      s.Misses,
		Evictions:   s.Evictions,
	}
}

// Shutdown stops the background workers. Safe to call multiple times;
// subsequent Gets fall back to inline decoding.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	already := c.shutdown
	c.shutdown = true
	c.mu.Unlock()
	if already {
		return
	}

	c.pool.Close()
	c.logger.LogShutdown()
}

// opener wraps the source so that reads are paced when a resource
// controller is attached.
func (c *Cache) opener(src Source) worker.Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		r, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		if c.rc != nil {
			return resource.NewPacedReader(r, c.rc, ctx), nil
		}
		return r, nil
	}
}

func (c *Cache) refVisible(ref any) bool {
	if ref == nil || c.opts.oracle == nil {
		return true
	}
	return c.opts.oracle.Visible(ref)
}

// startLoad runs one dispatched load. Invoked by the scheduler with a slot
// held; the slot is released when the decode settles.
func (c *Cache) startLoad(l *sched.Load) {
	f := l.Payload.(*flight)
	go func() {
		// An Invalidate can land between flight registration and the
		// enqueue; the scheduler then has no load to remove and the
		// deregistered flight reaches dispatch anyway. Catch it here so
		// an invalidated load never decodes.
		c.mu.Lock()
		current := c.flights[f.key] == f
		c.mu.Unlock()
		if !current {
			f.err = &ErrInvalidated{Key: f.key}
			close(f.done)
			c.sched.Done()
			return
		}

		start := time.Now()
		bmp, err := c.pool.Decode(context.Background(), f.open)
		duration := time.Since(start)

		c.metrics.RecordDecode(duration, err)
		c.logger.LogDecode(f.key, duration, err)

		c.complete(f, bmp, err)
		c.sched.Done()
	}()
}

// complete resolves a flight and, if the key was not invalidated in the
// meantime, inserts the decoded entry.
func (c *Cache) complete(f *flight, bmp *decode.Bitmap, err error) {
	if err != nil {
		f.err = &ErrDecode{Key: f.key, cause: err}
	} else {
		f.entry = &Entry{
			Bitmap: bmp,
			Width:  bmp.Width,
			Height: bmp.Height,
			Size:   bmp.ByteSize(),
		}
	}

	c.mu.Lock()
	current := c.flights[f.key] == f
	if current {
		delete(c.flights, f.key)
		if f.entry != nil {
			c.store.Insert(string(f.key), f.entry, f.entry.Size)
		}
	}
	c.mu.Unlock()

	if !current && f.entry != nil {
		c.logger.LogStaleDecode(f.key)
	}

	close(f.done)
}

func (c *Cache) wait(ctx context.Context, f *flight) (*Entry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
