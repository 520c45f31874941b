// Package thumbcache provides an embedded thumbnail cache and decode
// scheduler for scrolling catalog views.
//
// It turns encoded image sources into RGBA bitmaps under a fixed memory
// budget, with production-ready behavior:
//
//   - Byte-budgeted LRU store: eviction keeps steady-state usage bounded,
//     and an insert never fails (oversized entries are admitted after
//     evicting everything else)
//   - Non-destructive eviction: entries handed out stay valid for every
//     holder, the cache only drops its own reference
//   - Request coalescing: concurrent Gets for one key share one decode
//   - Priority scheduling: smaller priority first, currently visible items
//     preferred, FIFO among equals; visibility is re-checked at every
//     dispatch decision
//   - Background worker pool with correlation-id message passing, plus an
//     inline warm-up window so a freshly opened catalog paints fast
//   - Structured logging (log/slog), pluggable metrics, shared resource
//     accounting across caches
//
// # Quick Start
//
// Create a cache and request thumbnails as the catalog scrolls:
//
//	cache := thumbcache.New(
//	    thumbcache.WithMaxBytes(100<<20),
//	    thumbcache.WithVisibilityOracle(viewport),
//	)
//	defer cache.Shutdown()
//
//	entry, err := cache.Get(ctx, key, thumbcache.FileSource(path),
//	    thumbcache.WithPriority(0),
//	    thumbcache.WithVisibilityRef(tile),
//	)
//	if err != nil {
//	    // decode failed; the key is free to retry
//	}
//	upload(entry.Bitmap)
//
// Probe without loading:
//
//	if entry, ok := cache.GetIfPresent(key); ok {
//	    upload(entry.Bitmap)
//	}
//
// Warm the next screenful:
//
//	_ = cache.Prefetch(ctx, items)
//
// The cache is an explicitly constructed component: create one per
// catalog view (or share one) at the application's composition root and
// shut it down when done. There is no process-wide instance.
package thumbcache
