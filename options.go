package thumbcache

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/hupe1980/thumbcache/decode"
	"github.com/hupe1980/thumbcache/resource"
)

const (
	// DefaultMaxBytes is the default byte budget for resident bitmaps.
	DefaultMaxBytes = 100 << 20 // 100 MiB

	// DefaultMaxConcurrent is the hard cap on concurrently dispatched decodes.
	DefaultMaxConcurrent = 6

	// DefaultWarmupCount is the number of initial requests decoded inline.
	DefaultWarmupCount = 12

	// DefaultWarmupWindow is how long after construction requests are
	// decoded inline.
	DefaultWarmupWindow = 3 * time.Second
)

// VisibilityOracle answers whether an opaque UI region reference currently
// intersects the viewport. Implementations should include whatever buffer
// margin around the viewport edges the UI wants prefetched. The query must
// be pure; it is re-evaluated at every dispatch decision.
type VisibilityOracle interface {
	Visible(ref any) bool
}

type options struct {
	maxBytes      int64
	parallelism   int
	workers       int
	workersSet    bool
	maxConcurrent int
	warmCount     int
	warmWindow    time.Duration
	oracle        VisibilityOracle
	decoder       decode.Decoder
	controller    *resource.Controller
	logger        *Logger
	metrics       MetricsCollector
}

// Option configures Cache construction.
type Option func(*options)

// WithMaxBytes sets the byte budget for resident decoded bitmaps.
// The budget is soft: a single oversized entry may transiently exceed it,
// it is never rejected.
func WithMaxBytes(maxBytes int64) Option {
	return func(o *options) {
		if maxBytes > 0 {
			o.maxBytes = maxBytes
		}
	}
}

// WithParallelism sets the hardware-parallelism hint used to size the
// worker pool. Defaults to runtime.NumCPU().
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithWorkers sets the exact number of background decode workers,
// overriding the parallelism-derived default. Zero disables background
// decoding entirely; every request then decodes inline.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.workers = n
			o.workersSet = true
		}
	}
}

// WithMaxConcurrent caps concurrently dispatched decodes.
// The effective bound is the smaller of this cap and the worker count.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithWarmup tunes the warm-up window during which decodes run inline
// instead of on background workers. The constants are a latency heuristic,
// not load-bearing; keep the qualitative shape (inline early, workers
// thereafter).
func WithWarmup(count int, window time.Duration) Option {
	return func(o *options) {
		if count >= 0 {
			o.warmCount = count
		}
		if window >= 0 {
			o.warmWindow = window
		}
	}
}

// WithVisibilityOracle wires the UI's viewport query into dispatch
// ordering: queued loads whose visibility ref is on-screen are decoded
// before off-screen ones. Without an oracle every load counts as visible.
func WithVisibilityOracle(oracle VisibilityOracle) Option {
	return func(o *options) {
		o.oracle = oracle
	}
}

// WithDecoder replaces the standard image decoder.
func WithDecoder(dec decode.Decoder) Option {
	return func(o *options) {
		if dec == nil {
			dec = decode.StdDecoder{}
		}
		o.decoder = dec
	}
}

// WithResourceController attaches a shared resource controller: resident
// bitmap bytes are tracked against it and source reads are paced by its
// read limit.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxBytes:      DefaultMaxBytes,
		parallelism:   runtime.NumCPU(),
		maxConcurrent: DefaultMaxConcurrent,
		warmCount:     DefaultWarmupCount,
		warmWindow:    DefaultWarmupWindow,
		decoder:       decode.StdDecoder{},
		logger:        NoopLogger(),
		metrics:       NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// numWorkers derives the worker count: the explicit setting if given,
// otherwise the parallelism hint clamped to [2, maxConcurrent].
func (o *options) numWorkers() int {
	if o.workersSet {
		return o.workers
	}
	n := o.parallelism
	if n < 2 {
		n = 2
	}
	if n > o.maxConcurrent {
		n = o.maxConcurrent
	}
	return n
}

// concurrencyLimit bounds dispatched decodes by the smaller of the worker
// count and the hard cap, never below 1.
func (o *options) concurrencyLimit() int64 {
	limit := o.numWorkers()
	if o.maxConcurrent < limit {
		limit = o.maxConcurrent
	}
	if limit < 1 {
		limit = 1
	}
	return int64(limit)
}

// LoadOption configures a single Get.
type LoadOption func(*loadOptions)

type loadOptions struct {
	priority int
	ref      any
}

// WithPriority sets the load's stack position: 0 is the front of the
// visual stack and dispatches first, larger values sit further back.
// Negative values are clamped to 0.
func WithPriority(priority int) LoadOption {
	return func(o *loadOptions) {
		if priority < 0 {
			priority = 0
		}
		o.priority = priority
	}
}

// WithVisibilityRef attaches the opaque UI region handle the visibility
// oracle is asked about. The cache never mutates or retains it beyond the
// life of the load.
func WithVisibilityRef(ref any) LoadOption {
	return func(o *loadOptions) {
		o.ref = ref
	}
}

func applyLoadOptions(optFns []LoadOption) loadOptions {
	var o loadOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
