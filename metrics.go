package thumbcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordGet is called for every Get and GetIfPresent.
	// hit reports whether the key was resident.
	RecordGet(hit bool)

	// RecordDecode is called after each decode completes.
	// duration is the time taken, err is nil if successful.
	RecordDecode(duration time.Duration, err error)

	// RecordEviction is called for every budget-driven eviction.
	RecordEviction(bytes int64)

	// RecordInvalidate is called for every Invalidate.
	RecordInvalidate()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(bool)                    {}
func (NoopMetricsCollector) RecordDecode(time.Duration, error) {}
func (NoopMetricsCollector) RecordEviction(int64)              {}
func (NoopMetricsCollector) RecordInvalidate()                 {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits             atomic.Int64
	Misses           atomic.Int64
	DecodeCount      atomic.Int64
	DecodeErrors     atomic.Int64
	DecodeTotalNanos atomic.Int64
	Evictions        atomic.Int64
	EvictedBytes     atomic.Int64
	Invalidations    atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit bool) {
	if hit {
		b.Hits.Add(1)
	} else {
		b.Misses.Add(1)
	}
}

// RecordDecode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecode(duration time.Duration, err error) {
	b.DecodeCount.Add(1)
	b.DecodeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DecodeErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(bytes int64) {
	b.Evictions.Add(1)
	b.EvictedBytes.Add(bytes)
}

// RecordInvalidate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInvalidate() {
	b.Invalidations.Add(1)
}
