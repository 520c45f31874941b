// Package resource provides process-wide accounting for decoded-bitmap
// memory and optional pacing of source reads. A single Controller can be
// shared by several caches and by application code competing for the same
// budget.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the soft limit used by TryReserveMemory.
	// If 0, reservations always succeed (tracking only).
	MemoryLimitBytes int64

	// ReadLimitBytesPerSec throttles paced source reads.
	// If 0, reads are not paced.
	ReadLimitBytesPerSec int64
}

// Controller tracks memory in use and paces source IO.
//
// TrackMemory/ReleaseMemory are unconditional: cache stores use them so that
// an admitted entry is always accounted, even when the budget is exceeded
// transiently. TryReserveMemory is for cooperating consumers that can back
// off when the shared budget is exhausted.
type Controller struct {
	cfg Config

	memUsed atomic.Int64

	readLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.ReadLimitBytesPerSec > 0 {
		c.readLimiter = rate.NewLimiter(rate.Limit(cfg.ReadLimitBytesPerSec), int(cfg.ReadLimitBytesPerSec))
	}

	return c
}

// TrackMemory records bytes as in use, regardless of any limit.
func (c *Controller) TrackMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(bytes)
}

// TryReserveMemory attempts to reserve bytes without blocking.
// Returns false if a limit is configured and would be exceeded.
func (c *Controller) TryReserveMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	for {
		cur := c.memUsed.Load()
		if c.cfg.MemoryLimitBytes > 0 && cur+bytes > c.cfg.MemoryLimitBytes {
			return false
		}
		if c.memUsed.CompareAndSwap(cur, cur+bytes) {
			return true
		}
	}
}

// ReleaseMemory returns previously tracked or reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current tracked memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// PaceRead waits until the read limiter allows the specified number of
// bytes. Requests larger than the limiter's burst are waited for in burst
// sized chunks; WaitN rejects any single wait above the burst.
func (c *Controller) PaceRead(ctx context.Context, bytes int) error {
	if c == nil || c.readLimiter == nil || bytes <= 0 {
		return nil
	}

	burst := c.readLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.readLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
