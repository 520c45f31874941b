// Package sched dispatches queued decode loads under a fixed concurrency
// bound, preferring on-screen items.
package sched

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Load is one queued, not-yet-dispatched decode request.
type Load struct {
	Key      string
	Priority int // 0 = front of the visual stack, larger = further back
	Ref      any // opaque visibility handle, nil = always visible
	Payload  any // owned by the caller, carried through to start

	seq uint64
}

// Scheduler holds undispatched loads and starts them by scanning for the
// best candidate whenever a slot opens. Visibility is queried live at every
// dispatch decision, so a load that scrolls into view while queued can
// overtake earlier picks.
type Scheduler struct {
	visible func(ref any) bool
	start   func(l *Load)
	slots   *semaphore.Weighted

	mu    sync.Mutex
	queue []*Load
	seq   uint64
}

// New creates a Scheduler dispatching at most limit loads concurrently.
// visible answers whether a load's Ref is currently on-screen; start is
// invoked outside the scheduler lock and must not block.
func New(limit int64, visible func(ref any) bool, start func(l *Load)) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		visible: visible,
		start:   start,
		slots:   semaphore.NewWeighted(limit),
	}
}

// Enqueue adds a load and kicks the dispatch loop.
func (s *Scheduler) Enqueue(l *Load) {
	s.mu.Lock()
	s.seq++
	l.seq = s.seq
	s.queue = append(s.queue, l)
	s.mu.Unlock()

	s.Kick()
}

// Kick dispatches loads while the queue is non-empty and a slot is free.
func (s *Scheduler) Kick() {
	for {
		if !s.slots.TryAcquire(1) {
			return
		}

		l := s.pickNext()

		if l == nil {
			s.slots.Release(1)
			// Recheck after the release: an Enqueue racing with the empty
			// pick may have failed its own TryAcquire against our slot.
			s.mu.Lock()
			empty := len(s.queue) == 0
			s.mu.Unlock()
			if empty {
				return
			}
			continue
		}

		s.start(l)
	}
}

// Done releases a dispatch slot and re-kicks, so a finished decode
// immediately triggers the next best pick.
func (s *Scheduler) Done() {
	s.slots.Release(1)
	s.Kick()
}

// Remove extracts the undispatched load for key, if any.
func (s *Scheduler) Remove(key string) *Load {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.queue {
		if l.Key == key {
			s.deleteLocked(i)
			return l
		}
	}
	return nil
}

// Len returns the number of undispatched loads.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// pickNext chooses the next load from a snapshot of the queue. The
// visibility oracle is user code and is never invoked under the scheduler
// lock, so a slow oracle cannot serialize Enqueue. If the chosen load was
// removed concurrently, the pick is retried on a fresh snapshot.
func (s *Scheduler) pickNext() *Load {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return nil
		}
		snapshot := append([]*Load(nil), s.queue...)
		s.mu.Unlock()

		choice := s.choose(snapshot)

		s.mu.Lock()
		for i, l := range s.queue {
			if l == choice {
				s.deleteLocked(i)
				s.mu.Unlock()
				return choice
			}
		}
		s.mu.Unlock()
	}
}

// choose scans the snapshot once, tracking the best load overall and the
// best load among currently visible ones; a visible load always wins.
// Smaller priority wins, ties go to the earlier enqueue.
func (s *Scheduler) choose(loads []*Load) *Load {
	var best, bestVisible *Load
	for _, l := range loads {
		if best == nil || before(l, best) {
			best = l
		}
		if l.Ref == nil || s.visible == nil || s.visible(l.Ref) {
			if bestVisible == nil || before(l, bestVisible) {
				bestVisible = l
			}
		}
	}

	if bestVisible != nil {
		return bestVisible
	}
	return best
}

func (s *Scheduler) deleteLocked(i int) {
	last := len(s.queue) - 1
	s.queue[i] = s.queue[last]
	s.queue[last] = nil
	s.queue = s.queue[:last]
}

func before(a, b *Load) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}
