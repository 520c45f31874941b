package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects dispatch order; Done must be called manually so tests
// control when slots free up.
type recorder struct {
	mu      sync.Mutex
	started []string
}

func (r *recorder) start(l *Load) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, l.Key)
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func TestScheduler_PriorityOrder(t *testing.T) {
	rec := &recorder{}
	s := New(1, nil, rec.start)

	// Occupy the only slot so enqueues stay queued.
	s.Enqueue(&Load{Key: "gate"})
	require.Equal(t, []string{"gate"}, rec.order())

	s.Enqueue(&Load{Key: "back", Priority: 2})
	s.Enqueue(&Load{Key: "front", Priority: 0})
	s.Enqueue(&Load{Key: "mid", Priority: 1})
	assert.Equal(t, 3, s.Len())

	for i := 0; i < 3; i++ {
		s.Done()
	}
	s.Done() // slot of the last dispatched load

	assert.Equal(t, []string{"gate", "front", "mid", "back"}, rec.order())
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_FIFOAmongEqualPriority(t *testing.T) {
	rec := &recorder{}
	s := New(1, nil, rec.start)

	s.Enqueue(&Load{Key: "gate"})
	s.Enqueue(&Load{Key: "first", Priority: 1})
	s.Enqueue(&Load{Key: "second", Priority: 1})
	s.Enqueue(&Load{Key: "third", Priority: 1})

	for i := 0; i < 4; i++ {
		s.Done()
	}

	assert.Equal(t, []string{"gate", "first", "second", "third"}, rec.order())
}

func TestScheduler_VisibleLoadWins(t *testing.T) {
	visible := func(ref any) bool { return ref == "on-screen" }

	rec := &recorder{}
	s := New(1, visible, rec.start)

	s.Enqueue(&Load{Key: "gate"})
	// The visible priority-1 load must beat the off-screen priority-0 one.
	s.Enqueue(&Load{Key: "hidden", Priority: 0, Ref: "off-screen"})
	s.Enqueue(&Load{Key: "shown", Priority: 1, Ref: "on-screen"})

	for i := 0; i < 3; i++ {
		s.Done()
	}

	assert.Equal(t, []string{"gate", "shown", "hidden"}, rec.order())
}

func TestScheduler_NilRefCountsAsVisible(t *testing.T) {
	visible := func(ref any) bool { return false }

	rec := &recorder{}
	s := New(1, visible, rec.start)

	s.Enqueue(&Load{Key: "gate"})
	s.Enqueue(&Load{Key: "hidden", Priority: 0, Ref: "tile"})
	s.Enqueue(&Load{Key: "anywhere", Priority: 3})

	for i := 0; i < 3; i++ {
		s.Done()
	}

	assert.Equal(t, []string{"gate", "anywhere", "hidden"}, rec.order())
}

func TestScheduler_VisibilityReevaluatedPerDispatch(t *testing.T) {
	var mu sync.Mutex
	onScreen := map[any]bool{}
	visible := func(ref any) bool {
		mu.Lock()
		defer mu.Unlock()
		return onScreen[ref]
	}

	rec := &recorder{}
	s := New(1, visible, rec.start)

	s.Enqueue(&Load{Key: "gate"})
	s.Enqueue(&Load{Key: "a", Priority: 0, Ref: "ra"})
	s.Enqueue(&Load{Key: "b", Priority: 1, Ref: "rb"})

	// b scrolls into view while queued; it overtakes a on the next slot.
	mu.Lock()
	onScreen["rb"] = true
	mu.Unlock()

	for i := 0; i < 3; i++ {
		s.Done()
	}

	assert.Equal(t, []string{"gate", "b", "a"}, rec.order())
}

func TestScheduler_SlowOracleDoesNotBlockEnqueue(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{}, 8)
	visible := func(ref any) bool {
		entered <- struct{}{}
		<-block
		return true
	}

	rec := &recorder{}
	s := New(1, visible, rec.start)

	s.Enqueue(&Load{Key: "gate"})
	s.Enqueue(&Load{Key: "a", Ref: "ra"})

	// Free the slot; the kick stalls inside the oracle evaluating "a".
	go s.Done()
	<-entered

	// Enqueue must not serialize behind the stalled oracle.
	enqueued := make(chan struct{})
	go func() {
		s.Enqueue(&Load{Key: "b", Ref: "rb"})
		close(enqueued)
	}()
	select {
	case <-enqueued:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked behind the visibility oracle")
	}

	close(block)

	s.Done()
	s.Done()
	assert.Equal(t, []string{"gate", "a", "b"}, rec.order())
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	rec := &recorder{}
	s := New(2, nil, rec.start)

	for _, key := range []string{"a", "b", "c", "d"} {
		s.Enqueue(&Load{Key: key})
	}

	assert.Len(t, rec.order(), 2, "only two slots available")
	assert.Equal(t, 2, s.Len())

	s.Done()
	assert.Len(t, rec.order(), 3)

	s.Done()
	s.Done()
	s.Done()
	assert.Len(t, rec.order(), 4)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_Remove(t *testing.T) {
	rec := &recorder{}
	s := New(1, nil, rec.start)

	s.Enqueue(&Load{Key: "gate"})
	s.Enqueue(&Load{Key: "doomed", Priority: 0})
	s.Enqueue(&Load{Key: "kept", Priority: 1})

	l := s.Remove("doomed")
	require.NotNil(t, l)
	assert.Equal(t, "doomed", l.Key)
	assert.Nil(t, s.Remove("doomed"), "second remove finds nothing")
	assert.Nil(t, s.Remove("gate"), "dispatched loads are not in the queue")

	s.Done()
	s.Done()

	assert.Equal(t, []string{"gate", "kept"}, rec.order())
}
