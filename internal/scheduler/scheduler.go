// Package scheduler implements the executor's two admission modes: an
// Unbounded scheduler that admits every ready task immediately, and a
// Bounded scheduler that caps parallelism with a priority-ordered,
// starvation-boosted admission queue over a semaphore.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Priority is an admission priority level. Custom numeric values
// are supported; the named constants give the five levels the options
// clause's `priority` key accepts by name.
type Priority int64

const (
	Background Priority = 0
	Low        Priority = 25
	Normal     Priority = 50
	High       Priority = 75
	Critical   Priority = 100
)

// Scheduler admits a task for execution, returning once the task may
// proceed. Callers must call the returned release func exactly once,
// after the task finishes, to free any held admission slot.
type Scheduler interface {
	Admit(ctx context.Context, priority Priority) (release func(), err error)
}

// Unbounded admits every task immediately.
type Unbounded struct{}

// NewUnbounded constructs an Unbounded scheduler.
func NewUnbounded() *Unbounded { return &Unbounded{} }

// Admit implements Scheduler.
func (Unbounded) Admit(ctx context.Context, _ Priority) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	return func() {}, nil
}

var _ Scheduler = Unbounded{}

// waiter is one pending admission request in the Bounded queue.
type waiter struct {
	priority Priority
	seq      int64 // admission-request order, breaks ties FIFO within a priority
	ready    chan struct{}
	index    int // heap index, maintained by container/heap
}

// waiterHeap is a max-heap by (boosted priority, then earliest seq) so
// Pop always returns the next task to admit.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Bounded admits at most maxConcurrency tasks at once, in priority
// order, boosting any waiter past starvationTimeout to Critical so a
// steady stream of high-priority admissions cannot starve it
// indefinitely.
type Bounded struct {
	mu               sync.Mutex
	inFlight         int
	maxConcurrency   int
	starvationTimeout time.Duration
	clock            clockz.Clock
	queue            waiterHeap
	nextSeq          int64
}

// NewBounded constructs a Bounded scheduler. A non-positive
// starvationTimeout disables starvation boosting.
func NewBounded(maxConcurrency int, starvationTimeout time.Duration) *Bounded {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bounded{
		maxConcurrency:    maxConcurrency,
		starvationTimeout: starvationTimeout,
		clock:             clockz.RealClock,
	}
}

// WithClock overrides the clock, for deterministic starvation-boost
// testing.
func (b *Bounded) WithClock(c clockz.Clock) *Bounded {
	b.clock = c
	return b
}

// Admit implements Scheduler. It blocks until a slot is free and this
// waiter is chosen by priority, the context is cancelled, or (once
// starvationTimeout has elapsed while still queued) the waiter is
// boosted to Critical and re-evaluated.
func (b *Bounded) Admit(ctx context.Context, priority Priority) (func(), error) {
	w := &waiter{priority: priority, ready: make(chan struct{}, 1)}

	b.mu.Lock()
	w.seq = b.nextSeq
	b.nextSeq++
	if b.inFlight < b.maxConcurrency {
		b.inFlight++
		b.mu.Unlock()
		return b.releaseFunc(), nil
	}
	heap.Push(&b.queue, w)
	b.mu.Unlock()

	var boostCh <-chan time.Time
	if b.starvationTimeout > 0 {
		boostCh = b.clock.After(b.starvationTimeout)
	}

	for {
		select {
		case <-w.ready:
			return b.releaseFunc(), nil
		case <-ctx.Done():
			b.withdraw(w)
			return func() {}, ctx.Err()
		case <-boostCh:
			b.boost(w)
			boostCh = nil // boost once; starvation is re-measured by Go's own fairness thereafter
		}
	}
}

// boost promotes a still-queued waiter to Critical and re-sorts the
// heap to reflect its new priority.
func (b *Bounded) boost(w *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.index < 0 {
		return // already admitted or withdrawn
	}
	w.priority = Critical
	heap.Fix(&b.queue, w.index)
}

// withdraw removes a waiter from the queue after its context was
// cancelled while still waiting.
func (b *Bounded) withdraw(w *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.index >= 0 && w.index < len(b.queue) && b.queue[w.index] == w {
		heap.Remove(&b.queue, w.index)
	}
}

// releaseFunc returns a once-only release callback that frees the
// admission slot and wakes the next highest-priority waiter, if any.
func (b *Bounded) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.queue.Len() == 0 {
				b.inFlight--
				b.mu.Unlock()
				return
			}
			next := heap.Pop(&b.queue).(*waiter)
			b.mu.Unlock()
			next.ready <- struct{}{}
		})
	}
}

var _ Scheduler = (*Bounded)(nil)
