package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowrun/flowrun/internal/value"
)

// cell is the Completable<Value> coordination primitive: a
// single-producer, multi-consumer one-shot slot. Production is launched
// exactly once via ensureStarted's sync.Once; every consumer, including
// the goroutine that happens to trigger that launch, independently races
// its own await(ctx) against the cell filling, so one slow waiter's own
// context never throttles the producer or any other waiter.
type cell struct {
	once    sync.Once
	startFn func()

	mu        sync.Mutex
	completed bool
	cancelled bool // completed by the post-cancel sweep, late producers lose silently
	done      chan struct{}
	val       value.Value
	err       error
}

// newCell constructs a cell whose production is run by start when first
// demanded. A nil start is used for a pipeline input or a cell pre-filled
// from a resumption snapshot, neither of which ever runs a producer.
func newCell(start func()) *cell {
	return &cell{done: make(chan struct{}), startFn: start}
}

// ensureStarted launches the producer goroutine at most once, regardless
// of how many consumers call it concurrently.
func (c *cell) ensureStarted() {
	c.once.Do(func() {
		if c.startFn != nil {
			go c.startFn()
		}
	})
}

// fill completes the cell with a value. Exactly one producer goroutine
// per cell may call fill or poison; a second completion is a runtime bug
// unless the cancellation sweep got there first, in which case the late
// producer's result is dropped.
func (c *cell) fill(v value.Value) {
	c.complete(v, nil)
}

// poison transitions the cell to its poisoned terminal state; consumers
// observe err on their next await.
func (c *cell) poison(err error) {
	if err == nil {
		err = fmt.Errorf("exec: poisoned with nil error")
	}
	c.complete(nil, err)
}

func (c *cell) complete(v value.Value, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed {
		if c.cancelled {
			return
		}
		panic("exec: cell completed twice")
	}
	c.completed = true
	c.val = v
	c.err = err
	close(c.done)
}

// sweepPoison is the cancellation path: it poisons the cell only if no
// producer beat it, and marks the cell so a late producer's own
// completion is dropped instead of tripping the double-fill check.
func (c *cell) sweepPoison(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed {
		return false
	}
	c.completed = true
	c.cancelled = true
	c.err = err
	close(c.done)
	return true
}

// preset fills the cell immediately without ever starting a producer,
// used for externally supplied inputs and for cells pre-filled from a
// SuspendedExecution snapshot.
func (c *cell) preset(v value.Value) {
	c.startFn = nil
	c.complete(v, nil)
}

// await blocks until the cell is filled or poisoned, or ctx is done,
// starting production on demand.
func (c *cell) await(ctx context.Context) (value.Value, error) {
	c.ensureStarted()
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// state reports the cell's terminal contents without blocking, used for
// suspension snapshots and the final signature sweep.
func (c *cell) state() (v value.Value, err error, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.err, c.completed
}
