package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

// queuedWaiters reports how many admission requests are parked in b's
// queue, letting tests wait for a goroutine to enqueue without a fixed
// sleep.
func queuedWaiters(b *Bounded) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// topQueuedPriority reports the effective priority at the head of the
// queue (the heap root), used to observe a starvation boost landing.
func topQueuedPriority(b *Bounded) Priority {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue.Len() == 0 {
		return Background
	}
	return b.queue[0].priority
}

func waitQueued(t *testing.T, b *Bounded, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return queuedWaiters(b) == n }, 2*time.Second, time.Millisecond)
}

func TestUnboundedAdmitsImmediately(t *testing.T) {
	s := NewUnbounded()
	release, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)
	release()
}

func TestUnboundedRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewUnbounded().Admit(ctx, Normal)
	require.Error(t, err)
}

func TestBoundedCapsConcurrency(t *testing.T) {
	s := NewBounded(2, 0)

	r1, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)
	r2, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)

	admitted := make(chan struct{})
	go func() {
		r3, err := s.Admit(context.Background(), Normal)
		require.NoError(t, err)
		close(admitted)
		r3()
	}()

	waitQueued(t, s, 1)
	select {
	case <-admitted:
		t.Fatal("third task admitted past the concurrency bound")
	default:
	}

	r1()
	select {
	case <-admitted:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task not admitted after a slot freed")
	}
	r2()
}

func TestBoundedAdmitsByPriority(t *testing.T) {
	s := NewBounded(1, 0)
	hold, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)

	done := make(chan string, 2)
	enqueue := func(name string, p Priority, wantQueued int) {
		go func() {
			release, err := s.Admit(context.Background(), p)
			require.NoError(t, err)
			done <- name
			release()
		}()
		waitQueued(t, s, wantQueued)
	}

	enqueue("low", Low, 1)
	enqueue("high", High, 2)

	hold()
	require.Equal(t, "high", <-done)
	require.Equal(t, "low", <-done)
}

func TestBoundedFIFOWithinSamePriority(t *testing.T) {
	s := NewBounded(1, 0)
	hold, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)

	done := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			release, err := s.Admit(context.Background(), Normal)
			require.NoError(t, err)
			done <- i
			release()
		}()
		waitQueued(t, s, i+1)
	}

	hold()
	require.Equal(t, 0, <-done)
	require.Equal(t, 1, <-done)
	require.Equal(t, 2, <-done)
}

func TestBoundedStarvationBoost(t *testing.T) {
	clock := clockz.NewFakeClock()
	s := NewBounded(1, 20*time.Millisecond).WithClock(clock)
	hold, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)

	done := make(chan string, 2)
	go func() {
		release, err := s.Admit(context.Background(), Background)
		require.NoError(t, err)
		done <- "starved"
		release()
	}()
	waitQueued(t, s, 1)

	// Cross the starvation window on the fake clock; the background
	// waiter is promoted to Critical. Advancing inside the poll keeps
	// the test immune to when exactly the waiter registers its timer.
	require.Eventually(t, func() bool {
		clock.Advance(25 * time.Millisecond)
		clock.BlockUntilReady()
		return topQueuedPriority(s) == Critical
	}, 2*time.Second, time.Millisecond)

	go func() {
		release, err := s.Admit(context.Background(), High)
		require.NoError(t, err)
		done <- "high"
		release()
	}()
	waitQueued(t, s, 2)

	hold()
	require.Equal(t, "starved", <-done)
	require.Equal(t, "high", <-done)
}

func TestBoundedWithdrawOnCancel(t *testing.T) {
	s := NewBounded(1, 0)
	hold, err := s.Admit(context.Background(), Normal)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Admit(ctx, Normal)
		errCh <- err
	}()
	waitQueued(t, s, 1)
	cancel()
	require.Error(t, <-errCh)
	waitQueued(t, s, 0)

	// The withdrawn waiter must not consume the next freed slot.
	var admitted atomic.Bool
	go func() {
		release, err := s.Admit(context.Background(), Normal)
		require.NoError(t, err)
		admitted.Store(true)
		release()
	}()
	waitQueued(t, s, 1)
	hold()
	require.Eventually(t, admitted.Load, 2*time.Second, time.Millisecond)
}
