package resilience

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// tokenBucket is the throttle policy's shared-per-module-name state,
// in wait mode only: the throttle option has no drop-mode surface, so
// an empty bucket always suspends the caller until a token refills.
type tokenBucket struct {
	mu    sync.Mutex
	clock clockz.Clock
	rate  float64 // tokens per second
	burst float64
	tokens float64
	last  time.Time
}

func newTokenBucket(clock clockz.Clock, rate, burst float64) *tokenBucket {
	return &tokenBucket{clock: clock, rate: rate, burst: burst, tokens: burst, last: clock.Now()}
}

// refill must be called with mu held.
func (b *tokenBucket) refill() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.burst, b.tokens+elapsed*b.rate)
}

// wait blocks until a token is available, taking it before returning, or
// until ctx is done.
func (b *tokenBucket) wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		needed := 1 - b.tokens
		d := time.Duration(needed / b.rate * float64(time.Second))
		b.mu.Unlock()

		select {
		case <-b.clock.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
