package resilience

import (
	"context"
	"fmt"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/ir"
)

// acquireThrottle is the outermost policy: a module call with no
// `throttle` option bypasses this entirely; otherwise it shares one
// token bucket per moduleName (not per call site) and suspends the
// caller until a token is available.
func (m *Manager) acquireThrottle(ctx context.Context, moduleName string, opts ir.ModuleOptions) error {
	if !opts.HasThrottle {
		return nil
	}
	rate, burst := throttleRate(opts)
	if rate <= 0 {
		return errors.Wrap(errors.New(errors.RES002, "resilience", fmt.Sprintf("throttle for module %q has a non-positive rate", moduleName), nil))
	}

	m.mu.Lock()
	b, ok := m.throttle[moduleName]
	if !ok {
		b = newTokenBucket(m.clock, rate, burst)
		m.throttle[moduleName] = b
	}
	m.mu.Unlock()

	if err := b.wait(ctx); err != nil {
		return errors.Wrap(errors.New(errors.RT007, "resilience", "run cancelled while waiting for a throttle token", nil))
	}
	return nil
}

// acquireConcurrency caps parallel executions: a semaphore shared per
// moduleName, sized by the first call site to specify `concurrency` for
// that name. The returned release func must always be called once
// acquisition succeeds.
func (m *Manager) acquireConcurrency(ctx context.Context, moduleName string, opts ir.ModuleOptions) (func(), error) {
	if !opts.HasConcurrency {
		return func() {}, nil
	}

	m.mu.Lock()
	sem, ok := m.limiter[moduleName]
	if !ok {
		n := opts.Concurrency
		if n < 1 {
			n = 1
		}
		sem = make(chan struct{}, n)
		m.limiter[moduleName] = sem
	}
	m.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, errors.Wrap(errors.New(errors.RT007, "resilience", "run cancelled while waiting for a concurrency slot", nil))
	}
}

// circuitFor returns moduleName's circuit breaker, creating it with the
// fixed defaults on first use.
func (m *Manager) circuitFor(moduleName string, _ ir.ModuleOptions) *circuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.breaker[moduleName]
	if !ok {
		cb = newCircuitBreaker(defaultFailureThreshold, defaultResetDuration, defaultHalfOpenMaxProbes)
		m.breaker[moduleName] = cb
	}
	return cb
}
