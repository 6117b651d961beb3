// Package resilience implements the policy wrapper around a module
// invocation: throttle, concurrency, circuit breaker, cache, retry,
// timeout, and fallback, composed outermost-first in the fixed order
// the executor relies on. Per-module-name state (throttle bucket, concurrency
// semaphore, circuit breaker) is held in a Manager and shared across
// runs: cache and circuit-breaker state outlives any one run.
package resilience

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/spi"
	"github.com/flowrun/flowrun/internal/value"
)

const maxRetryDelay = 30 * time.Second

// Call is one attempt at running a module's logic.
type Call func(ctx context.Context) (*value.VRecord, error)

// Manager holds per-module-name resilience state across every run that
// shares it.
type Manager struct {
	clock    clockz.Clock
	metrics  spi.MetricsProvider
	tracer   spi.Tracer
	backends map[string]spi.CacheBackend // cache_backend name -> backend
	logger   zerolog.Logger

	mu       sync.Mutex
	throttle map[string]*tokenBucket
	limiter  map[string]chan struct{} // per-module-name concurrency semaphore
	breaker  map[string]*circuitBreaker
}

// NewManager constructs a Manager. defaultCache is used when a module's
// `cache_backend` option names a backend not present in namedBackends.
func NewManager(clock clockz.Clock, metrics spi.MetricsProvider, tracer spi.Tracer, defaultCache spi.CacheBackend, namedBackends map[string]spi.CacheBackend) *Manager {
	if clock == nil {
		clock = clockz.RealClock
	}
	backends := map[string]spi.CacheBackend{}
	for k, v := range namedBackends {
		backends[k] = v
	}
	if defaultCache != nil {
		backends[""] = defaultCache
	}
	return &Manager{
		clock:    clock,
		metrics:  metrics,
		tracer:   tracer,
		backends: backends,
		logger:   log.With().Str("component", "resilience").Logger(),
		throttle: map[string]*tokenBucket{},
		limiter:  map[string]chan struct{}{},
		breaker:  map[string]*circuitBreaker{},
	}
}

// Outcome reports how a policy-wrapped execution produced (or failed to
// produce) its value. AttemptErr carries the terminal attempt failure
// even when the fallback recovered, so the caller can mark the node
// failed while still using the fallback's value.
type Outcome struct {
	Result       *value.VRecord
	FallbackUsed bool
	AttemptErr   error
}

// Execute runs call under the policies opts selects for moduleName, in
// the fixed policy order. cacheInput is the module's resolved argument
// record, used to compute the cache key. attemptTimeout is the per-attempt timeout (0
// disables it); it is distinct from opts.TimeoutNanos so callers can
// fall back to the module's registered default timeout when no `with
// timeout:` override is present.
func (m *Manager) Execute(ctx context.Context, moduleName string, opts ir.ModuleOptions, attemptTimeout time.Duration, cacheInput *value.VRecord, call, fallback Call) (Outcome, error) {
	if err := m.acquireThrottle(ctx, moduleName, opts); err != nil {
		return Outcome{}, err
	}
	release, err := m.acquireConcurrency(ctx, moduleName, opts)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	cb := m.circuitFor(moduleName, opts)
	if cb != nil {
		if !cb.allow(m.clock) {
			return Outcome{}, errors.Wrap(errors.New(errors.RES001, "resilience", fmt.Sprintf("circuit open for module %q", moduleName), nil))
		}
	}

	if v, ok, err := m.cacheGet(ctx, moduleName, opts, cacheInput); err != nil {
		return Outcome{}, err
	} else if ok {
		return Outcome{Result: v}, nil
	}

	result, attemptErr := m.retryLoop(ctx, moduleName, opts, attemptTimeout, call)
	if cb != nil {
		cb.record(attemptErr == nil, m.clock)
	}

	if attemptErr != nil && opts.HasFallback && fallback != nil {
		fbResult, fbErr := fallback(ctx)
		if fbErr == nil {
			return Outcome{Result: fbResult, FallbackUsed: true, AttemptErr: attemptErr}, nil
		}
		return Outcome{AttemptErr: attemptErr}, attemptErr
	}
	if attemptErr != nil {
		return Outcome{AttemptErr: attemptErr}, attemptErr
	}

	m.cachePut(ctx, moduleName, opts, cacheInput, result)
	return Outcome{Result: result}, nil
}

// retryLoop runs call up to opts.Retry+1 times (an unset retry option
// means exactly one attempt), applying attemptTimeout per attempt and
// the backoff schedule between attempts.
func (m *Manager) retryLoop(ctx context.Context, moduleName string, opts ir.ModuleOptions, attemptTimeout time.Duration, call Call) (*value.VRecord, error) {
	attempts := int64(1)
	if opts.HasRetry {
		attempts = opts.Retry + 1
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := int64(1); attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if attemptTimeout > 0 {
			attemptCtx, cancel = m.clock.WithTimeout(ctx, attemptTimeout)
		}
		if m.metrics != nil {
			m.metrics.Counter("flowrun.module.invocations.total", 1, "module", moduleName)
		}
		start := m.clock.Now()
		result, err := call(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if m.metrics != nil {
			m.metrics.Histogram("flowrun.module.duration.ms", float64(m.clock.Since(start).Milliseconds()), "module", moduleName)
		}

		if err == nil {
			return result, nil
		}
		if attemptTimeout > 0 && attemptCtx.Err() != nil && ctx.Err() == nil {
			err = errors.Wrap(errors.New(errors.RT006, "resilience", fmt.Sprintf("module %q timed out after %s", moduleName, attemptTimeout), nil))
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.New(errors.RT007, "resilience", "run cancelled", nil))
		}
		if attempt == attempts {
			break
		}
		if opts.HasRetry {
			if m.metrics != nil {
				m.metrics.Counter("flowrun.retry.attempts.total", 1, "module", moduleName)
			}
			if delay := backoffDelay(opts, attempt); delay > 0 {
				select {
				case <-m.clock.After(delay):
				case <-ctx.Done():
					return nil, errors.Wrap(errors.New(errors.RT007, "resilience", "run cancelled", nil))
				}
			}
		}
	}
	if !opts.HasRetry {
		return nil, lastErr
	}
	if m.metrics != nil {
		m.metrics.Counter("flowrun.retry.exhausted.total", 1, "module", moduleName)
	}
	return nil, errors.Wrap(errors.New(errors.RES003, "resilience", fmt.Sprintf("module %q exhausted retries: %v", moduleName, lastErr), map[string]any{"cause": lastErr.Error()}))
}

// backoffDelay implements the fixed/linear/exponential schedule,
// capped at maxRetryDelay.
func backoffDelay(opts ir.ModuleOptions, attempt int64) time.Duration {
	if !opts.HasDelay {
		return 0
	}
	base := time.Duration(opts.DelayNanos)
	var d time.Duration
	switch opts.Backoff {
	case "linear":
		d = base * time.Duration(attempt)
	case "exponential":
		d = time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	default: // "fixed" or unset
		d = base
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
