package resilience

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// circuit breaker tuning is fixed rather than per-call: the module call
// options clause has no circuit-breaker keys, only `retry`,
// `timeout`, `throttle`, `concurrency`, and friends, so every module name
// gets one breaker with these defaults.
const (
	defaultFailureThreshold  = 5
	defaultResetDuration     = 30 * time.Second
	defaultHalfOpenMaxProbes = 1
)

type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

// circuitBreaker is the per-module-name three-state machine. The
// Manager calls allow/record around its own retry loop rather than
// handing the breaker the call itself.
type circuitBreaker struct {
	mu               sync.Mutex
	state            cbState
	failures         int
	probes           int
	lastFail         time.Time
	failureThreshold int
	resetDuration    time.Duration
	halfOpenProbes   int
}

func newCircuitBreaker(failureThreshold int, resetDuration time.Duration, halfOpenProbes int) *circuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if halfOpenProbes < 1 {
		halfOpenProbes = 1
	}
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		resetDuration:    resetDuration,
		halfOpenProbes:   halfOpenProbes,
	}
}

// allow reports whether a call may proceed, transitioning Open to
// HalfOpen once resetDuration has elapsed and admitting at most
// halfOpenProbes concurrent probes while half-open.
func (cb *circuitBreaker) allow(clock clockz.Clock) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == cbOpen && clock.Since(cb.lastFail) > cb.resetDuration {
		cb.state = cbHalfOpen
		cb.probes = 0
	}

	switch cb.state {
	case cbOpen:
		return false
	case cbHalfOpen:
		if cb.probes >= cb.halfOpenProbes {
			return false
		}
		cb.probes++
		return true
	default:
		return true
	}
}

// record reports a call's outcome back to the breaker.
func (cb *circuitBreaker) record(success bool, clock clockz.Clock) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		switch cb.state {
		case cbClosed:
			cb.failures = 0
		case cbHalfOpen:
			cb.state = cbClosed
			cb.failures = 0
			cb.probes = 0
		}
		return
	}

	cb.lastFail = clock.Now()
	switch cb.state {
	case cbClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = cbOpen
		}
	case cbHalfOpen:
		cb.state = cbOpen
		cb.failures = 0
		cb.probes = 0
	}
}
