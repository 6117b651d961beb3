package resilience

import (
	"context"
	"math"
	"time"

	"github.com/flowrun/flowrun/internal/codec"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/spi"
	"github.com/flowrun/flowrun/internal/value"
)

// defaultCacheTTL applies when `cache: true` is given without an explicit
// duration.
const defaultCacheTTL = 5 * time.Minute

// cacheKey computes the cache key: module name plus the
// content-hash of the resolved argument record.
func cacheKey(moduleName string, input *value.VRecord) string {
	return moduleName + ":" + value.ContentHash(input).String()
}

func (m *Manager) cacheBackendFor(opts ir.ModuleOptions) spi.CacheBackend {
	if b, ok := m.backends[opts.CacheBackend]; ok && b != nil {
		return b
	}
	return m.backends[""]
}

// cacheGet reports a hit only when the module call opted into caching
// and a configured backend has a live (non-expired, per CacheBackend's
// own contract) entry for this input.
func (m *Manager) cacheGet(ctx context.Context, moduleName string, opts ir.ModuleOptions, input *value.VRecord) (*value.VRecord, bool, error) {
	if !opts.Cache && !opts.HasCacheTTL {
		return nil, false, nil
	}
	backend := m.cacheBackendFor(opts)
	if backend == nil {
		return nil, false, nil
	}
	raw, ok, err := backend.Get(ctx, cacheKey(moduleName, input))
	if err != nil || !ok {
		return nil, false, nil
	}
	rec, err := codec.DecodeRecord(raw)
	if err != nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// cachePut stores result under the same key cacheGet would look up,
// best-effort: an encode or backend failure does not fail the call that
// produced the value.
func (m *Manager) cachePut(ctx context.Context, moduleName string, opts ir.ModuleOptions, input, result *value.VRecord) {
	if !opts.Cache && !opts.HasCacheTTL {
		return
	}
	backend := m.cacheBackendFor(opts)
	if backend == nil {
		return
	}
	raw, err := codec.EncodeRecord(result)
	if err != nil {
		return
	}
	ttl := defaultCacheTTL
	if opts.HasCacheTTL {
		ttl = time.Duration(opts.CacheTTLNanos)
	}
	_ = backend.Put(ctx, cacheKey(moduleName, input), raw, ttl)
}

// throttleRate derives tokens-per-second and burst size from a `throttle:
// count/duration` rate literal; a non-positive rate (a zero or negative
// duration, which a parsed rate literal never has but a
// programmatically-built option set may carry) never refills, so every acquire on
// it is treated as an immediate ThrottleExceeded rather than an infinite
// wait.
func throttleRate(opts ir.ModuleOptions) (rate, burst float64) {
	if opts.ThrottleNanos <= 0 {
		return 0, 0
	}
	seconds := float64(opts.ThrottleNanos) / float64(time.Second)
	rate = float64(opts.ThrottleCount) / seconds
	burst = math.Max(1, float64(opts.ThrottleCount))
	return rate, burst
}
