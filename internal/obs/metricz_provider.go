// Package obs supplies the zoobzio-backed concrete implementations of the
// internal/spi interfaces: metricz for metrics, tracez for tracing, and
// hookz for execution-lifecycle events.
package obs

import (
	"strings"

	"github.com/zoobzio/metricz"

	"github.com/flowrun/flowrun/internal/spi"
)

// Metric keys shared by every module invocation, named
// <subsystem>.<noun>.<unit-or-total>.
const (
	ModuleInvocationsTotal = metricz.Key("flowrun.module.invocations.total")
	ModuleFailuresTotal    = metricz.Key("flowrun.module.failures.total")
	ModuleDurationMs       = metricz.Key("flowrun.module.duration.ms")
	ModuleInFlight         = metricz.Key("flowrun.module.inflight")

	RetryAttemptsTotal   = metricz.Key("flowrun.retry.attempts.total")
	RetryExhaustedTotal  = metricz.Key("flowrun.retry.exhausted.total")
	ThrottleRejectsTotal = metricz.Key("flowrun.throttle.rejects.total")
	CircuitOpenTotal     = metricz.Key("flowrun.circuit.open.total")
	CacheHitsTotal       = metricz.Key("flowrun.cache.hits.total")
	CacheMissesTotal     = metricz.Key("flowrun.cache.misses.total")
)

// MetriczProvider implements spi.MetricsProvider on top of a single
// metricz.Registry for the lifetime of a flowrun process. Counter and
// histogram names arriving at runtime (module names are user-defined, not
// known at compile time) are registered lazily on first use since
// metricz.Registry requires a metric to be declared before it is updated.
type MetriczProvider struct {
	reg *metricz.Registry
}

// NewMetriczProvider constructs a MetriczProvider with the flowrun-wide
// metric set pre-registered.
func NewMetriczProvider() *MetriczProvider {
	reg := metricz.New()
	reg.Counter(ModuleInvocationsTotal)
	reg.Counter(ModuleFailuresTotal)
	reg.Gauge(ModuleDurationMs)
	reg.Gauge(ModuleInFlight)
	reg.Counter(RetryAttemptsTotal)
	reg.Counter(RetryExhaustedTotal)
	reg.Counter(ThrottleRejectsTotal)
	reg.Counter(CircuitOpenTotal)
	reg.Counter(CacheHitsTotal)
	reg.Counter(CacheMissesTotal)
	return &MetriczProvider{reg: reg}
}

// Registry returns the underlying metricz.Registry, used by cmd/flowrun
// to expose a metrics snapshot for diagnostics.
func (p *MetriczProvider) Registry() *metricz.Registry {
	return p.reg
}

// Counter implements spi.MetricsProvider. Tags are folded into the key
// name since metricz.Key carries no tag dimension of its own; this keeps
// per-module-name cardinality (e.g. a module named "Uppercase") visible
// without requiring every call site to pre-declare every module's key.
func (p *MetriczProvider) Counter(name string, delta int64, tags ...string) {
	key := metricz.Key(keyWithTags(name, tags))
	p.reg.Counter(key).Add(float64(delta))
}

// Histogram implements spi.MetricsProvider. metricz has no native
// histogram type; a gauge tracks the latest observation instead.
func (p *MetriczProvider) Histogram(name string, value float64, tags ...string) {
	key := metricz.Key(keyWithTags(name, tags))
	p.reg.Gauge(key).Set(value)
}

// Gauge implements spi.MetricsProvider.
func (p *MetriczProvider) Gauge(name string, value float64, tags ...string) {
	key := metricz.Key(keyWithTags(name, tags))
	p.reg.Gauge(key).Set(value)
}

func keyWithTags(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	return name + "{" + strings.Join(tags, ",") + "}"
}

var _ spi.MetricsProvider = (*MetriczProvider)(nil)
