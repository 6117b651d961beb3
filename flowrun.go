// Package flowrun is the embedding surface of the pipeline runtime: a
// Runtime owns a module registry, a content-addressed pipeline store, a
// shared resilience manager, and the pluggable SPI backends, and exposes
// compile/store/run/resume as one coherent API.
//
// The compilation pipeline is parse → typecheck → IR → optimize → DAG
// (internal/parser, internal/typecheck, internal/ir, internal/dagc); the
// execution side is internal/exec over internal/scheduler and
// internal/resilience. Everything a caller needs to name is aliased
// here.
package flowrun

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"

	"github.com/flowrun/flowrun/internal/dagc"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/exec"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/parser"
	"github.com/flowrun/flowrun/internal/resilience"
	"github.com/flowrun/flowrun/internal/scheduler"
	"github.com/flowrun/flowrun/internal/spi"
	"github.com/flowrun/flowrun/internal/store"
	"github.com/flowrun/flowrun/internal/typecheck"
	"github.com/flowrun/flowrun/internal/value"
)

// Re-exported types, so embedders never import internal packages.
type (
	Value     = value.Value
	Type      = value.Type
	VRecord   = value.VRecord
	VString   = value.VString
	VInt      = value.VInt
	VFloat    = value.VFloat
	VBool     = value.VBool
	VList     = value.VList
	VOptional = value.VOptional

	ModuleDescriptor = modreg.Descriptor
	ModuleIdentity   = modreg.Identity
	ModuleSignature  = modreg.Signature
	ModuleParam      = modreg.Param
	ModuleConfig     = modreg.Config

	Image         = store.Image
	DataSignature = exec.DataSignature
	RunOptions    = exec.RunOptions
	Handle        = exec.Handle
	NodeMeta      = exec.NodeMeta
	Report        = errors.Report

	MetricsProvider    = spi.MetricsProvider
	Tracer             = spi.Tracer
	CacheBackend       = spi.CacheBackend
	ExecutionListener  = spi.ExecutionListener
	SuspensionStore    = spi.SuspensionStore
	SuspendedExecution = spi.SuspendedExecution
)

const (
	StatusCompleted = exec.Completed
	StatusSuspended = exec.Suspended
	StatusFailed    = exec.Failed
)

// SchedulerConfig selects the admission mode: MaxConcurrency <= 0
// is the unbounded scheduler, anything else bounds parallelism with
// priority-ordered, starvation-boosted admission.
type SchedulerConfig struct {
	MaxConcurrency    int
	StarvationTimeout time.Duration
}

// Backends are the pluggable SPI implementations. Nil fields keep
// the current (or no-op) backend.
type Backends struct {
	Metrics    spi.MetricsProvider
	Tracer     spi.Tracer
	Cache      spi.CacheBackend
	NamedCache map[string]spi.CacheBackend
	Listener   spi.ExecutionListener
	Suspension spi.SuspensionStore
}

// CompileResult is the outcome of a successful compilation: the
// storeable image, its structural hash, and any non-fatal warnings.
type CompileResult struct {
	Image    *Image
	Hash     string
	Warnings []*Report
}

// Runtime is the top-level owner of registry, store, scheduler, and
// backend state. Construct one per embedding; all methods are safe for
// concurrent use once configuration (SetScheduler, SetBackends) is done.
type Runtime struct {
	mu       sync.Mutex
	registry *modreg.Registry
	store    *store.Store
	sched    scheduler.Scheduler
	res      *resilience.Manager
	backends Backends
	clock    clockz.Clock
	logger   zerolog.Logger
}

// New creates a Runtime with an unbounded scheduler and no backends.
func New() *Runtime {
	r := &Runtime{
		registry: modreg.New(),
		store:    store.New(),
		sched:    scheduler.NewUnbounded(),
		clock:    clockz.RealClock,
		logger:   log.With().Str("component", "flowrun").Logger(),
	}
	r.res = resilience.NewManager(r.clock, nil, nil, nil, nil)
	return r
}

// RegisterModule adds a module descriptor to the runtime's registry.
func (r *Runtime) RegisterModule(d *ModuleDescriptor) error {
	return r.registry.Register(d)
}

// SetScheduler replaces the admission policy for subsequent runs.
func (r *Runtime) SetScheduler(cfg SchedulerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.MaxConcurrency <= 0 {
		r.sched = scheduler.NewUnbounded()
		return
	}
	r.sched = scheduler.NewBounded(cfg.MaxConcurrency, cfg.StarvationTimeout)
}

// SetBackends installs SPI implementations. Cache and circuit-breaker
// state is shared across runs, so swapping the cache backend rebuilds
// the resilience manager.
func (r *Runtime) SetBackends(b Backends) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.Metrics != nil {
		r.backends.Metrics = b.Metrics
	}
	if b.Tracer != nil {
		r.backends.Tracer = b.Tracer
	}
	if b.Listener != nil {
		r.backends.Listener = b.Listener
	}
	if b.Suspension != nil {
		r.backends.Suspension = b.Suspension
	}
	if b.Cache != nil || b.NamedCache != nil {
		if b.Cache != nil {
			r.backends.Cache = b.Cache
		}
		if b.NamedCache != nil {
			r.backends.NamedCache = b.NamedCache
		}
	}
	r.res = resilience.NewManager(r.clock, r.backends.Metrics, r.backends.Tracer, r.backends.Cache, r.backends.NamedCache)
}

// Compile turns pipeline source into a storeable image: parse,
// bidirectional type check, IR build, optimization, DAG synthesis. All
// collected compile errors are returned together.
func (r *Runtime) Compile(source, name string) (*CompileResult, error) {
	file, err := parser.Parse(source, name)
	if err != nil {
		return nil, err
	}
	tp, err := typecheck.NewChecker(r.registry).Check(file)
	if err != nil {
		return nil, err
	}
	graph, err := ir.Build(tp)
	if err != nil {
		return nil, err
	}
	graph = ir.Optimize(graph)
	dag, err := dagc.Compile(graph)
	if err != nil {
		return nil, err
	}
	return &CompileResult{
		Image:    &store.Image{DAG: dag, Name: name, Source: source},
		Hash:     dag.Hash,
		Warnings: tp.Warnings,
	}, nil
}

// Store inserts an image into the content-addressed store and returns
// its hash.
func (r *Runtime) Store(img *Image) string {
	return r.store.Put(img)
}

// Alias binds a human-readable name to a stored hash; last writer wins.
func (r *Runtime) Alias(name, hash string) error {
	return r.store.Alias(name, hash)
}

// Get resolves a name or hash to its stored image.
func (r *Runtime) Get(ref string) (*Image, error) {
	return r.store.Get(ref)
}

func (r *Runtime) executor() *exec.Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return exec.New(r.registry,
		exec.WithScheduler(r.sched),
		exec.WithResilience(r.res),
		exec.WithMetrics(r.backends.Metrics),
		exec.WithTracer(r.backends.Tracer),
		exec.WithListener(r.backends.Listener),
		exec.WithClock(r.clock),
		exec.WithLogger(r.logger),
	)
}

// Run executes a stored pipeline by name or hash.
func (r *Runtime) Run(ctx context.Context, ref string, inputs map[string]Value, opts RunOptions) (*DataSignature, error) {
	img, err := r.store.Get(ref)
	if err != nil {
		return nil, err
	}
	return r.RunImage(ctx, img, inputs, opts)
}

// RunImage executes an image directly, without the store.
func (r *Runtime) RunImage(ctx context.Context, img *Image, inputs map[string]Value, opts RunOptions) (*DataSignature, error) {
	sig, err := r.executor().Run(ctx, img.DAG, inputs, opts)
	if err != nil {
		return nil, err
	}
	r.persistSuspension(ctx, sig)
	return sig, nil
}

// RunCancellable starts a run and returns a handle whose Cancel poisons
// every unfilled cell with Cancelled.
func (r *Runtime) RunCancellable(ctx context.Context, ref string, inputs map[string]Value, opts RunOptions) (*Handle, error) {
	img, err := r.store.Get(ref)
	if err != nil {
		return nil, err
	}
	return r.executor().RunCancellable(ctx, img.DAG, inputs, opts)
}

// Resume continues a suspended execution with additional inputs
//. The pipeline image is found by the snapshot's structural
// hash, so the image must be stored (or re-stored) before resuming.
func (r *Runtime) Resume(ctx context.Context, susp SuspendedExecution, additional map[string]Value, opts RunOptions) (*DataSignature, error) {
	img, err := r.store.Get(susp.PipelineHash)
	if err != nil {
		return nil, err
	}
	sig, err := r.executor().Resume(ctx, img.DAG, susp, additional, opts)
	if err != nil {
		return nil, err
	}
	r.persistSuspension(ctx, sig)
	return sig, nil
}

// ResumeHandle loads a snapshot from the configured SuspensionStore and
// resumes it.
func (r *Runtime) ResumeHandle(ctx context.Context, handle string, additional map[string]Value, opts RunOptions) (*DataSignature, error) {
	r.mu.Lock()
	ss := r.backends.Suspension
	r.mu.Unlock()
	if ss == nil {
		return nil, errors.Wrap(errors.New("GENERIC", "flowrun", "no suspension store configured", nil))
	}
	susp, err := ss.Load(ctx, handle)
	if err != nil {
		return nil, err
	}
	return r.Resume(ctx, susp, additional, opts)
}

// persistSuspension saves a Suspended signature's snapshot to the
// configured store, best-effort.
func (r *Runtime) persistSuspension(ctx context.Context, sig *DataSignature) {
	if sig.Status != StatusSuspended || sig.Suspended == nil {
		return
	}
	r.mu.Lock()
	ss := r.backends.Suspension
	r.mu.Unlock()
	if ss == nil {
		return
	}
	if _, err := ss.Save(ctx, *sig.Suspended); err != nil {
		r.logger.Warn().Err(err).Str("run", sig.ExecutionID).Msg("failed to persist suspension snapshot")
	}
}
