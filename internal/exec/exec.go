// Package exec implements the parallel DAG executor: demand-driven
// production over single-fill Completable cells, one cooperative task per
// module node and per inline-transform node, per-node timeouts, priority
// admission through a scheduler, failure propagation along edges, run
// cancellation, and suspension/resumption.
//
// Production is demand-driven from the declared outputs: awaiting a
// node's cell launches its producer exactly once, so a guarded or
// untaken-branch producer whose value no output ever needs is never
// fired, while independent producers demanded by the
// same consumer run concurrently.
package exec

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zoobzio/clockz"

	"github.com/flowrun/flowrun/internal/codec"
	"github.com/flowrun/flowrun/internal/dagc"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/resilience"
	"github.com/flowrun/flowrun/internal/scheduler"
	"github.com/flowrun/flowrun/internal/spi"
	"github.com/flowrun/flowrun/internal/value"
)

// Executor runs compiled DAGs. One Executor may serve many concurrent
// runs; per-run state lives in a runState, while resilience state
// (throttle buckets, circuit breakers, caches) is shared across runs via
// the Manager.
type Executor struct {
	reg      *modreg.Registry
	sched    scheduler.Scheduler
	res      *resilience.Manager
	metrics  spi.MetricsProvider
	tracer   spi.Tracer
	listener spi.ExecutionListener
	clock    clockz.Clock
	logger   zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

func WithScheduler(s scheduler.Scheduler) Option   { return func(e *Executor) { e.sched = s } }
func WithResilience(m *resilience.Manager) Option  { return func(e *Executor) { e.res = m } }
func WithMetrics(m spi.MetricsProvider) Option     { return func(e *Executor) { e.metrics = m } }
func WithTracer(t spi.Tracer) Option               { return func(e *Executor) { e.tracer = t } }
func WithListener(l spi.ExecutionListener) Option  { return func(e *Executor) { e.listener = l } }
func WithClock(c clockz.Clock) Option              { return func(e *Executor) { e.clock = c } }
func WithLogger(lg zerolog.Logger) Option          { return func(e *Executor) { e.logger = lg } }

// New constructs an Executor over a module registry. With no options it
// admits every task immediately and shares a fresh resilience manager.
func New(reg *modreg.Registry, opts ...Option) *Executor {
	e := &Executor{
		reg:    reg,
		sched:  scheduler.NewUnbounded(),
		clock:  clockz.RealClock,
		logger: log.With().Str("component", "exec").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.res == nil {
		e.res = resilience.NewManager(e.clock, e.metrics, e.tracer, nil, nil)
	}
	return e
}

// RunOptions configure a single run.
type RunOptions struct {
	// Resumable turns missing required inputs into a Suspended outcome
	// instead of a synchronous failure.
	Resumable bool

	// FailFast cancels the whole run as soon as any output-bound node is
	// poisoned. Off by default: unrelated branches finish
	// and the signature reports every failure.
	FailFast bool

	// GlobalTimeout wraps the entire execution; on expiry the run is
	// cancelled.
	GlobalTimeout time.Duration

	// CaptureComputed includes named intermediate node values in the
	// signature.
	CaptureComputed bool
}

// Handle is a cancellable run.
type Handle struct {
	done   chan struct{}
	sig    *DataSignature
	cancel context.CancelFunc
}

// Cancel cancels every outstanding task; unfilled output cells are
// poisoned with Cancelled.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the run reaches a terminal status.
func (h *Handle) Wait() *DataSignature {
	<-h.done
	return h.sig
}

// runState is the per-run shared state: the cells, the status map, and
// the derived node sets the evaluator needs.
type runState struct {
	ex       *Executor
	dag      *dagc.DAG
	resolved map[ir.NodeID]*modreg.Descriptor
	cells    map[ir.NodeID]*cell
	status   *statusMap

	runID       string
	resumptions int
	opts        RunOptions
	inputs      map[string]value.Value
	missing     []string

	ctx    context.Context
	cancel context.CancelFunc

	// lambdaInternal marks nodes whose value depends on a higher-order
	// transform's bound parameter; they are evaluated per-element by
	// their owning transform, never through their cells.
	lambdaInternal map[ir.NodeID]bool

	// blocked marks nodes downstream of a missing input on a resumable
	// run; their outputs are left for a later resumption.
	blocked map[ir.NodeID]bool

	errMu   sync.Mutex
	errList []*errors.Report
}

func (rs *runState) lambdaCtx() context.Context { return rs.ctx }

func (rs *runState) addError(r *errors.Report) {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	rs.errList = append(rs.errList, r)
}

// Run executes dag to a terminal status. Input validation failures and
// missing modules fail synchronously with an error; every other failure
// is reported through the returned DataSignature.
func (e *Executor) Run(ctx context.Context, dag *dagc.DAG, inputs map[string]value.Value, opts RunOptions) (*DataSignature, error) {
	h, err := e.RunCancellable(ctx, dag, inputs, opts)
	if err != nil {
		return nil, err
	}
	return h.Wait(), nil
}

// RunCancellable starts a run and returns a handle that can cancel it.
func (e *Executor) RunCancellable(ctx context.Context, dag *dagc.DAG, inputs map[string]value.Value, opts RunOptions) (*Handle, error) {
	return e.launch(ctx, dag, inputs, nil, nil, 0, opts)
}

// Resume continues a suspended run: completed cells are
// pre-filled from the snapshot, additional inputs fill previously
// missing input cells, and nodes already Fired are never re-executed.
func (e *Executor) Resume(ctx context.Context, dag *dagc.DAG, susp spi.SuspendedExecution, additional map[string]value.Value, opts RunOptions) (*DataSignature, error) {
	if susp.PipelineHash != dag.Hash {
		return nil, errors.Wrap(errors.New(errors.RT003, "exec",
			fmt.Sprintf("suspended state was captured from pipeline %s, not %s", susp.PipelineHash, dag.Hash), nil))
	}
	preset := make(map[ir.NodeID]value.Value, len(susp.Values))
	for idStr, raw := range susp.Values {
		n, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		id := ir.NodeID(n)
		if _, ok := dag.Data[id]; !ok {
			continue
		}
		v, err := codec.Decode(raw)
		if err != nil {
			return nil, errors.Wrap(errors.Generic("exec", fmt.Errorf("corrupt suspension snapshot: %w", err)))
		}
		preset[id] = v
	}
	presetStatus := make(map[ir.NodeID]NodeMeta, len(susp.Statuses))
	for idStr, phase := range susp.Statuses {
		n, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		presetStatus[ir.NodeID(n)] = NodeMeta{Phase: Phase(phase)}
	}
	opts.Resumable = true
	h, err := e.launch(ctx, dag, additional, preset, presetStatus, susp.Resumptions+1, opts)
	if err != nil {
		return nil, err
	}
	return h.Wait(), nil
}

func (e *Executor) launch(ctx context.Context, dag *dagc.DAG, inputs map[string]value.Value, preset map[ir.NodeID]value.Value, presetStatus map[ir.NodeID]NodeMeta, resumptions int, opts RunOptions) (*Handle, error) {
	// Resolve every module before any task starts, so a missing module
	// fails the run synchronously.
	resolved := make(map[ir.NodeID]*modreg.Descriptor, len(dag.Modules))
	for id, m := range dag.Modules {
		desc, err := e.reg.Resolve(m.Module, nil)
		if err != nil {
			return nil, err
		}
		resolved[id] = desc
	}

	// Validate the externally supplied inputs.
	for name, v := range inputs {
		id, ok := dag.Inputs[name]
		if !ok {
			return nil, errors.Wrap(errors.New(errors.RT002, "exec", fmt.Sprintf("unexpected input %q", name), nil))
		}
		declared := dag.Data[id].Type
		if !value.Subtype(v.Type(), declared) {
			return nil, errors.Wrap(errors.New(errors.RT003, "exec",
				fmt.Sprintf("input %q: %s is not a subtype of declared type %s", name, v.Type(), declared), nil))
		}
	}

	var missing []string
	for name, id := range dag.Inputs {
		if _, supplied := inputs[name]; supplied {
			continue
		}
		if _, snap := preset[id]; snap {
			continue
		}
		missing = append(missing, name)
	}
	sort.Strings(missing)
	if len(missing) > 0 && !opts.Resumable {
		return nil, errors.Wrap(errors.New(errors.RT001, "exec", fmt.Sprintf("missing required inputs: %v", missing), nil))
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.GlobalTimeout > 0 {
		runCtx, cancel = e.clock.WithTimeout(ctx, opts.GlobalTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	rs := &runState{
		ex:             e,
		dag:            dag,
		resolved:       resolved,
		cells:          make(map[ir.NodeID]*cell, len(dag.Data)),
		status:         newStatusMap(),
		runID:          newRunID(),
		resumptions:    resumptions,
		opts:           opts,
		inputs:         inputs,
		missing:        missing,
		ctx:            runCtx,
		cancel:         cancel,
		lambdaInternal: lambdaInternalSet(dag),
	}
	rs.blocked = rs.blockedSet()

	// One Completable per DataNode, and a producer task per module node
	// and per inline-transform node, launched on demand.
	for id, dn := range dag.Data {
		switch dn.Node.(type) {
		case *ir.InputNode:
			rs.cells[id] = newCell(nil)
		case *ir.ModuleCallNode:
			rs.cells[id] = newCell(rs.moduleTask(id))
			rs.status.init(id, Unfired)
		default:
			rs.cells[id] = newCell(rs.transformTask(id))
		}
	}
	for id, meta := range presetStatus {
		if _, ok := rs.cells[id]; ok && meta.Phase.terminal() {
			rs.status.transition(id, meta)
		}
	}
	for name, id := range dag.Inputs {
		if v, ok := inputs[name]; ok {
			rs.cells[id].preset(v)
		}
	}
	for id, v := range preset {
		if c, ok := rs.cells[id]; ok {
			if _, _, done := c.state(); !done {
				c.preset(v)
			}
		}
	}

	h := &Handle{done: make(chan struct{}), cancel: cancel}
	go rs.drive(h)
	return h, nil
}

// drive demands every runnable output, waits for the demanded cone to
// settle, sweeps on cancellation, and assembles the signature.
func (rs *runState) drive(h *Handle) {
	defer rs.cancel()

	var wg sync.WaitGroup
	for name, id := range rs.dag.Outputs {
		if rs.blocked[id] {
			continue
		}
		wg.Add(1)
		go func(name string, id ir.NodeID) {
			defer wg.Done()
			if _, err := rs.awaitCell(rs.ctx, id); err != nil && rs.opts.FailFast {
				rs.cancel()
			}
		}(name, id)
	}
	wg.Wait()

	if rs.ctx.Err() != nil {
		rs.sweepCancelled()
	}

	h.sig = rs.buildSignature()
	if rs.ex.listener != nil {
		rs.ex.listener.RunCompleted(rs.runID, runListenerStatus(h.sig.Status))
	}
	close(h.done)
}

// sweepCancelled poisons every unfilled cell with Cancelled and marks
// every non-terminal module Failed(Cancelled).
func (rs *runState) sweepCancelled() {
	cancelErr := errors.Wrap(errors.New(errors.RT007, "exec", "run cancelled", nil))
	for id, c := range rs.cells {
		if rs.lambdaInternal[id] {
			continue
		}
		c.sweepPoison(cancelErr)
	}
	for id := range rs.dag.Modules {
		if meta, ok := rs.status.get(id); ok && meta.Phase == Running {
			rep := errors.New(errors.RT007, "exec", "run cancelled", nil)
			rs.status.transition(id, NodeMeta{Phase: PhaseFailed, Err: rep})
			rs.addError(rep)
		}
	}
}

// upstreamFailure marks an error observed through an input cell, so
// consumers can poison their own outputs with an input-failure cause
// naming the upstream node.
type upstreamFailure struct {
	id  ir.NodeID
	err error
}

func (u *upstreamFailure) Error() string { return u.err.Error() }
func (u *upstreamFailure) Unwrap() error { return u.err }

// awaitCell awaits id's cell under ctx, distinguishing the cell's own
// poisoned state from the caller's context expiring.
func (rs *runState) awaitCell(ctx context.Context, id ir.NodeID) (value.Value, error) {
	c, ok := rs.cells[id]
	if !ok {
		return nil, fmt.Errorf("exec: no cell for node %d", id)
	}
	v, err := c.await(ctx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil && err == ctx.Err() {
		return nil, err
	}
	return nil, &upstreamFailure{id: id, err: err}
}

// nodeDisplayName renders a node for diagnostics: its bound variable
// name when it has one, otherwise its id.
func (rs *runState) nodeDisplayName(id ir.NodeID) string {
	if dn, ok := rs.dag.Data[id]; ok && dn.Name != "" {
		return dn.Name
	}
	if m, ok := rs.dag.Modules[id]; ok {
		return m.Module
	}
	return fmt.Sprintf("node-%d", id)
}

// lambdaInternalSet computes the nodes that depend on a higher-order
// transform's bound parameter: forward closure from each ParamID over
// consumer edges, stopping at the transform that owns the parameter.
func lambdaInternalSet(dag *dagc.DAG) map[ir.NodeID]bool {
	internal := map[ir.NodeID]bool{}
	for id, dn := range dag.Data {
		var paramID ir.NodeID
		switch t := dn.Node.(type) {
		case *ir.MapTransform:
			paramID = t.ParamID
		case *ir.FilterTransform:
			paramID = t.ParamID
		case *ir.AllTransform:
			paramID = t.ParamID
		case *ir.AnyTransform:
			paramID = t.ParamID
		default:
			continue
		}
		queue := []ir.NodeID{paramID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if cur == id || internal[cur] {
				continue
			}
			internal[cur] = true
			for _, next := range dag.OutEdges[cur] {
				if next != id {
					queue = append(queue, next)
				}
			}
		}
	}
	return internal
}

// blockedSet computes the forward closure of the missing input nodes: on
// a resumable run these nodes wait for a later resumption.
func (rs *runState) blockedSet() map[ir.NodeID]bool {
	blocked := map[ir.NodeID]bool{}
	var queue []ir.NodeID
	for _, name := range rs.missing {
		queue = append(queue, rs.dag.Inputs[name])
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if blocked[cur] {
			continue
		}
		blocked[cur] = true
		queue = append(queue, rs.dag.OutEdges[cur]...)
	}
	return blocked
}

func runListenerStatus(s Status) spi.NodeStatus {
	switch s {
	case Completed:
		return spi.NodeFired
	case Suspended:
		return spi.NodeSuspended
	default:
		return spi.NodeFailed
	}
}

func newRunID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "run-00000000"
	}
	return "run-" + hex.EncodeToString(b[:])
}
