package exec

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

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

// transformTask is the producer for an inline-transform data node: await
// operands, apply the transform, fill or poison the node's cell.
func (rs *runState) transformTask(id ir.NodeID) func() {
	return func() {
		dn := rs.dag.Data[id]
		c := rs.cells[id]
		// A transform that is strict in several operands demands them all
		// up front so independent producers run concurrently; lazy
		// operands (branch bodies, guard values) stay demand-only.
		for _, op := range strictOperands(dn.Node) {
			if oc, ok := rs.cells[op]; ok && !rs.lambdaInternal[op] {
				oc.ensureStarted()
			}
		}
		v, err := rs.apply(rs.ctx, dn.Node, func(op ir.NodeID) (value.Value, error) {
			return rs.awaitCell(rs.ctx, op)
		}, nil)
		if err != nil {
			c.poison(rs.propagationError(id, err))
			return
		}
		c.fill(v)
	}
}

// strictOperands lists the operands a transform unconditionally needs,
// as opposed to the lazily demanded ones (untaken branch bodies, guarded
// values, coalesce right-hand sides).
func strictOperands(n ir.Node) []ir.NodeID {
	switch t := n.(type) {
	case *ir.MergeTransform:
		return []ir.NodeID{t.Left, t.Right}
	case *ir.CompareTransform:
		return []ir.NodeID{t.Left, t.Right}
	case *ir.ListLiteralTransform:
		return t.Elements
	case *ir.RecordBuildTransform:
		return t.Values
	case *ir.StringInterpolationTransform:
		var ids []ir.NodeID
		for _, p := range t.Parts {
			if p.IsExpr {
				ids = append(ids, p.Node)
			}
		}
		return ids
	default:
		return nil
	}
}

// propagationError converts a producer failure into the error its cell
// is poisoned with: an upstream poison becomes InputFailure naming the
// upstream node, a context expiry becomes Cancelled, and everything else
// is a failure of the node itself.
func (rs *runState) propagationError(id ir.NodeID, err error) error {
	var up *upstreamFailure
	if stderrors.As(err, &up) {
		// Re-propagating an InputFailure keeps the original culprit's
		// name: only the first hop away from the failed node wraps.
		if rep, ok := errors.AsReport(up.err); ok && rep.Code == errors.RT008 {
			return up.err
		}
		rep := errors.New(errors.RT008, "exec",
			fmt.Sprintf("input %s failed: %v", rs.nodeDisplayName(up.id), up.err),
			map[string]any{"upstream": rs.nodeDisplayName(up.id)})
		return errors.Wrap(rep)
	}
	if rs.ctx.Err() != nil && err == rs.ctx.Err() {
		return errors.Wrap(errors.New(errors.RT007, "exec", "run cancelled", nil))
	}
	if _, ok := errors.AsReport(err); ok {
		return err
	}
	rep := errors.New(errors.RT004, "exec",
		fmt.Sprintf("%s failed: %v", rs.nodeDisplayName(id), err), nil)
	rs.addError(rep)
	return errors.Wrap(rep)
}

// moduleTask is the producer for a module node, driving its lifecycle
// state machine: await inputs under inputsTimeout, pass through scheduler
// admission, run the module under the resilience policies, then fill or
// poison the node's cell.
func (rs *runState) moduleTask(id ir.NodeID) func() {
	return func() {
		m := rs.dag.Modules[id]
		desc := rs.resolved[id]
		dn := rs.dag.Data[id]
		c := rs.cells[id]
		name := rs.nodeDisplayName(id)

		// Input phase (Unfired): demand every consumed cell at once so
		// independent producers run concurrently, then
		// await each under the module's inputsTimeout.
		for _, p := range desc.Signature.Consumes {
			if src, ok := m.Consumes[p.Name]; ok {
				if ic, ok := rs.cells[src]; ok {
					ic.ensureStarted()
				}
			}
		}
		inputsCtx := rs.ctx
		if desc.Config.InputsTimeout > 0 {
			var cancelInputs func()
			inputsCtx, cancelInputs = rs.ex.clock.WithTimeout(rs.ctx, desc.Config.InputsTimeout)
			defer cancelInputs()
		}
		fields := make([]value.VField, 0, len(desc.Signature.Consumes))
		typFields := make([]value.Field, 0, len(desc.Signature.Consumes))
		for _, p := range desc.Signature.Consumes {
			src, ok := m.Consumes[p.Name]
			if !ok {
				rep := errors.New(errors.RT001, "exec",
					fmt.Sprintf("module %q parameter %q has no bound producer", m.Module, p.Name), nil)
				rs.failModule(id, c, name, rep)
				return
			}
			v, err := rs.awaitCell(inputsCtx, src)
			if err != nil {
				rs.moduleInputFailure(id, c, name, err, inputsCtx.Err() != nil && rs.ctx.Err() == nil)
				return
			}
			fields = append(fields, value.VField{Name: p.Name, Value: v})
			typFields = append(typFields, value.Field{Name: p.Name, Type: v.Type()})
		}
		in := &value.VRecord{Fields: fields, Typ: value.NewRecord(typFields...)}

		// Admission.
		prio := scheduler.Normal
		if m.Options.HasPriority {
			prio = scheduler.Priority(m.Options.Priority)
		}
		release, err := rs.ex.sched.Admit(rs.ctx, prio)
		if err != nil {
			rep := errors.New(errors.RT007, "exec", "run cancelled awaiting admission", nil)
			rs.failModule(id, c, name, rep)
			return
		}
		defer release()

		rs.status.transition(id, NodeMeta{Phase: Running})
		if rs.ex.listener != nil {
			rs.ex.listener.NodeStarted(rs.runID, strconv.Itoa(int(id)), name)
		}

		attemptTimeout := desc.Config.ModuleTimeout
		if m.Options.HasTimeout {
			attemptTimeout = time.Duration(m.Options.TimeoutNanos)
		}
		call := func(ctx context.Context) (*value.VRecord, error) {
			if rs.ex.tracer != nil {
				var end func()
				ctx, end = rs.ex.tracer.Start(ctx, "module."+m.Module, "node", name)
				defer end()
			}
			return desc.Invoke(ctx, in)
		}
		var fallback resilience.Call
		if m.Options.HasFallback {
			fbID := m.Options.Fallback
			fallback = func(ctx context.Context) (*value.VRecord, error) {
				v, err := rs.awaitCell(ctx, fbID)
				if err != nil {
					return nil, err
				}
				return outputRecord(desc, v)
			}
		}

		start := rs.ex.clock.Now()
		outcome, execErr := rs.ex.res.Execute(rs.ctx, m.Module, m.Options, attemptTimeout, in, call, fallback)
		latency := rs.ex.clock.Since(start)

		switch {
		case execErr == nil && outcome.AttemptErr == nil:
			c.fill(rs.wrapIfRequested(m, dn, collapseOutput(desc, outcome.Result), nil))
			rs.status.transition(id, NodeMeta{Phase: Fired, Latency: latency})
			rs.notifyCompleted(id, name, spi.NodeFired, latency)

		case execErr == nil:
			// The fallback produced the value; the node itself still
			// failed.
			rep := reportOf(outcome.AttemptErr)
			c.fill(collapseOutput(desc, outcome.Result))
			rs.status.transition(id, NodeMeta{Phase: PhaseFailed, Latency: latency, Err: rep})
			rs.addError(rep)
			rs.notifyCompleted(id, name, spi.NodeFailed, latency)

		default:
			rs.moduleFailure(id, c, dn, m, name, execErr, latency)
		}
	}
}

// moduleFailure applies the on_error strategy to a module
// whose attempts (and fallback, if any) all failed.
func (rs *runState) moduleFailure(id ir.NodeID, c *cell, dn *dagc.DataNode, m *dagc.ModuleNode, name string, execErr error, latency time.Duration) {
	rep := reportOf(execErr)
	rs.addError(rep)

	phase := PhaseFailed
	listenerStatus := spi.NodeFailed
	if rep.Code == errors.RT006 {
		phase = Timed
		listenerStatus = spi.NodeTimedOut
	}
	rs.status.transition(id, NodeMeta{Phase: phase, Latency: latency, Err: rep})
	rs.notifyCompleted(id, name, listenerStatus, latency)

	switch m.Options.OnError {
	case "skip":
		c.fill(value.Zero(dn.Type))
	case "log":
		rs.ex.logger.Error().
			Str("run", rs.runID).
			Str("node", name).
			Str("code", rep.Code).
			Msg(rep.Message)
		if rs.ex.metrics != nil {
			rs.ex.metrics.Counter("flowrun.module.errors.total", 1, "module", m.Module)
		}
		c.fill(value.Zero(dn.Type))
	case "wrap":
		c.fill(rs.wrapIfRequested(m, dn, nil, rep))
	default: // propagate
		c.poison(errors.Wrap(rep))
	}
}

func (rs *runState) moduleInputFailure(id ir.NodeID, c *cell, name string, err error, inputDeadline bool) {
	var up *upstreamFailure
	if stderrors.As(err, &up) {
		poisonErr := rs.propagationError(id, err)
		rep, _ := errors.AsReport(poisonErr)
		rs.status.transition(id, NodeMeta{Phase: PhaseFailed, Err: rep})
		rs.addError(rep)
		c.poison(poisonErr)
		return
	}
	if inputDeadline {
		rep := errors.New(errors.RT005, "exec",
			fmt.Sprintf("module %q timed out waiting for inputs", name), nil)
		rs.status.transition(id, NodeMeta{Phase: Timed, Err: rep})
		rs.addError(rep)
		rs.notifyCompleted(id, name, spi.NodeTimedOut, 0)
		c.poison(errors.Wrap(rep))
		return
	}
	rep := errors.New(errors.RT007, "exec", "run cancelled", nil)
	rs.status.transition(id, NodeMeta{Phase: PhaseFailed, Err: rep})
	c.poison(errors.Wrap(rep))
}

func (rs *runState) failModule(id ir.NodeID, c *cell, name string, rep *errors.Report) {
	rs.status.transition(id, NodeMeta{Phase: PhaseFailed, Err: rep})
	rs.addError(rep)
	rs.notifyCompleted(id, name, spi.NodeFailed, 0)
	c.poison(errors.Wrap(rep))
}

func (rs *runState) notifyCompleted(id ir.NodeID, name string, status spi.NodeStatus, latency time.Duration) {
	if rs.ex.listener != nil {
		rs.ex.listener.NodeCompleted(rs.runID, strconv.Itoa(int(id)), name, status, latency)
	}
}

// wrapIfRequested builds the `on_error: wrap` union value: {ok: T} on
// success, {err: {message: String}} on failure. With wrap not requested
// it returns the success value unchanged.
func (rs *runState) wrapIfRequested(m *dagc.ModuleNode, dn *dagc.DataNode, ok value.Value, failure *errors.Report) value.Value {
	if m.Options.OnError != "wrap" {
		return ok
	}
	var payload *value.VRecord
	variant := 0
	if failure == nil {
		payload = &value.VRecord{
			Fields: []value.VField{{Name: "ok", Value: ok}},
			Typ:    value.NewRecord(value.Field{Name: "ok", Type: ok.Type()}),
		}
	} else {
		variant = 1
		msg := value.VString(failure.Message)
		inner := &value.VRecord{
			Fields: []value.VField{{Name: "message", Value: msg}},
			Typ:    value.NewRecord(value.Field{Name: "message", Type: value.String}),
		}
		payload = &value.VRecord{
			Fields: []value.VField{{Name: "err", Value: inner}},
			Typ:    value.NewRecord(value.Field{Name: "err", Type: inner.Typ}),
		}
	}
	if ut, isUnion := dn.Type.(*value.Union); isUnion {
		for i, member := range ut.Members {
			if value.Subtype(payload.Typ, member) {
				variant = i
				break
			}
		}
		return &value.VUnion{VariantIdx: variant, Payload: payload, Typ: ut}
	}
	return payload
}

// collapseOutput narrows a single-field produces record to the bare
// field value, mirroring the type checker's single-field collapse rule.
func collapseOutput(desc *modreg.Descriptor, out *value.VRecord) value.Value {
	if out == nil {
		return nil
	}
	if len(desc.Signature.Produces) == 1 {
		if v, ok := out.FieldValue(desc.Signature.Produces[0].Name); ok {
			return v
		}
	}
	return out
}

// outputRecord is collapseOutput's inverse, used to present a fallback
// expression's value to the resilience layer in the module's ABI shape.
func outputRecord(desc *modreg.Descriptor, v value.Value) (*value.VRecord, error) {
	if rec, ok := v.(*value.VRecord); ok && len(desc.Signature.Produces) != 1 {
		return rec, nil
	}
	if len(desc.Signature.Produces) == 1 {
		name := desc.Signature.Produces[0].Name
		return &value.VRecord{
			Fields: []value.VField{{Name: name, Value: v}},
			Typ:    value.NewRecord(value.Field{Name: name, Type: v.Type()}),
		}, nil
	}
	return nil, fmt.Errorf("exec: fallback value %s does not match module output shape", v.Type())
}

// reportOf recovers the structured report from an error, synthesizing a
// ModuleFailure report for plain errors from user module code.
func reportOf(err error) *errors.Report {
	if rep, ok := errors.AsReport(err); ok {
		return rep
	}
	return errors.New(errors.RT004, "exec", err.Error(), nil)
}

// buildSignature assembles the run's result envelope after the
// demanded cone has settled.
func (rs *runState) buildSignature() *DataSignature {
	sig := &DataSignature{
		ExecutionID:   rs.runID,
		PipelineHash:  rs.dag.Hash,
		Resumptions:   rs.resumptions,
		Inputs:        rs.inputs,
		Outputs:       map[string]value.Value{},
		MissingInputs: rs.missing,
		Nodes:         map[string]NodeMeta{},
	}

	outputFailed := false
	for name, id := range rs.dag.Outputs {
		v, err, done := rs.cells[id].state()
		switch {
		case done && err == nil:
			sig.Outputs[name] = v
		case done:
			outputFailed = true
		}
	}

	for id, meta := range rs.status.snapshot() {
		sig.Nodes[rs.nodeDisplayName(id)] = meta
	}

	rs.errMu.Lock()
	sig.Errors = append(sig.Errors, rs.errList...)
	rs.errMu.Unlock()

	if rs.opts.CaptureComputed {
		sig.Computed = map[string]value.Value{}
		for id, dn := range rs.dag.Data {
			if dn.Name == "" {
				continue
			}
			if _, isInput := dn.Node.(*ir.InputNode); isInput {
				continue
			}
			if v, err, done := rs.cells[id].state(); done && err == nil {
				sig.Computed[dn.Name] = v
			}
		}
	}

	switch {
	case len(rs.missing) > 0:
		sig.Status = Suspended
		sig.Suspended = rs.snapshotSuspended()
	case outputFailed:
		sig.Status = Failed
	default:
		sig.Status = Completed
	}
	return sig
}

// snapshotSuspended captures every successfully filled cell and the
// status map into a resumable snapshot.
func (rs *runState) snapshotSuspended() *spi.SuspendedExecution {
	susp := &spi.SuspendedExecution{
		RunID:         rs.runID,
		PipelineHash:  rs.dag.Hash,
		Resumptions:   rs.resumptions,
		Values:        map[string][]byte{},
		Statuses:      map[string]string{},
		MissingInputs: rs.missing,
	}
	for id, c := range rs.cells {
		if rs.lambdaInternal[id] {
			continue
		}
		v, err, done := c.state()
		if !done || err != nil {
			continue
		}
		raw, encErr := codec.Encode(v)
		if encErr != nil {
			continue
		}
		susp.Values[strconv.Itoa(int(id))] = raw
	}
	for id, meta := range rs.status.snapshot() {
		if meta.Phase.terminal() {
			susp.Statuses[strconv.Itoa(int(id))] = string(meta.Phase)
		}
	}
	return susp
}
