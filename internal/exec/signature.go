package exec

import (
	"sync"
	"time"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/spi"
	"github.com/flowrun/flowrun/internal/value"
)

// Status is the overall outcome of a run.
type Status string

const (
	Completed Status = "completed"
	Suspended Status = "suspended"
	Failed    Status = "failed"
)

// Phase is a module node's position in its lifecycle state machine. Fired,
// Timed, and Failed are terminal.
type Phase string

const (
	Unfired Phase = "unfired"
	Running Phase = "running"
	Fired   Phase = "fired"
	Timed   Phase = "timed"
	PhaseFailed Phase = "failed"
)

func (p Phase) terminal() bool {
	return p == Fired || p == Timed || p == PhaseFailed
}

// NodeMeta is one module node's per-run metadata: its final phase, its
// execution latency (input-wait excluded), and an optional context string
// the module attached to its result.
type NodeMeta struct {
	Phase   Phase
	Latency time.Duration
	Err     *errors.Report
	Context string
}

// statusMap is the per-run status table: one entry per module node,
// written by the node's own task, by a resumption's preset statuses, and
// by the cancellation sweep.
type statusMap struct {
	mu sync.Mutex
	m  map[ir.NodeID]NodeMeta
}

func newStatusMap() *statusMap {
	return &statusMap{m: map[ir.NodeID]NodeMeta{}}
}

func (s *statusMap) init(id ir.NodeID, p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = NodeMeta{Phase: p}
}

// transition advances id's phase. A terminal phase never moves again; the
// state machine has no backward edges, so a second terminal write is
// dropped rather than overwriting what the owning task already recorded.
func (s *statusMap) transition(id ir.NodeID, meta NodeMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[id]; ok && cur.Phase.terminal() {
		return
	}
	s.m[id] = meta
}

func (s *statusMap) get(id ir.NodeID) (NodeMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.m[id]
	return meta, ok
}

func (s *statusMap) snapshot() map[ir.NodeID]NodeMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ir.NodeID]NodeMeta, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// DataSignature is the result envelope of a run: status, outputs,
// the inputs echo, per-module metadata, and — for a suspended run — the
// snapshot needed to resume it.
type DataSignature struct {
	ExecutionID  string
	PipelineHash string
	Resumptions  int
	Status       Status

	Inputs  map[string]value.Value
	Outputs map[string]value.Value

	// Computed carries the values of named intermediate nodes when the
	// run was started with CaptureComputed.
	Computed map[string]value.Value

	MissingInputs []string
	Suspended     *spi.SuspendedExecution

	// Errors lists every node failure observed during the run, including
	// failures that on_error or a fallback converted into values.
	Errors []*errors.Report

	// Nodes maps each module node's display name (bound variable name,
	// falling back to the module name) to its final metadata.
	Nodes map[string]NodeMeta
}
