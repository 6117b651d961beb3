package obs

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"

	"github.com/flowrun/flowrun/internal/spi"
)

// Hook event keys, one per observable lifecycle transition.
const (
	EventNodeStarted   = hookz.Key("flowrun.node.started")
	EventNodeCompleted = hookz.Key("flowrun.node.completed")
	EventRunCompleted  = hookz.Key("flowrun.run.completed")
)

// NodeStartedEvent is emitted via hookz when a module node begins
// executing.
type NodeStartedEvent struct {
	RunID     string
	NodeID    string
	Name      string
	Timestamp time.Time
}

// NodeCompletedEvent is emitted when a node reaches a terminal status.
type NodeCompletedEvent struct {
	RunID     string
	NodeID    string
	Name      string
	Status    spi.NodeStatus
	Latency   time.Duration
	Timestamp time.Time
}

// RunCompletedEvent is emitted once, when a run finishes (successfully,
// with a failed output, or suspended).
type RunCompletedEvent struct {
	RunID     string
	Status    spi.NodeStatus
	Timestamp time.Time
}

// HookzListener implements spi.ExecutionListener by fanning each
// lifecycle transition out through its own hookz.Hooks channel, so a
// caller can subscribe to just the transitions it cares about (e.g. only
// RunCompleted for a dashboard, or NodeCompleted for a detailed audit
// log) without filtering a single combined stream.
type HookzListener struct {
	started   *hookz.Hooks[NodeStartedEvent]
	completed *hookz.Hooks[NodeCompletedEvent]
	run       *hookz.Hooks[RunCompletedEvent]
}

// NewHookzListener constructs a HookzListener with empty hook sets.
func NewHookzListener() *HookzListener {
	return &HookzListener{
		started:   hookz.New[NodeStartedEvent](),
		completed: hookz.New[NodeCompletedEvent](),
		run:       hookz.New[RunCompletedEvent](),
	}
}

// OnNodeStarted registers a handler for EventNodeStarted.
func (l *HookzListener) OnNodeStarted(handler func(context.Context, NodeStartedEvent) error) error {
	_, err := l.started.Hook(EventNodeStarted, handler)
	return err
}

// OnNodeCompleted registers a handler for EventNodeCompleted.
func (l *HookzListener) OnNodeCompleted(handler func(context.Context, NodeCompletedEvent) error) error {
	_, err := l.completed.Hook(EventNodeCompleted, handler)
	return err
}

// OnRunCompleted registers a handler for EventRunCompleted.
func (l *HookzListener) OnRunCompleted(handler func(context.Context, RunCompletedEvent) error) error {
	_, err := l.run.Hook(EventRunCompleted, handler)
	return err
}

// NodeStarted implements spi.ExecutionListener.
func (l *HookzListener) NodeStarted(runID, nodeID, name string) {
	if l.started.Metrics().RegisteredHooks == 0 {
		return
	}
	_ = l.started.Emit(context.Background(), EventNodeStarted, NodeStartedEvent{
		RunID: runID, NodeID: nodeID, Name: name, Timestamp: time.Now(),
	})
}

// NodeCompleted implements spi.ExecutionListener.
func (l *HookzListener) NodeCompleted(runID, nodeID, name string, status spi.NodeStatus, latency time.Duration) {
	if l.completed.Metrics().RegisteredHooks == 0 {
		return
	}
	_ = l.completed.Emit(context.Background(), EventNodeCompleted, NodeCompletedEvent{
		RunID: runID, NodeID: nodeID, Name: name, Status: status, Latency: latency, Timestamp: time.Now(),
	})
}

// RunCompleted implements spi.ExecutionListener.
func (l *HookzListener) RunCompleted(runID string, status spi.NodeStatus) {
	if l.run.Metrics().RegisteredHooks == 0 {
		return
	}
	_ = l.run.Emit(context.Background(), EventRunCompleted, RunCompletedEvent{
		RunID: runID, Status: status, Timestamp: time.Now(),
	})
}

// Close releases the listener's hook channels.
func (l *HookzListener) Close() {
	l.started.Close()
	l.completed.Close()
	l.run.Close()
}

var _ spi.ExecutionListener = (*HookzListener)(nil)
