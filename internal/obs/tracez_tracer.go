package obs

import (
	"context"

	"github.com/zoobzio/tracez"

	"github.com/flowrun/flowrun/internal/spi"
)

// Span names, one key per observed operation.
const (
	NodeRunSpan = tracez.Key("flowrun.node.run")
)

// TracezTracer implements spi.Tracer over a single tracez.Tracer shared
// for the lifetime of a run.
type TracezTracer struct {
	tracer *tracez.Tracer
}

// NewTracezTracer constructs a TracezTracer.
func NewTracezTracer() *TracezTracer {
	return &TracezTracer{tracer: tracez.New()}
}

// Tracer returns the underlying tracez.Tracer, used by cmd/flowrun to
// drain completed spans for diagnostics.
func (t *TracezTracer) Tracer() *tracez.Tracer {
	return t.tracer
}

// Close releases the tracer's internal span buffer.
func (t *TracezTracer) Close() {
	t.tracer.Close()
}

// Start implements spi.Tracer. tags are name/value pairs applied to the
// span as tracez.Tag-keyed string attributes; an odd-length tags slice
// drops its trailing unpaired element.
func (t *TracezTracer) Start(ctx context.Context, name string, tags ...string) (context.Context, func()) {
	spanCtx, span := t.tracer.StartSpan(ctx, tracez.Key(name))
	for i := 0; i+1 < len(tags); i += 2 {
		span.SetTag(tracez.Tag(tags[i]), tags[i+1])
	}
	return spanCtx, span.Finish
}

var _ spi.Tracer = (*TracezTracer)(nil)
