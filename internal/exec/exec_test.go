package exec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/flowrun/flowrun/internal/dagc"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/obs"
	"github.com/flowrun/flowrun/internal/parser"
	"github.com/flowrun/flowrun/internal/resilience"
	"github.com/flowrun/flowrun/internal/spi"
	"github.com/flowrun/flowrun/internal/typecheck"
	"github.com/flowrun/flowrun/internal/value"
)

func compileDAG(t *testing.T, reg *modreg.Registry, src string) *dagc.DAG {
	t.Helper()
	f, err := parser.Parse(src, "test.flow")
	require.NoError(t, err)
	tp, err := typecheck.NewChecker(reg).Check(f)
	require.NoError(t, err)
	g, err := ir.Build(tp)
	require.NoError(t, err)
	g = ir.Optimize(g)
	d, err := dagc.Compile(g)
	require.NoError(t, err)
	return d
}

func stringModule(name string, fn func(string) string) *modreg.Descriptor {
	return &modreg.Descriptor{
		ID: modreg.Identity{Name: name, Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			v, _ := in.FieldValue("s")
			return oneField("result", value.VString(fn(string(v.(value.VString))))), nil
		},
	}
}

func oneField(name string, v value.Value) *value.VRecord {
	return &value.VRecord{
		Fields: []value.VField{{Name: name, Value: v}},
		Typ:    value.NewRecord(value.Field{Name: name, Type: v.Type()}),
	}
}

func strInput(pairs ...string) map[string]value.Value {
	in := map[string]value.Value{}
	for i := 0; i+1 < len(pairs); i += 2 {
		in[pairs[i]] = value.VString(pairs[i+1])
	}
	return in
}

// recordingListener captures lifecycle events for assertions.
type recordingListener struct {
	mu        sync.Mutex
	started   []string
	completed map[string]spi.NodeStatus
}

func newRecordingListener() *recordingListener {
	return &recordingListener{completed: map[string]spi.NodeStatus{}}
}

func (l *recordingListener) NodeStarted(_, _, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, name)
}

func (l *recordingListener) NodeCompleted(_, _, name string, status spi.NodeStatus, _ time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed[name] = status
}

func (l *recordingListener) RunCompleted(string, spi.NodeStatus) {}

func TestRunUppercasePipeline(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Uppercase", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "text", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			v, _ := in.FieldValue("text")
			return oneField("result", value.VString(upper(string(v.(value.VString))))), nil
		},
	}))
	dag := compileDAG(t, reg, "in text: String\nresult = Uppercase(text)\nout result\n")

	sig, err := New(reg).Run(context.Background(), dag, map[string]value.Value{"text": value.VString("hello")}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("HELLO"), sig.Outputs["result"])
	require.Equal(t, Fired, sig.Nodes["result"].Phase)
}

func upper(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'a' && r <= 'z' {
			out[i] = r - 32
		}
	}
	return string(out)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// Fan-out producers rendezvous on a barrier: the run only completes if
// Trim and Upper are Running at the same time.
func TestRunFanOutFanInConcurrent(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	rendezvous := func(name string, fn func(string) string) *modreg.Descriptor {
		return &modreg.Descriptor{
			ID: modreg.Identity{Name: name, Major: 1, Minor: 0},
			Signature: modreg.Signature{
				Consumes: []modreg.Param{{Name: "s", Type: value.String}},
				Produces: []modreg.Param{{Name: "result", Type: value.String}},
			},
			Kind: modreg.Effectful,
			Effect: func(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
				barrier.Done()
				barrier.Wait()
				v, _ := in.FieldValue("s")
				return oneField("result", value.VString(fn(string(v.(value.VString))))), nil
			},
		}
	}
	reg := modreg.New()
	require.NoError(t, reg.Register(rendezvous("Trim", trimSpace)))
	require.NoError(t, reg.Register(rendezvous("Upper", upper)))
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Concat", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "a", Type: value.String}, {Name: "b", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			a, _ := in.FieldValue("a")
			b, _ := in.FieldValue("b")
			return oneField("result", value.VString(string(a.(value.VString))+string(b.(value.VString)))), nil
		},
	}))

	dag := compileDAG(t, reg, "in s: String\na = Trim(s)\nb = Upper(s)\nc = Concat(a, b)\nout c\n")

	listener := newRecordingListener()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sig, err := New(reg, WithListener(listener)).Run(ctx, dag, strInput("s", " hi "), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("hi HI "), sig.Outputs["c"])
	require.Contains(t, listener.started, "a")
	require.Contains(t, listener.started, "b")
}

func guardRegistry(heavyCalls *atomic.Int32) *modreg.Registry {
	reg := modreg.New()
	_ = reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Length", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.Int}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			v, _ := in.FieldValue("s")
			return oneField("result", value.VInt(int64(len(string(v.(value.VString)))))), nil
		},
	})
	_ = reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Heavy", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			heavyCalls.Add(1)
			v, _ := in.FieldValue("s")
			return oneField("result", value.VString("heavy:"+string(v.(value.VString)))), nil
		},
	})
	return reg
}

const guardSrc = "in s: String\nx = Heavy(s) when Length(s) > 3\nresult = x ?? \"default\"\nout result\n"

func TestGuardFalseNeverFiresGuardedModule(t *testing.T) {
	var heavyCalls atomic.Int32
	reg := guardRegistry(&heavyCalls)
	dag := compileDAG(t, reg, guardSrc)

	sig, err := New(reg).Run(context.Background(), dag, strInput("s", "abc"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("default"), sig.Outputs["result"])
	require.EqualValues(t, 0, heavyCalls.Load())
	require.Equal(t, Unfired, sig.Nodes["Heavy"].Phase)
}

func TestGuardTrueFiresGuardedModuleOnce(t *testing.T) {
	var heavyCalls atomic.Int32
	reg := guardRegistry(&heavyCalls)
	dag := compileDAG(t, reg, guardSrc)

	sig, err := New(reg).Run(context.Background(), dag, strInput("s", "abcd"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("heavy:abcd"), sig.Outputs["result"])
	require.EqualValues(t, 1, heavyCalls.Load())
}

func flakyRegistry(calls *atomic.Int32, failFirst int32) *modreg.Registry {
	reg := modreg.New()
	_ = reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Flaky", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "x", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Effectful,
		Effect: func(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
			n := calls.Add(1)
			if n <= failFirst {
				return nil, errorsf("transient failure %d", n)
			}
			return oneField("result", value.VString("ok")), nil
		},
	})
	return reg
}

const flakySrc = "in x: String\nresult = Flaky(x) with retry: 3, delay: 1ms, backoff: exponential, fallback: \"default\"\nout result\n"

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	var calls atomic.Int32
	reg := flakyRegistry(&calls, 2)
	dag := compileDAG(t, reg, flakySrc)

	sig, err := New(reg).Run(context.Background(), dag, strInput("x", "v"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("ok"), sig.Outputs["result"])
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, Fired, sig.Nodes["result"].Phase)
}

func TestFallbackAfterExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	reg := flakyRegistry(&calls, 100)
	dag := compileDAG(t, reg, flakySrc)

	sig, err := New(reg).Run(context.Background(), dag, strInput("x", "v"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("default"), sig.Outputs["result"])
	require.Equal(t, PhaseFailed, sig.Nodes["result"].Phase)
	require.Equal(t, errors.RES003, sig.Nodes["result"].Err.Code)
	require.EqualValues(t, 4, calls.Load())
}

func sleepyRegistry(started chan<- struct{}) *modreg.Registry {
	reg := modreg.New()
	_ = reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Sleepy", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Effectful,
		Effect: func(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
			if started != nil {
				started <- struct{}{}
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	return reg
}

func TestCancellationPoisonsUnfilledCells(t *testing.T) {
	started := make(chan struct{}, 1)
	reg := sleepyRegistry(started)
	dag := compileDAG(t, reg, "in s: String\nr = Sleepy(s)\nmsg = \"got ${r}\"\nout msg\n")

	h, err := New(reg).RunCancellable(context.Background(), dag, strInput("s", "zzz"), RunOptions{})
	require.NoError(t, err)
	<-started
	h.Cancel()
	sig := h.Wait()

	require.Equal(t, Failed, sig.Status)
	require.Empty(t, sig.Outputs)
	var sawCancelled bool
	for _, rep := range sig.Errors {
		if rep.Code == errors.RT007 {
			sawCancelled = true
		}
	}
	require.True(t, sawCancelled)
	require.Equal(t, PhaseFailed, sig.Nodes["r"].Phase)
}

func TestModuleTimeoutMarksTimed(t *testing.T) {
	reg := sleepyRegistry(nil)
	dag := compileDAG(t, reg, "in s: String\nr = Sleepy(s) with timeout: 30ms\nout r\n")

	sig, err := New(reg).Run(context.Background(), dag, strInput("s", "zzz"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Failed, sig.Status)
	require.Equal(t, Timed, sig.Nodes["r"].Phase)
	require.Equal(t, errors.RT006, sig.Nodes["r"].Err.Code)
}

func TestMissingInputFailsWhenNotResumable(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(stringModule("Upper", upper)))
	dag := compileDAG(t, reg, "in a: String\nr = Upper(a)\nout r\n")

	_, err := New(reg).Run(context.Background(), dag, nil, RunOptions{})
	require.Error(t, err)
	rep, ok := errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.RT001, rep.Code)
}

func TestUnexpectedAndMistypedInputsRejected(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(stringModule("Upper", upper)))
	dag := compileDAG(t, reg, "in a: String\nr = Upper(a)\nout r\n")
	ex := New(reg)

	_, err := ex.Run(context.Background(), dag, map[string]value.Value{"a": value.VString("x"), "nope": value.VString("y")}, RunOptions{})
	rep, ok := errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.RT002, rep.Code)

	_, err = ex.Run(context.Background(), dag, map[string]value.Value{"a": value.VInt(1)}, RunOptions{})
	rep, ok = errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.RT003, rep.Code)
}

func TestMissingModuleFailsBeforeTaskStart(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(stringModule("Upper", upper)))
	dag := compileDAG(t, reg, "in a: String\nr = Upper(a)\nout r\n")

	_, err := New(modreg.New()).Run(context.Background(), dag, strInput("a", "x"), RunOptions{})
	require.Error(t, err)
	rep, ok := errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.MOD002, rep.Code)
}

func TestSuspendAndResumeSkipsFiredNodes(t *testing.T) {
	var calls atomic.Int32
	reg := modreg.New()
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Upper", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			calls.Add(1)
			v, _ := in.FieldValue("s")
			return oneField("result", value.VString(upper(string(v.(value.VString))))), nil
		},
	}))
	dag := compileDAG(t, reg, "in a: String\nin b: String\nra = Upper(a)\nrb = Upper(b)\nout ra\nout rb\n")
	ex := New(reg)

	sig, err := ex.Run(context.Background(), dag, strInput("a", "one"), RunOptions{Resumable: true})
	require.NoError(t, err)
	require.Equal(t, Suspended, sig.Status)
	require.Equal(t, []string{"b"}, sig.MissingInputs)
	require.Equal(t, value.VString("ONE"), sig.Outputs["ra"])
	require.NotNil(t, sig.Suspended)
	require.EqualValues(t, 1, calls.Load())

	resumed, err := ex.Resume(context.Background(), dag, *sig.Suspended, strInput("b", "two"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, resumed.Status)
	require.Equal(t, 1, resumed.Resumptions)
	require.Equal(t, value.VString("ONE"), resumed.Outputs["ra"])
	require.Equal(t, value.VString("TWO"), resumed.Outputs["rb"])
	require.EqualValues(t, 2, calls.Load())
}

func TestResumeRejectsMismatchedPipelineHash(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(stringModule("Upper", upper)))
	dag := compileDAG(t, reg, "in a: String\nr = Upper(a)\nout r\n")

	_, err := New(reg).Resume(context.Background(), dag, spi.SuspendedExecution{PipelineHash: "bogus"}, nil, RunOptions{})
	require.Error(t, err)
}

func TestCacheInvokesModuleOncePerInputHash(t *testing.T) {
	var calls atomic.Int32
	reg := modreg.New()
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Slow", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			calls.Add(1)
			v, _ := in.FieldValue("s")
			return oneField("result", v), nil
		},
	}))
	dag := compileDAG(t, reg, "in s: String\nr = Slow(s) with cache: 1min\nout r\n")

	mgr := resilience.NewManager(clockz.RealClock, nil, nil, obs.NewMemoryCache(), nil)
	ex := New(reg, WithResilience(mgr))

	first, err := ex.Run(context.Background(), dag, strInput("s", "same"), RunOptions{})
	require.NoError(t, err)
	second, err := ex.Run(context.Background(), dag, strInput("s", "same"), RunOptions{})
	require.NoError(t, err)

	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, value.ContentHash(first.Outputs["r"]), value.ContentHash(second.Outputs["r"]))
}

func TestInlineTransformPipeline(t *testing.T) {
	reg := modreg.New()
	src := "in user: { name: String, age: Int }\n" +
		"in nums: List(Int)\n" +
		"profile = user + { active: true }\n" +
		"label = \"user ${user.name}\"\n" +
		"slim = user[name]\n" +
		"size = branch { user.age > 40 -> \"senior\", otherwise -> \"junior\" }\n" +
		"bigs = filter(nums, (n) => n > 2)\n" +
		"tags = map(nums, (n) => \"n=${n}\")\n" +
		"anyBig = any(nums, (n) => n > 99)\n" +
		"out profile\nout label\nout slim\nout size\nout bigs\nout tags\nout anyBig\n"
	dag := compileDAG(t, reg, src)

	user := &value.VRecord{
		Fields: []value.VField{
			{Name: "name", Value: value.VString("ada")},
			{Name: "age", Value: value.VInt(36)},
		},
		Typ: value.NewRecord(
			value.Field{Name: "name", Type: value.String},
			value.Field{Name: "age", Type: value.Int},
		),
	}
	nums := &value.VList{
		Elements: []value.Value{value.VInt(1), value.VInt(3), value.VInt(5)},
		Typ:      &value.List{Elem: value.Int},
	}

	sig, err := New(reg).Run(context.Background(), dag, map[string]value.Value{"user": user, "nums": nums}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)

	profile := sig.Outputs["profile"].(*value.VRecord)
	active, ok := profile.FieldValue("active")
	require.True(t, ok)
	require.Equal(t, value.VBool(true), active)

	require.Equal(t, value.VString("user ada"), sig.Outputs["label"])

	slim := sig.Outputs["slim"].(*value.VRecord)
	require.Len(t, slim.Fields, 1)
	require.Equal(t, "name", slim.Fields[0].Name)

	require.Equal(t, value.VString("junior"), sig.Outputs["size"])

	bigs := sig.Outputs["bigs"].(*value.VList)
	require.Len(t, bigs.Elements, 2)

	tags := sig.Outputs["tags"].(*value.VList)
	require.Equal(t, value.VString("n=3"), tags.Elements[1])

	require.Equal(t, value.VBool(false), sig.Outputs["anyBig"])
}

func TestMatchDiscriminatesUnionStructurally(t *testing.T) {
	reg := modreg.New()
	src := "in r: { code: Int } | String\n" +
		"s = match r {\n" +
		"  e: { code: Int } -> \"code ${e.code}\",\n" +
		"  t: String -> t,\n" +
		"  otherwise -> \"?\"\n" +
		"}\n" +
		"out s\n"
	dag := compileDAG(t, reg, src)

	codeRec := &value.VRecord{
		Fields: []value.VField{{Name: "code", Value: value.VInt(404)}},
		Typ:    value.NewRecord(value.Field{Name: "code", Type: value.Int}),
	}
	unionTyp := value.NewUnion(codeRec.Typ, value.String).(*value.Union)

	ex := New(reg)
	sig, err := ex.Run(context.Background(), dag,
		map[string]value.Value{"r": &value.VUnion{VariantIdx: 0, Payload: codeRec, Typ: unionTyp}}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString("code 404"), sig.Outputs["s"])

	sig, err = ex.Run(context.Background(), dag,
		map[string]value.Value{"r": &value.VUnion{VariantIdx: 1, Payload: value.VString("plain"), Typ: unionTyp}}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, value.VString("plain"), sig.Outputs["s"])
}

func TestFailurePropagatesOnlyToConsumers(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(stringModule("Upper", upper)))
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Fail", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Effectful,
		Effect: func(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
			return nil, errorsf("boom")
		},
	}))
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Concat", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "a", Type: value.String}, {Name: "b", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			return oneField("result", value.VString("unreachable")), nil
		},
	}))

	dag := compileDAG(t, reg, "in s: String\nbad = Fail(s)\ngood = Upper(s)\nc = Concat(bad, good)\nout c\nout good\n")

	sig, err := New(reg).Run(context.Background(), dag, strInput("s", "ok"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Failed, sig.Status)
	require.Equal(t, value.VString("OK"), sig.Outputs["good"])
	require.NotContains(t, sig.Outputs, "c")
	require.Equal(t, PhaseFailed, sig.Nodes["bad"].Phase)

	var sawInputFailure bool
	for _, rep := range sig.Errors {
		if rep.Code == errors.RT008 {
			sawInputFailure = true
			require.Equal(t, "bad", rep.Data["upstream"])
		}
	}
	require.True(t, sawInputFailure)
}

func TestOnErrorSkipYieldsZeroValue(t *testing.T) {
	reg := modreg.New()
	require.NoError(t, reg.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Fail", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "s", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Effectful,
		Effect: func(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
			return nil, errorsf("boom")
		},
	}))
	dag := compileDAG(t, reg, "in s: String\nr = Fail(s) with on_error: skip\nout r\n")

	sig, err := New(reg).Run(context.Background(), dag, strInput("s", "x"), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, Completed, sig.Status)
	require.Equal(t, value.VString(""), sig.Outputs["r"])
	require.Equal(t, PhaseFailed, sig.Nodes["r"].Phase)
}

func errorsf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
