package flowrun

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/obs"
	"github.com/flowrun/flowrun/internal/typecheck"
	"github.com/flowrun/flowrun/internal/value"
)

func upperModule() *ModuleDescriptor {
	return &ModuleDescriptor{
		ID: ModuleIdentity{Name: "Upper", Major: 1, Minor: 0},
		Signature: ModuleSignature{
			Consumes: []ModuleParam{{Name: "s", Type: value.String}},
			Produces: []ModuleParam{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *VRecord) (*VRecord, error) {
			v, _ := in.FieldValue("s")
			up := strings.ToUpper(string(v.(VString)))
			return &VRecord{
				Fields: []value.VField{{Name: "result", Value: VString(up)}},
				Typ:    value.NewRecord(value.Field{Name: "result", Type: value.String}),
			}, nil
		},
	}
}

func TestCompileStoreAliasRun(t *testing.T) {
	rt := New()
	require.NoError(t, rt.RegisterModule(upperModule()))

	result, err := rt.Compile("in s: String\nr = Upper(s)\nout r\n", "upper.flow")
	require.NoError(t, err)
	require.NotEmpty(t, result.Hash)

	hash := rt.Store(result.Image)
	require.Equal(t, result.Hash, hash)
	require.NoError(t, rt.Alias("upper", hash))

	sig, err := rt.Run(context.Background(), "upper", map[string]Value{"s": VString("hello")}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sig.Status)
	require.Equal(t, VString("HELLO"), sig.Outputs["r"])
	require.Equal(t, hash, sig.PipelineHash)

	// Hash lookups work as well as aliases.
	sig, err = rt.Run(context.Background(), hash, map[string]Value{"s": VString("x")}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, VString("X"), sig.Outputs["r"])
}

func TestCompileTypeErrorProducesNoDAG(t *testing.T) {
	rt := New()
	require.NoError(t, rt.RegisterModule(upperModule()))

	result, err := rt.Compile("in n: Int\nr = Upper(n)\nout r\n", "bad.flow")
	require.Nil(t, result)
	require.Error(t, err)

	var multi *typecheck.MultiError
	require.ErrorAs(t, err, &multi)
	rep, ok := errors.AsReport(multi.Errors[0])
	require.True(t, ok)
	require.Equal(t, errors.TC004, rep.Code)
	require.NotNil(t, rep.Span)
	require.Equal(t, 2, rep.Span.Start.Line)
}

func TestRunUnknownRefFails(t *testing.T) {
	rt := New()
	_, err := rt.Run(context.Background(), "ghost", nil, RunOptions{})
	require.Error(t, err)
	rep, ok := errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.STO001, rep.Code)
}

func TestSuspendPersistAndResumeThroughStore(t *testing.T) {
	rt := New()
	require.NoError(t, rt.RegisterModule(upperModule()))
	suspStore := obs.NewMemorySuspensionStore()
	rt.SetBackends(Backends{Suspension: suspStore})

	result, err := rt.Compile("in a: String\nin b: String\nra = Upper(a)\nrb = Upper(b)\nout ra\nout rb\n", "two.flow")
	require.NoError(t, err)
	rt.Store(result.Image)

	sig, err := rt.RunImage(context.Background(), result.Image, map[string]Value{"a": VString("one")}, RunOptions{Resumable: true})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, sig.Status)
	require.Equal(t, []string{"b"}, sig.MissingInputs)

	resumed, err := rt.Resume(context.Background(), *sig.Suspended, map[string]Value{"b": VString("two")}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, resumed.Status)
	require.Equal(t, VString("ONE"), resumed.Outputs["ra"])
	require.Equal(t, VString("TWO"), resumed.Outputs["rb"])
	require.Equal(t, 1, resumed.Resumptions)
}

func TestSetSchedulerBoundedStillCompletes(t *testing.T) {
	rt := New()
	require.NoError(t, rt.RegisterModule(upperModule()))
	rt.SetScheduler(SchedulerConfig{MaxConcurrency: 1})

	result, err := rt.Compile("in s: String\na = Upper(s)\nb = Upper(a)\nc = Upper(b)\nout c\n", "chain.flow")
	require.NoError(t, err)

	sig, err := rt.RunImage(context.Background(), result.Image, map[string]Value{"s": VString("hi")}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sig.Status)
	require.Equal(t, VString("HI"), sig.Outputs["c"])
}

func TestWarningsSurfaceOnCompileResult(t *testing.T) {
	rt := New()
	require.NoError(t, rt.RegisterModule(upperModule()))

	// delay without retry is a consistency warning, not an error.
	result, err := rt.Compile("in s: String\nr = Upper(s) with delay: 5ms\nout r\n", "warn.flow")
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	require.Equal(t, errors.WRN002, result.Warnings[0].Code)
}
