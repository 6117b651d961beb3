package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/parser"
	"github.com/flowrun/flowrun/internal/typecheck"
	"github.com/flowrun/flowrun/internal/value"
)

func uppercaseRegistry() *modreg.Registry {
	r := modreg.New()
	_ = r.Register(&modreg.Descriptor{
		ID: modreg.Identity{Name: "Uppercase", Major: 1, Minor: 0},
		Signature: modreg.Signature{
			Consumes: []modreg.Param{{Name: "text", Type: value.String}},
			Produces: []modreg.Param{{Name: "result", Type: value.String}},
		},
		Kind: modreg.Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) { return in, nil },
	})
	return r
}

func build(t *testing.T, src string, reg *modreg.Registry) *Graph {
	t.Helper()
	f, err := parser.Parse(src, "test.flow")
	require.NoError(t, err)
	tp, err := typecheck.NewChecker(reg).Check(f)
	require.NoError(t, err)
	g, err := Build(tp)
	require.NoError(t, err)
	return g
}

func TestBuildSimplePipeline(t *testing.T) {
	src := "in text: String\n\nresult = Uppercase(text)\n\nout result\n"
	g := build(t, src, uppercaseRegistry())

	outID, ok := g.Outputs["result"]
	require.True(t, ok)
	call, ok := g.Nodes[outID].(*ModuleCallNode)
	require.True(t, ok)
	require.Equal(t, "Uppercase", call.Module)

	inID, ok := call.Args["text"]
	require.True(t, ok)
	_, ok = g.Nodes[inID].(*InputNode)
	require.True(t, ok)
}

func TestBuildVariableReferencesShareNode(t *testing.T) {
	src := "in a: Int\n\nb = a\nc = a\n\nout b\n"
	g := build(t, src, modreg.New())

	require.Equal(t, g.Bindings["a"], g.Bindings["b"])
	require.Equal(t, g.Bindings["a"], g.Bindings["c"])
}

func TestBuildMapHigherOrder(t *testing.T) {
	src := "in items: List(Int)\n\nresult = map(items, (n) => n + 1)\n\nout result\n"
	g := build(t, src, modreg.New())

	outID := g.Outputs["result"]
	mt, ok := g.Nodes[outID].(*MapTransform)
	require.True(t, ok)
	require.Equal(t, "n", mt.Param)
	_, ok = g.Nodes[mt.Body].(*CompareTransform)
	require.False(t, ok) // body is `n + 1`, not a comparison; sanity check only
}

func TestBuildModuleCallOptionsDecoded(t *testing.T) {
	src := "in text: String\n\nresult = Uppercase(text) with retry: 3, timeout: 2s\n\nout result\n"
	g := build(t, src, uppercaseRegistry())

	outID := g.Outputs["result"]
	call := g.Nodes[outID].(*ModuleCallNode)
	require.True(t, call.Options.HasRetry)
	require.Equal(t, int64(3), call.Options.Retry)
	require.True(t, call.Options.HasTimeout)
}

func TestOptimizeConstantFoldsConditional(t *testing.T) {
	src := "result = if true then 1 else 2\n\nout result\n"
	g := build(t, src, modreg.New())
	Optimize(g)

	outID := g.Outputs["result"]
	lit, ok := g.Nodes[outID].(*LiteralTransform)
	require.True(t, ok)
	require.Equal(t, value.VInt(1), lit.Value)
}

func TestOptimizeDeadCodeElimination(t *testing.T) {
	src := "in a: Int\nin b: Int\n\nused = a\nunused = b\n\nout used\n"
	g := build(t, src, modreg.New())
	before := len(g.Nodes)
	Optimize(g)
	require.Less(t, len(g.Nodes), before)

	outID := g.Outputs["used"]
	_, ok := g.Nodes[outID]
	require.True(t, ok)
}

func TestOptimizeCommonSubexpressionElimination(t *testing.T) {
	src := "in r: {x: Int}\n\na = r.x\nb = r.x\n\nout a\n"
	g := build(t, src, modreg.New())
	Optimize(g)

	require.Equal(t, g.Bindings["a"], g.Bindings["b"])
}
