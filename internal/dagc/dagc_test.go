package dagc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/internal/ir"
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

func compile(t *testing.T, src string, reg *modreg.Registry) *DAG {
	t.Helper()
	f, err := parser.Parse(src, "test.flow")
	require.NoError(t, err)
	tp, err := typecheck.NewChecker(reg).Check(f)
	require.NoError(t, err)
	g, err := ir.Build(tp)
	require.NoError(t, err)
	ir.Optimize(g)
	d, err := Compile(g)
	require.NoError(t, err)
	return d
}

func TestCompileSimplePipeline(t *testing.T) {
	src := "in text: String\n\nresult = Uppercase(text)\n\nout result\n"
	d := compile(t, src, uppercaseRegistry())

	outID := d.Outputs["result"]
	mod, ok := d.Modules[outID]
	require.True(t, ok)
	require.Equal(t, "Uppercase", mod.Module)

	inID := mod.Consumes["text"]
	require.Contains(t, d.Data, inID)
	require.Equal(t, "text", d.Data[inID].Name)
	require.Equal(t, "text", d.Data[inID].Nicknames[outID])
}

func TestCompileTopologicalOrderRespectsDependencies(t *testing.T) {
	src := "in text: String\n\nresult = Uppercase(text)\n\nout result\n"
	d := compile(t, src, uppercaseRegistry())

	pos := map[string]int{}
	for i, id := range d.Order {
		if d.Data[id].Name != "" {
			pos[d.Data[id].Name] = i
		}
	}
	outID := d.Outputs["result"]
	var resultPos int
	for i, id := range d.Order {
		if id == outID {
			resultPos = i
		}
	}
	require.Less(t, pos["text"], resultPos)
}

func TestCompileHashIsDeterministic(t *testing.T) {
	src := "in text: String\n\nresult = Uppercase(text)\n\nout result\n"
	d1 := compile(t, src, uppercaseRegistry())
	d2 := compile(t, src, uppercaseRegistry())
	require.Equal(t, d1.Hash, d2.Hash)
	require.NotEmpty(t, d1.Hash)
}

func TestCompileHashIgnoresDeadInputs(t *testing.T) {
	a := compile(t, "in text: String\n\nresult = Uppercase(text)\n\nout result\n", uppercaseRegistry())
	b := compile(t, "in text: String\nin extra: Int\n\nresult = Uppercase(text)\n\nout result\n", uppercaseRegistry())
	// The unused `extra` input is dead-code eliminated before hashing, so
	// the hash must still match: only output-reachable shape matters.
	require.Equal(t, a.Hash, b.Hash)
}

func TestCompileNoCycleInAcyclicPipeline(t *testing.T) {
	src := "in a: {x: Int}\nin b: {y: Int}\n\nresult = a + b\n\nout result\n"
	d := compile(t, src, modreg.New())
	require.Len(t, d.Order, len(d.Data))
}
