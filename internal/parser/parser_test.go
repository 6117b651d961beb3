package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/internal/ast"
)

func TestParseUppercasePipeline(t *testing.T) {
	src := "in text: String\nresult = Uppercase(text)\nout result\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	require.Len(t, f.Inputs, 1)
	require.Equal(t, "text", f.Inputs[0].Name)
	require.Len(t, f.Assigns, 1)
	call, ok := f.Assigns[0].Value.(*ast.ModuleCall)
	require.True(t, ok)
	require.Equal(t, "Uppercase", call.Module)
	require.Len(t, f.Outputs, 1)
	require.Equal(t, "result", f.Outputs[0].Name)
}

func TestParseParallelFanOutFanIn(t *testing.T) {
	src := "in s: String\na = Trim(s)\nb = Upper(s)\nc = Concat(a, b)\nout c\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	require.Len(t, f.Assigns, 3)
	merge, ok := f.Assigns[2].Value.(*ast.ModuleCall)
	require.True(t, ok)
	require.Equal(t, "Concat", merge.Module)
	require.Len(t, merge.Args, 2)
}

func TestParseGuardAndCoalesce(t *testing.T) {
	src := "in s: String\nx = Heavy(s) when length(s) > 3\nresult = x ?? \"default\"\nout result\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	guard, ok := f.Assigns[0].Value.(*ast.Guard)
	require.True(t, ok)
	_, ok = guard.Value.(*ast.ModuleCall)
	require.True(t, ok)
	cmp, ok := guard.Cond.(*ast.CompareOp)
	require.True(t, ok)
	require.Equal(t, ">", cmp.Op)

	coalesce, ok := f.Assigns[1].Value.(*ast.Coalesce)
	require.True(t, ok)
	lit, ok := coalesce.Right.(*ast.Literal)
	require.True(t, ok)
	require.Equal(t, "default", lit.Value)
}

func TestParseModuleCallWithOptions(t *testing.T) {
	src := "in x: Int\nresult = Flaky(x) with retry: 3, delay: 1ms, backoff: exponential, fallback: \"default\"\nout result\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	call, ok := f.Assigns[0].Value.(*ast.ModuleCall)
	require.True(t, ok)
	require.Len(t, call.Options, 4)
	retry, ok := call.OptionByKey("retry")
	require.True(t, ok)
	lit, ok := retry.(*ast.Literal)
	require.True(t, ok)
	require.EqualValues(t, 3, lit.Value)
}

func TestParseIfAndBranch(t *testing.T) {
	src := "in n: Int\n" +
		"a = if n > 0 then \"pos\" else \"nonpos\"\n" +
		"b = branch { n > 0 -> \"pos\", n < 0 -> \"neg\", otherwise -> \"zero\" }\n" +
		"out a\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	ifExpr, ok := f.Assigns[0].Value.(*ast.If)
	require.True(t, ok)
	require.NotNil(t, ifExpr.Cond)

	branch, ok := f.Assigns[1].Value.(*ast.Branch)
	require.True(t, ok)
	require.Len(t, branch.Cases, 2)
	require.NotNil(t, branch.Otherwise)
}

func TestParseBranchRequiresOtherwise(t *testing.T) {
	src := "in n: Int\nb = branch { n > 0 -> \"pos\" }\nout b\n"
	_, err := Parse(src, "test.flow")
	require.Error(t, err)
}

func TestParseRecordMergeProjectFieldAccess(t *testing.T) {
	src := "in r: { a: Int, b: Int }\n" +
		"m = r + { c: 1 }\n" +
		"p = m[a, c]\n" +
		"f = m.a\n" +
		"out f\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	_, ok := f.Assigns[0].Value.(*ast.Merge)
	require.True(t, ok)
	proj, ok := f.Assigns[1].Value.(*ast.Projection)
	require.True(t, ok)
	require.Equal(t, []string{"a", "c"}, proj.Fields)
	access, ok := f.Assigns[2].Value.(*ast.FieldAccess)
	require.True(t, ok)
	require.Equal(t, "a", access.Field)
}

func TestParseAnnotationAttachesToInput(t *testing.T) {
	src := "@example(\"hello\")\nin text: String\nout text\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	require.Len(t, f.Inputs[0].Annotations, 1)
	ann, ok := f.Inputs[0].AnnotationByName("example")
	require.True(t, ok)
	require.Equal(t, "example", ann.Name)
}

func TestParseDuplicateExampleAnnotationFails(t *testing.T) {
	src := "@example(\"a\")\n@example(\"b\")\nin text: String\nout text\n"
	_, err := Parse(src, "test.flow")
	require.Error(t, err)
}

func TestParseUseAndQualifiedCall(t *testing.T) {
	src := "use text.ops as ops\nin s: String\nr = ops.Upper(s)\nout r\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	require.Len(t, f.Uses, 1)
	require.Equal(t, "text.ops", f.Uses[0].Path)
	require.Equal(t, "ops", f.Uses[0].Alias)
	call, ok := f.Assigns[0].Value.(*ast.ModuleCall)
	require.True(t, ok)
	require.Equal(t, "ops.Upper", call.Module)
}

func TestParseStringInterpolation(t *testing.T) {
	src := "in name: String\ngreeting = \"hello ${name}!\"\nout greeting\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	interp, ok := f.Assigns[0].Value.(*ast.StringInterpolation)
	require.True(t, ok)
	require.Len(t, interp.Parts, 3)
	require.Equal(t, "hello ", interp.Parts[0].Literal)
	variable, ok := interp.Parts[1].Expr.(*ast.Variable)
	require.True(t, ok)
	require.Equal(t, "name", variable.Name)
	require.Equal(t, "!", interp.Parts[2].Literal)
}

func TestParseListAndRecordLiterals(t *testing.T) {
	src := "xs = [1, 2, 3]\nr = { a: 1, b: \"x\" }\nout xs\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	list, ok := f.Assigns[0].Value.(*ast.ListLiteral)
	require.True(t, ok)
	require.Len(t, list.Elements, 3)
	rec, ok := f.Assigns[1].Value.(*ast.RecordLiteral)
	require.True(t, ok)
	require.Len(t, rec.Fields, 2)
}

func TestParseLambdaAsMapArgument(t *testing.T) {
	src := "in xs: List(Int)\nys = map(xs, (x) => x + 1)\nout ys\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	call, ok := f.Assigns[0].Value.(*ast.ModuleCall)
	require.True(t, ok)
	require.Equal(t, "map", call.Module)
	require.Len(t, call.Args, 2)
	lambda, ok := call.Args[1].Value.(*ast.Lambda)
	require.True(t, ok)
	require.Len(t, lambda.Params, 1)
	require.Equal(t, "x", lambda.Params[0].Name)
}

func TestParseMatchOverUnion(t *testing.T) {
	src := "in r: { code: Int } | String\n" +
		"s = match r {\n" +
		"  p: { code: Int } -> \"struct\"\n" +
		"  s: String -> s\n" +
		"}\n" +
		"out s\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	union, ok := f.Inputs[0].Type.(*ast.UnionType)
	require.True(t, ok)
	require.Len(t, union.Variants, 2)
	match, ok := f.Assigns[0].Value.(*ast.Match)
	require.True(t, ok)
	require.Len(t, match.Cases, 2)
	tp, ok := match.Cases[0].Pattern.(*ast.TypePattern)
	require.True(t, ok)
	require.Equal(t, "p", tp.Bind)
}

func TestParseTypeErrorHasNoPartialAST(t *testing.T) {
	src := "in n Int\nout n\n" // missing colon
	f, err := Parse(src, "test.flow")
	require.Error(t, err)
	require.Nil(t, f)
}

func TestParseDurationAndRateLiterals(t *testing.T) {
	src := "in x: Int\nr = Flaky(x) with timeout: 250ms, throttle: 100/s\nout r\n"
	f, err := Parse(src, "test.flow")
	require.NoError(t, err)
	call := f.Assigns[0].Value.(*ast.ModuleCall)
	timeout, ok := call.OptionByKey("timeout")
	require.True(t, ok)
	require.IsType(t, &ast.Literal{}, timeout)
}
