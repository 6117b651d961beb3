package ir

import (
	"fmt"
	"time"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/dtree"
	"github.com/flowrun/flowrun/internal/typecheck"
	"github.com/flowrun/flowrun/internal/value"
)

// hofNames mirrors internal/typecheck's reserved higher-order names.
var hofNames = map[string]bool{"map": true, "filter": true, "all": true, "any": true}

// Builder walks a typed program and produces a Graph. Construct one per
// compilation via Build.
type Builder struct {
	tp       *typecheck.TypedProgram
	g        *Graph
	nextID   NodeID
	bindings map[string]NodeID
}

// Build compiles a fully type-checked program into an IR graph. Callers
// must only invoke Build on a TypedProgram that typecheck.Check returned
// without error.
func Build(tp *typecheck.TypedProgram) (*Graph, error) {
	b := &Builder{
		tp: tp,
		g: &Graph{
			Nodes:        map[NodeID]Node{},
			Types:        map[NodeID]value.Type{},
			Bindings:     map[string]NodeID{},
			Outputs:      map[string]NodeID{},
			Inputs:       map[string]NodeID{},
			PatternTypes: map[*ast.TypePattern]value.Type{},
		},
		bindings: map[string]NodeID{},
	}

	for _, in := range tp.File.Inputs {
		id := b.newNode(func(id NodeID) Node {
			return &InputNode{base: base{id}, Name: in.Name, Type: b.inputType(in.Name)}
		}, b.inputType(in.Name))
		b.bindings[in.Name] = id
		b.g.Inputs[in.Name] = id
	}

	for _, a := range tp.File.Assigns {
		id := b.buildExpr(a.Value)
		b.bindings[a.Name] = id
	}

	for _, o := range tp.File.Outputs {
		id, ok := b.bindings[o.Name]
		if !ok {
			return nil, fmt.Errorf("ir: output %q has no binding (typecheck should have caught this)", o.Name)
		}
		b.g.Outputs[o.Name] = id
	}

	b.g.Bindings = b.bindings
	return b.g, nil
}

func (b *Builder) inputType(name string) value.Type {
	if t, ok := b.tp.InputTypes[name]; ok {
		return t
	}
	return value.NothingType
}

func (b *Builder) newNode(make func(id NodeID) Node, t value.Type) NodeID {
	id := b.nextID
	b.nextID++
	n := make(id)
	b.g.Nodes[id] = n
	b.g.Types[id] = t
	b.g.Order = append(b.g.Order, id)
	return id
}

func (b *Builder) buildExpr(e ast.Expr) NodeID {
	t := b.tp.TypeOf(e)
	switch n := e.(type) {
	case *ast.Variable:
		if id, ok := b.bindings[n.Name]; ok {
			return id
		}
		return b.newNode(func(id NodeID) Node { return &LiteralTransform{base: base{id}, Value: nil} }, t)

	case *ast.Literal:
		v := literalToValue(n)
		return b.newNode(func(id NodeID) Node { return &LiteralTransform{base: base{id}, Value: v} }, t)

	case *ast.ListLiteral:
		elems := make([]NodeID, len(n.Elements))
		for i, el := range n.Elements {
			elems[i] = b.buildExpr(el)
		}
		return b.newNode(func(id NodeID) Node { return &ListLiteralTransform{base: base{id}, Elements: elems} }, t)

	case *ast.RecordLiteral:
		names := make([]string, len(n.Fields))
		vals := make([]NodeID, len(n.Fields))
		for i, f := range n.Fields {
			names[i] = f.Name
			vals[i] = b.buildExpr(f.Value)
		}
		return b.newNode(func(id NodeID) Node { return &RecordBuildTransform{base: base{id}, Fields: names, Values: vals} }, t)

	case *ast.FieldAccess:
		src := b.buildExpr(n.Record)
		return b.newNode(func(id NodeID) Node { return &FieldAccessTransform{base: base{id}, Source: src, Field: n.Field} }, t)

	case *ast.Projection:
		src := b.buildExpr(n.Record)
		return b.newNode(func(id NodeID) Node { return &ProjectTransform{base: base{id}, Source: src, Fields: n.Fields} }, t)

	case *ast.Merge:
		l := b.buildExpr(n.Left)
		r := b.buildExpr(n.Right)
		return b.newNode(func(id NodeID) Node { return &MergeTransform{base: base{id}, Left: l, Right: r} }, t)

	case *ast.ModuleCall:
		if hofNames[n.Module] {
			return b.buildHOF(n, t)
		}
		return b.buildModuleCall(n, t)

	case *ast.If:
		cond := b.buildExpr(n.Cond)
		then := b.buildExpr(n.Then)
		els := b.buildExpr(n.Else)
		return b.newNode(func(id NodeID) Node { return &ConditionalTransform{base: base{id}, Cond: cond, Then: then, Else: els} }, t)

	case *ast.Branch:
		cases := make([]BranchArm, len(n.Cases))
		for i, cs := range n.Cases {
			cases[i] = BranchArm{Cond: b.buildExpr(cs.Cond), Body: b.buildExpr(cs.Body)}
		}
		other := b.buildExpr(n.Otherwise)
		return b.newNode(func(id NodeID) Node { return &BranchTransform{base: base{id}, Cases: cases, Otherwise: other} }, t)

	case *ast.Match:
		return b.buildMatch(n, t)

	case *ast.Guard:
		val := b.buildExpr(n.Value)
		cond := b.buildExpr(n.Cond)
		return b.newNode(func(id NodeID) Node { return &GuardTransform{base: base{id}, Value: val, Cond: cond} }, t)

	case *ast.Coalesce:
		l := b.buildExpr(n.Left)
		r := b.buildExpr(n.Right)
		return b.newNode(func(id NodeID) Node { return &CoalesceTransform{base: base{id}, Left: l, Right: r} }, t)

	case *ast.BoolOp:
		left := b.buildExpr(n.Left)
		switch n.Kind {
		case ast.OpAnd:
			right := b.buildExpr(n.Right)
			return b.newNode(func(id NodeID) Node { return &AndTransform{base: base{id}, Left: left, Right: right} }, t)
		case ast.OpOr:
			right := b.buildExpr(n.Right)
			return b.newNode(func(id NodeID) Node { return &OrTransform{base: base{id}, Left: left, Right: right} }, t)
		default:
			return b.newNode(func(id NodeID) Node { return &NotTransform{base: base{id}, Operand: left} }, t)
		}

	case *ast.CompareOp:
		l := b.buildExpr(n.Left)
		r := b.buildExpr(n.Right)
		return b.newNode(func(id NodeID) Node { return &CompareTransform{base: base{id}, Op: n.Op, Left: l, Right: r} }, t)

	case *ast.StringInterpolation:
		parts := make([]InterpPart, len(n.Parts))
		for i, p := range n.Parts {
			if p.Expr != nil {
				parts[i] = InterpPart{Node: b.buildExpr(p.Expr), IsExpr: true}
			} else {
				parts[i] = InterpPart{Literal: p.Literal}
			}
		}
		return b.newNode(func(id NodeID) Node { return &StringInterpolationTransform{base: base{id}, Parts: parts} }, t)

	case *ast.Lambda:
		// Only reachable as a HOF argument, handled in buildHOF; typecheck
		// rejects a bare lambda before IR is ever built.
		return b.buildExpr(n.Body)

	default:
		return b.newNode(func(id NodeID) Node { return &LiteralTransform{base: base{id}, Value: nil} }, t)
	}
}

func (b *Builder) buildHOF(mc *ast.ModuleCall, t value.Type) NodeID {
	list := b.buildExpr(mc.Args[0].Value)
	lambda := mc.Args[1].Value.(*ast.Lambda)
	param := lambda.Params[0].Name

	prev, had := b.bindings[param]
	elemType := value.NothingType
	if lt, ok := b.g.NodeType(list).(*value.List); ok {
		elemType = lt.Elem
	}
	placeholder := b.newNode(func(id NodeID) Node { return &InputNode{base: base{id}, Name: param, Type: elemType} }, elemType)
	b.bindings[param] = placeholder
	body := b.buildExpr(lambda.Body)
	if had {
		b.bindings[param] = prev
	} else {
		delete(b.bindings, param)
	}

	switch mc.Module {
	case "map":
		return b.newNode(func(id NodeID) Node { return &MapTransform{base: base{id}, List: list, Param: param, ParamID: placeholder, Body: body} }, t)
	case "filter":
		return b.newNode(func(id NodeID) Node { return &FilterTransform{base: base{id}, List: list, Param: param, ParamID: placeholder, Body: body} }, t)
	case "all":
		return b.newNode(func(id NodeID) Node { return &AllTransform{base: base{id}, List: list, Param: param, ParamID: placeholder, Body: body} }, t)
	default: // "any"
		return b.newNode(func(id NodeID) Node { return &AnyTransform{base: base{id}, List: list, Param: param, ParamID: placeholder, Body: body} }, t)
	}
}

func (b *Builder) buildMatch(n *ast.Match, t value.Type) NodeID {
	scrut := b.buildExpr(n.Scrutinee)
	cases := make([]MatchArm, len(n.Cases))
	for i, cs := range n.Cases {
		pat := cs.Pattern
		var guardCond ast.Expr
		if gp, ok := pat.(*ast.GuardedPattern); ok {
			guardCond = gp.Cond
			pat = gp.Inner
		}
		b.recordPatternTypes(pat)
		saves := b.bindPattern(pat, scrut)
		arm := MatchArm{Pattern: cs.Pattern}
		if guardCond != nil {
			// The guard condition is bound in the pattern's own scope
			// (e.g. `Some(x) when x > 0`), so it must be built after
			// bindPattern and before the bindings are restored.
			arm.HasGuard, arm.Guard = true, b.buildExpr(guardCond)
		}
		arm.Body = b.buildExpr(cs.Body)
		b.restoreBindings(saves)
		cases[i] = arm
	}
	tree := dtree.NewCompiler(n.Cases).Compile()
	return b.newNode(func(id NodeID) Node { return &MatchTransform{base: base{id}, Scrutinee: scrut, Cases: cases, Tree: tree} }, t)
}

type bindSave struct {
	name string
	prev NodeID
	had  bool
}

// recordPatternTypes resolves every TypePattern reachable from pat (through
// nested RecordPattern fields) into b.g.PatternTypes, so the executor can
// test a scrutinee against it at run time without re-deriving the type
// from the AST.
func (b *Builder) recordPatternTypes(pat ast.Pattern) {
	switch p := pat.(type) {
	case *ast.TypePattern:
		b.g.PatternTypes[p] = typecheck.ResolveTypeExpr(p.Type, b.tp.TypeDefs)
	case *ast.RecordPattern:
		for _, f := range p.Fields {
			b.recordPatternTypes(f.Pattern)
		}
	case *ast.GuardedPattern:
		b.recordPatternTypes(p.Inner)
	}
}

func (b *Builder) bindPattern(pat ast.Pattern, scrutinee NodeID) []bindSave {
	switch p := pat.(type) {
	case *ast.WildcardPattern, *ast.OtherwisePattern, *ast.LiteralPattern:
		return nil

	case *ast.BindPattern:
		return b.pushBinding(p.Name, scrutinee)

	case *ast.TypePattern:
		if p.Bind == "" {
			return nil
		}
		unwrapped := b.newNode(func(id NodeID) Node {
			return &UnwrapTransform{base: base{id}, Source: scrutinee}
		}, b.g.PatternTypes[p])
		return b.pushBinding(p.Bind, unwrapped)

	case *ast.RecordPattern:
		var saves []bindSave
		for _, f := range p.Fields {
			fieldType := value.NothingType
			if rec, ok := b.g.NodeType(scrutinee).(*value.Record); ok {
				if ft, ok := rec.FieldType(f.Name); ok {
					fieldType = ft
				}
			}
			fieldNode := b.newNode(func(id NodeID) Node {
				return &FieldAccessTransform{base: base{id}, Source: scrutinee, Field: f.Name}
			}, fieldType)
			saves = append(saves, b.bindPattern(f.Pattern, fieldNode)...)
		}
		return saves

	case *ast.GuardedPattern:
		return b.bindPattern(p.Inner, scrutinee)

	default:
		return nil
	}
}

func (b *Builder) pushBinding(name string, id NodeID) []bindSave {
	prev, had := b.bindings[name]
	b.bindings[name] = id
	return []bindSave{{name: name, prev: prev, had: had}}
}

func (b *Builder) restoreBindings(saves []bindSave) {
	for _, s := range saves {
		if s.had {
			b.bindings[s.name] = s.prev
		} else {
			delete(b.bindings, s.name)
		}
	}
}

func (b *Builder) buildModuleCall(mc *ast.ModuleCall, t value.Type) NodeID {
	desc := b.tp.ModuleCalls[mc]

	named := map[string]ast.Expr{}
	var positional []ast.Expr
	for _, a := range mc.Args {
		if a.Name != "" {
			named[a.Name] = a.Value
		} else {
			positional = append(positional, a.Value)
		}
	}

	args := map[string]NodeID{}
	posIdx := 0
	if desc != nil {
		for _, param := range desc.Signature.Consumes {
			var argExpr ast.Expr
			if v, ok := named[param.Name]; ok {
				argExpr = v
			} else if posIdx < len(positional) {
				argExpr = positional[posIdx]
				posIdx++
			} else {
				continue
			}
			args[param.Name] = b.buildExpr(argExpr)
		}
	}

	opts := b.decodeOptions(mc)
	return b.newNode(func(id NodeID) Node {
		return &ModuleCallNode{base: base{id}, Module: mc.Module, Desc: desc, Args: args, Options: opts}
	}, t)
}

func (b *Builder) decodeOptions(mc *ast.ModuleCall) ModuleOptions {
	var opts ModuleOptions
	for _, o := range mc.Options {
		switch o.Key {
		case "retry":
			if n, ok := intLiteral(o.Value); ok {
				opts.HasRetry, opts.Retry = true, n
			}
		case "priority":
			if n, ok := intLiteral(o.Value); ok {
				opts.HasPriority, opts.Priority = true, n
			} else if name := identifierLiteral(o.Value); name != "" {
				if n, ok := namedPriorityLevel(name); ok {
					opts.HasPriority, opts.Priority = true, n
				}
			}
		case "concurrency":
			if n, ok := intLiteral(o.Value); ok {
				opts.HasConcurrency, opts.Concurrency = true, n
			}
		case "delay":
			if d, ok := durationLiteral(o.Value); ok {
				opts.HasDelay, opts.DelayNanos = true, int64(d)
			}
		case "timeout":
			if d, ok := durationLiteral(o.Value); ok {
				opts.HasTimeout, opts.TimeoutNanos = true, int64(d)
			}
		case "backoff":
			opts.Backoff = identifierLiteral(o.Value)
		case "on_error":
			opts.OnError = identifierLiteral(o.Value)
		case "cache_backend":
			opts.CacheBackend = identifierLiteral(o.Value)
		case "cache":
			if isBool(o.Value, true) {
				opts.Cache = true
			} else if d, ok := durationLiteral(o.Value); ok {
				opts.Cache, opts.HasCacheTTL, opts.CacheTTLNanos = true, true, int64(d)
			}
		case "lazy":
			opts.Lazy = isBool(o.Value, true)
		case "throttle":
			if lit, ok := o.Value.(*ast.Literal); ok && lit.Kind == ast.RateLit {
				if r, ok := lit.Value.(ast.Rate); ok {
					opts.HasThrottle, opts.ThrottleCount, opts.ThrottleNanos = true, r.Count, int64(r.Interval)
				}
			}
		case "fallback":
			id := b.buildExpr(o.Value)
			opts.HasFallback, opts.Fallback = true, id
		}
	}
	return opts
}

func literalToValue(l *ast.Literal) value.Value {
	switch l.Kind {
	case ast.IntLit:
		if n, ok := l.Value.(int64); ok {
			return value.VInt(n)
		}
	case ast.FloatLit:
		if f, ok := l.Value.(float64); ok {
			return value.VFloat(f)
		}
	case ast.StringLit:
		if s, ok := l.Value.(string); ok {
			return value.VString(s)
		}
	case ast.BoolLit:
		if bv, ok := l.Value.(bool); ok {
			return value.VBool(bv)
		}
	}
	return nil
}

func intLiteral(e ast.Expr) (int64, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.IntLit {
		return 0, false
	}
	n, ok := lit.Value.(int64)
	return n, ok
}

func durationLiteral(e ast.Expr) (time.Duration, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.DurationLit {
		return 0, false
	}
	d, ok := lit.Value.(time.Duration)
	return d, ok
}

// namedPriorityLevel maps the named `priority` identifiers to the same
// numeric levels internal/scheduler's Priority constants use
// (Background=0, Low=25, Normal=50, High=75, Critical=100).
func namedPriorityLevel(name string) (int64, bool) {
	switch name {
	case "background":
		return 0, true
	case "low":
		return 25, true
	case "normal":
		return 50, true
	case "high":
		return 75, true
	case "critical":
		return 100, true
	default:
		return 0, false
	}
}

func identifierLiteral(e ast.Expr) string {
	if v, ok := e.(*ast.Variable); ok {
		return v.Name
	}
	return ""
}

func isBool(e ast.Expr, want bool) bool {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.BoolLit {
		return false
	}
	bv, ok := lit.Value.(bool)
	return ok && bv == want
}
