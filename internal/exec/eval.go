package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/value"
)

// getter resolves an operand node to its value: at the top level by
// awaiting the node's cell, inside a lambda body by recursive local
// evaluation with the bound parameter substituted.
type getter func(id ir.NodeID) (value.Value, error)

// apply evaluates one inline transform against its operands. It
// pulls operands through get only when the transform's semantics demand
// them, which is what keeps a false guard from ever firing its guarded
// producer and an untaken branch from evaluating its body.
func (rs *runState) apply(ctx context.Context, n ir.Node, get getter, local map[ir.NodeID]value.Value) (value.Value, error) {
	switch t := n.(type) {
	case *ir.LiteralTransform:
		return t.Value, nil

	case *ir.MergeTransform:
		l, err := get(t.Left)
		if err != nil {
			return nil, err
		}
		r, err := get(t.Right)
		if err != nil {
			return nil, err
		}
		return value.Merge(l, r)

	case *ir.ProjectTransform:
		src, err := get(t.Source)
		if err != nil {
			return nil, err
		}
		return value.ProjectValue(src, t.Fields)

	case *ir.FieldAccessTransform:
		src, err := get(t.Source)
		if err != nil {
			return nil, err
		}
		return value.FieldAccessValue(src, t.Field)

	case *ir.UnwrapTransform:
		src, err := get(t.Source)
		if err != nil {
			return nil, err
		}
		if u, ok := src.(*value.VUnion); ok {
			return u.Payload, nil
		}
		return src, nil

	case *ir.ConditionalTransform:
		cond, err := rs.boolOperand(get, t.Cond)
		if err != nil {
			return nil, err
		}
		if cond {
			return get(t.Then)
		}
		return get(t.Else)

	case *ir.BranchTransform:
		for _, arm := range t.Cases {
			cond, err := rs.boolOperand(get, arm.Cond)
			if err != nil {
				return nil, err
			}
			if cond {
				return get(arm.Body)
			}
		}
		return get(t.Otherwise)

	case *ir.MatchTransform:
		return rs.applyMatch(t, get)

	case *ir.AndTransform:
		l, err := rs.boolOperand(get, t.Left)
		if err != nil {
			return nil, err
		}
		if !l {
			return value.VBool(false), nil
		}
		r, err := rs.boolOperand(get, t.Right)
		if err != nil {
			return nil, err
		}
		return value.VBool(r), nil

	case *ir.OrTransform:
		l, err := rs.boolOperand(get, t.Left)
		if err != nil {
			return nil, err
		}
		if l {
			return value.VBool(true), nil
		}
		r, err := rs.boolOperand(get, t.Right)
		if err != nil {
			return nil, err
		}
		return value.VBool(r), nil

	case *ir.NotTransform:
		b, err := rs.boolOperand(get, t.Operand)
		if err != nil {
			return nil, err
		}
		return value.VBool(!b), nil

	case *ir.CompareTransform:
		l, err := get(t.Left)
		if err != nil {
			return nil, err
		}
		r, err := get(t.Right)
		if err != nil {
			return nil, err
		}
		return value.Compare(t.Op, l, r)

	case *ir.GuardTransform:
		cond, err := rs.boolOperand(get, t.Cond)
		if err != nil {
			return nil, err
		}
		typ := rs.optionalTypeOf(t.ID())
		if !cond {
			return &value.VOptional{Present: false, Typ: typ}, nil
		}
		v, err := get(t.Value)
		if err != nil {
			return nil, err
		}
		return &value.VOptional{Present: true, Inner: v, Typ: typ}, nil

	case *ir.CoalesceTransform:
		l, err := get(t.Left)
		if err != nil {
			return nil, err
		}
		if opt, ok := l.(*value.VOptional); ok {
			if opt.Present {
				return opt.Inner, nil
			}
			return get(t.Right)
		}
		return l, nil

	case *ir.ListLiteralTransform:
		elems := make([]value.Value, len(t.Elements))
		for i, el := range t.Elements {
			v, err := get(el)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return &value.VList{Elements: elems, Typ: rs.listTypeOf(t.ID(), elems)}, nil

	case *ir.RecordBuildTransform:
		fields := make([]value.VField, len(t.Fields))
		typFields := make([]value.Field, len(t.Fields))
		for i, name := range t.Fields {
			v, err := get(t.Values[i])
			if err != nil {
				return nil, err
			}
			fields[i] = value.VField{Name: name, Value: v}
			typFields[i] = value.Field{Name: name, Type: v.Type()}
		}
		return &value.VRecord{Fields: fields, Typ: value.NewRecord(typFields...)}, nil

	case *ir.StringInterpolationTransform:
		var sb strings.Builder
		for _, p := range t.Parts {
			if !p.IsExpr {
				sb.WriteString(p.Literal)
				continue
			}
			v, err := get(p.Node)
			if err != nil {
				return nil, err
			}
			sb.WriteString(displayString(v))
		}
		return value.VString(sb.String()), nil

	case *ir.MapTransform:
		list, err := rs.listOperand(get, t.List)
		if err != nil {
			return nil, err
		}
		elems := make([]value.Value, len(list.Elements))
		for i, el := range list.Elements {
			v, err := rs.evalLocal(rs.lambdaCtx(), t.Body, extendLocal(local, t.ParamID, el))
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return &value.VList{Elements: elems, Typ: rs.listTypeOf(t.ID(), elems)}, nil

	case *ir.FilterTransform:
		list, err := rs.listOperand(get, t.List)
		if err != nil {
			return nil, err
		}
		var elems []value.Value
		for _, el := range list.Elements {
			keep, err := rs.localBool(t.Body, extendLocal(local, t.ParamID, el))
			if err != nil {
				return nil, err
			}
			if keep {
				elems = append(elems, el)
			}
		}
		return &value.VList{Elements: elems, Typ: list.Typ}, nil

	case *ir.AllTransform:
		list, err := rs.listOperand(get, t.List)
		if err != nil {
			return nil, err
		}
		for _, el := range list.Elements {
			ok, err := rs.localBool(t.Body, extendLocal(local, t.ParamID, el))
			if err != nil {
				return nil, err
			}
			if !ok {
				return value.VBool(false), nil
			}
		}
		return value.VBool(true), nil

	case *ir.AnyTransform:
		list, err := rs.listOperand(get, t.List)
		if err != nil {
			return nil, err
		}
		for _, el := range list.Elements {
			ok, err := rs.localBool(t.Body, extendLocal(local, t.ParamID, el))
			if err != nil {
				return nil, err
			}
			if ok {
				return value.VBool(true), nil
			}
		}
		return value.VBool(false), nil

	case *ir.InputNode:
		// A lambda parameter placeholder reached without a binding, or an
		// unfilled pipeline input reached through local evaluation.
		return nil, fmt.Errorf("exec: input %q has no value", t.Name)

	case *ir.ModuleCallNode:
		return nil, fmt.Errorf("exec: module call %q cannot be evaluated inside a lambda body", t.Module)

	default:
		return nil, fmt.Errorf("exec: unknown transform %T", n)
	}
}

// applyMatch evaluates a compiled match: cases are tested in source
// order against the scrutinee; a guarded case whose guard is false falls
// through to the next case. Only the selected arm's body node is
// ever demanded.
func (rs *runState) applyMatch(t *ir.MatchTransform, get getter) (value.Value, error) {
	scrut, err := get(t.Scrutinee)
	if err != nil {
		return nil, err
	}
	for _, arm := range t.Cases {
		pat := arm.Pattern
		if gp, ok := pat.(*ast.GuardedPattern); ok {
			pat = gp.Inner
		}
		if !rs.matchPattern(pat, scrut) {
			continue
		}
		if arm.HasGuard {
			ok, err := rs.boolOperand(get, arm.Guard)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		return get(arm.Body)
	}
	// Exhaustiveness is enforced at compile time (TC009); reaching here
	// means the scrutinee's runtime shape escaped the checked variants.
	return nil, fmt.Errorf("exec: no match case covers value %s", scrut)
}

// matchPattern tests a value against a pattern, discriminating a union
// scrutinee by its payload's structure rather than a variant tag.
func (rs *runState) matchPattern(p ast.Pattern, v value.Value) bool {
	if u, ok := v.(*value.VUnion); ok {
		v = u.Payload
	}
	switch pat := p.(type) {
	case *ast.WildcardPattern, *ast.BindPattern, *ast.OtherwisePattern:
		return true
	case *ast.LiteralPattern:
		lit := literalPatternValue(pat)
		return lit != nil && lit.Equal(v)
	case *ast.TypePattern:
		t, ok := rs.dag.PatternTypes[pat]
		if !ok {
			return false
		}
		return value.Conforms(v, t)
	case *ast.RecordPattern:
		rec, ok := v.(*value.VRecord)
		if !ok {
			return false
		}
		for _, f := range pat.Fields {
			fv, ok := rec.FieldValue(f.Name)
			if !ok || !rs.matchPattern(f.Pattern, fv) {
				return false
			}
		}
		return true
	case *ast.GuardedPattern:
		return rs.matchPattern(pat.Inner, v)
	default:
		return false
	}
}

func literalPatternValue(p *ast.LiteralPattern) value.Value {
	switch p.Kind {
	case ast.IntLit:
		if n, ok := p.Value.(int64); ok {
			return value.VInt(n)
		}
	case ast.FloatLit:
		if f, ok := p.Value.(float64); ok {
			return value.VFloat(f)
		}
	case ast.StringLit:
		if s, ok := p.Value.(string); ok {
			return value.VString(s)
		}
	case ast.BoolLit:
		if b, ok := p.Value.(bool); ok {
			return value.VBool(b)
		}
	}
	return nil
}

// evalLocal evaluates a lambda-body node for one element binding. Nodes
// outside the lambda's cone resolve through their shared cells, so an
// expensive outer value referenced by the body is still computed once.
func (rs *runState) evalLocal(ctx context.Context, id ir.NodeID, local map[ir.NodeID]value.Value) (value.Value, error) {
	if v, ok := local[id]; ok {
		return v, nil
	}
	if !rs.lambdaInternal[id] {
		return rs.awaitCell(ctx, id)
	}
	dn, ok := rs.dag.Data[id]
	if !ok {
		return nil, fmt.Errorf("exec: unknown node %d", id)
	}
	return rs.apply(ctx, dn.Node, func(op ir.NodeID) (value.Value, error) {
		return rs.evalLocal(ctx, op, local)
	}, local)
}

func (rs *runState) localBool(id ir.NodeID, local map[ir.NodeID]value.Value) (bool, error) {
	v, err := rs.evalLocal(rs.lambdaCtx(), id, local)
	if err != nil {
		return false, err
	}
	b, ok := v.(value.VBool)
	if !ok {
		return false, fmt.Errorf("exec: expected Boolean, got %s", v.Type())
	}
	return bool(b), nil
}

func extendLocal(local map[ir.NodeID]value.Value, id ir.NodeID, v value.Value) map[ir.NodeID]value.Value {
	out := make(map[ir.NodeID]value.Value, len(local)+1)
	for k, lv := range local {
		out[k] = lv
	}
	out[id] = v
	return out
}

func (rs *runState) boolOperand(get getter, id ir.NodeID) (bool, error) {
	v, err := get(id)
	if err != nil {
		return false, err
	}
	b, ok := v.(value.VBool)
	if !ok {
		return false, fmt.Errorf("exec: expected Boolean, got %s", v.Type())
	}
	return bool(b), nil
}

func (rs *runState) listOperand(get getter, id ir.NodeID) (*value.VList, error) {
	v, err := get(id)
	if err != nil {
		return nil, err
	}
	l, ok := v.(*value.VList)
	if !ok {
		return nil, fmt.Errorf("exec: expected List, got %s", v.Type())
	}
	return l, nil
}

func (rs *runState) optionalTypeOf(id ir.NodeID) *value.Optional {
	if dn, ok := rs.dag.Data[id]; ok {
		if ot, ok := dn.Type.(*value.Optional); ok {
			return ot
		}
		return &value.Optional{Inner: dn.Type}
	}
	return &value.Optional{Inner: value.NothingType}
}

func (rs *runState) listTypeOf(id ir.NodeID, elems []value.Value) *value.List {
	if dn, ok := rs.dag.Data[id]; ok {
		if lt, ok := dn.Type.(*value.List); ok {
			return lt
		}
	}
	if len(elems) > 0 {
		return &value.List{Elem: elems[0].Type()}
	}
	return &value.List{Elem: value.NothingType}
}

// displayString renders a value for string interpolation: strings
// interpolate raw, everything else uses its display form.
func displayString(v value.Value) string {
	if s, ok := v.(value.VString); ok {
		return string(s)
	}
	return v.String()
}
