package ir

import (
	"fmt"
	"sort"

	"github.com/flowrun/flowrun/internal/value"
)

// Optimize runs constant folding, common subexpression elimination, and
// dead-code elimination over g in place, in that order. It returns g for chaining.
func Optimize(g *Graph) *Graph {
	foldConstants(g)
	eliminateCommonSubexpressions(g)
	eliminateDeadCode(g)
	return g
}

// foldConstants rewrites any node whose operands are all LiteralTransforms
// and whose operation is pure and side-effect free into a single
// LiteralTransform carrying the computed value. Folding mutates g.Nodes[id]
// in place; every consumer already references the same NodeID, so no edge
// rewiring is needed.
func foldConstants(g *Graph) {
	for _, id := range g.Order {
		n := g.Nodes[id]
		if v, ok := tryFold(g, n); ok {
			g.Nodes[id] = &LiteralTransform{base: base{id}, Value: v}
		}
	}
}

func litOf(g *Graph, id NodeID) (value.Value, bool) {
	lt, ok := g.Nodes[id].(*LiteralTransform)
	if !ok || lt.Value == nil {
		return nil, false
	}
	return lt.Value, true
}

func tryFold(g *Graph, n Node) (value.Value, bool) {
	switch t := n.(type) {
	case *AndTransform:
		l, ok1 := litOf(g, t.Left)
		r, ok2 := litOf(g, t.Right)
		if !ok1 || !ok2 {
			return nil, false
		}
		lb, lok := l.(value.VBool)
		rb, rok := r.(value.VBool)
		if !lok || !rok {
			return nil, false
		}
		return value.VBool(bool(lb) && bool(rb)), true

	case *OrTransform:
		l, ok1 := litOf(g, t.Left)
		r, ok2 := litOf(g, t.Right)
		if !ok1 || !ok2 {
			return nil, false
		}
		lb, lok := l.(value.VBool)
		rb, rok := r.(value.VBool)
		if !lok || !rok {
			return nil, false
		}
		return value.VBool(bool(lb) || bool(rb)), true

	case *NotTransform:
		v, ok := litOf(g, t.Operand)
		if !ok {
			return nil, false
		}
		b, ok := v.(value.VBool)
		if !ok {
			return nil, false
		}
		return value.VBool(!bool(b)), true

	case *CompareTransform:
		l, ok1 := litOf(g, t.Left)
		r, ok2 := litOf(g, t.Right)
		if !ok1 || !ok2 {
			return nil, false
		}
		return foldCompare(t.Op, l, r)

	case *ConditionalTransform:
		c, ok := litOf(g, t.Cond)
		if !ok {
			return nil, false
		}
		b, ok := c.(value.VBool)
		if !ok {
			return nil, false
		}
		branch := t.Else
		if bool(b) {
			branch = t.Then
		}
		return litOf(g, branch)

	default:
		return nil, false
	}
}

func foldCompare(op string, l, r value.Value) (value.Value, bool) {
	switch op {
	case "==":
		return value.VBool(l.Equal(r)), true
	case "!=":
		return value.VBool(!l.Equal(r)), true
	}
	lf, lok := numericOf(l)
	rf, rok := numericOf(r)
	if !lok || !rok {
		return nil, false
	}
	switch op {
	case "<":
		return value.VBool(lf < rf), true
	case ">":
		return value.VBool(lf > rf), true
	case "<=":
		return value.VBool(lf <= rf), true
	case ">=":
		return value.VBool(lf >= rf), true
	}
	return nil, false
}

func numericOf(v value.Value) (float64, bool) {
	switch n := v.(type) {
	case value.VInt:
		return float64(n), true
	case value.VFloat:
		return float64(n), true
	default:
		return 0, false
	}
}

// eliminateDeadCode drops every node not reachable from an output binding,
// keeping g.Order, g.Nodes, and g.Types in sync.
func eliminateDeadCode(g *Graph) {
	live := map[NodeID]bool{}
	var mark func(id NodeID)
	mark = func(id NodeID) {
		if live[id] {
			return
		}
		live[id] = true
		for _, op := range operands(g.Nodes[id]) {
			mark(op)
		}
	}
	for _, id := range g.Outputs {
		mark(id)
	}

	newOrder := make([]NodeID, 0, len(live))
	for _, id := range g.Order {
		if live[id] {
			newOrder = append(newOrder, id)
		} else {
			delete(g.Nodes, id)
			delete(g.Types, id)
		}
	}
	g.Order = newOrder

	for name, id := range g.Inputs {
		if !live[id] {
			delete(g.Inputs, name)
		}
	}
}

// eliminateCommonSubexpressions merges structurally identical nodes
// (same kind, same operand ids, same literal value) into one, rewriting
// every reference to the duplicate's id to the canonical survivor's id.
func eliminateCommonSubexpressions(g *Graph) {
	canonical := map[string]NodeID{}
	remap := map[NodeID]NodeID{}
	resolve := func(id NodeID) NodeID {
		if r, ok := remap[id]; ok {
			return r
		}
		return id
	}

	// Single pass in build order: operands always precede the node that
	// references them, so by the time we key a node every operand id it
	// mentions has already been resolved to its canonical survivor,
	// which lets transitively-equal subtrees collapse too.
	for _, id := range g.Order {
		key := structuralKey(g, id, resolve)
		if key == "" {
			continue // node kind not eligible for CSE (e.g. module calls: effectful)
		}
		if existing, ok := canonical[key]; ok {
			remap[id] = existing
			continue
		}
		canonical[key] = id
	}
	if len(remap) == 0 {
		return
	}

	for _, id := range g.Order {
		rewireOperands(g.Nodes[id], resolve)
	}
	for name, id := range g.Bindings {
		g.Bindings[name] = resolve(id)
	}
	for name, id := range g.Outputs {
		g.Outputs[name] = resolve(id)
	}

	newOrder := make([]NodeID, 0, len(g.Order))
	for _, id := range g.Order {
		if _, dup := remap[id]; dup {
			delete(g.Nodes, id)
			delete(g.Types, id)
			continue
		}
		newOrder = append(newOrder, id)
	}
	g.Order = newOrder
}

// structuralKey returns a memoization key for pure, side-effect-free nodes
// eligible for common subexpression elimination. Module calls are never
// merged: an effectful call's identity is its occurrence, not its shape.
func structuralKey(g *Graph, id NodeID, resolve func(NodeID) NodeID) string {
	n := g.Nodes[id]
	switch t := n.(type) {
	case *LiteralTransform:
		if t.Value == nil {
			return ""
		}
		return fmt.Sprintf("lit:%s", t.Value.String())
	case *FieldAccessTransform:
		return fmt.Sprintf("field:%d.%s", resolve(t.Source), t.Field)
	case *ProjectTransform:
		return fmt.Sprintf("proj:%d:%v", resolve(t.Source), t.Fields)
	case *MergeTransform:
		return fmt.Sprintf("merge:%d:%d", resolve(t.Left), resolve(t.Right))
	case *AndTransform:
		return fmt.Sprintf("and:%d:%d", resolve(t.Left), resolve(t.Right))
	case *OrTransform:
		return fmt.Sprintf("or:%d:%d", resolve(t.Left), resolve(t.Right))
	case *NotTransform:
		return fmt.Sprintf("not:%d", resolve(t.Operand))
	case *CompareTransform:
		return fmt.Sprintf("cmp:%s:%d:%d", t.Op, resolve(t.Left), resolve(t.Right))
	case *CoalesceTransform:
		return fmt.Sprintf("coalesce:%d:%d", resolve(t.Left), resolve(t.Right))
	default:
		return ""
	}
}

// Operands returns the direct operand node ids of n: everything n reads
// from to produce its own value. internal/dagc reuses this to derive DAG
// edges without re-deriving the per-node-kind operand list.
func Operands(n Node) []NodeID { return operands(n) }

// operands returns the direct operand node ids of n, used for dead-code
// reachability marking.
func operands(n Node) []NodeID {
	switch t := n.(type) {
	case *InputNode:
		return nil
	case *ModuleCallNode:
		names := make([]string, 0, len(t.Args))
		for name := range t.Args {
			names = append(names, name)
		}
		sort.Strings(names)
		ids := make([]NodeID, 0, len(names)+1)
		for _, name := range names {
			ids = append(ids, t.Args[name])
		}
		if t.Options.HasFallback {
			ids = append(ids, t.Options.Fallback)
		}
		return ids
	case *MergeTransform:
		return []NodeID{t.Left, t.Right}
	case *ProjectTransform:
		return []NodeID{t.Source}
	case *FieldAccessTransform:
		return []NodeID{t.Source}
	case *UnwrapTransform:
		return []NodeID{t.Source}
	case *ConditionalTransform:
		return []NodeID{t.Cond, t.Then, t.Else}
	case *BranchTransform:
		ids := []NodeID{t.Otherwise}
		for _, c := range t.Cases {
			ids = append(ids, c.Cond, c.Body)
		}
		return ids
	case *MatchTransform:
		ids := []NodeID{t.Scrutinee}
		for _, c := range t.Cases {
			if c.HasGuard {
				ids = append(ids, c.Guard)
			}
			ids = append(ids, c.Body)
		}
		return ids
	case *AndTransform:
		return []NodeID{t.Left, t.Right}
	case *OrTransform:
		return []NodeID{t.Left, t.Right}
	case *NotTransform:
		return []NodeID{t.Operand}
	case *CompareTransform:
		return []NodeID{t.Left, t.Right}
	case *GuardTransform:
		return []NodeID{t.Value, t.Cond}
	case *CoalesceTransform:
		return []NodeID{t.Left, t.Right}
	case *LiteralTransform:
		return nil
	case *ListLiteralTransform:
		return t.Elements
	case *RecordBuildTransform:
		return t.Values
	case *StringInterpolationTransform:
		var ids []NodeID
		for _, p := range t.Parts {
			if p.IsExpr {
				ids = append(ids, p.Node)
			}
		}
		return ids
	case *MapTransform:
		return []NodeID{t.List, t.Body}
	case *FilterTransform:
		return []NodeID{t.List, t.Body}
	case *AllTransform:
		return []NodeID{t.List, t.Body}
	case *AnyTransform:
		return []NodeID{t.List, t.Body}
	default:
		return nil
	}
}

// rewireOperands replaces every operand reference in n with resolve(ref),
// mutating n in place.
func rewireOperands(n Node, resolve func(NodeID) NodeID) {
	switch t := n.(type) {
	case *ModuleCallNode:
		for k, id := range t.Args {
			t.Args[k] = resolve(id)
		}
		if t.Options.HasFallback {
			t.Options.Fallback = resolve(t.Options.Fallback)
		}
	case *MergeTransform:
		t.Left, t.Right = resolve(t.Left), resolve(t.Right)
	case *ProjectTransform:
		t.Source = resolve(t.Source)
	case *FieldAccessTransform:
		t.Source = resolve(t.Source)
	case *ConditionalTransform:
		t.Cond, t.Then, t.Else = resolve(t.Cond), resolve(t.Then), resolve(t.Else)
	case *BranchTransform:
		t.Otherwise = resolve(t.Otherwise)
		for i, c := range t.Cases {
			t.Cases[i] = BranchArm{Cond: resolve(c.Cond), Body: resolve(c.Body)}
		}
	case *MatchTransform:
		t.Scrutinee = resolve(t.Scrutinee)
		for i, c := range t.Cases {
			if c.HasGuard {
				t.Cases[i].Guard = resolve(c.Guard)
			}
			t.Cases[i].Body = resolve(c.Body)
		}
	case *AndTransform:
		t.Left, t.Right = resolve(t.Left), resolve(t.Right)
	case *OrTransform:
		t.Left, t.Right = resolve(t.Left), resolve(t.Right)
	case *NotTransform:
		t.Operand = resolve(t.Operand)
	case *CompareTransform:
		t.Left, t.Right = resolve(t.Left), resolve(t.Right)
	case *GuardTransform:
		t.Value, t.Cond = resolve(t.Value), resolve(t.Cond)
	case *CoalesceTransform:
		t.Left, t.Right = resolve(t.Left), resolve(t.Right)
	case *ListLiteralTransform:
		for i, id := range t.Elements {
			t.Elements[i] = resolve(id)
		}
	case *RecordBuildTransform:
		for i, id := range t.Values {
			t.Values[i] = resolve(id)
		}
	case *StringInterpolationTransform:
		for i, p := range t.Parts {
			if p.IsExpr {
				t.Parts[i].Node = resolve(p.Node)
			}
		}
	case *MapTransform:
		t.List, t.Body = resolve(t.List), resolve(t.Body)
	case *FilterTransform:
		t.List, t.Body = resolve(t.List), resolve(t.Body)
	case *AllTransform:
		t.List, t.Body = resolve(t.List), resolve(t.Body)
	case *AnyTransform:
		t.List, t.Body = resolve(t.List), resolve(t.Body)
	}
}
