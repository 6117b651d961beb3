// Package ir implements the intermediate representation: a graph
// of nodes with stable ids, built by walking the typed AST, and the
// constant-folding/dead-code/common-subexpression optimization pass that
// runs before DAG synthesis (internal/dagc).
package ir

import (
	"fmt"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/dtree"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/value"
)

// NodeID is a stable, graph-unique node identifier assigned in build
// order (operands always have a smaller id than the node referencing
// them, since the builder creates them depth-first before the parent).
type NodeID int

// Node is implemented by every IR node variant.
type Node interface {
	ID() NodeID
	irNode()
}

type base struct{ Id NodeID }

func (b base) ID() NodeID { return b.Id }

// InputNode is a pipeline input.
type InputNode struct {
	base
	Name string
	Type value.Type
}

func (n *InputNode) irNode() {}

// ModuleCallNode invokes a registered module. Args maps each consumed
// parameter name to the source node supplying it.
type ModuleCallNode struct {
	base
	Module  string
	Desc    *modreg.Descriptor
	Args    map[string]NodeID
	Options ModuleOptions
}

func (n *ModuleCallNode) irNode() {}

// MergeTransform is `a + b`.
type MergeTransform struct {
	base
	Left, Right NodeID
}

func (n *MergeTransform) irNode() {}

// ProjectTransform is `record[f1, f2, ...]`.
type ProjectTransform struct {
	base
	Source NodeID
	Fields []string
}

func (n *ProjectTransform) irNode() {}

// FieldAccessTransform is `record.field`.
type FieldAccessTransform struct {
	base
	Source NodeID
	Field  string
}

func (n *FieldAccessTransform) irNode() {}

// UnwrapTransform narrows a match scrutinee bound by a TypePattern to its matched member's value: if Source evaluates
// to a union payload, Unwrap yields the payload; otherwise it passes the
// value through unchanged.
type UnwrapTransform struct {
	base
	Source NodeID
}

func (n *UnwrapTransform) irNode() {}

// ConditionalTransform is `if cond then a else b`.
type ConditionalTransform struct {
	base
	Cond, Then, Else NodeID
}

func (n *ConditionalTransform) irNode() {}

// BranchArm is one `cond -> body` arm of a BranchTransform.
type BranchArm struct {
	Cond NodeID
	Body NodeID
}

// BranchTransform is `branch { ... otherwise -> edef }`.
type BranchTransform struct {
	base
	Cases     []BranchArm
	Otherwise NodeID
}

func (n *BranchTransform) irNode() {}

// MatchArm is one `pattern -> body` arm of a MatchTransform. Guard holds
// the compiled `when` condition of a GuardedPattern case; HasGuard is
// false for a plain pattern, in which case Guard is not a valid NodeID.
type MatchArm struct {
	Pattern  ast.Pattern
	Body     NodeID
	HasGuard bool
	Guard    NodeID
}

// MatchTransform is a compiled match expression; Tree is the decision
// tree compiled from its cases (internal/dtree). Evaluation tests Cases
// in source order and does not consult Tree.
type MatchTransform struct {
	base
	Scrutinee NodeID
	Cases     []MatchArm
	Tree      dtree.DecisionTree
}

func (n *MatchTransform) irNode() {}

// AndTransform is `a and b`.
type AndTransform struct {
	base
	Left, Right NodeID
}

func (n *AndTransform) irNode() {}

// OrTransform is `a or b`.
type OrTransform struct {
	base
	Left, Right NodeID
}

func (n *OrTransform) irNode() {}

// NotTransform is `not a`.
type NotTransform struct {
	base
	Operand NodeID
}

func (n *NotTransform) irNode() {}

// CompareTransform is one of ==, !=, <, >, <=, >=.
type CompareTransform struct {
	base
	Op          string
	Left, Right NodeID
}

func (n *CompareTransform) irNode() {}

// GuardTransform is `e when cond`.
type GuardTransform struct {
	base
	Value, Cond NodeID
}

func (n *GuardTransform) irNode() {}

// CoalesceTransform is `a ?? b`.
type CoalesceTransform struct {
	base
	Left, Right NodeID
}

func (n *CoalesceTransform) irNode() {}

// LiteralTransform carries a constant value (source literal, or the
// result of constant folding).
type LiteralTransform struct {
	base
	Value value.Value
}

func (n *LiteralTransform) irNode() {}

// ListLiteralTransform is `[e1, e2, ...]`.
type ListLiteralTransform struct {
	base
	Elements []NodeID
}

func (n *ListLiteralTransform) irNode() {}

// RecordBuildTransform is `{f1: e1, f2: e2, ...}`.
type RecordBuildTransform struct {
	base
	Fields []string
	Values []NodeID
}

func (n *RecordBuildTransform) irNode() {}

// InterpPart is one part of a StringInterpolationTransform: a literal
// fragment (Node invalid, Literal set) or an embedded expression.
type InterpPart struct {
	Literal string
	Node    NodeID
	IsExpr  bool
}

// StringInterpolationTransform is `"...${e}..."`.
type StringInterpolationTransform struct {
	base
	Parts []InterpPart
}

func (n *StringInterpolationTransform) irNode() {}

// MapTransform, FilterTransform, AllTransform, AnyTransform are the
// higher-order list operations: List is the source list node,
// Param is the lambda's bound name, ParamID is the placeholder InputNode
// created for it (every reference to Param inside Body resolves to this
// id), and Body is the compiled lambda body evaluated per-element at run
// time by substituting each element for ParamID.
type MapTransform struct {
	base
	List    NodeID
	Param   string
	ParamID NodeID
	Body    NodeID
}

func (n *MapTransform) irNode() {}

type FilterTransform struct {
	base
	List    NodeID
	Param   string
	ParamID NodeID
	Body    NodeID
}

func (n *FilterTransform) irNode() {}

type AllTransform struct {
	base
	List    NodeID
	Param   string
	ParamID NodeID
	Body    NodeID
}

func (n *AllTransform) irNode() {}

type AnyTransform struct {
	base
	List    NodeID
	Param   string
	ParamID NodeID
	Body    NodeID
}

func (n *AnyTransform) irNode() {}

// ModuleOptions is the decoded form of a module call's `with` clause
//. Absent options leave their field at its zero value; Has*
// flags distinguish "absent" from "explicitly zero" where that matters.
type ModuleOptions struct {
	HasRetry       bool
	Retry          int64
	Backoff        string // "fixed" | "linear" | "exponential"
	HasDelay       bool
	DelayNanos     int64
	HasTimeout     bool
	TimeoutNanos   int64
	HasFallback    bool
	Fallback       NodeID
	Cache          bool
	HasCacheTTL    bool
	CacheTTLNanos  int64
	CacheBackend   string
	HasThrottle    bool
	ThrottleCount  int64
	ThrottleNanos  int64
	HasConcurrency bool
	Concurrency    int64
	OnError        string // "propagate" | "skip" | "log" | "wrap"
	Lazy           bool
	HasPriority    bool
	Priority       int64
}

// Graph is the built IR: every node reachable from an input or a
// top-level assignment, the variable bindings that produced each name,
// and the declared output bindings.
type Graph struct {
	Nodes    map[NodeID]Node
	Types    map[NodeID]value.Type
	Order    []NodeID // build order, ascending by id
	Bindings map[string]NodeID
	Outputs  map[string]NodeID

	// Inputs holds the ids of the pipeline's declared `in` nodes only —
	// distinct from Bindings, which also carries every intermediate
	// assignment. A higher-order lambda's bound parameter is
	// compiled to the same InputNode shape but is never added here, so
	// the executor can tell "must be supplied externally" apart from
	// "supplied per-element by its enclosing map/filter/all/any".
	Inputs map[string]NodeID

	// PatternTypes resolves every TypePattern appearing in a match
	// expression to its runtime Type, computed once at build time (via
	// typecheck.ResolveTypeExpr) instead of at every match evaluation.
	PatternTypes map[*ast.TypePattern]value.Type
}

// NodeType returns the statically known type of id.
func (g *Graph) NodeType(id NodeID) value.Type {
	if t, ok := g.Types[id]; ok {
		return t
	}
	return value.NothingType
}

func (g *Graph) String() string {
	return fmt.Sprintf("ir.Graph{%d nodes, %d outputs}", len(g.Nodes), len(g.Outputs))
}
