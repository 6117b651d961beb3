package ast

import (
	"fmt"
	"strings"
	"time"
)

// Expr is the interface implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

// Variable references a binding introduced by an input or assignment.
type Variable struct {
	Name string
	Sp   Span
}

func (v *Variable) exprNode()  {}
func (v *Variable) Span() Span { return v.Sp }
func (v *Variable) String() string { return v.Name }

// LiteralKind distinguishes the primitive literal forms.
type LiteralKind int

const (
	IntLit LiteralKind = iota
	FloatLit
	StringLit
	BoolLit
	DurationLit // Value is time.Duration
	RateLit     // Value is Rate
)

// Rate is the value of a RateLit: `<count>/<duration>`, e.g. `100/s`.
type Rate struct {
	Count    int64
	Interval time.Duration
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Count, r.Interval)
}

// Literal is a primitive literal value.
type Literal struct {
	Kind  LiteralKind
	Value interface{}
	Sp    Span
}

func (l *Literal) exprNode()  {}
func (l *Literal) Span() Span { return l.Sp }
func (l *Literal) String() string { return fmt.Sprintf("%v", l.Value) }

// ListLiteral is `[e1, e2, ...]`.
type ListLiteral struct {
	Elements []Expr
	Sp       Span
}

func (l *ListLiteral) exprNode()  {}
func (l *ListLiteral) Span() Span { return l.Sp }
func (l *ListLiteral) String() string {
	parts := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// RecordField is one `name: value` entry of a RecordLiteral.
type RecordField struct {
	Name  string
	Value Expr
}

// RecordLiteral is `{ f1: e1, f2: e2, ... }`.
type RecordLiteral struct {
	Fields []RecordField
	Sp     Span
}

func (r *RecordLiteral) exprNode()  {}
func (r *RecordLiteral) Span() Span { return r.Sp }
func (r *RecordLiteral) String() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FieldAccess is `record.field`.
type FieldAccess struct {
	Record Expr
	Field  string
	Sp     Span
}

func (f *FieldAccess) exprNode()  {}
func (f *FieldAccess) Span() Span { return f.Sp }
func (f *FieldAccess) String() string { return fmt.Sprintf("%s.%s", f.Record, f.Field) }

// Projection is `record[f1, f2, ...]`.
type Projection struct {
	Record Expr
	Fields []string
	Sp     Span
}

func (p *Projection) exprNode()  {}
func (p *Projection) Span() Span { return p.Sp }
func (p *Projection) String() string {
	return fmt.Sprintf("%s[%s]", p.Record, strings.Join(p.Fields, ", "))
}

// Merge is `a + b`.
type Merge struct {
	Left  Expr
	Right Expr
	Sp    Span
}

func (m *Merge) exprNode()  {}
func (m *Merge) Span() Span { return m.Sp }
func (m *Merge) String() string { return fmt.Sprintf("(%s + %s)", m.Left, m.Right) }

// OptionArg is one `key: value` entry of a module call's `with` clause.
type OptionArg struct {
	Key   string
	Value Expr
}

// Arg is a positional or named argument to a module call.
type Arg struct {
	Name  string // empty when positional
	Value Expr
}

// ModuleCall invokes a registered module by name with positional/named
// arguments and an optional `with` options clause.
type ModuleCall struct {
	Module  string
	Args    []Arg
	Options []OptionArg
	Sp      Span
}

func (m *ModuleCall) exprNode()  {}
func (m *ModuleCall) Span() Span { return m.Sp }
func (m *ModuleCall) String() string {
	parts := make([]string, len(m.Args))
	for i, a := range m.Args {
		parts[i] = a.Value.String()
	}
	return fmt.Sprintf("%s(%s)", m.Module, strings.Join(parts, ", "))
}

// OptionByKey returns the value expression for a recognized option key.
func (m *ModuleCall) OptionByKey(key string) (Expr, bool) {
	for _, o := range m.Options {
		if o.Key == key {
			return o.Value, true
		}
	}
	return nil, false
}

// If is `if cond then a else b`.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
	Sp   Span
}

func (i *If) exprNode()  {}
func (i *If) Span() Span { return i.Sp }
func (i *If) String() string { return fmt.Sprintf("(if %s then %s else %s)", i.Cond, i.Then, i.Else) }

// BranchCase is one `cond -> expr` arm of a Branch.
type BranchCase struct {
	Cond Expr
	Body Expr
}

// Branch is `branch { c1 -> e1, ..., otherwise -> edef }`.
type Branch struct {
	Cases     []BranchCase
	Otherwise Expr
	Sp        Span
}

func (b *Branch) exprNode()  {}
func (b *Branch) Span() Span { return b.Sp }
func (b *Branch) String() string {
	parts := make([]string, len(b.Cases))
	for i, c := range b.Cases {
		parts[i] = fmt.Sprintf("%s -> %s", c.Cond, c.Body)
	}
	return fmt.Sprintf("branch { %s, otherwise -> %s }", strings.Join(parts, ", "), b.Otherwise)
}

// MatchCase is one `pattern -> body` arm of a Match.
type MatchCase struct {
	Pattern Pattern
	Body    Expr
	Sp      Span
}

// Match is `match scrutinee { p1 -> e1, ... }`.
type Match struct {
	Scrutinee Expr
	Cases     []MatchCase
	Sp        Span
}

func (m *Match) exprNode()  {}
func (m *Match) Span() Span { return m.Sp }
func (m *Match) String() string {
	parts := make([]string, len(m.Cases))
	for i, c := range m.Cases {
		parts[i] = fmt.Sprintf("%s -> %s", c.Pattern, c.Body)
	}
	return fmt.Sprintf("match %s { %s }", m.Scrutinee, strings.Join(parts, ", "))
}

// Guard is `e when cond`.
type Guard struct {
	Value Expr
	Cond  Expr
	Sp    Span
}

func (g *Guard) exprNode()  {}
func (g *Guard) Span() Span { return g.Sp }
func (g *Guard) String() string { return fmt.Sprintf("(%s when %s)", g.Value, g.Cond) }

// Coalesce is `a ?? b`.
type Coalesce struct {
	Left  Expr
	Right Expr
	Sp    Span
}

func (c *Coalesce) exprNode()  {}
func (c *Coalesce) Span() Span { return c.Sp }
func (c *Coalesce) String() string { return fmt.Sprintf("(%s ?? %s)", c.Left, c.Right) }

// BoolOpKind distinguishes and/or/not.
type BoolOpKind int

const (
	OpAnd BoolOpKind = iota
	OpOr
	OpNot
)

// BoolOp is a boolean connective: `a and b`, `a or b`, `not a`.
type BoolOp struct {
	Kind  BoolOpKind
	Left  Expr
	Right Expr // nil for Not
	Sp    Span
}

func (b *BoolOp) exprNode()  {}
func (b *BoolOp) Span() Span { return b.Sp }
func (b *BoolOp) String() string {
	switch b.Kind {
	case OpAnd:
		return fmt.Sprintf("(%s and %s)", b.Left, b.Right)
	case OpOr:
		return fmt.Sprintf("(%s or %s)", b.Left, b.Right)
	default:
		return fmt.Sprintf("(not %s)", b.Left)
	}
}

// CompareOp is one of ==, !=, <, >, <=, >=.
type CompareOp struct {
	Op    string
	Left  Expr
	Right Expr
	Sp    Span
}

func (c *CompareOp) exprNode()  {}
func (c *CompareOp) Span() Span { return c.Sp }
func (c *CompareOp) String() string { return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right) }

// StringInterpPart is either a literal fragment or an embedded expression
// of a StringInterpolation.
type StringInterpPart struct {
	Literal string // set when Expr is nil
	Expr    Expr
}

// StringInterpolation is `"...${expr}..."`.
type StringInterpolation struct {
	Parts []StringInterpPart
	Sp    Span
}

func (s *StringInterpolation) exprNode()  {}
func (s *StringInterpolation) Span() Span { return s.Sp }
func (s *StringInterpolation) String() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, p := range s.Parts {
		if p.Expr != nil {
			b.WriteString("${")
			b.WriteString(p.Expr.String())
			b.WriteByte('}')
		} else {
			b.WriteString(p.Literal)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// LambdaParam is one parameter of a Lambda, with an optional type
// annotation (required when the lambda's signature cannot be inferred,
// `AmbiguousLambda`).
type LambdaParam struct {
	Name string
	Type TypeExpr // nil when inferred from context
}

// Lambda is `(x) => expr`, used as an argument to higher-order list
// operations (map/filter/all/any).
type Lambda struct {
	Params []LambdaParam
	Body   Expr
	Sp     Span
}

func (l *Lambda) exprNode()  {}
func (l *Lambda) Span() Span { return l.Sp }
func (l *Lambda) String() string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	return fmt.Sprintf("(%s) => %s", strings.Join(names, ", "), l.Body)
}

// QualifiedName is `ns.fn`, resolved against a `use` import at type-check
// time.
type QualifiedName struct {
	Namespace string
	Name      string
	Sp        Span
}

func (q *QualifiedName) exprNode()  {}
func (q *QualifiedName) Span() Span { return q.Sp }
func (q *QualifiedName) String() string { return fmt.Sprintf("%s.%s", q.Namespace, q.Name) }
