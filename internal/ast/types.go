package ast

import (
	"fmt"
	"strings"
)

// TypeExpr is the interface implemented by every type-expression node
// appearing in an `in`/`type` declaration.
type TypeExpr interface {
	Node
	typeExprNode()
}

// PrimitiveKind enumerates the primitive type names.
type PrimitiveKind int

const (
	TString PrimitiveKind = iota
	TInt
	TFloat
	TBoolean
	TNothing
)

func (k PrimitiveKind) String() string {
	switch k {
	case TString:
		return "String"
	case TInt:
		return "Int"
	case TFloat:
		return "Float"
	case TBoolean:
		return "Boolean"
	default:
		return "Nothing"
	}
}

// PrimitiveType is one of String, Int, Float, Boolean, Nothing.
type PrimitiveType struct {
	Kind PrimitiveKind
	Sp   Span
}

func (p *PrimitiveType) typeExprNode() {}
func (p *PrimitiveType) Span() Span    { return p.Sp }
func (p *PrimitiveType) String() string { return p.Kind.String() }

// RecordFieldType is one `name: Type` member of a RecordType.
type RecordFieldType struct {
	Name string
	Type TypeExpr
}

// RecordType is `{ f1: T1, f2: T2, ... }`.
type RecordType struct {
	Fields []RecordFieldType
	Sp     Span
}

func (r *RecordType) typeExprNode() {}
func (r *RecordType) Span() Span    { return r.Sp }
func (r *RecordType) String() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ListType is `List(T)`.
type ListType struct {
	Elem TypeExpr
	Sp   Span
}

func (l *ListType) typeExprNode() {}
func (l *ListType) Span() Span    { return l.Sp }
func (l *ListType) String() string { return fmt.Sprintf("List(%s)", l.Elem) }

// MapType is `Map(K, V)`.
type MapType struct {
	Key TypeExpr
	Val TypeExpr
	Sp  Span
}

func (m *MapType) typeExprNode() {}
func (m *MapType) Span() Span    { return m.Sp }
func (m *MapType) String() string { return fmt.Sprintf("Map(%s, %s)", m.Key, m.Val) }

// OptionalType is `Optional(T)`.
type OptionalType struct {
	Elem TypeExpr
	Sp   Span
}

func (o *OptionalType) typeExprNode() {}
func (o *OptionalType) Span() Span    { return o.Sp }
func (o *OptionalType) String() string { return fmt.Sprintf("Optional(%s)", o.Elem) }

// UnionType is `T1 | T2 | ...`.
type UnionType struct {
	Variants []TypeExpr
	Sp       Span
}

func (u *UnionType) typeExprNode() {}
func (u *UnionType) Span() Span    { return u.Sp }
func (u *UnionType) String() string {
	parts := make([]string, len(u.Variants))
	for i, v := range u.Variants {
		parts[i] = v.String()
	}
	return strings.Join(parts, " | ")
}

// TypeRef is a reference to a name bound by a `type` declaration.
type TypeRef struct {
	Name string
	Sp   Span
}

func (t *TypeRef) typeExprNode() {}
func (t *TypeRef) Span() Span    { return t.Sp }
func (t *TypeRef) String() string { return t.Name }
