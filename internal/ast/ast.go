// Package ast defines the abstract syntax tree produced by the parser
//. Every node carries a source span so the type checker and parser
// can report diagnostics with a caret.
package ast

import (
	"fmt"
	"strings"
)

// Node is the base interface implemented by every AST node.
type Node interface {
	String() string
	Span() Span
}

// Pos is a single source position.
type Pos struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Span is a start/end source range, used for diagnostics and for hashing
// AST shape independent of formatting.
type Span struct {
	Start Pos
	End   Pos
}

func (s Span) String() string { return s.Start.String() }

// File is a parsed pipeline source file: declarations in source order.
type File struct {
	Inputs   []*InputDecl
	TypeDefs []*TypeDef
	Uses     []*UseDecl
	Assigns  []*Assignment
	Outputs  []*OutputDecl
	Sp       Span
}

func (f *File) Span() Span { return f.Sp }
func (f *File) String() string {
	var b strings.Builder
	for _, i := range f.Inputs {
		b.WriteString(i.String())
		b.WriteByte('\n')
	}
	for _, u := range f.Uses {
		b.WriteString(u.String())
		b.WriteByte('\n')
	}
	for _, t := range f.TypeDefs {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	for _, a := range f.Assigns {
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	for _, o := range f.Outputs {
		b.WriteString(o.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Decl is the common interface for top-level declarations.
type Decl interface {
	Node
	declNode()
}

// Annotation is an `@name(expr)` attached to the input declaration that
// immediately follows it.
type Annotation struct {
	Name string
	Arg  Expr
	Sp   Span
}

func (a *Annotation) Span() Span { return a.Sp }
func (a *Annotation) String() string {
	return fmt.Sprintf("@%s(%s)", a.Name, a.Arg)
}

// InputDecl is `in name: TypeExpr`, optionally preceded by annotations.
type InputDecl struct {
	Name        string
	Type        TypeExpr
	Annotations []*Annotation
	Sp          Span
}

func (i *InputDecl) declNode()  {}
func (i *InputDecl) Span() Span { return i.Sp }
func (i *InputDecl) String() string {
	return fmt.Sprintf("in %s: %s", i.Name, i.Type)
}

// AnnotationByName returns the annotation with the given name, if present.
func (i *InputDecl) AnnotationByName(name string) (*Annotation, bool) {
	for _, a := range i.Annotations {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// TypeDef is `type name = TypeExpr`.
type TypeDef struct {
	Name string
	Type TypeExpr
	Sp   Span
}

func (t *TypeDef) declNode()  {}
func (t *TypeDef) Span() Span { return t.Sp }
func (t *TypeDef) String() string {
	return fmt.Sprintf("type %s = %s", t.Name, t.Type)
}

// UseDecl is `use ns.path [as alias]`.
type UseDecl struct {
	Path  string
	Alias string
	Sp    Span
}

func (u *UseDecl) declNode()  {}
func (u *UseDecl) Span() Span { return u.Sp }
func (u *UseDecl) String() string {
	if u.Alias != "" {
		return fmt.Sprintf("use %s as %s", u.Path, u.Alias)
	}
	return fmt.Sprintf("use %s", u.Path)
}

// Assignment is `name = expr`.
type Assignment struct {
	Name  string
	Value Expr
	Sp    Span
}

func (a *Assignment) declNode()  {}
func (a *Assignment) Span() Span { return a.Sp }
func (a *Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.Name, a.Value)
}

// OutputDecl is `out name`.
type OutputDecl struct {
	Name string
	Sp   Span
}

func (o *OutputDecl) declNode()  {}
func (o *OutputDecl) Span() Span { return o.Sp }
func (o *OutputDecl) String() string {
	return fmt.Sprintf("out %s", o.Name)
}
