// Package typecheck implements the bidirectional type checker: AST
// to typed AST, with structural subtyping, module signature resolution,
// and the phase-grouped error/warning taxonomy.
package typecheck

import (
	"fmt"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/value"
)

// TypedProgram is the typed AST: the original AST plus a side table
// of every expression's synthesized type and every module call's
// resolved descriptor, mirroring the style of go/types.Info rather than
// a cloned parallel tree.
type TypedProgram struct {
	File           *ast.File
	ExprTypes      map[ast.Expr]value.Type
	ModuleCalls    map[*ast.ModuleCall]*modreg.Descriptor
	InputTypes     map[string]value.Type
	OutputTypes    map[string]value.Type
	AssignTypes    map[string]value.Type
	UseAliases     map[string]string // alias -> dotted path
	TypeDefs       map[string]value.Type // named `type` declarations, resolved
	Warnings       []*errors.Report
}

// TypeOf returns the synthesized type of e, or value.NothingType if e was
// never checked (should not happen for a successfully type-checked
// program).
func (tp *TypedProgram) TypeOf(e ast.Expr) value.Type {
	if t, ok := tp.ExprTypes[e]; ok {
		return t
	}
	return value.NothingType
}

// Checker performs the bidirectional check/infer pass over a parsed
// file. Construct a fresh Checker per compilation; it holds no global
// state.
type Checker struct {
	registry *modreg.Registry

	env      map[string]value.Type
	typeDefs map[string]value.Type
	aliases  map[string]string

	exprTypes   map[ast.Expr]value.Type
	moduleCalls map[*ast.ModuleCall]*modreg.Descriptor

	errs     []error
	warnings []*errors.Report
}

// NewChecker creates a Checker that resolves module calls against reg.
func NewChecker(reg *modreg.Registry) *Checker {
	return &Checker{
		registry:    reg,
		env:         map[string]value.Type{},
		typeDefs:    map[string]value.Type{},
		aliases:     map[string]string{},
		exprTypes:   map[ast.Expr]value.Type{},
		moduleCalls: map[*ast.ModuleCall]*modreg.Descriptor{},
	}
}

// Check type-checks a parsed file. As many errors as possible are
// collected before returning; a failed subexpression contributes
// value.NothingType so sibling expressions still get checked. Check returns a non-nil error (a *MultiError) iff any compile
// error was found.
func (c *Checker) Check(f *ast.File) (*TypedProgram, error) {
	for _, u := range f.Uses {
		alias := u.Alias
		if alias == "" {
			alias = lastSegment(u.Path)
		}
		c.aliases[alias] = u.Path
	}

	for _, td := range f.TypeDefs {
		c.typeDefs[td.Name] = c.resolveTypeExpr(td.Type)
	}

	for _, in := range f.Inputs {
		c.checkExampleAnnotations(in)
		t := c.resolveTypeExpr(in.Type)
		if _, exists := c.env[in.Name]; exists {
			c.errTC(errors.TC011, in.Sp, "duplicate binding %q", in.Name)
		}
		c.env[in.Name] = t
	}

	inputTypes := map[string]value.Type{}
	for name, t := range c.env {
		inputTypes[name] = t
	}

	assignTypes := map[string]value.Type{}
	for _, a := range f.Assigns {
		t := c.inferExpr(a.Value)
		if _, exists := c.env[a.Name]; exists {
			c.errTC(errors.TC011, a.Sp, "duplicate binding %q", a.Name)
		}
		c.env[a.Name] = t
		assignTypes[a.Name] = t
	}

	outputTypes := map[string]value.Type{}
	for _, o := range f.Outputs {
		t, ok := c.env[o.Name]
		if !ok {
			c.errTC(errors.TC001, o.Sp, "undefined variable %q in output declaration", o.Name)
			t = value.NothingType
		}
		outputTypes[o.Name] = t
	}

	c.checkUnusedVariables(f)

	tp := &TypedProgram{
		File:        f,
		ExprTypes:   c.exprTypes,
		ModuleCalls: c.moduleCalls,
		InputTypes:  inputTypes,
		OutputTypes: outputTypes,
		AssignTypes: assignTypes,
		UseAliases:  c.aliases,
		TypeDefs:    c.typeDefs,
		Warnings:    c.warnings,
	}

	if len(c.errs) > 0 {
		return tp, &MultiError{Errors: c.errs}
	}
	return tp, nil
}

// checkExampleAnnotations enforces the at-most-one-@example rule: TC012 on a second one.
func (c *Checker) checkExampleAnnotations(in *ast.InputDecl) {
	seen := false
	for _, a := range in.Annotations {
		if a.Name != "example" {
			continue
		}
		if seen {
			c.errTC(errors.TC012, a.Sp, "duplicate @example annotation on input %q", in.Name)
		}
		seen = true
	}
}

// checkUnusedVariables emits WRN001 for inputs/assignments never
// referenced by any assignment or output.
func (c *Checker) checkUnusedVariables(f *ast.File) {
	used := map[string]bool{}
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		if e == nil {
			return
		}
		if v, ok := e.(*ast.Variable); ok {
			used[v.Name] = true
		}
		for _, child := range childExprs(e) {
			walk(child)
		}
	}
	for _, a := range f.Assigns {
		walk(a.Value)
	}
	for _, o := range f.Outputs {
		used[o.Name] = true
	}
	for _, in := range f.Inputs {
		if !used[in.Name] {
			c.warn(errors.WRN001, in.Sp, "input %q is never used", in.Name)
		}
	}
	for _, a := range f.Assigns {
		if !used[a.Name] {
			c.warn(errors.WRN001, a.Sp, "assignment %q is never used", a.Name)
		}
	}
}

func lastSegment(path string) string {
	last := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			last = path[i+1:]
			break
		}
	}
	return last
}

func (c *Checker) errTC(code string, span ast.Span, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.errs = append(c.errs, errors.Wrap(errors.NewWithSpan(code, "typecheck", msg, span, nil)))
}

func (c *Checker) warn(code string, span ast.Span, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.warnings = append(c.warnings, errors.NewWithSpan(code, "typecheck", msg, span, nil))
}

// MultiError aggregates every compile error collected during a Check
// pass.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	s := m.Errors[0].Error()
	if len(m.Errors) > 1 {
		s += fmt.Sprintf(" (and %d more error(s))", len(m.Errors)-1)
	}
	return s
}

// Unwrap exposes the first error so errors.As/Is can recover a *Report.
func (m *MultiError) Unwrap() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m.Errors[0]
}
