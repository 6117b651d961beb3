package typecheck

import (
	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/dtree"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/value"
)

// binding is one name introduced by a pattern, paired with the type it
// should carry inside the case body.
type binding struct {
	Name string
	Type value.Type
}

// collectBindings walks a pattern and returns every name it introduces,
// given the type of the value being matched at that position. It does
// not mutate the checker's environment.
func (c *Checker) collectBindings(pat ast.Pattern, t value.Type) []binding {
	switch p := pat.(type) {
	case *ast.WildcardPattern, *ast.OtherwisePattern, *ast.LiteralPattern:
		return nil

	case *ast.BindPattern:
		return []binding{{Name: p.Name, Type: t}}

	case *ast.TypePattern:
		if p.Bind == "" {
			return nil
		}
		return []binding{{Name: p.Bind, Type: c.resolveTypeExpr(p.Type)}}

	case *ast.RecordPattern:
		rec, _ := t.(*value.Record)
		var out []binding
		for _, f := range p.Fields {
			var ft value.Type = value.NothingType
			if rec != nil {
				if found, ok := rec.FieldType(f.Name); ok {
					ft = found
				}
			}
			out = append(out, c.collectBindings(f.Pattern, ft)...)
		}
		return out

	case *ast.GuardedPattern:
		return c.collectBindings(p.Inner, t)

	default:
		return nil
	}
}

type envSave struct {
	name string
	prev value.Type
	had  bool
}

func (c *Checker) applyBindings(binds []binding) []envSave {
	saves := make([]envSave, len(binds))
	for i, b := range binds {
		prev, had := c.env[b.Name]
		saves[i] = envSave{name: b.Name, prev: prev, had: had}
		c.env[b.Name] = b.Type
	}
	return saves
}

func (c *Checker) restoreBindings(saves []envSave) {
	for _, s := range saves {
		if s.had {
			c.env[s.name] = s.prev
		} else {
			delete(c.env, s.name)
		}
	}
}

// checkMatch type-checks a match expression:
// every case's body is checked with its pattern's bindings in scope, the
// result is the LUB of every case body, and exhaustiveness is delegated
// to internal/dtree's decision-tree compiler (TC009 on failure).
func (c *Checker) checkMatch(n *ast.Match) value.Type {
	scrutT := c.inferExpr(n.Scrutinee)

	var result value.Type
	first := true
	for _, cs := range n.Cases {
		pat := cs.Pattern
		var binds []binding
		if gp, ok := pat.(*ast.GuardedPattern); ok {
			binds = c.collectBindings(gp.Inner, scrutT)
			saves := c.applyBindings(binds)
			condT := c.inferExpr(gp.Cond)
			if !value.Subtype(condT, value.Boolean) {
				c.errTC(errors.TC004, gp.Cond.Span(), "match guard: expected Boolean, got %s", condT)
			}
			bodyT := c.inferExpr(cs.Body)
			c.restoreBindings(saves)
			result = lubResult(result, bodyT, &first)
			continue
		}
		binds = c.collectBindings(pat, scrutT)
		saves := c.applyBindings(binds)
		bodyT := c.inferExpr(cs.Body)
		c.restoreBindings(saves)
		result = lubResult(result, bodyT, &first)
	}

	compiler := dtree.NewCompiler(n.Cases)
	tree := compiler.Compile()
	if !dtree.IsExhaustive(tree) {
		c.errTC(errors.TC009, n.Sp, "match is not exhaustive over %s; add an `otherwise` case or cover the remaining variants", scrutT)
	}

	if first {
		return value.NothingType
	}
	return result
}

func lubResult(acc, next value.Type, first *bool) value.Type {
	if *first {
		*first = false
		return next
	}
	return value.LUB(acc, next)
}
