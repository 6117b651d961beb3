package typecheck

import (
	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/value"
)

// inferExpr synthesizes e's type (infer mode), recording it in the
// side table so internal/ir can consume it later. A failed subexpression
// contributes value.NothingType and keeps the pass going rather than
// aborting at the first error.
func (c *Checker) inferExpr(e ast.Expr) value.Type {
	t := c.inferExprRaw(e)
	c.exprTypes[e] = t
	return t
}

func (c *Checker) inferExprRaw(e ast.Expr) value.Type {
	switch n := e.(type) {
	case *ast.Variable:
		if t, ok := c.env[n.Name]; ok {
			return t
		}
		c.errTC(errors.TC001, n.Sp, "undefined variable %q", n.Name)
		return value.NothingType

	case *ast.Literal:
		switch n.Kind {
		case ast.IntLit:
			return value.Int
		case ast.FloatLit:
			return value.Float
		case ast.StringLit:
			return value.String
		case ast.BoolLit:
			return value.Boolean
		default:
			// DurationLit/RateLit only ever occur inside a module call's
			// options clause, which reads them directly off the AST
			// rather than through inferExpr (see checkOptions).
			return value.NothingType
		}

	case *ast.ListLiteral:
		if len(n.Elements) == 0 {
			return &value.List{Elem: value.NothingType}
		}
		elem := c.inferExpr(n.Elements[0])
		for _, el := range n.Elements[1:] {
			elem = value.LUB(elem, c.inferExpr(el))
		}
		return &value.List{Elem: elem}

	case *ast.RecordLiteral:
		byName := map[string]value.Type{}
		var order []string
		for _, f := range n.Fields {
			t := c.inferExpr(f.Value)
			if _, ok := byName[f.Name]; !ok {
				order = append(order, f.Name)
			}
			byName[f.Name] = t
		}
		fields := make([]value.Field, len(order))
		for i, name := range order {
			fields[i] = value.Field{Name: name, Type: byName[name]}
		}
		return value.NewRecord(fields...)

	case *ast.FieldAccess:
		return c.checkFieldAccess(n)

	case *ast.Projection:
		return c.checkProjection(n)

	case *ast.Merge:
		return c.checkMerge(n)

	case *ast.ModuleCall:
		return c.checkModuleCall(n)

	case *ast.If:
		condT := c.inferExpr(n.Cond)
		if !value.Subtype(condT, value.Boolean) {
			c.errTC(errors.TC004, n.Cond.Span(), "if condition: expected Boolean, got %s", condT)
		}
		thenT := c.inferExpr(n.Then)
		elseT := c.inferExpr(n.Else)
		return value.LUB(thenT, elseT)

	case *ast.Branch:
		var result value.Type = value.NothingType
		first := true
		for _, cs := range n.Cases {
			condT := c.inferExpr(cs.Cond)
			if !value.Subtype(condT, value.Boolean) {
				c.errTC(errors.TC004, cs.Cond.Span(), "branch condition: expected Boolean, got %s", condT)
			}
			bodyT := c.inferExpr(cs.Body)
			if first {
				result = bodyT
				first = false
			} else {
				result = value.LUB(result, bodyT)
			}
		}
		otherT := c.inferExpr(n.Otherwise)
		if first {
			return otherT
		}
		return value.LUB(result, otherT)

	case *ast.Match:
		return c.checkMatch(n)

	case *ast.Guard:
		condT := c.inferExpr(n.Cond)
		if !value.Subtype(condT, value.Boolean) {
			c.errTC(errors.TC004, n.Cond.Span(), "guard condition: expected Boolean, got %s", condT)
		}
		valT := c.inferExpr(n.Value)
		return &value.Optional{Inner: valT}

	case *ast.Coalesce:
		leftT := c.inferExpr(n.Left)
		inner := leftT
		if opt, ok := leftT.(*value.Optional); ok {
			inner = opt.Inner
		} else if !value.IsNothing(leftT) {
			c.errTC(errors.TC004, n.Left.Span(), "left side of ?? must be Optional, got %s", leftT)
		}
		rightT := c.inferExpr(n.Right)
		return value.LUB(inner, rightT)

	case *ast.BoolOp:
		leftT := c.inferExpr(n.Left)
		if !value.Subtype(leftT, value.Boolean) {
			c.errTC(errors.TC004, n.Left.Span(), "expected Boolean, got %s", leftT)
		}
		if n.Kind != ast.OpNot {
			rightT := c.inferExpr(n.Right)
			if !value.Subtype(rightT, value.Boolean) {
				c.errTC(errors.TC004, n.Right.Span(), "expected Boolean, got %s", rightT)
			}
		}
		return value.Boolean

	case *ast.CompareOp:
		leftT := c.inferExpr(n.Left)
		rightT := c.inferExpr(n.Right)
		switch n.Op {
		case "==", "!=":
			if !value.Subtype(leftT, rightT) && !value.Subtype(rightT, leftT) {
				c.errTC(errors.TC004, n.Sp, "cannot compare %s with %s", leftT, rightT)
			}
		default:
			if !isNumeric(leftT) || !isNumeric(rightT) {
				c.errTC(errors.TC004, n.Sp, "operator %s requires Int or Float operands, got %s and %s", n.Op, leftT, rightT)
			}
		}
		return value.Boolean

	case *ast.StringInterpolation:
		for _, p := range n.Parts {
			if p.Expr != nil {
				c.inferExpr(p.Expr)
			}
		}
		return value.String

	case *ast.Lambda:
		c.errTC(errors.TC010, n.Sp, "lambda used outside of map/filter/all/any context")
		return value.NothingType

	case *ast.QualifiedName:
		c.errTC(errors.TC003, n.Sp, "qualified name %s.%s used without a call", n.Namespace, n.Name)
		return value.NothingType

	default:
		return value.NothingType
	}
}

func isNumeric(t value.Type) bool {
	return value.Subtype(t, value.Int) || value.Subtype(t, value.Float)
}

func (c *Checker) checkFieldAccess(n *ast.FieldAccess) value.Type {
	baseT := c.inferExpr(n.Record)
	if lt, ok := baseT.(*value.List); ok {
		if rec, ok := lt.Elem.(*value.Record); ok {
			if ft, ok := rec.FieldType(n.Field); ok {
				return &value.List{Elem: ft}
			}
			c.errTC(errors.TC006, n.Sp, "record has no field %q (available: %v)", n.Field, rec.FieldNames())
			return value.NothingType
		}
	}
	rec, ok := baseT.(*value.Record)
	if !ok {
		if value.IsNothing(baseT) {
			return value.NothingType
		}
		c.errTC(errors.TC006, n.Sp, "cannot access field %q on non-record type %s", n.Field, baseT)
		return value.NothingType
	}
	ft, ok := rec.FieldType(n.Field)
	if !ok {
		c.errTC(errors.TC006, n.Sp, "record has no field %q (available: %v)", n.Field, rec.FieldNames())
		return value.NothingType
	}
	return ft
}

func (c *Checker) checkProjection(n *ast.Projection) value.Type {
	baseT := c.inferExpr(n.Record)
	if lt, ok := baseT.(*value.List); ok {
		if rec, ok := lt.Elem.(*value.Record); ok {
			proj, missing := value.ProjectRecord(rec, n.Fields)
			if len(missing) > 0 {
				c.errTC(errors.TC007, n.Sp, "projection references missing field(s) %v", missing)
			}
			return &value.List{Elem: proj}
		}
	}
	rec, ok := baseT.(*value.Record)
	if !ok {
		if value.IsNothing(baseT) {
			return value.NothingType
		}
		c.errTC(errors.TC007, n.Sp, "cannot project non-record type %s", baseT)
		return value.NothingType
	}
	proj, missing := value.ProjectRecord(rec, n.Fields)
	if len(missing) > 0 {
		c.errTC(errors.TC007, n.Sp, "projection references missing field(s) %v", missing)
	}
	return proj
}

func (c *Checker) checkMerge(n *ast.Merge) value.Type {
	leftT := c.inferExpr(n.Left)
	rightT := c.inferExpr(n.Right)

	leftRec, leftIsRec := leftT.(*value.Record)
	rightRec, rightIsRec := rightT.(*value.Record)
	if leftIsRec && rightIsRec {
		return value.MergeRecords(leftRec, rightRec)
	}

	if leftList, ok := leftT.(*value.List); ok && rightIsRec {
		if elemRec, ok := leftList.Elem.(*value.Record); ok {
			c.warn(errors.WRN003, n.Sp, "merging a list of records with a record broadcasts element-wise")
			return &value.List{Elem: value.MergeRecords(elemRec, rightRec)}
		}
	}
	if rightList, ok := rightT.(*value.List); ok && leftIsRec {
		if elemRec, ok := rightList.Elem.(*value.Record); ok {
			c.warn(errors.WRN003, n.Sp, "merging a record with a list of records broadcasts element-wise")
			return &value.List{Elem: value.MergeRecords(leftRec, elemRec)}
		}
	}

	if value.IsNothing(leftT) || value.IsNothing(rightT) {
		return value.NothingType
	}
	c.errTC(errors.TC008, n.Sp, "incompatible merge of %s and %s", leftT, rightT)
	return value.NothingType
}

// childExprs returns e's direct child expressions, used for the
// unused-variable sweep. It deliberately ignores type-only and
// pattern-only children (variables never appear there).
func childExprs(e ast.Expr) []ast.Expr {
	switch n := e.(type) {
	case *ast.ListLiteral:
		return n.Elements
	case *ast.RecordLiteral:
		out := make([]ast.Expr, len(n.Fields))
		for i, f := range n.Fields {
			out[i] = f.Value
		}
		return out
	case *ast.FieldAccess:
		return []ast.Expr{n.Record}
	case *ast.Projection:
		return []ast.Expr{n.Record}
	case *ast.Merge:
		return []ast.Expr{n.Left, n.Right}
	case *ast.ModuleCall:
		out := make([]ast.Expr, 0, len(n.Args)+len(n.Options))
		for _, a := range n.Args {
			out = append(out, a.Value)
		}
		for _, o := range n.Options {
			out = append(out, o.Value)
		}
		return out
	case *ast.If:
		return []ast.Expr{n.Cond, n.Then, n.Else}
	case *ast.Branch:
		out := make([]ast.Expr, 0, len(n.Cases)*2+1)
		for _, cs := range n.Cases {
			out = append(out, cs.Cond, cs.Body)
		}
		return append(out, n.Otherwise)
	case *ast.Match:
		out := []ast.Expr{n.Scrutinee}
		for _, cs := range n.Cases {
			out = append(out, cs.Body)
		}
		return out
	case *ast.Guard:
		return []ast.Expr{n.Value, n.Cond}
	case *ast.Coalesce:
		return []ast.Expr{n.Left, n.Right}
	case *ast.BoolOp:
		if n.Right != nil {
			return []ast.Expr{n.Left, n.Right}
		}
		return []ast.Expr{n.Left}
	case *ast.CompareOp:
		return []ast.Expr{n.Left, n.Right}
	case *ast.StringInterpolation:
		var out []ast.Expr
		for _, p := range n.Parts {
			if p.Expr != nil {
				out = append(out, p.Expr)
			}
		}
		return out
	case *ast.Lambda:
		return []ast.Expr{n.Body}
	default:
		return nil
	}
}
