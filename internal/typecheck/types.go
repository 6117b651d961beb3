package typecheck

import (
	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/value"
)

// resolveTypeExpr converts a parsed TypeExpr into the runtime Type algebra
//. An undefined TypeRef is reported as TC002 and resolves to
// Nothing so callers can keep going.
func (c *Checker) resolveTypeExpr(te ast.TypeExpr) value.Type {
	switch t := te.(type) {
	case *ast.PrimitiveType:
		switch t.Kind {
		case ast.TString:
			return value.String
		case ast.TInt:
			return value.Int
		case ast.TFloat:
			return value.Float
		case ast.TBoolean:
			return value.Boolean
		default:
			return value.NothingType
		}

	case *ast.RecordType:
		fields := make([]value.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = value.Field{Name: f.Name, Type: c.resolveTypeExpr(f.Type)}
		}
		return value.NewRecord(fields...)

	case *ast.ListType:
		return &value.List{Elem: c.resolveTypeExpr(t.Elem)}

	case *ast.MapType:
		return &value.Map{Key: c.resolveTypeExpr(t.Key), Value: c.resolveTypeExpr(t.Val)}

	case *ast.OptionalType:
		return &value.Optional{Inner: c.resolveTypeExpr(t.Elem)}

	case *ast.UnionType:
		members := make([]value.Type, len(t.Variants))
		for i, v := range t.Variants {
			members[i] = c.resolveTypeExpr(v)
		}
		return value.NewUnion(members...)

	case *ast.TypeRef:
		if rt, ok := c.typeDefs[t.Name]; ok {
			return rt
		}
		c.errTC(errors.TC002, t.Sp, "undefined type %q", t.Name)
		return value.NothingType

	default:
		return value.NothingType
	}
}

// ResolveTypeExpr resolves a parsed TypeExpr to the runtime Type algebra
// outside of a Checker pass, given the named `type` declarations already
// resolved by an earlier Check. internal/ir uses this to resolve a match
// case's TypePattern once at compile time rather than re-deriving it
// from scratch at every match evaluation.
func ResolveTypeExpr(te ast.TypeExpr, typeDefs map[string]value.Type) value.Type {
	c := &Checker{typeDefs: typeDefs}
	return c.resolveTypeExpr(te)
}
