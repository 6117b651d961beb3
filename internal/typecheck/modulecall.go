package typecheck

import (
	"time"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/value"
)

// hofNames are the reserved lowercase higher-order list operations: they look like module calls syntactically but are
// never registry-resolved — internal/ir intercepts them by name and
// compiles them to MapTransform/FilterTransform/etc. instead of dispatch
// nodes.
var hofNames = map[string]bool{
	"map":    true,
	"filter": true,
	"all":    true,
	"any":    true,
}

func (c *Checker) checkModuleCall(mc *ast.ModuleCall) value.Type {
	if hofNames[mc.Module] {
		return c.checkHOF(mc)
	}

	desc, err := c.registry.Resolve(mc.Module, nil)
	if err != nil {
		c.errTC(errors.TC003, mc.Sp, "undefined function %q", mc.Module)
		for _, a := range mc.Args {
			c.inferExpr(a.Value)
		}
		for _, o := range mc.Options {
			c.inferExpr(o.Value)
		}
		return value.NothingType
	}
	c.moduleCalls[mc] = desc

	named := map[string]ast.Expr{}
	var positional []ast.Expr
	for _, a := range mc.Args {
		if a.Name != "" {
			named[a.Name] = a.Value
		} else {
			positional = append(positional, a.Value)
		}
	}

	posIdx := 0
	for _, param := range desc.Signature.Consumes {
		var argExpr ast.Expr
		if v, ok := named[param.Name]; ok {
			argExpr = v
			delete(named, param.Name)
		} else if posIdx < len(positional) {
			argExpr = positional[posIdx]
			posIdx++
		} else {
			c.errTC(errors.TC005, mc.Sp, "missing argument %q for module %s", param.Name, mc.Module)
			continue
		}
		argT := c.inferExpr(argExpr)
		if !value.Subtype(argT, param.Type) {
			c.errTC(errors.TC004, argExpr.Span(), "argument %q to %s: expected %s, got %s", param.Name, mc.Module, param.Type, argT)
		}
	}
	for name, v := range named {
		c.errTC(errors.TC005, mc.Sp, "module %s has no parameter %q", mc.Module, name)
		c.inferExpr(v)
	}
	if posIdx < len(positional) {
		c.errTC(errors.TC005, mc.Sp, "too many positional arguments to %s (expected %d)", mc.Module, len(desc.Signature.Consumes))
		for _, extra := range positional[posIdx:] {
			c.inferExpr(extra)
		}
	}

	produceT := produceType(desc.Signature.Produces)
	c.checkOptions(mc, produceT)
	if optionIdentifier(mc, "on_error") == "wrap" {
		// `on_error: wrap` converts failures into values: the call types
		// as {ok: T} | {err: {message: String}}.
		okT := value.NewRecord(value.Field{Name: "ok", Type: produceT})
		errT := value.NewRecord(value.Field{Name: "err", Type: value.NewRecord(value.Field{Name: "message", Type: value.String})})
		return value.NewUnion(okT, errT)
	}
	return produceT
}

// optionIdentifier returns the bare-identifier value of an options-clause
// key, or "" when the key is absent or not an identifier.
func optionIdentifier(mc *ast.ModuleCall, key string) string {
	for _, o := range mc.Options {
		if o.Key != key {
			continue
		}
		if v, ok := o.Value.(*ast.Variable); ok {
			return v.Name
		}
	}
	return ""
}

// produceType collapses a single-field produces signature to its bare
// field type (so `result = Uppercase(text)` types `result` as String
// directly rather than `{result: String}`); a multi-field signature types
// as the full output record.
func produceType(produces []modreg.Param) value.Type {
	if len(produces) == 1 {
		return produces[0].Type
	}
	fields := make([]value.Field, len(produces))
	for i, p := range produces {
		fields[i] = value.Field{Name: p.Name, Type: p.Type}
	}
	return value.NewRecord(fields...)
}

// checkHOF type-checks the reserved map/filter/all/any forms: first
// positional arg is the list, second is a Lambda whose parameter type is
// inferred from the list's element type (the one place a Lambda gets a
// type without an explicit annotation).
func (c *Checker) checkHOF(mc *ast.ModuleCall) value.Type {
	if len(mc.Args) != 2 {
		c.errTC(errors.TC005, mc.Sp, "%s expects exactly 2 arguments (list, lambda), got %d", mc.Module, len(mc.Args))
		return value.NothingType
	}
	listT := c.inferExpr(mc.Args[0].Value)
	lambda, ok := mc.Args[1].Value.(*ast.Lambda)
	if !ok {
		c.errTC(errors.TC010, mc.Args[1].Value.Span(), "%s requires a lambda as its second argument", mc.Module)
		return value.NothingType
	}
	list, ok := listT.(*value.List)
	if !ok {
		if !value.IsNothing(listT) {
			c.errTC(errors.TC004, mc.Args[0].Value.Span(), "%s requires a List, got %s", mc.Module, listT)
		}
		return value.NothingType
	}
	if len(lambda.Params) != 1 {
		c.errTC(errors.TC010, lambda.Sp, "%s lambda must take exactly one parameter", mc.Module)
		return value.NothingType
	}

	paramName := lambda.Params[0].Name
	paramType := list.Elem
	if lambda.Params[0].Type != nil {
		paramType = c.resolveTypeExpr(lambda.Params[0].Type)
		if !value.Equal(paramType, list.Elem) && !value.Subtype(list.Elem, paramType) {
			c.errTC(errors.TC004, lambda.Sp, "%s lambda parameter annotated %s but list elements are %s", mc.Module, paramType, list.Elem)
		}
	}

	prev, hadPrev := c.env[paramName]
	c.env[paramName] = paramType
	bodyT := c.inferExpr(lambda.Body)
	c.exprTypes[lambda] = bodyT
	if hadPrev {
		c.env[paramName] = prev
	} else {
		delete(c.env, paramName)
	}

	switch mc.Module {
	case "map":
		return &value.List{Elem: bodyT}
	case "filter":
		if !value.Subtype(bodyT, value.Boolean) {
			c.errTC(errors.TC004, lambda.Body.Span(), "filter predicate must return Boolean, got %s", bodyT)
		}
		return list
	case "all", "any":
		if !value.Subtype(bodyT, value.Boolean) {
			c.errTC(errors.TC004, lambda.Body.Span(), "%s predicate must return Boolean, got %s", mc.Module, bodyT)
		}
		return value.Boolean
	default:
		return value.NothingType
	}
}

// namedPriorityLevels are the five bare identifiers the `priority` key
// accepts in place of an Int literal, mirroring internal/scheduler's
// named Priority constants.
var namedPriorityLevels = map[string]bool{
	"critical": true, "high": true, "normal": true, "low": true, "background": true,
}

var recognizedOptionKeys = map[string]bool{
	"retry": true, "backoff": true, "delay": true, "timeout": true,
	"fallback": true, "cache": true, "cache_backend": true,
	"throttle": true, "concurrency": true, "on_error": true,
	"lazy": true, "priority": true,
}

// checkOptions validates a module call's `with` clause:
// recognized keys, value shapes, and the cross-key consistency warnings
// (WRN002) the type checker owns.
func (c *Checker) checkOptions(mc *ast.ModuleCall, produceT value.Type) {
	present := map[string]bool{}
	for _, o := range mc.Options {
		present[o.Key] = true
		if !recognizedOptionKeys[o.Key] {
			c.warn(errors.WRN002, mc.Sp, "unrecognized option %q", o.Key)
			c.inferExpr(o.Value)
			continue
		}
		switch o.Key {
		case "retry":
			n, ok := intLiteral(o.Value)
			if !ok {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be an Int literal", o.Key)
			} else if n < 0 {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be non-negative", o.Key)
			}
		case "priority":
			// `priority: critical | high | normal | low | background | Int`.
			if v, ok := o.Value.(*ast.Variable); ok {
				if !namedPriorityLevels[v.Name] {
					c.errTC(errors.TC004, o.Value.Span(), "option %q has unknown level %q", o.Key, v.Name)
				}
			} else if n, ok := intLiteral(o.Value); ok {
				if n < 0 {
					c.errTC(errors.TC004, o.Value.Span(), "option %q must be non-negative", o.Key)
				}
			} else {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be an Int literal or a named level", o.Key)
			}
		case "concurrency":
			n, ok := intLiteral(o.Value)
			if !ok {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be an Int literal", o.Key)
			} else if n <= 0 {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be positive", o.Key)
			}
		case "delay", "timeout":
			if _, ok := durationLiteral(o.Value); !ok {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be a duration literal", o.Key)
			}
		case "throttle":
			lit, ok := o.Value.(*ast.Literal)
			if !ok || lit.Kind != ast.RateLit {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be a rate literal", o.Key)
			}
		case "backoff", "on_error":
			if _, ok := o.Value.(*ast.Variable); !ok {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be a bare identifier", o.Key)
			}
		case "cache":
			if !isBoolLiteral(o.Value) {
				if _, ok := durationLiteral(o.Value); !ok {
					c.errTC(errors.TC004, o.Value.Span(), "option %q must be a Boolean or duration literal", o.Key)
				}
			}
		case "cache_backend":
			if _, ok := o.Value.(*ast.Variable); !ok {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be a bare identifier", o.Key)
			}
		case "lazy":
			if !isBoolLiteral(o.Value) {
				c.errTC(errors.TC004, o.Value.Span(), "option %q must be a Boolean literal", o.Key)
			}
		case "fallback":
			fbT := c.inferExpr(o.Value)
			if !value.Subtype(fbT, produceT) {
				c.errTC(errors.TC004, o.Value.Span(), "fallback type %s is not compatible with produced type %s", fbT, produceT)
			}
		}
	}

	if present["delay"] && !present["retry"] {
		c.warn(errors.WRN002, mc.Sp, "option %q has no effect without %q", "delay", "retry")
	}
	if present["backoff"] && !present["retry"] {
		c.warn(errors.WRN002, mc.Sp, "option %q has no effect without %q", "backoff", "retry")
	}
	if present["cache_backend"] && !present["cache"] {
		c.warn(errors.WRN002, mc.Sp, "option %q has no effect without %q", "cache_backend", "cache")
	}
}

func intLiteral(e ast.Expr) (int64, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.IntLit {
		return 0, false
	}
	n, ok := lit.Value.(int64)
	return n, ok
}

func durationLiteral(e ast.Expr) (time.Duration, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.DurationLit {
		return 0, false
	}
	d, ok := lit.Value.(time.Duration)
	return d, ok
}

func isBoolLiteral(e ast.Expr) bool {
	lit, ok := e.(*ast.Literal)
	return ok && lit.Kind == ast.BoolLit
}
