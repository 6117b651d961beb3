// Package value implements the runtime value and structural type algebra
// shared by every compilation and execution stage.
package value

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the closed type algebra: String, Int, Float, Boolean,
// Record, List, Map, Optional, Union and the bottom type Nothing.
type Type interface {
	String() string
	typeNode()
}

// Kind distinguishes the primitive type variants for fast switches without
// a full type assertion.
type Kind int

const (
	KString Kind = iota
	KInt
	KFloat
	KBoolean
	KRecord
	KList
	KMap
	KOptional
	KUnion
	KNothing
)

// Primitive is one of String, Int, Float, Boolean.
type Primitive struct {
	Kind Kind
}

func (p *Primitive) typeNode() {}
func (p *Primitive) String() string {
	switch p.Kind {
	case KString:
		return "String"
	case KInt:
		return "Int"
	case KFloat:
		return "Float"
	case KBoolean:
		return "Boolean"
	default:
		return "?primitive"
	}
}

var (
	String  Type = &Primitive{Kind: KString}
	Int     Type = &Primitive{Kind: KInt}
	Float   Type = &Primitive{Kind: KFloat}
	Boolean Type = &Primitive{Kind: KBoolean}
	// NothingType is the bottom type: subtype of every type, never constructed
	// directly by user code.
	NothingType Type = &nothingType{}
)

type nothingType struct{}

func (*nothingType) typeNode()      {}
func (*nothingType) String() string { return "Nothing" }

// Field is one entry of a Record's ordered field list. Order is preserved
// for stable display but ignored by Equals/subtype.
type Field struct {
	Name string
	Type Type
}

// Record is a structural record type; an empty record is the top record
// type.
type Record struct {
	Fields []Field
}

func (r *Record) typeNode() {}
func (r *Record) String() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FieldType returns the type of name and whether it is present.
func (r *Record) FieldType(name string) (Type, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// FieldNames returns the record's field names in declared order.
func (r *Record) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// NewRecord builds a Record, preserving the given field order.
func NewRecord(fields ...Field) *Record {
	return &Record{Fields: fields}
}

// List is List(T): an ordered, finite sequence of elements of type T.
type List struct {
	Elem Type
}

func (l *List) typeNode()      {}
func (l *List) String() string { return fmt.Sprintf("[%s]", l.Elem.String()) }

// Map is Map(K, V): an unordered mapping (keys are invariant under subtyping).
type Map struct {
	Key   Type
	Value Type
}

func (m *Map) typeNode() {}
func (m *Map) String() string {
	return fmt.Sprintf("Map[%s, %s]", m.Key.String(), m.Value.String())
}

// Optional is Optional(T): present with a value of T, or absent.
type Optional struct {
	Inner Type
}

func (o *Optional) typeNode()      {}
func (o *Optional) String() string { return fmt.Sprintf("%s?", o.Inner.String()) }

// Union is a set of member types; nested unions are always flattened by
// NewUnion so a Union node never has a Union member.
type Union struct {
	Members []Type
}

func (u *Union) typeNode() {}
func (u *Union) String() string {
	parts := make([]string, len(u.Members))
	for i, m := range u.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

// NewUnion flattens nested unions and de-duplicates structurally-equal
// members. A union of a single member collapses to that member.
func NewUnion(members ...Type) Type {
	flat := make([]Type, 0, len(members))
	for _, m := range members {
		if u, ok := m.(*Union); ok {
			flat = append(flat, u.Members...)
		} else {
			flat = append(flat, m)
		}
	}
	dedup := make([]Type, 0, len(flat))
	for _, m := range flat {
		seen := false
		for _, d := range dedup {
			if Equal(d, m) {
				seen = true
				break
			}
		}
		if !seen {
			dedup = append(dedup, m)
		}
	}
	if len(dedup) == 1 {
		return dedup[0]
	}
	return &Union{Members: dedup}
}

// Equal reports structural type equality, ignoring record field order.
func Equal(a, b Type) bool {
	return Subtype(a, b) && Subtype(b, a)
}

// IsNothing reports whether t is the bottom type.
func IsNothing(t Type) bool {
	_, ok := t.(*nothingType)
	return ok
}

// Subtype implements the structural subtyping relation `A <: B`:
// reflexive, transitive, Nothing is bottom, records allow width subtyping
// (extra fields in A are allowed), lists/optionals are covariant in their
// element, maps are invariant in the key and covariant in the value, and
// unions follow the standard introduction/elimination rule.
func Subtype(a, b Type) bool {
	if IsNothing(a) {
		return true
	}
	if bu, ok := b.(*Union); ok {
		for _, m := range bu.Members {
			if Subtype(a, m) {
				return true
			}
		}
		// a itself may be a union: Union(S) <: T iff every U in S has U <: T.
		if au, ok := a.(*Union); ok {
			for _, m := range au.Members {
				if !Subtype(m, b) {
					return false
				}
			}
			return len(au.Members) > 0
		}
		return false
	}
	if au, ok := a.(*Union); ok {
		for _, m := range au.Members {
			if !Subtype(m, b) {
				return false
			}
		}
		return len(au.Members) > 0
	}

	switch bt := b.(type) {
	case *Primitive:
		at, ok := a.(*Primitive)
		return ok && at.Kind == bt.Kind
	case *Record:
		at, ok := a.(*Record)
		if !ok {
			return false
		}
		for _, bf := range bt.Fields {
			af, found := at.FieldType(bf.Name)
			if !found || !Subtype(af, bf.Type) {
				return false
			}
		}
		return true
	case *List:
		at, ok := a.(*List)
		return ok && Subtype(at.Elem, bt.Elem)
	case *Map:
		at, ok := a.(*Map)
		if !ok {
			return false
		}
		return Equal(at.Key, bt.Key) && Subtype(at.Value, bt.Value)
	case *Optional:
		if at, ok := a.(*Optional); ok {
			return Subtype(at.Inner, bt.Inner)
		}
		return false
	case *nothingType:
		return IsNothing(a)
	default:
		return false
	}
}

// LUB computes the least upper bound of a and b used by if/branch/coalesce
// typing: the common supertype when one subtypes the other, else a
// two-member union.
func LUB(a, b Type) Type {
	if Subtype(a, b) {
		return b
	}
	if Subtype(b, a) {
		return a
	}
	return NewUnion(a, b)
}

// MergeRecords implements `a + b` on two record types: the union of fields
// with right-wins on conflicts.
func MergeRecords(a, b *Record) *Record {
	order := make([]string, 0, len(a.Fields)+len(b.Fields))
	byName := make(map[string]Type, len(a.Fields)+len(b.Fields))
	for _, f := range a.Fields {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = f.Type
	}
	for _, f := range b.Fields {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = f.Type
	}
	fields := make([]Field, len(order))
	for i, name := range order {
		fields[i] = Field{Name: name, Type: byName[name]}
	}
	return &Record{Fields: fields}
}

// ProjectRecord implements `record[f1, f2, ...]`: the result type contains
// only the requested fields, in request order.
func ProjectRecord(r *Record, names []string) (*Record, []string) {
	var missing []string
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		t, ok := r.FieldType(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		fields = append(fields, Field{Name: n, Type: t})
	}
	return &Record{Fields: fields}, missing
}

// sortedFieldNames returns a record's field names sorted lexicographically.
func sortedFieldNames(r *Record) []string {
	names := r.FieldNames()
	sort.Strings(names)
	return names
}
