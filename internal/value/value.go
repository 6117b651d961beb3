package value

import (
	"fmt"
	"math"
	"sort"
)

// Value is the runtime representation of a pipeline value: one variant
// per type, and the variant tag is always known (no dynamic "any"
// payloads leak across the value/type boundary).
type Value interface {
	Type() Type
	Equal(Value) bool
	String() string
	valueNode()
}

// VString, VInt, VFloat, VBool are the primitive value variants.
type (
	VString string
	VInt    int64
	VFloat  float64
	VBool   bool
)

func (VString) valueNode() {}
func (VInt) valueNode()    {}
func (VFloat) valueNode() {}
func (VBool) valueNode()  {}

func (VString) Type() Type { return String }
func (VInt) Type() Type    { return Int }
func (VFloat) Type() Type  { return Float }
func (VBool) Type() Type   { return Boolean }

func (v VString) String() string { return string(v) }
func (v VInt) String() string    { return fmt.Sprintf("%d", int64(v)) }
func (v VFloat) String() string  { return fmt.Sprintf("%g", float64(v)) }
func (v VBool) String() string   { return fmt.Sprintf("%t", bool(v)) }

func (v VString) Equal(o Value) bool { t, ok := o.(VString); return ok && v == t }
func (v VInt) Equal(o Value) bool    { t, ok := o.(VInt); return ok && v == t }
func (v VBool) Equal(o Value) bool   { t, ok := o.(VBool); return ok && v == t }

// Equal on floats normalizes NaN (any NaN equals any NaN) and -0.0/+0.0,
// mirroring the content-hash canonicalization below so Equal and
// content-hash equality never disagree on a float value.
func (v VFloat) Equal(o Value) bool {
	t, ok := o.(VFloat)
	if !ok {
		return false
	}
	if math.IsNaN(float64(v)) && math.IsNaN(float64(t)) {
		return true
	}
	return canonicalFloat(float64(v)) == canonicalFloat(float64(t))
}

func canonicalFloat(f float64) float64 {
	if f == 0 {
		return 0 // normalizes -0.0 to +0.0
	}
	return f
}

// VRecord is a record value: an ordered field list matching its Record
// type's declared order.
type VRecord struct {
	Fields []VField
	Typ    *Record
}

// VField is one field of a VRecord.
type VField struct {
	Name  string
	Value Value
}

func (r *VRecord) valueNode()  {}
func (r *VRecord) Type() Type  { return r.Typ }
func (r *VRecord) String() string {
	s := "{"
	for i, f := range r.Fields {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", f.Name, f.Value.String())
	}
	return s + "}"
}

// FieldValue returns the value of the named field.
func (r *VRecord) FieldValue(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r *VRecord) Equal(o Value) bool {
	t, ok := o.(*VRecord)
	if !ok || len(r.Fields) != len(t.Fields) {
		return false
	}
	for _, f := range r.Fields {
		ov, ok := t.FieldValue(f.Name)
		if !ok || !f.Value.Equal(ov) {
			return false
		}
	}
	return true
}

// VList is a list value.
type VList struct {
	Elements []Value
	Typ      *List
}

func (l *VList) valueNode() {}
func (l *VList) Type() Type { return l.Typ }
func (l *VList) String() string {
	s := "["
	for i, e := range l.Elements {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + "]"
}

func (l *VList) Equal(o Value) bool {
	t, ok := o.(*VList)
	if !ok || len(l.Elements) != len(t.Elements) {
		return false
	}
	for i := range l.Elements {
		if !l.Elements[i].Equal(t.Elements[i]) {
			return false
		}
	}
	return true
}

// VMapEntry is one key/value pair of a VMap.
type VMapEntry struct {
	Key   Value
	Value Value
}

// VMap is a map value; order is not significant.
type VMap struct {
	Entries []VMapEntry
	Typ     *Map
}

func (m *VMap) valueNode() {}
func (m *VMap) Type() Type { return m.Typ }
func (m *VMap) String() string {
	s := "Map{"
	for i, e := range m.Entries {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", e.Key.String(), e.Value.String())
	}
	return s + "}"
}

func (m *VMap) Equal(o Value) bool {
	t, ok := o.(*VMap)
	if !ok || len(m.Entries) != len(t.Entries) {
		return false
	}
	for _, e := range m.Entries {
		found := false
		for _, oe := range t.Entries {
			if e.Key.Equal(oe.Key) {
				found = e.Value.Equal(oe.Value)
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// VOptional is an Optional(T) value: either present with an inner value, or
// absent.
type VOptional struct {
	Present bool
	Inner   Value
	Typ     *Optional
}

func (o *VOptional) valueNode() {}
func (o *VOptional) Type() Type { return o.Typ }
func (o *VOptional) String() string {
	if !o.Present {
		return "none"
	}
	return fmt.Sprintf("some(%s)", o.Inner.String())
}

func (o *VOptional) Equal(other Value) bool {
	t, ok := other.(*VOptional)
	if !ok || o.Present != t.Present {
		return false
	}
	if !o.Present {
		return true
	}
	return o.Inner.Equal(t.Inner)
}

// VUnion is a union value: the variant index identifies which member
// type the payload conforms to. The index is never exposed externally
// as a "variantN" tag string; match sites discriminate structurally.
type VUnion struct {
	VariantIdx int
	Payload    Value
	Typ        *Union
}

func (u *VUnion) valueNode() {}
func (u *VUnion) Type() Type { return u.Typ }
func (u *VUnion) String() string {
	return u.Payload.String()
}

func (u *VUnion) Equal(o Value) bool {
	t, ok := o.(*VUnion)
	if !ok {
		return false
	}
	return u.Payload.Equal(t.Payload)
}

// NewRecordValue builds a VRecord, validating that fields match exactly the
// type's declared field set (order of construction may differ from the
// type's declared order).
func NewRecordValue(typ *Record, fields ...VField) (*VRecord, error) {
	if len(fields) != len(typ.Fields) {
		return nil, fmt.Errorf("record arity mismatch: want %d fields, got %d", len(typ.Fields), len(fields))
	}
	ordered := make([]VField, len(typ.Fields))
	for i, tf := range typ.Fields {
		found := false
		for _, f := range fields {
			if f.Name == tf.Name {
				ordered[i] = f
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("record missing field %q", tf.Name)
		}
	}
	return &VRecord{Fields: ordered, Typ: typ}, nil
}

// sortedFields returns a VRecord's fields sorted by name, used by
// content_hash so field order never affects the digest.
func sortedFields(r *VRecord) []VField {
	out := make([]VField, len(r.Fields))
	copy(out, r.Fields)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
