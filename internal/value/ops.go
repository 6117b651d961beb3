package value

import "fmt"

// Conforms reports whether v's dynamic type satisfies t, used to test a
// match scrutinee (typically a union member's payload) against a
// TypePattern's resolved type.
func Conforms(v Value, t Type) bool {
	return Subtype(v.Type(), t)
}

// Compare evaluates one of ==, !=, <, >, <=, >= on two runtime values
//: equality works on any comparable pair, ordering requires both
// sides to be Int or Float.
func Compare(op string, l, r Value) (VBool, error) {
	switch op {
	case "==":
		return VBool(l.Equal(r)), nil
	case "!=":
		return VBool(!l.Equal(r)), nil
	}
	lf, lok := numericOf(l)
	rf, rok := numericOf(r)
	if !lok || !rok {
		return false, fmt.Errorf("value: operator %s requires Int or Float operands, got %s and %s", op, l.Type(), r.Type())
	}
	switch op {
	case "<":
		return VBool(lf < rf), nil
	case ">":
		return VBool(lf > rf), nil
	case "<=":
		return VBool(lf <= rf), nil
	case ">=":
		return VBool(lf >= rf), nil
	}
	return false, fmt.Errorf("value: unknown comparison operator %q", op)
}

func numericOf(v Value) (float64, bool) {
	switch n := v.(type) {
	case VInt:
		return float64(n), true
	case VFloat:
		return float64(n), true
	default:
		return 0, false
	}
}

// MergeRecordValues implements `a + b` on two record values: right wins
// on a field name collision.
func MergeRecordValues(a, b *VRecord) *VRecord {
	order := make([]string, 0, len(a.Fields)+len(b.Fields))
	byName := make(map[string]Value, len(a.Fields)+len(b.Fields))
	for _, f := range a.Fields {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = f.Value
	}
	for _, f := range b.Fields {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = f.Value
	}
	fields := make([]VField, len(order))
	typFields := make([]Field, len(order))
	for i, name := range order {
		fields[i] = VField{Name: name, Value: byName[name]}
		typFields[i] = Field{Name: name, Type: byName[name].Type()}
	}
	return &VRecord{Fields: fields, Typ: NewRecord(typFields...)}
}

// ProjectRecordValue implements `record[f1, f2, ...]` at the value level.
// A requested field absent from r is a defect of an earlier, already
// typechecked compilation stage, not a runtime condition to recover from.
func ProjectRecordValue(r *VRecord, names []string) *VRecord {
	fields := make([]VField, 0, len(names))
	typFields := make([]Field, 0, len(names))
	for _, n := range names {
		fv, ok := r.FieldValue(n)
		if !ok {
			continue
		}
		fields = append(fields, VField{Name: n, Value: fv})
		typFields = append(typFields, Field{Name: n, Type: fv.Type()})
	}
	return &VRecord{Fields: fields, Typ: NewRecord(typFields...)}
}

// Merge implements `a + b`, broadcasting a record across a list of
// records element-wise when one side is a list and the other a bare
// record (the WRN003 case); err is non-nil only for a shape the type
// checker should already have rejected.
func Merge(a, b Value) (Value, error) {
	ar, aIsRec := a.(*VRecord)
	br, bIsRec := b.(*VRecord)
	if aIsRec && bIsRec {
		return MergeRecordValues(ar, br), nil
	}
	if al, ok := a.(*VList); ok && bIsRec {
		return broadcastMerge(al, br, true)
	}
	if bl, ok := b.(*VList); ok && aIsRec {
		return broadcastMerge(bl, ar, false)
	}
	return nil, fmt.Errorf("value: cannot merge %s and %s", a.Type(), b.Type())
}

// broadcastMerge merges rec into every element of list. recOnRight
// preserves the textual operand order (list + rec vs. rec + list) for the
// result's field precedence.
func broadcastMerge(list *VList, rec *VRecord, recOnRight bool) (Value, error) {
	out := make([]Value, len(list.Elements))
	var elemType Type
	for i, el := range list.Elements {
		er, ok := el.(*VRecord)
		if !ok {
			return nil, fmt.Errorf("value: cannot broadcast-merge non-record list element %s", el.Type())
		}
		var merged *VRecord
		if recOnRight {
			merged = MergeRecordValues(er, rec)
		} else {
			merged = MergeRecordValues(rec, er)
		}
		out[i] = merged
		elemType = merged.Typ
	}
	if elemType == nil {
		elemType = NothingType
	}
	return &VList{Elements: out, Typ: &List{Elem: elemType}}, nil
}

// FieldAccessValue implements `record.field`, broadcasting across a
// list of records into a list of the field's value.
func FieldAccessValue(v Value, field string) (Value, error) {
	switch t := v.(type) {
	case *VRecord:
		fv, ok := t.FieldValue(field)
		if !ok {
			return nil, fmt.Errorf("value: record has no field %q", field)
		}
		return fv, nil
	case *VList:
		out := make([]Value, len(t.Elements))
		var elemType Type = NothingType
		for i, el := range t.Elements {
			er, ok := el.(*VRecord)
			if !ok {
				return nil, fmt.Errorf("value: cannot access field %q on non-record list element %s", field, el.Type())
			}
			fv, ok := er.FieldValue(field)
			if !ok {
				return nil, fmt.Errorf("value: record has no field %q", field)
			}
			out[i] = fv
			elemType = fv.Type()
		}
		return &VList{Elements: out, Typ: &List{Elem: elemType}}, nil
	default:
		return nil, fmt.Errorf("value: cannot access field %q on %s", field, v.Type())
	}
}

// Zero returns the zero value of t: the empty string, 0, false, a
// record of each field's zero value, an empty list/map, an absent
// optional, or (for a union) the zero value of its first member. Used by
// the `on_error: skip`/`log` resilience strategies to
// substitute a value for a failed module call without poisoning its
// output cell.
func Zero(t Type) Value {
	switch tt := t.(type) {
	case *Primitive:
		switch tt.Kind {
		case KString:
			return VString("")
		case KInt:
			return VInt(0)
		case KFloat:
			return VFloat(0)
		default:
			return VBool(false)
		}
	case *Record:
		fields := make([]VField, len(tt.Fields))
		for i, f := range tt.Fields {
			fields[i] = VField{Name: f.Name, Value: Zero(f.Type)}
		}
		return &VRecord{Fields: fields, Typ: tt}
	case *List:
		return &VList{Typ: tt}
	case *Map:
		return &VMap{Typ: tt}
	case *Optional:
		return &VOptional{Present: false, Typ: tt}
	case *Union:
		if len(tt.Members) == 0 {
			return VBool(false)
		}
		return Zero(tt.Members[0])
	default:
		return VBool(false)
	}
}

// ProjectValue implements `record[f1, f2, ...]`, broadcasting across a
// list of records.
func ProjectValue(v Value, names []string) (Value, error) {
	switch t := v.(type) {
	case *VRecord:
		return ProjectRecordValue(t, names), nil
	case *VList:
		out := make([]Value, len(t.Elements))
		var elemType Type = NothingType
		for i, el := range t.Elements {
			er, ok := el.(*VRecord)
			if !ok {
				return nil, fmt.Errorf("value: cannot project non-record list element %s", el.Type())
			}
			proj := ProjectRecordValue(er, names)
			out[i] = proj
			elemType = proj.Typ
		}
		return &VList{Elements: out, Typ: &List{Elem: elemType}}, nil
	default:
		return nil, fmt.Errorf("value: cannot project non-record type %s", v.Type())
	}
}
