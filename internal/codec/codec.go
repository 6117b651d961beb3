// Package codec provides the one value/type encoding shared by every
// component that must persist a *value.Value past the lifetime of the
// process that produced it: the resilience cache (internal/resilience,
// cache step) and suspended-execution snapshots. Both need the same thing — a self-describing byte form that
// survives a round trip through an opaque []byte-keyed store — so this
// is a stdlib encoding/json tree rather than two bespoke ones: no
// ecosystem serialization library in the retrieved examples targets a
// type algebra this shape, and a hand-rolled binary format would only
// reinvent what encoding/json already gives for free at this SPI
// boundary.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/flowrun/flowrun/internal/value"
)

// wireType is a JSON-friendly mirror of value.Type: the Kind tag plus
// only the fields that kind uses.
type wireType struct {
	Kind    string      `json:"kind"`
	Fields  []wireField `json:"fields,omitempty"`
	Elem    *wireType   `json:"elem,omitempty"`
	Key     *wireType   `json:"key,omitempty"`
	Val     *wireType   `json:"val,omitempty"`
	Members []wireType  `json:"members,omitempty"`
}

type wireField struct {
	Name string   `json:"name"`
	Type wireType `json:"type"`
}

// wireValue is a JSON-friendly mirror of value.Value, carrying its own
// type alongside so Decode never needs an externally supplied schema.
type wireValue struct {
	Type     wireType     `json:"type"`
	Str      string       `json:"str,omitempty"`
	Int      int64        `json:"int,omitempty"`
	Float    float64      `json:"float,omitempty"`
	Bool     bool         `json:"bool,omitempty"`
	Fields   []wireFV     `json:"fields,omitempty"`
	Elements []wireValue  `json:"elements,omitempty"`
	Entries  []wireEntry  `json:"entries,omitempty"`
	Present  bool         `json:"present,omitempty"`
	Inner    *wireValue   `json:"inner,omitempty"`
	Variant  int          `json:"variant,omitempty"`
	Payload  *wireValue   `json:"payload,omitempty"`
}

type wireFV struct {
	Name  string    `json:"name"`
	Value wireValue `json:"value"`
}

type wireEntry struct {
	Key   wireValue `json:"key"`
	Value wireValue `json:"value"`
}

// Encode serializes v (with its type) to bytes.
func Encode(v value.Value) ([]byte, error) {
	return json.Marshal(encodeValue(v))
}

// Decode reconstructs a value.Value from bytes produced by Encode.
func Decode(data []byte) (value.Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return decodeValue(w)
}

func encodeType(t value.Type) wireType {
	switch tt := t.(type) {
	case *value.Primitive:
		switch tt.Kind {
		case value.KString:
			return wireType{Kind: "string"}
		case value.KInt:
			return wireType{Kind: "int"}
		case value.KFloat:
			return wireType{Kind: "float"}
		default:
			return wireType{Kind: "boolean"}
		}
	case *value.Record:
		fields := make([]wireField, len(tt.Fields))
		for i, f := range tt.Fields {
			fields[i] = wireField{Name: f.Name, Type: encodeType(f.Type)}
		}
		return wireType{Kind: "record", Fields: fields}
	case *value.List:
		elem := encodeType(tt.Elem)
		return wireType{Kind: "list", Elem: &elem}
	case *value.Map:
		k := encodeType(tt.Key)
		v := encodeType(tt.Value)
		return wireType{Kind: "map", Key: &k, Val: &v}
	case *value.Optional:
		elem := encodeType(tt.Inner)
		return wireType{Kind: "optional", Elem: &elem}
	case *value.Union:
		members := make([]wireType, len(tt.Members))
		for i, m := range tt.Members {
			members[i] = encodeType(m)
		}
		return wireType{Kind: "union", Members: members}
	default:
		return wireType{Kind: "nothing"}
	}
}

func decodeType(w wireType) (value.Type, error) {
	switch w.Kind {
	case "string":
		return value.String, nil
	case "int":
		return value.Int, nil
	case "float":
		return value.Float, nil
	case "boolean":
		return value.Boolean, nil
	case "nothing":
		return value.NothingType, nil
	case "record":
		fields := make([]value.Field, len(w.Fields))
		for i, f := range w.Fields {
			ft, err := decodeType(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = value.Field{Name: f.Name, Type: ft}
		}
		return value.NewRecord(fields...), nil
	case "list":
		elem, err := decodeType(*w.Elem)
		if err != nil {
			return nil, err
		}
		return &value.List{Elem: elem}, nil
	case "map":
		k, err := decodeType(*w.Key)
		if err != nil {
			return nil, err
		}
		v, err := decodeType(*w.Val)
		if err != nil {
			return nil, err
		}
		return &value.Map{Key: k, Value: v}, nil
	case "optional":
		elem, err := decodeType(*w.Elem)
		if err != nil {
			return nil, err
		}
		return &value.Optional{Inner: elem}, nil
	case "union":
		members := make([]value.Type, len(w.Members))
		for i, m := range w.Members {
			mt, err := decodeType(m)
			if err != nil {
				return nil, err
			}
			members[i] = mt
		}
		return value.NewUnion(members...), nil
	default:
		return nil, fmt.Errorf("codec: unknown type kind %q", w.Kind)
	}
}

func encodeValue(v value.Value) wireValue {
	t := encodeType(v.Type())
	switch vv := v.(type) {
	case value.VString:
		return wireValue{Type: t, Str: string(vv)}
	case value.VInt:
		return wireValue{Type: t, Int: int64(vv)}
	case value.VFloat:
		return wireValue{Type: t, Float: float64(vv)}
	case value.VBool:
		return wireValue{Type: t, Bool: bool(vv)}
	case *value.VRecord:
		fields := make([]wireFV, len(vv.Fields))
		for i, f := range vv.Fields {
			fields[i] = wireFV{Name: f.Name, Value: encodeValue(f.Value)}
		}
		return wireValue{Type: t, Fields: fields}
	case *value.VList:
		elems := make([]wireValue, len(vv.Elements))
		for i, e := range vv.Elements {
			elems[i] = encodeValue(e)
		}
		return wireValue{Type: t, Elements: elems}
	case *value.VMap:
		entries := make([]wireEntry, len(vv.Entries))
		for i, e := range vv.Entries {
			entries[i] = wireEntry{Key: encodeValue(e.Key), Value: encodeValue(e.Value)}
		}
		return wireValue{Type: t, Entries: entries}
	case *value.VOptional:
		w := wireValue{Type: t, Present: vv.Present}
		if vv.Present {
			inner := encodeValue(vv.Inner)
			w.Inner = &inner
		}
		return w
	case *value.VUnion:
		payload := encodeValue(vv.Payload)
		return wireValue{Type: t, Variant: vv.VariantIdx, Payload: &payload}
	default:
		return wireValue{Type: t}
	}
}

func decodeValue(w wireValue) (value.Value, error) {
	t, err := decodeType(w.Type)
	if err != nil {
		return nil, err
	}
	switch w.Type.Kind {
	case "string":
		return value.VString(w.Str), nil
	case "int":
		return value.VInt(w.Int), nil
	case "float":
		return value.VFloat(w.Float), nil
	case "boolean":
		return value.VBool(w.Bool), nil
	case "record":
		rt, ok := t.(*value.Record)
		if !ok {
			return nil, fmt.Errorf("codec: expected record type")
		}
		fields := make([]value.VField, len(w.Fields))
		for i, f := range w.Fields {
			fv, err := decodeValue(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = value.VField{Name: f.Name, Value: fv}
		}
		return value.NewRecordValue(rt, fields...)
	case "list":
		lt, ok := t.(*value.List)
		if !ok {
			return nil, fmt.Errorf("codec: expected list type")
		}
		elems := make([]value.Value, len(w.Elements))
		for i, e := range w.Elements {
			ev, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		return &value.VList{Elements: elems, Typ: lt}, nil
	case "map":
		mt, ok := t.(*value.Map)
		if !ok {
			return nil, fmt.Errorf("codec: expected map type")
		}
		entries := make([]value.VMapEntry, len(w.Entries))
		for i, e := range w.Entries {
			k, err := decodeValue(e.Key)
			if err != nil {
				return nil, err
			}
			v, err := decodeValue(e.Value)
			if err != nil {
				return nil, err
			}
			entries[i] = value.VMapEntry{Key: k, Value: v}
		}
		return &value.VMap{Entries: entries, Typ: mt}, nil
	case "optional":
		ot, ok := t.(*value.Optional)
		if !ok {
			return nil, fmt.Errorf("codec: expected optional type")
		}
		out := &value.VOptional{Present: w.Present, Typ: ot}
		if w.Present {
			inner, err := decodeValue(*w.Inner)
			if err != nil {
				return nil, err
			}
			out.Inner = inner
		}
		return out, nil
	case "union":
		ut, ok := t.(*value.Union)
		if !ok {
			return nil, fmt.Errorf("codec: expected union type")
		}
		payload, err := decodeValue(*w.Payload)
		if err != nil {
			return nil, err
		}
		return &value.VUnion{VariantIdx: w.Variant, Payload: payload, Typ: ut}, nil
	default:
		return nil, fmt.Errorf("codec: unknown value kind %q", w.Type.Kind)
	}
}

// EncodeRecord and DecodeRecord are the *value.VRecord-typed convenience
// wrappers every caller in this codebase actually needs (cache entries
// and suspension snapshots are always records).
func EncodeRecord(r *value.VRecord) ([]byte, error) {
	return Encode(r)
}

func DecodeRecord(data []byte) (*value.VRecord, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*value.VRecord)
	if !ok {
		return nil, fmt.Errorf("codec: expected record, got %T", v)
	}
	return r, nil
}
