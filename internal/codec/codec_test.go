package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/internal/value"
)

// One deliberately gnarly value exercises every variant the suspension
// snapshot and cache entries can contain: nested records, lists, maps,
// present and absent optionals, and a union payload.
func TestEncodeDecodePreservesStructure(t *testing.T) {
	inner := &value.VRecord{
		Fields: []value.VField{{Name: "code", Value: value.VInt(404)}},
		Typ:    value.NewRecord(value.Field{Name: "code", Type: value.Int}),
	}
	unionTyp := value.NewUnion(inner.Typ, value.String).(*value.Union)
	v := &value.VRecord{
		Fields: []value.VField{
			{Name: "name", Value: value.VString("ada")},
			{Name: "score", Value: value.VFloat(0.5)},
			{Name: "tags", Value: &value.VList{
				Elements: []value.Value{value.VString("a"), value.VString("b")},
				Typ:      &value.List{Elem: value.String},
			}},
			{Name: "attrs", Value: &value.VMap{
				Entries: []value.VMapEntry{{Key: value.VString("k"), Value: value.VInt(1)}},
				Typ:     &value.Map{Key: value.String, Value: value.Int},
			}},
			{Name: "maybe", Value: &value.VOptional{Present: true, Inner: value.VBool(true), Typ: &value.Optional{Inner: value.Boolean}}},
			{Name: "nothing", Value: &value.VOptional{Present: false, Typ: &value.Optional{Inner: value.String}}},
			{Name: "either", Value: &value.VUnion{VariantIdx: 0, Payload: inner, Typ: unionTyp}},
		},
		Typ: value.NewRecord(
			value.Field{Name: "name", Type: value.String},
			value.Field{Name: "score", Type: value.Float},
			value.Field{Name: "tags", Type: &value.List{Elem: value.String}},
			value.Field{Name: "attrs", Type: &value.Map{Key: value.String, Value: value.Int}},
			value.Field{Name: "maybe", Type: &value.Optional{Inner: value.Boolean}},
			value.Field{Name: "nothing", Type: &value.Optional{Inner: value.String}},
			value.Field{Name: "either", Type: unionTyp},
		),
	}

	raw, err := Encode(v)
	require.NoError(t, err)
	back, err := Decode(raw)
	require.NoError(t, err)

	require.True(t, v.Equal(back), "decoded value differs: %s vs %s", v, back)
	require.Equal(t, value.ContentHash(v), value.ContentHash(back))
	require.True(t, value.Subtype(back.Type(), v.Type()))
}

func TestDecodeRecordRejectsNonRecord(t *testing.T) {
	raw, err := Encode(value.VInt(7))
	require.NoError(t, err)
	_, err = DecodeRecord(raw)
	require.Error(t, err)
}

func TestDecodeCorruptPayloadFails(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
}
