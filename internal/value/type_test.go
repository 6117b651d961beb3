package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rec(fields ...Field) *Record { return NewRecord(fields...) }

func TestSubtypeReflexive(t *testing.T) {
	types := []Type{
		String, Int, Float, Boolean, NothingType,
		rec(Field{Name: "a", Type: Int}),
		&List{Elem: String},
		&Map{Key: String, Value: Int},
		&Optional{Inner: String},
		NewUnion(String, Int),
	}
	for _, typ := range types {
		require.True(t, Subtype(typ, typ), typ.String())
	}
}

func TestNothingIsBottom(t *testing.T) {
	for _, typ := range []Type{String, Int, rec(Field{Name: "a", Type: Int}), &List{Elem: String}, NewUnion(String, Int)} {
		require.True(t, Subtype(NothingType, typ), typ.String())
		require.False(t, Subtype(typ, NothingType), typ.String())
	}
}

func TestRecordWidthSubtyping(t *testing.T) {
	wide := rec(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String})
	narrow := rec(Field{Name: "a", Type: Int})

	require.True(t, Subtype(wide, narrow))
	require.False(t, Subtype(narrow, wide))

	// The empty record is the top record type.
	require.True(t, Subtype(wide, rec()))
	require.True(t, Subtype(narrow, rec()))
}

func TestRecordDepthSubtyping(t *testing.T) {
	inner := rec(Field{Name: "x", Type: Int}, Field{Name: "y", Type: Int})
	a := rec(Field{Name: "p", Type: inner})
	b := rec(Field{Name: "p", Type: rec(Field{Name: "x", Type: Int})})
	require.True(t, Subtype(a, b))
	require.False(t, Subtype(b, a))
}

func TestListAndOptionalCovariant(t *testing.T) {
	wide := rec(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String})
	narrow := rec(Field{Name: "a", Type: Int})

	require.True(t, Subtype(&List{Elem: wide}, &List{Elem: narrow}))
	require.False(t, Subtype(&List{Elem: narrow}, &List{Elem: wide}))
	require.True(t, Subtype(&Optional{Inner: wide}, &Optional{Inner: narrow}))
}

func TestMapValueCovariantKeyInvariant(t *testing.T) {
	wide := rec(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String})
	narrow := rec(Field{Name: "a", Type: Int})

	require.True(t, Subtype(&Map{Key: String, Value: wide}, &Map{Key: String, Value: narrow}))
	require.False(t, Subtype(&Map{Key: wide, Value: Int}, &Map{Key: narrow, Value: Int}))
}

func TestUnionSubtyping(t *testing.T) {
	u := NewUnion(String, Int)
	require.True(t, Subtype(String, u))
	require.True(t, Subtype(Int, u))
	require.False(t, Subtype(Boolean, u))

	// Union on the left requires every member to satisfy the target.
	require.True(t, Subtype(NewUnion(String, Int), NewUnion(String, Int, Boolean)))
	require.False(t, Subtype(NewUnion(String, Boolean), NewUnion(String, Int)))
}

func TestNestedUnionsFlatten(t *testing.T) {
	u := NewUnion(NewUnion(String, Int), Boolean)
	flat, ok := u.(*Union)
	require.True(t, ok)
	require.Len(t, flat.Members, 3)
}

func TestLUBUsesUnionWhenNoCommonSupertype(t *testing.T) {
	require.True(t, Equal(LUB(String, String), String))
	lub := LUB(String, Int)
	require.True(t, Subtype(String, lub))
	require.True(t, Subtype(Int, lub))
}

func TestMergeRecordsRightWins(t *testing.T) {
	a := rec(Field{Name: "x", Type: Int}, Field{Name: "y", Type: String})
	b := rec(Field{Name: "y", Type: Int}, Field{Name: "z", Type: Boolean})

	m := MergeRecords(a, b)
	require.Len(t, m.Fields, 3)
	yT, ok := m.FieldType("y")
	require.True(t, ok)
	require.True(t, Equal(yT, Int))
}

func TestDeepNestingSupported(t *testing.T) {
	typ := Type(Int)
	for i := 0; i < 12; i++ {
		typ = rec(Field{Name: "next", Type: typ})
	}
	require.True(t, Subtype(typ, typ))
	require.NotEmpty(t, typ.String())
}

func TestSubtypeOfValueDynamicType(t *testing.T) {
	v := &VRecord{
		Fields: []VField{
			{Name: "a", Value: VInt(1)},
			{Name: "b", Value: VString("s")},
		},
		Typ: rec(Field{Name: "a", Type: Int}, Field{Name: "b", Type: String}),
	}
	declared := rec(Field{Name: "a", Type: Int})
	require.True(t, Subtype(v.Type(), declared))

	empty := &VList{Elements: nil, Typ: &List{Elem: NothingType}}
	require.True(t, Subtype(empty.Type(), &List{Elem: String}))
}
