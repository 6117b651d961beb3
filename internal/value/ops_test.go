package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func userRecord() *VRecord {
	return &VRecord{
		Fields: []VField{
			{Name: "name", Value: VString("ada")},
			{Name: "age", Value: VInt(36)},
		},
		Typ: NewRecord(Field{Name: "name", Type: String}, Field{Name: "age", Type: Int}),
	}
}

func TestMergeRecordValuesRightWins(t *testing.T) {
	right := &VRecord{
		Fields: []VField{
			{Name: "age", Value: VInt(37)},
			{Name: "active", Value: VBool(true)},
		},
		Typ: NewRecord(Field{Name: "age", Type: Int}, Field{Name: "active", Type: Boolean}),
	}
	m, err := Merge(userRecord(), right)
	require.NoError(t, err)
	rec := m.(*VRecord)
	require.Len(t, rec.Fields, 3)
	age, _ := rec.FieldValue("age")
	require.Equal(t, VInt(37), age)
}

func TestMergeBroadcastsOverListOfRecords(t *testing.T) {
	list := &VList{
		Elements: []Value{userRecord(), userRecord()},
		Typ:      &List{Elem: userRecord().Typ},
	}
	tag := &VRecord{
		Fields: []VField{{Name: "tagged", Value: VBool(true)}},
		Typ:    NewRecord(Field{Name: "tagged", Type: Boolean}),
	}
	m, err := Merge(list, tag)
	require.NoError(t, err)
	out := m.(*VList)
	require.Len(t, out.Elements, 2)
	for _, e := range out.Elements {
		tagged, ok := e.(*VRecord).FieldValue("tagged")
		require.True(t, ok)
		require.Equal(t, VBool(true), tagged)
	}
}

func TestMergeIncompatibleOperandsFails(t *testing.T) {
	_, err := Merge(VInt(1), VInt(2))
	require.Error(t, err)
}

func TestProjectValueKeepsOnlyRequestedFields(t *testing.T) {
	v, err := ProjectValue(userRecord(), []string{"name"})
	require.NoError(t, err)
	rec := v.(*VRecord)
	require.Len(t, rec.Fields, 1)
	require.Equal(t, "name", rec.Fields[0].Name)
}

func TestFieldAccessBroadcastsOverList(t *testing.T) {
	list := &VList{
		Elements: []Value{userRecord(), userRecord()},
		Typ:      &List{Elem: userRecord().Typ},
	}
	v, err := FieldAccessValue(list, "name")
	require.NoError(t, err)
	names := v.(*VList)
	require.Len(t, names.Elements, 2)
	require.Equal(t, VString("ada"), names.Elements[0])
}

func TestCompareOperators(t *testing.T) {
	eq, err := Compare("==", VString("a"), VString("a"))
	require.NoError(t, err)
	require.Equal(t, VBool(true), eq)

	lt, err := Compare("<", VInt(1), VInt(2))
	require.NoError(t, err)
	require.Equal(t, VBool(true), lt)

	mixed, err := Compare(">=", VFloat(2.5), VInt(2))
	require.NoError(t, err)
	require.Equal(t, VBool(true), mixed)

	_, err = Compare("<", VString("a"), VString("b"))
	require.Error(t, err)
}

func TestZeroValues(t *testing.T) {
	require.Equal(t, VString(""), Zero(String))
	require.Equal(t, VInt(0), Zero(Int))
	require.Equal(t, VBool(false), Zero(Boolean))

	z := Zero(NewRecord(Field{Name: "a", Type: Int}))
	rec, ok := z.(*VRecord)
	require.True(t, ok)
	a, ok := rec.FieldValue("a")
	require.True(t, ok)
	require.Equal(t, VInt(0), a)

	opt, ok := Zero(&Optional{Inner: String}).(*VOptional)
	require.True(t, ok)
	require.False(t, opt.Present)
}

func TestRawBuffersRoundTrip(t *testing.T) {
	ints := NewRawIntBuffer([]int64{1, 2, 3})
	list := ints.ToVList()
	require.Len(t, list.Elements, 3)
	back, ok := RawIntBufferFromVList(list)
	require.True(t, ok)
	require.Equal(t, int64(2), back.At(1))

	floats := NewRawFloatBuffer([]float64{1.5, 2.5})
	flist := floats.ToVList()
	require.Equal(t, VFloat(2.5), flist.Elements[1])
}
