package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentHashStableUnderFieldReorder(t *testing.T) {
	a := &VRecord{
		Fields: []VField{
			{Name: "x", Value: VInt(1)},
			{Name: "y", Value: VString("s")},
		},
		Typ: NewRecord(Field{Name: "x", Type: Int}, Field{Name: "y", Type: String}),
	}
	b := &VRecord{
		Fields: []VField{
			{Name: "y", Value: VString("s")},
			{Name: "x", Value: VInt(1)},
		},
		Typ: NewRecord(Field{Name: "y", Type: String}, Field{Name: "x", Type: Int}),
	}
	require.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHashDistinguishesValues(t *testing.T) {
	require.NotEqual(t, ContentHash(VInt(1)), ContentHash(VInt(2)))
	require.NotEqual(t, ContentHash(VInt(1)), ContentHash(VFloat(1)))
	require.NotEqual(t, ContentHash(VString("a")), ContentHash(VString("b")))
}

func TestContentHashNormalizesFloats(t *testing.T) {
	require.Equal(t, ContentHash(VFloat(math.NaN())), ContentHash(VFloat(math.Float64frombits(0x7ff8000000000001))))
	negZero := math.Copysign(0, -1)
	require.Equal(t, ContentHash(VFloat(negZero)), ContentHash(VFloat(0)))
}

func TestContentHashListOrderMatters(t *testing.T) {
	l1 := &VList{Elements: []Value{VInt(1), VInt(2)}, Typ: &List{Elem: Int}}
	l2 := &VList{Elements: []Value{VInt(2), VInt(1)}, Typ: &List{Elem: Int}}
	require.NotEqual(t, ContentHash(l1), ContentHash(l2))
}

func TestContentHashMapEntryOrderInsignificant(t *testing.T) {
	typ := &Map{Key: String, Value: Int}
	m1 := &VMap{Entries: []VMapEntry{
		{Key: VString("a"), Value: VInt(1)},
		{Key: VString("b"), Value: VInt(2)},
	}, Typ: typ}
	m2 := &VMap{Entries: []VMapEntry{
		{Key: VString("b"), Value: VInt(2)},
		{Key: VString("a"), Value: VInt(1)},
	}, Typ: typ}
	require.Equal(t, ContentHash(m1), ContentHash(m2))
}

func TestContentHashOptionalPresenceMatters(t *testing.T) {
	typ := &Optional{Inner: Int}
	present := &VOptional{Present: true, Inner: VInt(0), Typ: typ}
	absent := &VOptional{Present: false, Typ: typ}
	require.NotEqual(t, ContentHash(present), ContentHash(absent))
}

func TestFloatEqualityCanonicalizes(t *testing.T) {
	require.True(t, VFloat(math.NaN()).Equal(VFloat(math.NaN())))
	require.True(t, VFloat(math.Copysign(0, -1)).Equal(VFloat(0)))
}
