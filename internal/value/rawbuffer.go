package value

import (
	"encoding/binary"
	"math"
)

// RawIntBuffer is a raw-buffer representation of List(Int) that avoids
// boxing each element into a VInt in hot paths. Conversion to and
// from the general VList representation is lossless.
type RawIntBuffer struct {
	data []int64
}

// NewRawIntBuffer copies data into a new raw buffer.
func NewRawIntBuffer(data []int64) *RawIntBuffer {
	cp := make([]int64, len(data))
	copy(cp, data)
	return &RawIntBuffer{data: cp}
}

// Len returns the number of elements.
func (b *RawIntBuffer) Len() int { return len(b.data) }

// At returns the element at index i.
func (b *RawIntBuffer) At(i int) int64 { return b.data[i] }

// ToVList boxes the buffer into the general list representation.
func (b *RawIntBuffer) ToVList() *VList {
	elems := make([]Value, len(b.data))
	for i, v := range b.data {
		elems[i] = VInt(v)
	}
	return &VList{Elements: elems, Typ: &List{Elem: Int}}
}

// RawIntBufferFromVList converts a general List(Int) value into a raw
// buffer, returning false if the list contains a non-Int element.
func RawIntBufferFromVList(l *VList) (*RawIntBuffer, bool) {
	data := make([]int64, len(l.Elements))
	for i, e := range l.Elements {
		iv, ok := e.(VInt)
		if !ok {
			return nil, false
		}
		data[i] = int64(iv)
	}
	return &RawIntBuffer{data: data}, true
}

// RawFloatBuffer is the Float analogue of RawIntBuffer.
type RawFloatBuffer struct {
	data []float64
}

// NewRawFloatBuffer copies data into a new raw buffer.
func NewRawFloatBuffer(data []float64) *RawFloatBuffer {
	cp := make([]float64, len(data))
	copy(cp, data)
	return &RawFloatBuffer{data: cp}
}

// Len returns the number of elements.
func (b *RawFloatBuffer) Len() int { return len(b.data) }

// At returns the element at index i.
func (b *RawFloatBuffer) At(i int) float64 { return b.data[i] }

// ToVList boxes the buffer into the general list representation.
func (b *RawFloatBuffer) ToVList() *VList {
	elems := make([]Value, len(b.data))
	for i, v := range b.data {
		elems[i] = VFloat(v)
	}
	return &VList{Elements: elems, Typ: &List{Elem: Float}}
}

// Bytes encodes the buffer as a little-endian byte slice, the wire form
// used when a raw buffer crosses a serialization boundary (e.g. storage).
func (b *RawFloatBuffer) Bytes() []byte {
	out := make([]byte, 8*len(b.data))
	for i, v := range b.data {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}
