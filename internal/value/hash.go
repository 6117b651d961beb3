package value

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash is a 256-bit content digest, stable across runs and dependent only
// on structural value.
type Hash [32]byte

// String renders h as lowercase hex, the form used for cache keys
// (internal/resilience).
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ContentHash computes the deterministic content hash of v. Records hash
// by sorted field name, unions hash with their discriminant, and floats
// normalize NaN to a single canonical form and -0.0 to +0.0 before hashing,
// so Equal(a, b) implies ContentHash(a) == ContentHash(b).
func ContentHash(v Value) Hash {
	h := sha256.New()
	writeValue(h, v)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

type hasher interface {
	Write(p []byte) (int, error)
}

func writeValue(h hasher, v Value) {
	switch t := v.(type) {
	case VString:
		h.Write([]byte{tagString})
		writeLenPrefixed(h, []byte(t))
	case VInt:
		h.Write([]byte{tagInt})
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(int64(t)))
		h.Write(buf[:])
	case VFloat:
		h.Write([]byte{tagFloat})
		f := float64(t)
		var bits uint64
		switch {
		case math.IsNaN(f):
			bits = canonicalNaNBits
		default:
			bits = math.Float64bits(canonicalFloat(f))
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], bits)
		h.Write(buf[:])
	case VBool:
		h.Write([]byte{tagBool})
		if t {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case *VRecord:
		h.Write([]byte{tagRecord})
		fields := sortedFields(t)
		writeVarint(h, uint64(len(fields)))
		for _, f := range fields {
			writeLenPrefixed(h, []byte(f.Name))
			writeValue(h, f.Value)
		}
	case *VList:
		h.Write([]byte{tagList})
		writeVarint(h, uint64(len(t.Elements)))
		for _, e := range t.Elements {
			writeValue(h, e)
		}
	case *VMap:
		h.Write([]byte{tagMap})
		entries := make([]VMapEntry, len(t.Entries))
		copy(entries, t.Entries)
		sortMapEntries(entries)
		writeVarint(h, uint64(len(entries)))
		for _, e := range entries {
			writeValue(h, e.Key)
			writeValue(h, e.Value)
		}
	case *VOptional:
		h.Write([]byte{tagOptional})
		if t.Present {
			h.Write([]byte{1})
			writeValue(h, t.Inner)
		} else {
			h.Write([]byte{0})
		}
	case *VUnion:
		h.Write([]byte{tagUnion})
		writeVarint(h, uint64(t.VariantIdx))
		writeValue(h, t.Payload)
	default:
		h.Write([]byte{tagUnknown})
	}
}

const (
	tagString byte = iota + 1
	tagInt
	tagFloat
	tagBool
	tagRecord
	tagList
	tagMap
	tagOptional
	tagUnion
	tagUnknown
)

// canonicalNaNBits is the single bit pattern every NaN value hashes to.
var canonicalNaNBits = math.Float64bits(math.NaN())

func writeLenPrefixed(h hasher, b []byte) {
	writeVarint(h, uint64(len(b)))
	h.Write(b)
}

func writeVarint(h hasher, n uint64) {
	var buf [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(buf[:], n)
	h.Write(buf[:l])
}

func sortMapEntries(entries []VMapEntry) {
	// Sort by content hash of the key so map ordering never affects the
	// digest; keys need not be otherwise comparable.
	less := func(i, j int) bool {
		hi := ContentHash(entries[i].Key)
		hj := ContentHash(entries[j].Key)
		for k := range hi {
			if hi[k] != hj[k] {
				return hi[k] < hj[k]
			}
		}
		return false
	}
	insertionSort(entries, less)
}

func insertionSort(entries []VMapEntry, less func(i, j int) bool) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
