package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/veltab/veltab/pkg/types"
)

// fingerprint computes a 128-bit murmur3 digest over a row's column names
// and values in declared order. Rows with equal fingerprints are treated as
// value-equal by Distinct, Except and Has.
//
// Values are written through a canonical encoding so that 1, int32(1) and
// 1.0 collapse to the same digest, matching types.ValueEqual semantics.
func fingerprint(row *types.Row) [2]uint64 {
	h := murmur3.New128()
	var buf [8]byte
	for _, col := range row.Columns() {
		h.Write([]byte(col))
		h.Write([]byte{0})
		v, _ := row.Value(col)
		writeCanonical(h, buf[:], v)
		h.Write([]byte{0})
	}
	h1, h2 := h.Sum128()
	return [2]uint64{h1, h2}
}

func writeCanonical(h interface{ Write([]byte) (int, error) }, buf []byte, v interface{}) {
	switch x := v.(type) {
	case nil:
		h.Write([]byte{'n'})
	case string:
		h.Write([]byte{'s'})
		h.Write([]byte(x))
	case []byte:
		h.Write([]byte{'b'})
		h.Write(x)
	case bool:
		if x {
			h.Write([]byte{'t'})
		} else {
			h.Write([]byte{'f'})
		}
	default:
		// Numbers hash through their float64 image so integer and float
		// representations of the same quantity collide.
		if f, ok := normalizeNumeric(v); ok {
			h.Write([]byte{'d'})
			binary.BigEndian.PutUint64(buf, math.Float64bits(f))
			h.Write(buf)
			return
		}
		h.Write([]byte{'?'})
		h.Write([]byte(fmt.Sprintf("%v", v)))
	}
}

func normalizeNumeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// fingerprintSet is a set of row fingerprints.
type fingerprintSet map[[2]uint64]struct{}

func (s fingerprintSet) add(row *types.Row) {
	s[fingerprint(row)] = struct{}{}
}

func (s fingerprintSet) contains(row *types.Row) bool {
	_, ok := s[fingerprint(row)]
	return ok
}
