package types

import (
	"bytes"
	"fmt"
	"math"
)

// normalizeInt converts any Go integer type to int64. An unsigned value
// above MaxInt64 has no int64 representation and is rejected rather than
// wrapped negative.
func normalizeInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// normalizeFloat converts any Go numeric type to float64.
func normalizeFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := normalizeInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// CompareValues orders two scalar values without consulting a collation.
// Nil sorts before everything. Numbers compare numerically across integer
// and float representations; strings and byte slices compare bytewise;
// false sorts before true. Values of incomparable dynamic types fall back
// to comparing their formatted representations so sorting stays total.
// Returns -1, 0 or 1.
func CompareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if af, aok := normalizeFloat(a); aok {
		if bf, bok := normalizeFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}

	if ab, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Compare(ab, bb)
		}
	}

	if abool, ok := a.(bool); ok {
		if bbool, ok := b.(bool); ok {
			switch {
			case abool == bbool:
				return 0
			case !abool:
				return -1
			default:
				return 1
			}
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// ValueEqual reports whether two scalar values are equal under CompareValues
// semantics (1 == 1.0, []byte compared by content).
func ValueEqual(a, b interface{}) bool {
	return CompareValues(a, b) == 0
}
