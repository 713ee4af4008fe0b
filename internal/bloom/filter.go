// Package bloom provides a probabilistic membership filter used to skip
// scans on indexed columns.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Filter is a bloom filter with a configurable false positive rate. It
// guarantees no false negatives: if a value was added, Contains always
// returns true.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a Filter with the given number of bits and hash functions.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	// Round up to whole 64-bit words.
	numWords := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a Filter sized for the expected number of values
// and target false positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *Filter {
	return New(OptimalParameters(expectedItems, targetFPR))
}

// OptimalParameters computes bit and hash counts for an item count and
// false positive rate:
//
//	m = -n * ln(p) / (ln(2)^2)
//	k = (m/n) * ln(2)
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2

	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil(k))
	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add inserts an encoded value.
func (f *Filter) Add(item []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h1, h2 := hash128(item)
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// AddValue inserts a column value using the canonical encoding.
func (f *Filter) AddValue(v interface{}) {
	f.Add(EncodeValue(v))
}

// Contains reports whether an encoded value might be present. False means
// definitely absent.
func (f *Filter) Contains(item []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h1, h2 := hash128(item)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// ContainsValue tests a column value using the canonical encoding.
func (f *Filter) ContainsValue(v interface{}) bool {
	return f.Contains(EncodeValue(v))
}

// Count returns the number of values added.
func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FalsePositiveRate estimates the current false positive rate from the fill
// ratio: (1 - e^(-k*n/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

func hash128(item []byte) (uint64, uint64) {
	h := murmur3.New128()
	h.Write(item)
	return h.Sum128()
}

// EncodeValue renders a column value into the canonical byte form shared by
// writers and readers of the same filter. All numeric types collapse onto
// the float64 image so 2 and 2.0 encode identically.
func EncodeValue(v interface{}) []byte {
	switch x := v.(type) {
	case nil:
		return []byte{0x00}
	case string:
		return append([]byte{'s'}, x...)
	case []byte:
		return append([]byte{'b'}, x...)
	case bool:
		if x {
			return []byte{'t', 1}
		}
		return []byte{'t', 0}
	case int:
		return encodeFloat(float64(x))
	case int8:
		return encodeFloat(float64(x))
	case int16:
		return encodeFloat(float64(x))
	case int32:
		return encodeFloat(float64(x))
	case int64:
		return encodeFloat(float64(x))
	case uint:
		return encodeFloat(float64(x))
	case uint8:
		return encodeFloat(float64(x))
	case uint16:
		return encodeFloat(float64(x))
	case uint32:
		return encodeFloat(float64(x))
	case uint64:
		return encodeFloat(float64(x))
	case float32:
		return encodeFloat(float64(x))
	case float64:
		return encodeFloat(x)
	default:
		return append([]byte{'?'}, fmt.Sprintf("%v", x)...)
	}
}

func encodeFloat(f float64) []byte {
	buf := make([]byte, 9)
	buf[0] = 'n'
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(f))
	return buf
}
