package bloom

import (
	"fmt"
	"testing"
)

func TestNoFalseNegatives(t *testing.T) {
	f := NewWithEstimates(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.AddValue(fmt.Sprintf("key-%d", i))
	}
	for i := 0; i < 1000; i++ {
		if !f.ContainsValue(fmt.Sprintf("key-%d", i)) {
			t.Fatalf("key-%d reported absent after Add", i)
		}
	}
}

func TestFalsePositiveRateBounded(t *testing.T) {
	f := NewWithEstimates(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.AddValue(int64(i))
	}

	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if f.ContainsValue(int64(100000 + i)) {
			falsePositives++
		}
	}
	// Allow generous headroom over the 1% target.
	if rate := float64(falsePositives) / float64(probes); rate > 0.05 {
		t.Errorf("false positive rate %.4f exceeds bound", rate)
	}
}

func TestNumericEncodingCollapses(t *testing.T) {
	f := New(1024, 5)
	f.AddValue(int64(2))
	if !f.ContainsValue(float64(2.0)) {
		t.Error("2 and 2.0 must share an encoding")
	}
	if !f.ContainsValue(int(2)) {
		t.Error("int 2 must match int64 2")
	}
}

func TestOptimalParameters(t *testing.T) {
	bits, hashes := OptimalParameters(1000, 0.01)
	if bits < 9000 || bits > 10000 {
		t.Errorf("bits = %d, expected around 9586", bits)
	}
	if hashes != 7 {
		t.Errorf("hashes = %d, expected 7", hashes)
	}

	// Degenerate inputs fall back to defaults rather than panicking.
	bits, hashes = OptimalParameters(0, 2)
	if bits < 64 || hashes < 1 {
		t.Errorf("fallback params = %d/%d", bits, hashes)
	}
}

func TestFalsePositiveRateEstimate(t *testing.T) {
	f := New(1024, 7)
	if f.FalsePositiveRate() != 0 {
		t.Error("empty filter must estimate zero")
	}
	for i := 0; i < 100; i++ {
		f.AddValue(int64(i))
	}
	est := f.FalsePositiveRate()
	if est <= 0 || est >= 1 {
		t.Errorf("estimate = %f, want (0, 1)", est)
	}
	if f.Count() != 100 {
		t.Errorf("count = %d, want 100", f.Count())
	}
}
