package filter

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	values := make([]string, 500)
	for i := range values {
		values[i] = fmt.Sprintf("value-%d", i)
	}

	b := NewBloomFilter(uint64(len(values)), 0.01)
	for _, v := range values {
		b.Add(v)
	}

	for _, v := range values {
		if !b.Contains(v) {
			t.Fatalf("false negative for inserted value %q", v)
		}
	}
}

func TestBloomFilterErrorRateBound(t *testing.T) {
	const n = 2000
	const target = 0.05

	b := NewBloomFilter(n, target)
	for i := 0; i < n; i++ {
		b.Add(fmt.Sprintf("member-%d", i))
	}

	rng := rand.New(rand.NewSource(1))
	trials := 20000
	falsePositives := 0
	for i := 0; i < trials; i++ {
		v := fmt.Sprintf("absent-%d", rng.Int63())
		if b.Contains(v) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	// Allow generous slack over the configured target: this is a
	// statistical bound, not an exact one.
	if rate > target*3 {
		t.Fatalf("observed false-positive rate %.4f exceeds tolerance for target %.4f", rate, target)
	}
}

func TestBloomFilterCodecRoundTrip(t *testing.T) {
	b := NewBloomFilter(100, 0.02)
	for i := 0; i < 50; i++ {
		b.Add(fmt.Sprintf("x-%d", i))
	}

	data, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	bf, ok := decoded.(*BloomFilter)
	if !ok {
		t.Fatalf("decoded filter is %T, want *BloomFilter", decoded)
	}
	if bf.M() != b.M() || bf.K() != b.K() {
		t.Fatalf("m/k mismatch after round trip: got m=%d k=%d, want m=%d k=%d", bf.M(), bf.K(), b.M(), b.K())
	}
	for i := 0; i < 50; i++ {
		v := fmt.Sprintf("x-%d", i)
		if !bf.Contains(v) {
			t.Fatalf("round-tripped filter lost membership of %q", v)
		}
	}
}

func TestNumericRangeFilterContains(t *testing.T) {
	r := NewNumericRangeFilter(DTypeInt, 10, 20, false)

	if !r.Contains("10") || !r.Contains("15") || !r.Contains("20") {
		t.Fatalf("expected bounds to be inclusive")
	}
	if r.Contains("9") || r.Contains("21") {
		t.Fatalf("expected values outside [10,20] to be rejected")
	}
	if r.Contains("not-a-number") {
		t.Fatalf("unparsable value must not match")
	}
}

func TestTimestampRangeFilterContains(t *testing.T) {
	min := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewTimestampRangeFilter(min, max, false)

	mid := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	if !r.Contains(mid) {
		t.Fatalf("expected midpoint timestamp to match")
	}

	before := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	if r.Contains(before) {
		t.Fatalf("expected timestamp before range to be rejected")
	}
}

func TestEmptyRangeFilterAlwaysRejects(t *testing.T) {
	r := NewNumericRangeFilter(DTypeFloat, 0, 0, true)
	if r.Contains("0") {
		t.Fatalf("empty range filter must reject every value")
	}
}

func TestRangeFilterCodecRoundTrip(t *testing.T) {
	r := NewNumericRangeFilter(DTypeFloat, 1.5, 99.25, false)

	data, err := Encode(r)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rf, ok := decoded.(*RangeFilter)
	if !ok {
		t.Fatalf("decoded filter is %T, want *RangeFilter", decoded)
	}
	min, max := rf.NumericBounds()
	if min != 1.5 || max != 99.25 {
		t.Fatalf("bounds mismatch after round trip: got [%v,%v]", min, max)
	}
	if rf.Kind() != KindRange {
		t.Fatalf("expected KindRange, got %v", rf.Kind())
	}
}

func TestDecodeRejectsCorruptArtifact(t *testing.T) {
	b := NewBloomFilter(10, 0.1)
	b.Add("hello")
	data, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := Decode(corrupted); err == nil {
		t.Fatalf("expected corrupt artifact to be rejected")
	}

	if _, err := Decode([]byte{0x00, 0x01}); err == nil {
		t.Fatalf("expected short buffer to be rejected")
	}
}

func TestWriteAtomicAndLoad(t *testing.T) {
	dir := t.TempDir()

	b := NewBloomFilter(20, 0.05)
	b.Add("abc")
	data, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := WriteAtomic(dir, "col.filter", data); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	loaded, err := Load(dir + "/col.filter")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Contains("abc") {
		t.Fatalf("loaded filter lost membership of inserted value")
	}
}
