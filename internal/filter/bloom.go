package filter

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// domainSeparator is appended to a value before hashing a second time so
// that h2 is not a trivial function of h1 for inputs where xxhash happens
// to collide on a shared prefix.
var domainSeparator = []byte{0xFF}

// BloomFilter is a fixed-size bit array probed with k hash positions
// derived via double hashing: index_i = (h1 + i*h2) mod m, where h1 and
// h2 are two separate 64-bit xxhash sums (of the value, and of the value
// followed by domainSeparator). No single 128-bit hash is computed.
//
// Hashing is done with xxhash, a fast non-cryptographic hash that is
// deterministic across runs and platforms, which is all the
// false-negative guarantee requires.
type BloomFilter struct {
	bits      []uint64 // packed bit array, 64 bits per word
	m         uint64   // number of bits
	k         uint64   // number of hash functions
	n         uint64   // declared capacity (expected insertions)
	errorRate float64  // configured target false-positive rate
}

// NewBloomFilter allocates an empty Bloom filter sized for capacity
// expected insertions at the given target false-positive rate.
//
// m = ceil(-n * ln(p) / (ln 2)^2) bits
// k = round((m/n) * ln 2) hash functions
func NewBloomFilter(capacity uint64, errorRate float64) *BloomFilter {
	if capacity == 0 {
		capacity = 1
	}
	if errorRate <= 0 || errorRate >= 1 {
		errorRate = 0.1
	}

	n := float64(capacity)
	ln2 := math.Ln2
	m := math.Ceil(-n * math.Log(errorRate) / (ln2 * ln2))
	if m < 1 {
		m = 1
	}
	k := math.Round((m / n) * ln2)
	if k < 1 {
		k = 1
	}

	words := (uint64(m) + 63) / 64
	if words == 0 {
		words = 1
	}

	return &BloomFilter{
		bits:      make([]uint64, words),
		m:         uint64(m),
		k:         uint64(k),
		n:         capacity,
		errorRate: errorRate,
	}
}

// NewBloomFilterFromBits reconstructs a BloomFilter from previously
// serialized parameters and bit array. Used by the codec on load.
func NewBloomFilterFromBits(m, k, capacity uint64, errorRate float64, bits []uint64) *BloomFilter {
	return &BloomFilter{bits: bits, m: m, k: k, n: capacity, errorRate: errorRate}
}

func (b *BloomFilter) hashPair(v string) (uint64, uint64) {
	h1 := xxhash.Sum64String(v)
	h2 := xxhash.Sum64(append([]byte(v), domainSeparator...))
	if h2 == 0 {
		h2 = 1 // avoid degenerating to a single probed bit when h2 == 0
	}
	return h1, h2
}

func (b *BloomFilter) bitIndex(h1, h2 uint64, i uint64) uint64 {
	if b.m == 0 {
		return 0
	}
	return (h1 + i*h2) % b.m
}

// Add inserts the canonical string form of a value.
func (b *BloomFilter) Add(v string) {
	h1, h2 := b.hashPair(v)
	for i := uint64(0); i < b.k; i++ {
		idx := b.bitIndex(h1, h2, i)
		b.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Contains reports whether v might have been inserted. False is a
// definite negative.
func (b *BloomFilter) Contains(v string) bool {
	h1, h2 := b.hashPair(v)
	for i := uint64(0); i < b.k; i++ {
		idx := b.bitIndex(h1, h2, i)
		if b.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Kind implements Filter.
func (b *BloomFilter) Kind() Kind { return KindBloom }

// Bits returns the underlying packed bit array (read-only view for the codec).
func (b *BloomFilter) Bits() []uint64 { return b.bits }

// M returns the number of bits.
func (b *BloomFilter) M() uint64 { return b.m }

// K returns the number of hash functions.
func (b *BloomFilter) K() uint64 { return b.k }

// Capacity returns the declared expected-insertion capacity.
func (b *BloomFilter) Capacity() uint64 { return b.n }

// ErrorRate returns the configured target false-positive rate.
func (b *BloomFilter) ErrorRate() float64 { return b.errorRate }
