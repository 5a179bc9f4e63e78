// Package sizepolicy maps a requested table capacity onto a sequence of
// legal sizes and maps a hash onto a bucket index for a chosen size.
//
// Two interchangeable policies are provided: PrimeFmod, which rounds up
// to a precomputed prime and computes the modulo via a reciprocal
// multiply ("direct remainder"), and Pow2Mask, which rounds up to a
// power of two and uses a mask, for callers whose hash is avalanching.
package sizepolicy

import "math/bits"

// Policy maps capacities to legal sizes and hashes to bucket positions.
type Policy interface {
	// SizeIndexFor returns the smallest size index whose capacity is >= n.
	SizeIndexFor(n uint64) int
	// Capacity returns the bucket count for a given size index.
	Capacity(sizeIndex int) uint64
	// Position maps hash to a bucket index in [0, Capacity(sizeIndex)).
	Position(hash uint64, sizeIndex int) uint64
	// NextSizeIndex returns the size index to grow to from sizeIndex.
	NextSizeIndex(sizeIndex int) int
}

// primeSizes mirrors boost::unordered's prime_fmod_sizes table, trimmed
// to fit comfortably in a 64-bit bucket count.
var primeSizes = []uint64{
	13, 29, 53, 97, 193, 389, 769, 1543, 3079, 6151, 12289, 24593,
	49157, 98317, 196613, 393241, 786433, 1572869, 3145739,
	6291469, 12582917, 25165843, 50331653, 100663319, 201326611,
	402653189, 805306457, 1610612741, 3221225473, 4294967291,
	6442450939, 12884901893, 25769803751, 51539607551,
	103079215111, 206158430209, 412316860441, 824633720831,
	1649267441651,
}

// reciprocals[i] is the 64-bit reciprocal multiplier for primeSizes[i],
// valid for primes that fit in 32 bits. It satisfies the identity used
// by fastModulo below, ported from the "Faster Remainder
// by Direct Computation" technique boost::unordered implements in
// prime_fmod.hpp.
var reciprocals = buildReciprocals()

func buildReciprocals() []uint64 {
	out := make([]uint64, 0, len(primeSizes))
	for _, p := range primeSizes {
		if p > 1<<32-1 {
			break
		}
		// M = ceil(2^64 / p)
		out = append(out, reciprocalFor(p))
	}
	return out
}

func reciprocalFor(d uint64) uint64 {
	// 2^64 / d, rounded up, computed via 128-bit division using bits.Div64.
	hi, lo := uint64(1), uint64(0) // numerator = 2^64 (represented as hi:lo = 1:0)
	q, r := bits.Div64(hi, lo, d)
	if r != 0 {
		q++
	}
	return q
}

// PrimeFmod is the prime-indexed size policy with fast-remainder lookup.
type PrimeFmod struct{}

func (PrimeFmod) SizeIndexFor(n uint64) int {
	for i, p := range primeSizes {
		if p >= n {
			return i
		}
	}
	return len(primeSizes) - 1
}

func (PrimeFmod) Capacity(sizeIndex int) uint64 {
	return primeSizes[sizeIndex]
}

func (PrimeFmod) NextSizeIndex(sizeIndex int) int {
	if sizeIndex+1 >= len(primeSizes) {
		return sizeIndex
	}
	return sizeIndex + 1
}

func (PrimeFmod) Position(hash uint64, sizeIndex int) uint64 {
	d := primeSizes[sizeIndex]
	if sizeIndex < len(reciprocals) {
		return fastModulo(hash, reciprocals[sizeIndex], d)
	}
	return hash % d
}

// fastModulo computes a bucket position via the reciprocal-multiply
// direct-remainder technique: fold the upper 32 bits of hash into the
// lower 32 by addition (this is what makes the function only an
// approximation of true hash % d, trading exactness for a multiply
// instead of a division — the folded value is what gets reduced, not
// the raw 64-bit hash), then reduce folded modulo d via one multiply by
// the reciprocal plus a second multiply extracting the high word.
func fastModulo(hash, m, d uint64) uint64 {
	folded := (uint64(uint32(hash)) + uint64(uint32(hash>>32))) & 0xFFFFFFFF
	_, fractional := bits.Mul64(m, folded)
	hi, _ := bits.Mul64(fractional, d)
	return hi
}

// Pow2Mask is the power-of-two size policy for avalanching hashes.
type Pow2Mask struct{}

func (Pow2Mask) SizeIndexFor(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}

func (Pow2Mask) Capacity(sizeIndex int) uint64 {
	return uint64(1) << uint(sizeIndex)
}

func (Pow2Mask) NextSizeIndex(sizeIndex int) int {
	return sizeIndex + 1
}

func (Pow2Mask) Position(hash uint64, sizeIndex int) uint64 {
	return hash & (uint64(1)<<uint(sizeIndex) - 1)
}
