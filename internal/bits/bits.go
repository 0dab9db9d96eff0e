// Package bits provides the shard routing primitives used to split the
// 64-bit feature id space across workers and feature blocks.
package bits

import "math/bits"

// FastRange32 maps a 64-bit id to [0, n) returning uint32.
// Uses the "fastrange" technique: multiply and take high bits.
// The mapping is monotone in id, so every shard owns one contiguous
// slice of the id space and shards concatenated in order stay sorted.
func FastRange32(id uint64, n uint32) uint32 {
	if n == 0 {
		return 0
	}
	hi, _ := bits.Mul64(id, uint64(n))
	return uint32(hi)
}

// ShardStart returns the smallest id that FastRange32 routes to shard s
// of n, i.e. ceil(s * 2^64 / n). s must be in [0, n).
func ShardStart(s, n uint32) uint64 {
	if s == 0 || n == 0 {
		return 0
	}
	q, r := bits.Div64(uint64(s), 0, uint64(n))
	if r != 0 {
		q++
	}
	return q
}
