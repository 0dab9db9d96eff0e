package sparsetile

import (
	"fmt"
	"math/bits"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Hasher selects the function used to turn a feature token into a
// 64-bit feature id.
type Hasher uint8

const (
	// HashXXH3 uses xxHash3-64 (default).
	HashXXH3 Hasher = iota
	// HashXXHash uses xxHash64.
	HashXXHash
	// HashMurmur3 uses MurmurHash3 x64 (low 64 bits of the 128-bit digest).
	HashMurmur3
)

func (h Hasher) String() string {
	switch h {
	case HashXXH3:
		return "xxh3"
	case HashXXHash:
		return "xxhash"
	case HashMurmur3:
		return "murmur3"
	}
	return fmt.Sprintf("Hasher(%d)", uint8(h))
}

// ParseHasher maps a name accepted by String back to a Hasher.
func ParseHasher(name string) (Hasher, error) {
	switch name {
	case "xxh3", "":
		return HashXXH3, nil
	case "xxhash":
		return HashXXHash, nil
	case "murmur3":
		return HashMurmur3, nil
	}
	return 0, fmt.Errorf("sparsetile: unknown hasher %q", name)
}

// Sum returns the feature id for token.
//
// The digest is passed through ReverseNibbles so that its low bits, which
// vary most between similar tokens, land in the high bits. Shard routing
// and feature-block boundaries partition on the high bits.
func (h Hasher) Sum(token []byte) uint64 {
	var v uint64
	switch h {
	case HashXXHash:
		v = xxhash.Sum64(token)
	case HashMurmur3:
		v = murmur3.Sum64(token)
	default:
		v = xxh3.Hash(token)
	}
	return ReverseNibbles(v)
}

// ReverseNibbles reverses the order of the sixteen 4-bit nibbles of x.
func ReverseNibbles(x uint64) uint64 {
	x = bits.ReverseBytes64(x)
	return (x&0x0F0F0F0F0F0F0F0F)<<4 | (x&0xF0F0F0F0F0F0F0F0)>>4
}

// HashFeature returns the default feature id for token.
func HashFeature(token []byte) uint64 {
	return HashXXH3.Sum(token)
}

// HashFeatureString is HashFeature for a string token.
func HashFeatureString(token string) uint64 {
	return ReverseNibbles(xxh3.HashString(token))
}

// RowBlockBuilder accumulates rows of tokens into a RowBlock.
// The zero value hashes with HashXXH3 and stores binary features.
type RowBlockBuilder struct {
	Hasher Hasher

	block    RowBlock
	weighted bool
	labeled  bool
}

// AddRow appends a row of binary features.
func (rb *RowBlockBuilder) AddRow(label float32, tokens ...string) {
	rb.begin(label)
	for _, tok := range tokens {
		rb.block.Index = append(rb.block.Index, rb.Hasher.Sum([]byte(tok)))
		if rb.weighted {
			rb.block.Value = append(rb.block.Value, 1)
		}
	}
	rb.end()
}

// AddWeightedRow appends a row whose features carry explicit values.
// tokens and values must have the same length.
func (rb *RowBlockBuilder) AddWeightedRow(label float32, tokens []string, values []float32) error {
	if len(tokens) != len(values) {
		return fmt.Errorf("sparsetile: %d tokens but %d values", len(tokens), len(values))
	}
	if !rb.weighted {
		// Backfill 1s for the binary rows added so far.
		rb.block.Value = make([]float32, len(rb.block.Index), len(rb.block.Index)+len(values))
		for i := range rb.block.Value {
			rb.block.Value[i] = 1
		}
		rb.weighted = true
	}
	rb.begin(label)
	for i, tok := range tokens {
		rb.block.Index = append(rb.block.Index, rb.Hasher.Sum([]byte(tok)))
		rb.block.Value = append(rb.block.Value, values[i])
	}
	rb.end()
	return nil
}

func (rb *RowBlockBuilder) begin(label float32) {
	if len(rb.block.Offset) == 0 {
		rb.block.Offset = append(rb.block.Offset, 0)
	}
	rb.block.Label = append(rb.block.Label, label)
	if label != 0 {
		rb.labeled = true
	}
}

func (rb *RowBlockBuilder) end() {
	rb.block.Offset = append(rb.block.Offset, len(rb.block.Index))
}

// Rows returns the number of rows added since the last Build.
func (rb *RowBlockBuilder) Rows() int {
	return len(rb.block.Label)
}

// Build returns the accumulated block and resets the builder. Labels are
// dropped when every row was added with label 0.
func (rb *RowBlockBuilder) Build() *RowBlock {
	out := rb.block
	if !rb.labeled {
		out.Label = nil
	}
	if out.Offset == nil {
		out.Offset = []int{0}
	}
	rb.block = RowBlock{}
	rb.weighted = false
	rb.labeled = false
	return &out
}
