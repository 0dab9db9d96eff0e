package sparsetile

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamirms/sparsetile/blobstore"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// randomBlock builds a block of rows with up to maxNNZ entries each,
// drawing ids from a universe of the given size. Ids within a row may
// repeat.
func randomBlock(rng *rand.Rand, rows, maxNNZ, universe int, weighted, labeled bool) *RowBlock {
	b := &RowBlock{Offset: make([]int, 1, rows+1)}
	for r := 0; r < rows; r++ {
		n := rng.IntN(maxNNZ + 1)
		for range n {
			// Spread ids over the whole 64-bit space.
			id := HashFeature(binary.LittleEndian.AppendUint64(nil, uint64(rng.IntN(universe))))
			b.Index = append(b.Index, id)
			if weighted {
				b.Value = append(b.Value, float32(rng.IntN(100))/10)
			}
		}
		b.Offset = append(b.Offset, len(b.Index))
		if labeled {
			b.Label = append(b.Label, float32(rng.IntN(2)))
		}
	}
	if weighted && b.Value == nil {
		b.Value = []float32{}
	}
	return b
}

// distinct returns the sorted distinct ids of b, empty but non-nil when b
// has no entries, as Ingest reports them.
func distinct(b *RowBlock) []uint64 {
	ids := append([]uint64{}, b.Index...)
	slices.Sort(ids)
	return slices.Compact(ids)
}

func newMemoryBuilder(t *testing.T, opts ...BuildOption) (*Builder, *blobstore.MemoryStore) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	b, err := NewBuilder(context.Background(), store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, store
}

func mustGlobalIDs(t *testing.T, ids ...uint64) *GlobalIDs {
	t.Helper()
	g, err := NewGlobalIDs(ids)
	require.NoError(t, err)
	return g
}

// csrBlock builds a binary block from rows of ids.
func csrBlock(rows ...[]uint64) *RowBlock {
	b := &RowBlock{Offset: []int{0}}
	for _, row := range rows {
		b.Index = append(b.Index, row...)
		b.Offset = append(b.Offset, len(b.Index))
	}
	return b
}
