package sparsetile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/sparsetile/errors"
	intbits "github.com/tamirms/sparsetile/internal/bits"
)

func TestRange(t *testing.T) {
	r := Range{Begin: 3, End: 7}
	assert.True(t, r.Valid())
	assert.Equal(t, uint64(4), r.Len())
	assert.True(t, r.Contains(3))
	assert.True(t, r.Contains(6))
	assert.False(t, r.Contains(7))
	assert.Equal(t, "[3,7)", r.String())

	empty := Range{Begin: 5, End: 5}
	assert.True(t, empty.Valid())
	assert.Zero(t, empty.Len())
	assert.False(t, empty.Contains(5))

	bad := Range{Begin: 8, End: 2}
	assert.False(t, bad.Valid())
	assert.Zero(t, bad.Len())
}

func TestFindPositionExample(t *testing.T) {
	ids := []uint64{5, 10, 15, 20, 25}
	pos, err := FindPosition(ids, []Range{{0, 12}, {12, 30}})
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 2}, {2, 5}}, pos)
}

func TestFindPositionGapsAndEmpty(t *testing.T) {
	ids := []uint64{5, 10, 15, 20, 25}

	// Ids outside every boundary are skipped; boundaries may be empty.
	pos, err := FindPosition(ids, []Range{{6, 9}, {10, 11}, {11, 11}, {16, 26}, {40, 50}})
	require.NoError(t, err)
	assert.Equal(t, []Range{{1, 1}, {1, 2}, {2, 2}, {3, 5}, {5, 5}}, pos)

	pos, err = FindPosition(nil, []Range{{0, 10}})
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 0}}, pos)

	pos, err = FindPosition(ids, nil)
	require.NoError(t, err)
	assert.Empty(t, pos)
}

func TestFindPositionRejectsBadBoundaries(t *testing.T) {
	ids := []uint64{1, 2, 3}

	_, err := FindPosition(ids, []Range{{0, 20}, {10, 30}})
	assert.ErrorIs(t, err, streamerrors.ErrOverlappingRanges)

	_, err = FindPosition(ids, []Range{{10, 20}, {0, 5}})
	assert.ErrorIs(t, err, streamerrors.ErrOverlappingRanges)

	_, err = FindPosition(ids, []Range{{0, 5}, {9, 6}})
	assert.ErrorIs(t, err, streamerrors.ErrInvalidRange)

	// Touching boundaries are fine.
	_, err = FindPosition(ids, []Range{{0, 2}, {2, 4}})
	assert.NoError(t, err)
}

// FindPosition must agree with a linear scan for random inputs.
func TestFindPositionMatchesLinearScan(t *testing.T) {
	rng := newTestRNG(t)
	for range 200 {
		n := rng.IntN(50)
		ids := make([]uint64, 0, n)
		var next uint64
		for range n {
			next += 1 + uint64(rng.IntN(10))
			ids = append(ids, next)
		}

		var blocks []Range
		var cursor uint64
		for range rng.IntN(8) {
			begin := cursor + uint64(rng.IntN(30))
			end := begin + uint64(rng.IntN(40))
			blocks = append(blocks, Range{begin, end})
			cursor = end
		}

		got, err := FindPosition(ids, blocks)
		require.NoError(t, err)
		require.Len(t, got, len(blocks))
		for k, fb := range blocks {
			var want Range
			first := true
			for i, id := range ids {
				if fb.Contains(id) {
					if first {
						want.Begin = uint64(i)
						first = false
					}
					want.End = uint64(i + 1)
				}
			}
			if first {
				// Empty span sits where the boundary would start.
				assert.Equal(t, got[k].Begin, got[k].End, "block %d %v", k, fb)
				continue
			}
			assert.Equal(t, want, got[k], "block %d %v", k, fb)
		}
	}
}

func TestUniformFeatureBlocks(t *testing.T) {
	assert.Nil(t, UniformFeatureBlocks(0))

	one := UniformFeatureBlocks(1)
	assert.Equal(t, []Range{{0, ^uint64(0)}}, one)

	blocks := UniformFeatureBlocks(7)
	require.Len(t, blocks, 7)
	require.NoError(t, ValidateFeatureBlocks(blocks))
	assert.Zero(t, blocks[0].Begin)
	for s := 1; s < len(blocks); s++ {
		assert.Equal(t, blocks[s-1].End, blocks[s].Begin)
	}

	rng := newTestRNG(t)
	for range 1000 {
		id := rng.Uint64()
		s := intbits.FastRange32(id, 7)
		if id == ^uint64(0) {
			continue
		}
		assert.True(t, blocks[s].Contains(id), "id %#x shard %d", id, s)
	}
}
