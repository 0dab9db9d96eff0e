package sparsetile

import (
	"fmt"
	"sort"

	streamerrors "github.com/tamirms/sparsetile/errors"
	intbits "github.com/tamirms/sparsetile/internal/bits"
)

// ValidateFeatureBlocks checks that every range is valid and that the
// ranges are sorted and pairwise disjoint (end[k-1] <= begin[k]).
func ValidateFeatureBlocks(featureBlocks []Range) error {
	for k, r := range featureBlocks {
		if !r.Valid() {
			return fmt.Errorf("%w: feature block %d is %v", streamerrors.ErrInvalidRange, k, r)
		}
		if k > 0 && featureBlocks[k-1].End > r.Begin {
			return fmt.Errorf("%w: feature block %d %v overlaps %v",
				streamerrors.ErrOverlappingRanges, k, r, featureBlocks[k-1])
		}
	}
	return nil
}

// FindPosition locates, for each feature block, the span of ids falling
// inside it. ids must be strictly ascending. The returned ranges index
// into ids, one per feature block.
//
// A single cursor sweeps ids forward: each boundary costs two binary
// searches over the suffix not yet consumed, so the whole call is
// O(len(featureBlocks) * log(len(ids))).
func FindPosition(ids []uint64, featureBlocks []Range) ([]Range, error) {
	if err := ValidateFeatureBlocks(featureBlocks); err != nil {
		return nil, err
	}

	positions := make([]Range, len(featureBlocks))
	cursor := 0
	for k, fb := range featureBlocks {
		rest := ids[cursor:]
		lo := cursor + sort.Search(len(rest), func(i int) bool { return rest[i] >= fb.Begin })
		rest = ids[lo:]
		hi := lo + sort.Search(len(rest), func(i int) bool { return rest[i] >= fb.End })
		positions[k] = Range{Begin: uint64(lo), End: uint64(hi)}
		cursor = hi
	}
	return positions, nil
}

// UniformFeatureBlocks splits the full 64-bit id space into n contiguous
// feature blocks of (nearly) equal width. Block s covers exactly the ids
// that FastRange32 routes to shard s, so hashed ids spread evenly.
func UniformFeatureBlocks(n uint32) []Range {
	if n == 0 {
		return nil
	}
	blocks := make([]Range, n)
	for s := range n {
		blocks[s].Begin = intbits.ShardStart(s, n)
		if s+1 < n {
			blocks[s].End = intbits.ShardStart(s+1, n)
		} else {
			// The top id is excluded by the half-open bound.
			blocks[s].End = ^uint64(0)
		}
	}
	return blocks
}
