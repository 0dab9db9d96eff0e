// Package localize rewrites a block's 64-bit feature ids into a dense
// per-block index space.
package localize

import (
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/internal/bits"
	"github.com/tamirms/sparsetile/internal/spmt"
)

// minEntriesPerChunk keeps small blocks on one goroutine.
const minEntriesPerChunk = 1 << 14

// Block is the CSR view of a raw block. Value may be nil.
type Block struct {
	Offset []int
	Index  []uint64
	Value  []float32
}

// Result is a compacted block. Tile.Index[k] is the position of the
// original feature id in IDs. Tile shares Offset and Value with the input
// block. Counts is nil unless requested.
type Result struct {
	Tile   spmt.Matrix
	IDs    []uint64
	Counts []float32
}

// Validate checks the CSR shape of b.
func (b Block) Validate() error {
	if len(b.Offset) == 0 {
		if len(b.Index) != 0 {
			return fmt.Errorf("%w: %d indices without offsets", streamerrors.ErrMalformedBlock, len(b.Index))
		}
		return nil
	}
	if b.Offset[0] != 0 {
		return fmt.Errorf("%w: offset[0]=%d", streamerrors.ErrMalformedBlock, b.Offset[0])
	}
	for i := 1; i < len(b.Offset); i++ {
		if b.Offset[i] < b.Offset[i-1] {
			return fmt.Errorf("%w: offset[%d]=%d < offset[%d]=%d", streamerrors.ErrMalformedBlock, i, b.Offset[i], i-1, b.Offset[i-1])
		}
	}
	if last := b.Offset[len(b.Offset)-1]; last != len(b.Index) {
		return fmt.Errorf("%w: last offset %d but %d indices", streamerrors.ErrMalformedBlock, last, len(b.Index))
	}
	if b.Value != nil && len(b.Value) != len(b.Index) {
		return fmt.Errorf("%w: %d values for %d indices", streamerrors.ErrMalformedBlock, len(b.Value), len(b.Index))
	}
	return nil
}

// Compact maps the distinct feature ids of b onto 0..k-1 in ascending id
// order.
//
// Rows are split into up to workers chunks. Each chunk routes its ids to
// shards with bits.FastRange32; since the routing is monotone, shard s
// holds one contiguous slice of the id space, so sorting and
// deduplicating every shard independently and concatenating the shards
// yields the globally sorted distinct list. Chunks then rewrite their
// entries by searching only the shard an id was routed to.
func Compact(b Block, workers int, wantCounts bool) (Result, error) {
	if err := b.Validate(); err != nil {
		return Result{}, err
	}
	workers = max(workers, 1)

	rows := max(len(b.Offset)-1, 0)
	nnz := len(b.Index)
	chunks := 1
	if workers > 1 && nnz >= 2*minEntriesPerChunk {
		chunks = min(workers, nnz/minEntriesPerChunk, rows)
	}
	shards := chunks

	// Row bounds that split entries, not rows, evenly.
	bounds := make([]int, chunks+1)
	bounds[chunks] = rows
	for c := 1; c < chunks; c++ {
		target := c * nnz / chunks
		r, _ := slices.BinarySearch(b.Offset, target)
		bounds[c] = max(min(r, rows), bounds[c-1])
	}

	// Phase 1: route.
	buckets := make([][][]uint64, chunks)
	var g errgroup.Group
	g.SetLimit(workers)
	for c := range chunks {
		g.Go(func() error {
			local := make([][]uint64, shards)
			for _, id := range entries(b, bounds[c], bounds[c+1]) {
				s := bits.FastRange32(id, uint32(shards))
				local[s] = append(local[s], id)
			}
			buckets[c] = local
			return nil
		})
	}
	_ = g.Wait()

	// Phase 2: sort and dedupe each shard.
	shardIDs := make([][]uint64, shards)
	shardCounts := make([][]float32, shards)
	for s := range shards {
		g.Go(func() error {
			n := 0
			for c := range chunks {
				n += len(buckets[c][s])
			}
			all := make([]uint64, 0, n)
			for c := range chunks {
				all = append(all, buckets[c][s]...)
				buckets[c][s] = nil
			}
			slices.Sort(all)
			shardIDs[s], shardCounts[s] = dedupe(all, wantCounts)
			return nil
		})
	}
	_ = g.Wait()

	// Phase 3: concatenate.
	shardStart := make([]int, shards+1)
	for s := range shards {
		shardStart[s+1] = shardStart[s] + len(shardIDs[s])
	}
	k := shardStart[shards]
	if uint64(k) > math.MaxUint32 {
		return Result{}, fmt.Errorf("%w: %d distinct ids", streamerrors.ErrTooManyFeatures, k)
	}
	ids := make([]uint64, 0, k)
	for _, part := range shardIDs {
		ids = append(ids, part...)
	}
	var counts []float32
	if wantCounts {
		counts = make([]float32, 0, k)
		for _, part := range shardCounts {
			counts = append(counts, part...)
		}
	}

	// Phase 4: rewrite entries.
	local := make([]uint32, nnz)
	for c := range chunks {
		g.Go(func() error {
			lo, hi := offsetAt(b, bounds[c]), offsetAt(b, bounds[c+1])
			for p := lo; p < hi; p++ {
				id := b.Index[p]
				s := bits.FastRange32(id, uint32(shards))
				seg := ids[shardStart[s]:shardStart[s+1]]
				j, _ := slices.BinarySearch(seg, id)
				local[p] = uint32(shardStart[s] + j)
			}
			return nil
		})
	}
	_ = g.Wait()

	offset := b.Offset
	if offset == nil {
		offset = []int{0}
	}
	return Result{
		Tile:   spmt.Matrix{Offset: offset, Index: local, Value: b.Value},
		IDs:    ids,
		Counts: counts,
	}, nil
}

func offsetAt(b Block, row int) int {
	if len(b.Offset) == 0 {
		return 0
	}
	return b.Offset[row]
}

func entries(b Block, rowLo, rowHi int) []uint64 {
	return b.Index[offsetAt(b, rowLo):offsetAt(b, rowHi)]
}

// dedupe collapses runs in sorted ids, optionally counting run lengths.
func dedupe(sorted []uint64, wantCounts bool) ([]uint64, []float32) {
	if len(sorted) == 0 {
		return nil, nil
	}
	var counts []float32
	if wantCounts {
		counts = make([]float32, 0, len(sorted))
	}
	w := 0
	run := 0
	for i, id := range sorted {
		if i > 0 && id == sorted[w-1] {
			run++
			continue
		}
		if wantCounts && i > 0 {
			counts = append(counts, float32(run))
		}
		sorted[w] = id
		w++
		run = 1
	}
	if wantCounts {
		counts = append(counts, float32(run))
	}
	return sorted[:w], counts
}
