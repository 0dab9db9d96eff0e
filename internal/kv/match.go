// Package kv implements the sorted key-matching join used to translate
// per-block feature ids into positions in the global feature id list.
package kv

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	streamerrors "github.com/tamirms/sparsetile/errors"
)

// minChunk is the smallest query slice handed to one worker. Below this
// the merge is cheaper than scheduling a goroutine.
const minChunk = 4096

// Match joins query against (keys, values). For each query[i] present in
// keys the result holds the paired value, otherwise def. keys must be
// strictly ascending and query ascending; values must be as long as keys.
//
// The query is cut into contiguous chunks merged in parallel by up to
// workers goroutines. Each chunk binary-searches its starting key and then
// walks both sequences forward, so total work is linear in the inputs.
func Match(keys []uint64, values []int64, query []uint64, def int64, workers int) ([]int64, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("kv: %d keys but %d values", len(keys), len(values))
	}
	if err := checkAscending(keys, true); err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	if err := checkAscending(query, false); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	out := make([]int64, len(query))
	if len(query) == 0 {
		return out, nil
	}

	chunks := chunkCount(len(query), workers)
	if chunks == 1 {
		mergeChunk(keys, values, query, out, def)
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	size := (len(query) + chunks - 1) / chunks
	for lo := 0; lo < len(query); lo += size {
		hi := min(lo+size, len(query))
		g.Go(func() error {
			mergeChunk(keys, values, query[lo:hi], out[lo:hi], def)
			return nil
		})
	}
	return out, g.Wait()
}

func mergeChunk(keys []uint64, values []int64, query []uint64, out []int64, def int64) {
	k, _ := slices.BinarySearch(keys, query[0])
	for i, q := range query {
		for k < len(keys) && keys[k] < q {
			k++
		}
		if k < len(keys) && keys[k] == q {
			out[i] = values[k]
		} else {
			out[i] = def
		}
	}
}

func chunkCount(n, workers int) int {
	if workers <= 1 || n < 2*minChunk {
		return 1
	}
	return min(workers, n/minChunk)
}

func checkAscending(s []uint64, strict bool) error {
	for i := 1; i < len(s); i++ {
		if s[i] < s[i-1] || (strict && s[i] == s[i-1]) {
			return fmt.Errorf("%w: index %d (%d after %d)", streamerrors.ErrUnsortedKeys, i, s[i], s[i-1])
		}
	}
	return nil
}
