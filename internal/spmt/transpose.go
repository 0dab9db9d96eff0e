// Package spmt transposes compressed sparse row matrices.
package spmt

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// minRowsPerChunk keeps tiny blocks on a single goroutine.
const minRowsPerChunk = 1024

// Matrix is a CSR matrix with 32-bit minor indices. Value may be nil, in
// which case every stored entry is 1.
type Matrix struct {
	Offset []int
	Index  []uint32
	Value  []float32
}

// Rows returns the number of major-axis entries.
func (m Matrix) Rows() int {
	if len(m.Offset) == 0 {
		return 0
	}
	return len(m.Offset) - 1
}

// Transpose converts m (rows × cols) to its transpose: the result's
// Offset is indexed by column and its Index holds row numbers. Row
// numbers stay ascending within each column and values are carried
// unchanged. Work is split over up to workers row chunks: each chunk
// counts its entries per column, the counts are prefix-summed into
// per-chunk write cursors, and every chunk then scatters independently.
func Transpose(m Matrix, cols, workers int) (Matrix, error) {
	rows := m.Rows()
	nnz := len(m.Index)
	if rows > 0 && m.Offset[rows] != nnz {
		return Matrix{}, fmt.Errorf("spmt: offset[%d]=%d but %d indices", rows, m.Offset[rows], nnz)
	}
	if m.Value != nil && len(m.Value) != nnz {
		return Matrix{}, fmt.Errorf("spmt: %d values for %d indices", len(m.Value), nnz)
	}

	if rows == 0 {
		return Matrix{Offset: make([]int, cols+1), Index: []uint32{}}, nil
	}

	chunks := 1
	if workers > 1 && rows >= 2*minRowsPerChunk {
		chunks = min(workers, rows/minRowsPerChunk)
	}
	bounds := make([]int, chunks+1)
	for c := range bounds {
		bounds[c] = c * rows / chunks
	}

	// counts[c][j]: entries of column j in chunk c.
	counts := make([][]int, chunks)
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for c := range chunks {
		g.Go(func() error {
			cnt := make([]int, cols)
			for _, j := range m.Index[m.Offset[bounds[c]]:m.Offset[bounds[c+1]]] {
				if int(j) >= cols {
					return fmt.Errorf("spmt: column index %d out of range [0,%d)", j, cols)
				}
				cnt[j]++
			}
			counts[c] = cnt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Matrix{}, err
	}

	out := Matrix{
		Offset: make([]int, cols+1),
		Index:  make([]uint32, nnz),
	}
	if m.Value != nil {
		out.Value = make([]float32, nnz)
	}

	// Turn counts into write cursors: column-major over chunks so chunk c
	// writes after chunks 0..c-1 within each column.
	pos := 0
	for j := range cols {
		out.Offset[j] = pos
		for c := range chunks {
			n := counts[c][j]
			counts[c][j] = pos
			pos += n
		}
	}
	out.Offset[cols] = pos

	var scatter errgroup.Group
	scatter.SetLimit(max(workers, 1))
	for c := range chunks {
		scatter.Go(func() error {
			cursor := counts[c]
			for r := bounds[c]; r < bounds[c+1]; r++ {
				for k := m.Offset[r]; k < m.Offset[r+1]; k++ {
					j := m.Index[k]
					p := cursor[j]
					out.Index[p] = uint32(r)
					if m.Value != nil {
						out.Value[p] = m.Value[k]
					}
					cursor[j]++
				}
			}
			return nil
		})
	}
	return out, scatter.Wait()
}
