package spmt

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMatrix(rng *rand.Rand, rows, cols, maxPerRow int, withValues bool) Matrix {
	m := Matrix{Offset: make([]int, 1, rows+1)}
	for range rows {
		n := rng.IntN(maxPerRow + 1)
		for range n {
			m.Index = append(m.Index, uint32(rng.IntN(cols)))
			if withValues {
				m.Value = append(m.Value, rng.Float32())
			}
		}
		m.Offset = append(m.Offset, len(m.Index))
	}
	return m
}

func dense(m Matrix, cols int) [][]float32 {
	rows := m.Rows()
	d := make([][]float32, rows)
	for r := range rows {
		d[r] = make([]float32, cols)
		for k := m.Offset[r]; k < m.Offset[r+1]; k++ {
			v := float32(1)
			if m.Value != nil {
				v = m.Value[k]
			}
			d[r][m.Index[k]] += v
		}
	}
	return d
}

func TestTransposeSmall(t *testing.T) {
	// [[a . b]
	//  [. c .]]
	m := Matrix{
		Offset: []int{0, 2, 3},
		Index:  []uint32{0, 2, 1},
		Value:  []float32{1, 2, 3},
	}
	tr, err := Transpose(m, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, tr.Offset)
	assert.Equal(t, []uint32{0, 1, 0}, tr.Index)
	assert.Equal(t, []float32{1, 3, 2}, tr.Value)
}

func TestTransposeMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	const rows, cols = 5000, 300

	for _, withValues := range []bool{true, false} {
		m := randomMatrix(rng, rows, cols, 12, withValues)
		want := dense(m, cols)

		var first Matrix
		for i, workers := range []int{1, 2, 4, 16} {
			tr, err := Transpose(m, cols, workers)
			require.NoError(t, err)
			require.Equal(t, cols, tr.Rows())

			if i == 0 {
				first = tr
			} else {
				require.Equal(t, first, tr, "workers=%d changed layout", workers)
			}

			// Transposing back reproduces the dense matrix.
			back, err := Transpose(tr, rows, workers)
			require.NoError(t, err)
			require.Equal(t, want, dense(back, cols))

			// Row numbers ascend within each column.
			for j := range cols {
				for k := tr.Offset[j] + 1; k < tr.Offset[j+1]; k++ {
					require.LessOrEqual(t, tr.Index[k-1], tr.Index[k])
				}
			}
		}
	}
}

func TestTransposeRejectsBadInput(t *testing.T) {
	_, err := Transpose(Matrix{Offset: []int{0, 1}, Index: []uint32{5}}, 3, 1)
	assert.Error(t, err)

	_, err = Transpose(Matrix{Offset: []int{0, 2}, Index: []uint32{0}}, 3, 1)
	assert.Error(t, err)

	_, err = Transpose(Matrix{Offset: []int{0, 1}, Index: []uint32{0}, Value: []float32{1, 2}}, 3, 1)
	assert.Error(t, err)
}

func TestTransposeEmpty(t *testing.T) {
	tr, err := Transpose(Matrix{}, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, tr.Offset)
	assert.Empty(t, tr.Index)
}
