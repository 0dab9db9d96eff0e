package sparsetile

import (
	"fmt"
	"slices"

	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/internal/spmt"
)

// Tile is a localized block. Index holds local feature indices: local
// index i stands for the block's i-th distinct feature id.
//
// A row-major tile has one Offset entry per row. A column-major tile
// (ColumnMajor set) has one Offset entry per local feature and its Index
// holds row numbers. Label is in row order either way.
type Tile struct {
	Offset      []int
	Index       []uint32
	Value       []float32
	Label       []float32
	NumRows     int
	NumCols     int
	ColumnMajor bool
}

// NNZ returns the number of stored entries.
func (t *Tile) NNZ() int {
	return len(t.Index)
}

func (t *Tile) matrix() spmt.Matrix {
	return spmt.Matrix{Offset: t.Offset, Index: t.Index, Value: t.Value}
}

func (t *Tile) validate() error {
	major := t.NumRows
	if t.ColumnMajor {
		major = t.NumCols
	}
	if len(t.Offset) != major+1 {
		return fmt.Errorf("%w: %d offsets for %d major entries", streamerrors.ErrCorruptedPayload, len(t.Offset), major)
	}
	if t.Offset[0] != 0 || t.Offset[major] != len(t.Index) {
		return fmt.Errorf("%w: offsets do not span %d entries", streamerrors.ErrCorruptedPayload, len(t.Index))
	}
	for i := 1; i <= major; i++ {
		if t.Offset[i] < t.Offset[i-1] {
			return fmt.Errorf("%w: offsets decrease at %d", streamerrors.ErrCorruptedPayload, i)
		}
	}
	minor := t.NumCols
	if t.ColumnMajor {
		minor = t.NumRows
	}
	for _, j := range t.Index {
		if int(j) >= minor {
			return fmt.Errorf("%w: index %d out of range [0,%d)", streamerrors.ErrCorruptedPayload, j, minor)
		}
	}
	if t.Value != nil && len(t.Value) != len(t.Index) {
		return fmt.Errorf("%w: %d values for %d entries", streamerrors.ErrCorruptedPayload, len(t.Value), len(t.Index))
	}
	if t.Label != nil && len(t.Label) != t.NumRows {
		return fmt.Errorf("%w: %d labels for %d rows", streamerrors.ErrCorruptedPayload, len(t.Label), t.NumRows)
	}
	return nil
}

// Expand rebuilds the row-major RowBlock the tile was made from, mapping
// local indices back through ids (the block's distinct feature ids).
func (t *Tile) Expand(ids []uint64, workers int) (*RowBlock, error) {
	if len(ids) != t.NumCols {
		return nil, fmt.Errorf("sparsetile: %d ids for a tile with %d columns", len(ids), t.NumCols)
	}
	m := t.matrix()
	if t.ColumnMajor {
		var err error
		if m, err = spmt.Transpose(m, t.NumRows, workers); err != nil {
			return nil, err
		}
	}
	offset := m.Offset
	if len(offset) == 0 {
		offset = make([]int, t.NumRows+1)
	}
	index := make([]uint64, len(m.Index))
	for k, j := range m.Index {
		index[k] = ids[j]
	}
	return &RowBlock{
		Offset: slices.Clone(offset),
		Index:  index,
		Value:  slices.Clone(m.Value),
		Label:  slices.Clone(t.Label),
	}, nil
}
