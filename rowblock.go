package sparsetile

import (
	"fmt"

	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/internal/localize"
)

// RowBlock is one block of training rows in CSR form, keyed by 64-bit
// feature ids. Row r owns Index[Offset[r]:Offset[r+1]].
//
// Value may be nil, meaning every stored entry is 1 (binary features).
// Label may be nil or hold one label per row. The builder never mutates a
// RowBlock.
type RowBlock struct {
	Offset []int
	Index  []uint64
	Value  []float32
	Label  []float32
}

// Rows returns the number of rows.
func (b *RowBlock) Rows() int {
	if len(b.Offset) == 0 {
		return 0
	}
	return len(b.Offset) - 1
}

// NNZ returns the number of stored entries.
func (b *RowBlock) NNZ() int {
	return len(b.Index)
}

// Validate checks the CSR shape and the label column.
func (b *RowBlock) Validate() error {
	if err := b.csr().Validate(); err != nil {
		return err
	}
	if b.Label != nil && len(b.Label) != b.Rows() {
		return fmt.Errorf("%w: %d labels for %d rows", streamerrors.ErrMalformedBlock, len(b.Label), b.Rows())
	}
	return nil
}

func (b *RowBlock) csr() localize.Block {
	return localize.Block{Offset: b.Offset, Index: b.Index, Value: b.Value}
}
