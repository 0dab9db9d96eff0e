package sparsetile

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tamirms/sparsetile/blobstore"
	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/internal/kv"
	"github.com/tamirms/sparsetile/internal/localize"
	"github.com/tamirms/sparsetile/internal/spmt"
)

// Want selects which per-block outputs Ingest returns to the caller.
// The builder keeps each block's distinct ids regardless.
type Want uint8

const (
	// WantIDs returns the block's distinct feature ids.
	WantIDs Want = 1 << iota
	// WantCounts returns the occurrence count of each distinct id.
	WantCounts
)

// Builder localizes row blocks into tiles and, once the global feature
// id union is known, reconciles every tile against it.
//
// Usage:
//
//	b, err := sparsetile.NewBuilder(ctx, store, sparsetile.WithWorkers(8))
//	if err != nil { return err }
//	defer b.Close()
//
//	union := sparsetile.NewIDUnion()
//	for _, block := range blocks {
//	    ids, _, err := b.Ingest(block, sparsetile.WantIDs)
//	    if err != nil { return err }
//	    union.Add(ids)
//	}
//	_, err = b.Finalize(union.GlobalIDs(), nil)
//
// Ingest and Finalize are not safe for concurrent use; callers serialize
// them or use an AsyncBuilder.
type Builder struct {
	ctx   context.Context
	cfg   *buildConfig
	store blobstore.Store

	// pending[k] holds the distinct ids of block firstPending+k.
	pending      [][]uint64
	firstPending int
	nextBlock    int
	closed       bool
}

// NewBuilder creates a builder that writes to store. The store is
// borrowed: it must stay usable until the builder is closed. ctx bounds
// every store call the builder makes.
func NewBuilder(ctx context.Context, store blobstore.Store, opts ...BuildOption) (*Builder, error) {
	if store == nil {
		return nil, streamerrors.ErrNilStore
	}

	cfg := defaultBuildConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: %v", streamerrors.ErrUnknownCodec, cfg.compression)
	}

	return &Builder{
		ctx:   ctx,
		cfg:   cfg,
		store: store,
	}, nil
}

// Ingest localizes one block, stores the tile under DataKey(prefix, n)
// where n counts prior successful Ingest calls, and retains the block's
// distinct ids for Finalize.
//
// The returned ids (if WantIDs) are a copy the caller owns. counts (if
// WantCounts) are parallel to the ids. A failed Ingest stores nothing
// under its index and does not consume it.
func (b *Builder) Ingest(block *RowBlock, want Want) (ids []uint64, counts []float32, err error) {
	if b.closed {
		return nil, nil, streamerrors.ErrBuilderClosed
	}
	if block == nil {
		return nil, nil, fmt.Errorf("%w: nil block", streamerrors.ErrMalformedBlock)
	}

	start := time.Now()
	n := b.nextBlock
	ids, counts, size, err := b.ingest(n, block, want&WantCounts != 0)
	b.cfg.metrics.observeIngest(start, err)
	b.cfg.logger.LogIngest(b.ctx, n, block.Rows(), block.NNZ(), len(ids), size, err)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest block %d: %w", n, err)
	}

	b.pending = append(b.pending, ids)
	b.nextBlock++

	if want&WantIDs != 0 {
		return slices.Clone(ids), counts, nil
	}
	return nil, counts, nil
}

func (b *Builder) ingest(n int, block *RowBlock, wantCounts bool) ([]uint64, []float32, int, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, nil, 0, err
	}
	if err := block.Validate(); err != nil {
		return nil, nil, 0, err
	}

	res, err := localize.Compact(block.csr(), b.cfg.workers, wantCounts)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("compact: %w", err)
	}

	tile := Tile{
		Offset:  res.Tile.Offset,
		Index:   res.Tile.Index,
		Value:   res.Tile.Value,
		Label:   block.Label,
		NumRows: block.Rows(),
		NumCols: len(res.IDs),
	}
	if b.cfg.multiColumn {
		t, err := spmt.Transpose(res.Tile, len(res.IDs), b.cfg.workers)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("transpose: %w", err)
		}
		tile.Offset, tile.Index, tile.Value = t.Offset, t.Index, t.Value
		tile.ColumnMajor = true
	}

	size, err := b.put(DataKey(b.cfg.keyPrefix, n), kindTile, encodeTile(&tile))
	if err != nil {
		return nil, nil, 0, err
	}
	return res.IDs, res.Counts, size, nil
}

// put frames body and hands it to the store.
func (b *Builder) put(key string, kind payloadKind, body []byte) (int, error) {
	frame, err := encodeFrame(kind, body, b.cfg.compression)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.store.Put(b.ctx, key, frame); err != nil {
		return 0, fmt.Errorf("store %s: %w", key, err)
	}
	b.cfg.metrics.addPayload(kind, len(frame))
	return len(frame), nil
}

// Finalize builds and stores the column map of every block ingested since
// the previous Finalize, in ingestion order. Column map entry j of block i
// is the position of the block's j-th distinct id in global, or -1 when
// global lacks it.
//
// If featureBlocks is non-empty, Finalize also stores, and returns, the
// positions of each block's ids within every feature block (see
// FindPosition). That requires WithMultiColumn.
//
// Finalize always consumes global: it is empty when Finalize returns.
// Precondition failures (nil global, positions without multi-column
// mode, bad feature blocks) are reported before any work and leave the
// pending blocks in place. Once work has begun, the pending blocks are
// released whether or not it succeeds.
func (b *Builder) Finalize(global *GlobalIDs, featureBlocks []Range) ([][]Range, error) {
	if global == nil {
		return nil, streamerrors.ErrNilGlobalIDs
	}
	globalIDs := global.take()

	if b.closed {
		return nil, streamerrors.ErrBuilderClosed
	}
	if len(featureBlocks) > 0 {
		if !b.cfg.multiColumn {
			return nil, streamerrors.ErrMultiColumnRequired
		}
		if err := ValidateFeatureBlocks(featureBlocks); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	blocks := len(b.pending)
	positions, unmatched, err := b.finalize(globalIDs, featureBlocks)
	b.cfg.metrics.observeFinalize(start)
	b.cfg.logger.LogFinalize(b.ctx, blocks, len(globalIDs), unmatched, err)
	return positions, err
}

func (b *Builder) finalize(globalIDs []uint64, featureBlocks []Range) ([][]Range, int, error) {
	defer b.releasePending()

	// rank[j] = j+1 so that 0 can mean "not in global".
	rank := make([]int64, len(globalIDs))
	for j := range rank {
		rank[j] = int64(j) + 1
	}

	var positions [][]Range
	if len(featureBlocks) > 0 {
		positions = make([][]Range, len(b.pending))
	}
	unmatched := 0

	for k, ids := range b.pending {
		i := b.firstPending + k
		if err := b.ctx.Err(); err != nil {
			return nil, unmatched, err
		}

		colmap, err := kv.Match(globalIDs, rank, ids, 0, b.cfg.workers)
		if err != nil {
			return nil, unmatched, fmt.Errorf("finalize block %d: match: %w", i, err)
		}
		missing := 0
		for j := range colmap {
			colmap[j]--
			if colmap[j] < 0 {
				missing++
			}
		}
		unmatched += missing
		b.cfg.metrics.addUnmatched(missing)

		if _, err := b.put(ColumnMapKey(b.cfg.keyPrefix, i), kindColumnMap, encodeColumnMap(colmap)); err != nil {
			return nil, unmatched, fmt.Errorf("finalize block %d: %w", i, err)
		}

		if positions != nil {
			pos, err := FindPosition(ids, featureBlocks)
			if err != nil {
				return nil, unmatched, fmt.Errorf("finalize block %d: %w", i, err)
			}
			if _, err := b.put(PositionsKey(b.cfg.keyPrefix, i), kindPositions, encodePositions(pos)); err != nil {
				return nil, unmatched, fmt.Errorf("finalize block %d: %w", i, err)
			}
			positions[k] = pos
		}

		b.pending[k] = nil
	}
	return positions, unmatched, nil
}

// releasePending drops every retained id buffer. Block numbering
// continues from nextBlock so a later batch does not overwrite keys.
func (b *Builder) releasePending() {
	clear(b.pending)
	b.pending = b.pending[:0]
	b.firstPending = b.nextBlock
}

// Pending returns the number of blocks whose ids are retained for the
// next Finalize.
func (b *Builder) Pending() int {
	return len(b.pending)
}

// NumBlocks returns the number of blocks ingested so far.
func (b *Builder) NumBlocks() int {
	return b.nextBlock
}

// Close releases retained buffers. Later Ingest and Finalize calls fail
// with ErrBuilderClosed. Close is idempotent.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.pending = nil
	return nil
}
