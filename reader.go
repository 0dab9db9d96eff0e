package sparsetile

import (
	"context"
	"fmt"

	"github.com/tamirms/sparsetile/blobstore"
	streamerrors "github.com/tamirms/sparsetile/errors"
)

// Reader loads tiles, column maps and positions written by a Builder.
// It is safe for concurrent use if the store is.
type Reader struct {
	store  blobstore.ReadStore
	prefix string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderKeyPrefix reads keys written with WithKeyPrefix(prefix).
func WithReaderKeyPrefix(prefix string) ReaderOption {
	return func(r *Reader) {
		r.prefix = prefix
	}
}

// NewReader creates a Reader over store.
func NewReader(store blobstore.ReadStore, opts ...ReaderOption) (*Reader, error) {
	if store == nil {
		return nil, streamerrors.ErrNilStore
	}
	r := &Reader{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Reader) load(ctx context.Context, key string, kind payloadKind) ([]byte, error) {
	buf, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	body, err := decodeFrame(buf, kind)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return body, nil
}

// Tile loads the tile of block i.
func (r *Reader) Tile(ctx context.Context, i int) (*Tile, error) {
	key := DataKey(r.prefix, i)
	body, err := r.load(ctx, key, kindTile)
	if err != nil {
		return nil, err
	}
	t, err := decodeTile(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return t, nil
}

// ColumnMap loads the column map of block i.
func (r *Reader) ColumnMap(ctx context.Context, i int) ([]int64, error) {
	key := ColumnMapKey(r.prefix, i)
	body, err := r.load(ctx, key, kindColumnMap)
	if err != nil {
		return nil, err
	}
	colmap, err := decodeColumnMap(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return colmap, nil
}

// Positions loads the feature block positions of block i.
func (r *Reader) Positions(ctx context.Context, i int) ([]Range, error) {
	key := PositionsKey(r.prefix, i)
	body, err := r.load(ctx, key, kindPositions)
	if err != nil {
		return nil, err
	}
	pos, err := decodePositions(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return pos, nil
}

// NumBlocks returns one past the highest block index with a stored tile.
func (r *Reader) NumBlocks(ctx context.Context) (int, error) {
	names, err := r.store.List(ctx, r.prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		if i, ok := parseBlobKey(r.prefix, name, kindTile); ok {
			n = max(n, i+1)
		}
	}
	return n, nil
}

// GlobalColumns maps the local indices of tile onto global positions via
// colmap. Entries whose feature is missing from the global union map to
// -1. The result is parallel to tile.Index for a row-major tile; for a
// column-major tile it has one entry per column.
func GlobalColumns(tile *Tile, colmap []int64) ([]int64, error) {
	if len(colmap) != tile.NumCols {
		return nil, fmt.Errorf("%w: column map has %d entries for %d columns",
			streamerrors.ErrCorruptedPayload, len(colmap), tile.NumCols)
	}
	if tile.ColumnMajor {
		out := make([]int64, tile.NumCols)
		copy(out, colmap)
		return out, nil
	}
	out := make([]int64, len(tile.Index))
	for k, j := range tile.Index {
		out[k] = colmap[j]
	}
	return out, nil
}
