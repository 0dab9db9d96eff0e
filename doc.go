// Package sparsetile prepares sparse, high-cardinality training data for
// distributed sparse model learning.
//
// Rows arrive in blocks keyed by 64-bit feature ids. Each block is
// localized into a tile whose feature indices are dense and block-local,
// and the tile is written to a storage backend right away. Once every
// block of a batch has been seen, the caller supplies the sorted union of
// feature ids and the builder writes, per block, a column map from local
// index to global position, plus optional positions of the block's ids
// within caller-defined feature blocks.
//
// # Basic Usage
//
// Building tiles:
//
//	store := blobstore.NewMemoryStore()
//	b, err := sparsetile.NewBuilder(ctx, store, sparsetile.WithWorkers(8), sparsetile.WithMultiColumn())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	union := sparsetile.NewIDUnion()
//	for _, block := range blocks {
//	    ids, _, err := b.Ingest(block, sparsetile.WantIDs)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    union.Add(ids)
//	}
//	positions, err := b.Finalize(union.GlobalIDs(), sparsetile.UniformFeatureBlocks(4))
//
// Reading them back:
//
//	r, _ := sparsetile.NewReader(store)
//	tile, err := r.Tile(ctx, 0)
//	colmap, err := r.ColumnMap(ctx, 0)
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Public API: builder.go (NewBuilder, Ingest, Finalize), builder_async.go (AsyncBuilder), reader.go (Reader)
//   - Configuration: builder_options.go (BuildOption, With* functions)
//   - Values: range.go, rowblock.go, tile.go, globalids.go (GlobalIDs, IDUnion)
//   - Feature blocks: position.go (FindPosition, ValidateFeatureBlocks)
//   - Serialization: header.go (frame header), payload.go, compression.go, key.go
//   - Feature hashing: hash.go (HashFeature, RowBlockBuilder)
//   - Observability: logger.go, metrics.go
//   - Collaborators: internal/localize (Compact), internal/spmt (Transpose), internal/kv (Match)
//   - Storage: blobstore/ (memory, local, rate-limited), blobstore/s3, blobstore/minio
//   - Hand-off: queue/ (Queue)
package sparsetile
