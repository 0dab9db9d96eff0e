package sparsetile

import (
	"context"
	"fmt"
	"testing"

	"github.com/tamirms/sparsetile/blobstore"
)

func benchmarkIngestN(b *testing.B, rows, workers int, opts ...BuildOption) {
	rng := newTestRNG(b)
	block := randomBlock(rng, rows, 32, rows*4, false, true)
	ctx := context.Background()
	opts = append(opts, WithWorkers(workers))

	b.SetBytes(int64(block.NNZ()) * 8)
	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		builder, err := NewBuilder(ctx, blobstore.NewMemoryStore(), opts...)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := builder.Ingest(block, 0); err != nil {
			b.Fatal(err)
		}
		_ = builder.Close()
	}
}

func BenchmarkIngest10K(b *testing.B)  { benchmarkIngestN(b, 10_000, 1) }
func BenchmarkIngest100K(b *testing.B) { benchmarkIngestN(b, 100_000, 1) }

func BenchmarkIngest100KWorkers(b *testing.B) {
	for _, w := range []int{2, 4, 8} {
		b.Run(fmt.Sprintf("workers=%d", w), func(b *testing.B) {
			benchmarkIngestN(b, 100_000, w)
		})
	}
}

func BenchmarkIngest100KMultiColumn(b *testing.B) {
	benchmarkIngestN(b, 100_000, 4, WithMultiColumn())
}

func BenchmarkIngest100KZSTD(b *testing.B) {
	benchmarkIngestN(b, 100_000, 4, WithCompression(CompressionZSTD))
}

func BenchmarkFinalize(b *testing.B) {
	rng := newTestRNG(b)
	blocks := make([]*RowBlock, 8)
	lists := make([][]uint64, len(blocks))
	for i := range blocks {
		blocks[i] = randomBlock(rng, 20_000, 32, 200_000, false, false)
		lists[i] = distinct(blocks[i])
	}
	global := UnionGlobalIDs(lists...).IDs()
	featureBlocks := UniformFeatureBlocks(64)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		b.StopTimer()
		builder, err := NewBuilder(ctx, blobstore.NewMemoryStore(), WithMultiColumn(), WithWorkers(4))
		if err != nil {
			b.Fatal(err)
		}
		for _, block := range blocks {
			if _, _, err := builder.Ingest(block, 0); err != nil {
				b.Fatal(err)
			}
		}
		g, err := NewGlobalIDs(append([]uint64(nil), global...))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := builder.Finalize(g, featureBlocks); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindPosition(b *testing.B) {
	rng := newTestRNG(b)
	ids := distinct(randomBlock(rng, 50_000, 16, 1<<30, false, false))
	featureBlocks := UniformFeatureBlocks(256)

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		if _, err := FindPosition(ids, featureBlocks); err != nil {
			b.Fatal(err)
		}
	}
}
