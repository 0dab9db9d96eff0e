// Tilebench is a benchmarking tool for measuring tile build throughput,
// stored size and memory usage against any supported store.
//
// Usage:
//
//	go run ./cmd/tilebench -blocks 32 -rows 20000 -workers 8 -multicol -ranges 16
//
// Flags:
//
//	-blocks    Number of row blocks (default: 16)
//	-rows      Rows per block (default: 20,000)
//	-nnz       Maximum tokens per row (default: 32)
//	-features  Size of the token vocabulary (default: 1,000,000)
//	-workers   Parallel workers per block (default: 1)
//	-multicol  Store column-major tiles (default: false)
//	-ranges    Uniform feature blocks for positions, needs -multicol (default: 0)
//	-hash      Token hasher: xxh3, xxhash or murmur3 (default: xxh3)
//	-compress  Payload compression: none, lz4 or zstd (default: none)
//	-store     memory, local, s3 or minio (default: memory)
//	-rate      Store write limit in bytes/sec, 0 for unlimited (default: 0)
//	-async     Ingest through an AsyncBuilder (default: true)
//	-verify    Read every tile back and check it (default: false)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/tamirms/sparsetile"
	"github.com/tamirms/sparsetile/blobstore"
	miniostore "github.com/tamirms/sparsetile/blobstore/minio"
	s3store "github.com/tamirms/sparsetile/blobstore/s3"
)

// getMaxRSS returns the maximum resident set size in bytes.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

type options struct {
	blocks, rows, nnz, features int
	workers                     int
	multiCol                    bool
	ranges                      int
	hash, compress              string
	store, dir, prefix          string
	bucket, endpoint, region    string
	accessKey, secretKey        string
	secure                      bool
	rate                        int
	async, verify, showMetrics  bool
	logLevel                    string
	seed                        uint64
	cpuprofile                  string
}

func main() {
	var o options
	flag.IntVar(&o.blocks, "blocks", 16, "number of row blocks")
	flag.IntVar(&o.rows, "rows", 20_000, "rows per block")
	flag.IntVar(&o.nnz, "nnz", 32, "maximum tokens per row")
	flag.IntVar(&o.features, "features", 1_000_000, "size of the token vocabulary")
	flag.IntVar(&o.workers, "workers", 1, "parallel workers per block")
	flag.BoolVar(&o.multiCol, "multicol", false, "store column-major tiles")
	flag.IntVar(&o.ranges, "ranges", 0, "uniform feature blocks to locate (needs -multicol)")
	flag.StringVar(&o.hash, "hash", "xxh3", "token hasher: xxh3, xxhash or murmur3")
	flag.StringVar(&o.compress, "compress", "none", "payload compression: none, lz4 or zstd")
	flag.StringVar(&o.store, "store", "memory", "store: memory, local, s3 or minio")
	flag.StringVar(&o.dir, "dir", "", "directory for -store local (default: a temp dir)")
	flag.StringVar(&o.prefix, "prefix", "", "key prefix inside the bucket")
	flag.StringVar(&o.bucket, "bucket", "", "bucket for -store s3 or minio")
	flag.StringVar(&o.endpoint, "endpoint", "", "endpoint for minio, or an S3-compatible endpoint for s3")
	flag.StringVar(&o.region, "region", "", "AWS region for -store s3")
	flag.StringVar(&o.accessKey, "access-key", os.Getenv("MINIO_ACCESS_KEY"), "minio access key")
	flag.StringVar(&o.secretKey, "secret-key", os.Getenv("MINIO_SECRET_KEY"), "minio secret key")
	flag.BoolVar(&o.secure, "secure", false, "use TLS for minio")
	flag.IntVar(&o.rate, "rate", 0, "store write limit in bytes/sec (0 = unlimited)")
	flag.BoolVar(&o.async, "async", true, "ingest through an AsyncBuilder")
	flag.BoolVar(&o.verify, "verify", false, "read every tile back and check it")
	flag.BoolVar(&o.showMetrics, "metrics", false, "print Prometheus metrics when done")
	flag.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flag.Uint64Var(&o.seed, "seed", 1, "random seed for generated rows")
	flag.StringVar(&o.cpuprofile, "cpuprofile", "", "write cpu profile to file (build phase only)")
	flag.Parse()

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintf(os.Stderr, "tilebench: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	hasher, err := sparsetile.ParseHasher(o.hash)
	if err != nil {
		return err
	}
	comp, err := sparsetile.ParseCompression(o.compress)
	if err != nil {
		return err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	store, cleanup, err := openStore(ctx, o)
	if err != nil {
		return err
	}
	defer cleanup()
	var sink blobstore.Store = store
	if o.rate > 0 {
		sink = blobstore.NewRateLimitedStore(store, o.rate)
	}

	fmt.Println("Generating rows...")
	genStart := time.Now()
	blocks := generate(o, hasher)
	genDuration := time.Since(genStart)
	totalNNZ := 0
	for _, b := range blocks {
		totalNNZ += b.NNZ()
	}

	reg := prometheus.NewRegistry()
	opts := []sparsetile.BuildOption{
		sparsetile.WithWorkers(o.workers),
		sparsetile.WithCompression(comp),
		sparsetile.WithKeyPrefix(o.prefix),
		sparsetile.WithLogger(sparsetile.NewTextLogger(level)),
		sparsetile.WithMetrics(sparsetile.NewMetrics(reg)),
	}
	if o.multiCol {
		opts = append(opts, sparsetile.WithMultiColumn())
	}
	var featureBlocks []sparsetile.Range
	if o.ranges > 0 {
		featureBlocks = sparsetile.UniformFeatureBlocks(uint32(o.ranges))
	}

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)
	peakAlloc, stopSampling := samplePeakHeap(baseline.Alloc)

	if o.cpuprofile != "" {
		f, err := os.Create(o.cpuprofile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}

	fmt.Printf("Building %d tiles (workers=%d, multicol=%v, compress=%v)...\n",
		len(blocks), o.workers, o.multiCol, comp)
	buildStart := time.Now()

	b, err := sparsetile.NewBuilder(ctx, sink, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	union := sparsetile.NewIDUnion()
	var ingestDuration time.Duration
	var positions [][]sparsetile.Range
	if o.async {
		ab := sparsetile.NewAsyncBuilder(b, sparsetile.WithResultCallback(func(r sparsetile.IngestResult) {
			union.Add(r.IDs)
		}))
		for _, block := range blocks {
			if err := ab.Submit(block); err != nil {
				return err
			}
		}
		if err := ab.Wait(); err != nil {
			return err
		}
		ingestDuration = time.Since(buildStart)
		positions, err = ab.Finalize(union.GlobalIDs, featureBlocks)
	} else {
		for _, block := range blocks {
			ids, _, err := b.Ingest(block, sparsetile.WantIDs)
			if err != nil {
				return err
			}
			union.Add(ids)
		}
		ingestDuration = time.Since(buildStart)
		positions, err = b.Finalize(union.GlobalIDs(), featureBlocks)
	}
	if err != nil {
		return err
	}
	buildDuration := time.Since(buildStart)

	if o.cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	stopSampling()

	var storedBytes int64
	if m, ok := store.(*blobstore.MemoryStore); ok {
		storedBytes = m.Size()
	}

	fmt.Println()
	fmt.Println("=== Results ===")
	fmt.Printf("Blocks:          %d\n", len(blocks))
	fmt.Printf("Rows:            %d\n", len(blocks)*o.rows)
	fmt.Printf("Entries:         %d\n", totalNNZ)
	fmt.Printf("Global features: %d\n", union.Cardinality())
	fmt.Printf("Generate:        %v\n", genDuration)
	fmt.Printf("Ingest:          %v (%.2f M entries/s)\n", ingestDuration,
		float64(totalNNZ)/ingestDuration.Seconds()/1e6)
	fmt.Printf("Finalize:        %v\n", buildDuration-ingestDuration)
	fmt.Printf("Total build:     %v\n", buildDuration)
	if storedBytes > 0 {
		fmt.Printf("Stored:          %.2f MB (%.2f bytes/entry)\n",
			float64(storedBytes)/1e6, float64(storedBytes)/float64(max(totalNNZ, 1)))
	}
	fmt.Printf("Peak heap:       %.2f MB (baseline %.2f MB)\n",
		float64(peakAlloc.Load())/1e6, float64(baseline.Alloc)/1e6)
	fmt.Printf("Max RSS:         %.2f MB\n", float64(getMaxRSS())/1e6)
	if positions != nil {
		fmt.Printf("Feature blocks:  %d per tile\n", len(featureBlocks))
	}

	if o.verify {
		if err := verify(ctx, store, o.prefix, blocks, positions); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		fmt.Println("Verify:          ok")
	}

	if o.showMetrics {
		mfs, err := reg.Gather()
		if err != nil {
			return err
		}
		fmt.Println()
		for _, mf := range mfs {
			if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

// generate builds the input blocks. Token popularity follows a Zipf
// distribution so that blocks share their most frequent features.
func generate(o options, hasher sparsetile.Hasher) []*sparsetile.RowBlock {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9E3779B97F4A7C15))
	zipf := rand.NewZipf(rng, 1.1, 1, uint64(max(o.features, 1)-1))
	rb := sparsetile.RowBlockBuilder{Hasher: hasher}

	blocks := make([]*sparsetile.RowBlock, o.blocks)
	tokens := make([]string, 0, o.nnz)
	for i := range blocks {
		for range o.rows {
			tokens = tokens[:0]
			for range rng.IntN(max(o.nnz, 1)) + 1 {
				tokens = append(tokens, "f"+strconv.FormatUint(zipf.Uint64(), 10))
			}
			rb.AddRow(float32(rng.IntN(2)), tokens...)
		}
		blocks[i] = rb.Build()
	}
	return blocks
}

// samplePeakHeap tracks the peak live heap every 10ms until stop is
// called.
func samplePeakHeap(baseline uint64) (*atomic.Uint64, func()) {
	var peak atomic.Uint64
	peak.Store(baseline)
	done := make(chan struct{})
	go func() {
		samples := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				heapBytes := samples[0].Value.Uint64()
				for {
					old := peak.Load()
					if heapBytes <= old || peak.CompareAndSwap(old, heapBytes) {
						break
					}
				}
			}
		}
	}()
	return &peak, func() { close(done) }
}

func openStore(ctx context.Context, o options) (blobstore.ReadStore, func(), error) {
	noop := func() {}
	switch o.store {
	case "memory":
		return blobstore.NewMemoryStore(), noop, nil

	case "local":
		dir, cleanup := o.dir, noop
		if dir == "" {
			tmp, err := os.MkdirTemp("", "tilebench-")
			if err != nil {
				return nil, nil, err
			}
			dir, cleanup = tmp, func() { _ = os.RemoveAll(tmp) }
		}
		s, err := blobstore.NewLocalStore(dir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return s, cleanup, nil

	case "s3":
		if o.bucket == "" {
			return nil, nil, fmt.Errorf("-store s3 needs -bucket")
		}
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := awss3.NewFromConfig(cfg, func(opts *awss3.Options) {
			if o.endpoint != "" {
				opts.BaseEndpoint = aws.String(o.endpoint)
				opts.UsePathStyle = true
			}
		})
		return s3store.NewStore(client, o.bucket, o.prefix), noop, nil

	case "minio":
		if o.bucket == "" || o.endpoint == "" {
			return nil, nil, fmt.Errorf("-store minio needs -bucket and -endpoint")
		}
		client, err := minio.New(o.endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(o.accessKey, o.secretKey, ""),
			Secure: o.secure,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("minio client: %w", err)
		}
		exists, err := client.BucketExists(ctx, o.bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("minio bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, nil, fmt.Errorf("minio make bucket: %w", err)
			}
		}
		return miniostore.NewStore(client, o.bucket, o.prefix), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", o.store)
}

// verify reloads every tile, expands it and compares it with the input
// block, then checks that every column resolves to a global feature.
func verify(ctx context.Context, store blobstore.ReadStore, prefix string, blocks []*sparsetile.RowBlock, positions [][]sparsetile.Range) error {
	r, err := sparsetile.NewReader(store, sparsetile.WithReaderKeyPrefix(prefix))
	if err != nil {
		return err
	}
	n, err := r.NumBlocks(ctx)
	if err != nil {
		return err
	}
	if n != len(blocks) {
		return fmt.Errorf("store holds %d tiles, built %d", n, len(blocks))
	}
	for i, block := range blocks {
		tile, err := r.Tile(ctx, i)
		if err != nil {
			return err
		}
		colmap, err := r.ColumnMap(ctx, i)
		if err != nil {
			return err
		}
		if tile.NumRows != block.Rows() || tile.NNZ() != block.NNZ() {
			return fmt.Errorf("tile %d is %dx%d with %d entries, block has %d rows and %d entries",
				i, tile.NumRows, tile.NumCols, tile.NNZ(), block.Rows(), block.NNZ())
		}
		cols, err := sparsetile.GlobalColumns(tile, colmap)
		if err != nil {
			return err
		}
		for j, c := range cols {
			if c < 0 {
				return fmt.Errorf("tile %d entry %d has no global column", i, j)
			}
		}
		if positions != nil {
			pos, err := r.Positions(ctx, i)
			if err != nil {
				return err
			}
			if len(pos) != len(positions[i]) {
				return fmt.Errorf("tile %d has %d positions, want %d", i, len(pos), len(positions[i]))
			}
			if last := pos[len(pos)-1]; last.End != uint64(tile.NumCols) {
				return fmt.Errorf("tile %d positions end at %d, want %d", i, last.End, tile.NumCols)
			}
		}
	}
	return nil
}
