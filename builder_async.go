package sparsetile

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/queue"
)

// IngestResult reports one block processed by an AsyncBuilder.
type IngestResult struct {
	// Block is the index the tile was stored under, or -1 on failure.
	Block  int
	IDs    []uint64
	Counts []float32
	Err    error
}

// AsyncOption configures an AsyncBuilder.
type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	want     Want
	callback func(IngestResult)
}

// WithWant selects the outputs carried by each IngestResult.
// The default is WantIDs.
func WithWant(w Want) AsyncOption {
	return func(c *asyncConfig) {
		c.want = w
	}
}

// WithResultCallback invokes fn on the ingestion goroutine for every
// result, before the result is queued. fn must not call back into the
// AsyncBuilder.
func WithResultCallback(fn func(IngestResult)) AsyncOption {
	return func(c *asyncConfig) {
		c.callback = fn
	}
}

// AsyncBuilder feeds a Builder from a queue on a single background
// goroutine, so producers can submit blocks without waiting for
// localization and storage.
//
// Usage:
//
//	ab := sparsetile.NewAsyncBuilder(b, sparsetile.WithResultCallback(func(r sparsetile.IngestResult) {
//	    union.Add(r.IDs)
//	}))
//	for _, block := range blocks {
//	    if err := ab.Submit(block); err != nil { return err }
//	}
//	positions, err := ab.Finalize(union.GlobalIDs, featureBlocks)
//
// The first failed Ingest stops the pipeline: later blocks are dropped
// and Wait returns that error.
type AsyncBuilder struct {
	b       *Builder
	cfg     asyncConfig
	input   *queue.Queue[*RowBlock]
	results *queue.Queue[IngestResult]

	group *errgroup.Group
	ctx   context.Context

	mu     sync.Mutex // serializes Submit against closing the input
	closed bool
}

// NewAsyncBuilder starts the ingestion goroutine for b. The caller must
// not use b directly until Wait returns.
func NewAsyncBuilder(b *Builder, opts ...AsyncOption) *AsyncBuilder {
	cfg := asyncConfig{want: WantIDs}
	for _, opt := range opts {
		opt(&cfg)
	}

	g, ctx := errgroup.WithContext(b.ctx)
	a := &AsyncBuilder{
		b:       b,
		cfg:     cfg,
		input:   queue.New[*RowBlock](),
		results: queue.New[IngestResult](),
		group:   g,
		ctx:     ctx,
	}
	g.Go(a.run)
	return a
}

func (a *AsyncBuilder) run() error {
	defer a.results.Close()
	for {
		block, err := a.input.PopContext(a.ctx)
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		res := IngestResult{Block: -1}
		res.IDs, res.Counts, res.Err = a.b.Ingest(block, a.cfg.want)
		if res.Err == nil {
			res.Block = a.b.NumBlocks() - 1
		}
		if a.cfg.callback != nil {
			a.cfg.callback(res)
		}
		a.results.Push(res)
		if res.Err != nil {
			return res.Err
		}
	}
}

// Submit queues block for ingestion. It never blocks. It fails once Wait
// has been called or the pipeline has stopped on an error.
func (a *AsyncBuilder) Submit(block *RowBlock) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return streamerrors.ErrBuilderClosed
	}
	if err := a.ctx.Err(); err != nil {
		return errors.Join(errStopped, context.Cause(a.ctx))
	}
	a.input.Push(block)
	return nil
}

// Results returns the queue results are pushed to, in ingestion order.
// It is closed once the ingestion goroutine exits. Consume it with
// PopContext or TryPop: on a closed, drained queue WaitAndPop returns a
// zero IngestResult, which is indistinguishable from a result for block 0.
func (a *AsyncBuilder) Results() *queue.Queue[IngestResult] {
	return a.results
}

// Wait stops accepting blocks, waits until every submitted block has been
// ingested, and returns the first ingest error.
func (a *AsyncBuilder) Wait() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		a.input.Close()
	}
	a.mu.Unlock()
	return a.group.Wait()
}

// Finalize waits for ingestion, then calls global to obtain the union of
// feature ids and finalizes the underlying Builder with it. global runs
// only after every submitted block is ingested, so a union fed by the
// result callback is complete. It is not called if ingestion failed.
func (a *AsyncBuilder) Finalize(global func() *GlobalIDs, featureBlocks []Range) ([][]Range, error) {
	if global == nil {
		return nil, streamerrors.ErrNilGlobalIDs
	}
	if err := a.Wait(); err != nil {
		return nil, err
	}
	return a.b.Finalize(global(), featureBlocks)
}

// errStopped is reported by Submit once the ingestion goroutine has
// exited early.
var errStopped = errors.New("sparsetile: async ingestion stopped")
