package blobstore

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedStore throttles the bytes written through an underlying Store.
// Reads are not limited.
type RateLimitedStore struct {
	Store
	limiter *rate.Limiter
}

// NewRateLimitedStore wraps s so that Put admits at most bytesPerSec bytes
// per second on average. Burst equals one second of budget. A
// non-positive rate disables limiting.
func NewRateLimitedStore(s Store, bytesPerSec int) *RateLimitedStore {
	limit := rate.Limit(bytesPerSec)
	if bytesPerSec <= 0 {
		limit = rate.Inf
	}
	return &RateLimitedStore{
		Store:   s,
		limiter: rate.NewLimiter(limit, max(bytesPerSec, 0)),
	}
}

// Put waits for write budget and then forwards to the wrapped store.
func (r *RateLimitedStore) Put(ctx context.Context, name string, data []byte) error {
	// WaitN rejects requests larger than the burst, so large blobs wait
	// in burst-sized installments.
	burst := r.limiter.Burst()
	if r.limiter.Limit() == rate.Inf || burst <= 0 {
		return r.Store.Put(ctx, name, data)
	}
	for remaining := len(data); remaining > 0; {
		n := min(remaining, burst)
		if err := r.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		remaining -= n
	}
	return r.Store.Put(ctx, name, data)
}

// Unwrap returns the wrapped store.
func (r *RateLimitedStore) Unwrap() Store {
	return r.Store
}

// Get forwards to the wrapped store when it is a ReadStore.
func (r *RateLimitedStore) Get(ctx context.Context, name string) ([]byte, error) {
	rs, ok := r.Store.(ReadStore)
	if !ok {
		return nil, errNotReadable
	}
	return rs.Get(ctx, name)
}

// List forwards to the wrapped store when it is a ReadStore.
func (r *RateLimitedStore) List(ctx context.Context, prefix string) ([]string, error) {
	rs, ok := r.Store.(ReadStore)
	if !ok {
		return nil, errNotReadable
	}
	return rs.List(ctx, prefix)
}

// Delete forwards to the wrapped store when it is a ReadStore.
func (r *RateLimitedStore) Delete(ctx context.Context, name string) error {
	rs, ok := r.Store.(ReadStore)
	if !ok {
		return errNotReadable
	}
	return rs.Delete(ctx, name)
}
