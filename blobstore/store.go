// Package blobstore defines the storage backend tiles are written to and
// ships local implementations. Remote backends live in the s3 and minio
// subpackages.
package blobstore

import (
	"context"
	"errors"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

var errNotReadable = errors.New("blobstore: wrapped store does not support reads")

// Store persists opaque payloads under string keys. It is the only
// contract the tile builder needs. Implementations must be safe for
// concurrent use; writing an existing key replaces it.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
}

// ReadStore is a Store that can also read back, enumerate and remove
// blobs. Readers of finished tiles use it.
type ReadStore interface {
	Store
	// Get returns the blob contents. The caller owns the returned slice.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}
