// Package errors defines all exported error sentinels for the sparsetile library.
//
// This is the single source of truth for error values. Both the top-level
// sparsetile package and its internal routines import from here,
// ensuring errors.Is checks work across package boundaries.
package errors

import "errors"

// Configuration errors
var (
	ErrNilStore            = errors.New("sparsetile: storage backend is nil")
	ErrMultiColumnRequired = errors.New("sparsetile: feature block positions require multi-column mode (WithMultiColumn)")
	ErrNilGlobalIDs        = errors.New("sparsetile: global feature ids are nil")
)

// Invariant violations in caller-supplied input
var (
	ErrInvalidRange      = errors.New("sparsetile: range begin exceeds end")
	ErrOverlappingRanges = errors.New("sparsetile: feature block ranges are not sorted and disjoint")
	ErrUnsortedGlobalIDs = errors.New("sparsetile: global feature ids are not strictly ascending")
	ErrUnsortedKeys      = errors.New("sparsetile: match keys are not strictly ascending")
	ErrMalformedBlock    = errors.New("sparsetile: malformed row block")
	ErrTooManyFeatures   = errors.New("sparsetile: block has more distinct features than a local index can address")
)

// Lifecycle errors
var (
	ErrBuilderClosed = errors.New("sparsetile: builder is closed")
)

// Payload errors
var (
	ErrInvalidMagic     = errors.New("sparsetile: invalid payload magic")
	ErrInvalidVersion   = errors.New("sparsetile: unsupported payload version")
	ErrKindMismatch     = errors.New("sparsetile: payload kind mismatch")
	ErrChecksumFailed   = errors.New("sparsetile: payload checksum verification failed")
	ErrTruncatedPayload = errors.New("sparsetile: payload is truncated")
	ErrCorruptedPayload = errors.New("sparsetile: payload data is corrupted")
	ErrUnknownCodec     = errors.New("sparsetile: unknown payload compression")
)
