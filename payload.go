package sparsetile

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/internal/encoding"
)

// maxExpansion bounds RawLen/StoredLen for compressed frames so a corrupt
// header cannot force a huge allocation before the checksum is checked.
const maxExpansion = 1024

// Tile body flags.
const (
	tileColumnMajor = 1 << iota
	tileHasValue
	tileHasLabel
)

// encodeFrame wraps body in a frame header, compressing it with c when
// that pays off.
func encodeFrame(kind payloadKind, body []byte, c Compression) ([]byte, error) {
	stored, used, err := compress(body, c)
	if err != nil {
		return nil, err
	}
	h := header{
		Magic:       magic,
		Version:     version,
		Kind:        kind,
		Compression: used,
		RawLen:      uint64(len(body)),
		StoredLen:   uint64(len(stored)),
		Checksum:    xxhash.Sum64(body),
	}
	out := make([]byte, headerSize+len(stored))
	h.encodeTo(out)
	copy(out[headerSize:], stored)
	return out, nil
}

// decodeFrame validates a frame of the wanted kind and returns its raw
// body.
func decodeFrame(buf []byte, want payloadKind) ([]byte, error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.Kind != want {
		return nil, fmt.Errorf("%w: got %v, want %v", streamerrors.ErrKindMismatch, h.Kind, want)
	}
	if uint64(len(buf)-headerSize) != h.StoredLen {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d",
			streamerrors.ErrTruncatedPayload, len(buf)-headerSize, h.StoredLen)
	}
	if h.Compression != CompressionNone && h.RawLen > h.StoredLen*maxExpansion {
		return nil, fmt.Errorf("%w: raw length %d for %d stored bytes",
			streamerrors.ErrCorruptedPayload, h.RawLen, h.StoredLen)
	}

	body, err := decompress(buf[headerSize:], h.Compression, int(h.RawLen))
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(body) != h.Checksum {
		return nil, streamerrors.ErrChecksumFailed
	}
	return body, nil
}

// encodeTile serializes a tile body:
//
//	uvarint NumRows, uvarint NumCols, uvarint flags,
//	offsets (uvarint deltas), uvarint nnz, nnz × uint32 index,
//	[nnz × float32 value], [NumRows × float32 label]
func encodeTile(t *Tile) []byte {
	var flags uint64
	if t.ColumnMajor {
		flags |= tileColumnMajor
	}
	if t.Value != nil {
		flags |= tileHasValue
	}
	if t.Label != nil {
		flags |= tileHasLabel
	}

	nnz := len(t.Index)
	buf := make([]byte, 0, 16+len(t.Offset)*2+nnz*8+len(t.Label)*4)
	buf = encoding.AppendUvarint(buf, uint64(t.NumRows))
	buf = encoding.AppendUvarint(buf, uint64(t.NumCols))
	buf = encoding.AppendUvarint(buf, flags)
	buf = encoding.AppendOffsets(buf, t.Offset)
	buf = encoding.AppendUvarint(buf, uint64(nnz))
	buf = encoding.AppendUint32s(buf, t.Index)
	if t.Value != nil {
		buf = encoding.AppendFloat32s(buf, t.Value)
	}
	if t.Label != nil {
		buf = encoding.AppendFloat32s(buf, t.Label)
	}
	return buf
}

func decodeTile(body []byte) (*Tile, error) {
	r := encoding.NewReader(body)
	t := &Tile{}
	t.NumRows = r.Count(0)
	t.NumCols = r.Count(0)
	flags := r.Uvarint()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if t.NumRows < 0 || t.NumCols < 0 || t.NumRows > math.MaxInt32 || t.NumCols > math.MaxUint32 {
		return nil, fmt.Errorf("%w: tile shape %dx%d", streamerrors.ErrCorruptedPayload, t.NumRows, t.NumCols)
	}
	if flags&^(tileColumnMajor|tileHasValue|tileHasLabel) != 0 {
		return nil, fmt.Errorf("%w: unknown tile flags %#x", streamerrors.ErrCorruptedPayload, flags)
	}
	t.ColumnMajor = flags&tileColumnMajor != 0

	major := t.NumRows
	if t.ColumnMajor {
		major = t.NumCols
	}
	if major+1 > r.Remaining() {
		return nil, fmt.Errorf("%w: %d offsets in %d bytes", streamerrors.ErrTruncatedPayload, major+1, r.Remaining())
	}
	t.Offset = r.Offsets(major + 1)
	nnz := r.Count(4)
	t.Index = r.Uint32s(nnz)
	if flags&tileHasValue != 0 {
		t.Value = r.Float32s(nnz)
	}
	if flags&tileHasLabel != 0 {
		t.Label = r.Float32s(t.NumRows)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", streamerrors.ErrCorruptedPayload, r.Remaining())
	}
	if t.Index == nil {
		t.Index = []uint32{}
	}
	if flags&tileHasValue != 0 && t.Value == nil {
		t.Value = []float32{}
	}
	if flags&tileHasLabel != 0 && t.Label == nil {
		t.Label = []float32{}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Column map body: uvarint n, n × int64.
func encodeColumnMap(colmap []int64) []byte {
	buf := make([]byte, 0, 10+8*len(colmap))
	buf = encoding.AppendUvarint(buf, uint64(len(colmap)))
	return encoding.AppendInt64s(buf, colmap)
}

func decodeColumnMap(body []byte) ([]int64, error) {
	r := encoding.NewReader(body)
	n := r.Count(8)
	colmap := r.Int64s(n)
	if r.Err() != nil {
		return nil, r.Err()
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", streamerrors.ErrCorruptedPayload, r.Remaining())
	}
	if colmap == nil {
		colmap = []int64{}
	}
	return colmap, nil
}

// Positions body: uvarint n, then n × (uvarint begin, uvarint length).
func encodePositions(positions []Range) []byte {
	buf := make([]byte, 0, 2+4*len(positions))
	buf = encoding.AppendUvarint(buf, uint64(len(positions)))
	for _, p := range positions {
		buf = encoding.AppendUvarint(buf, p.Begin)
		buf = encoding.AppendUvarint(buf, p.Len())
	}
	return buf
}

func decodePositions(body []byte) ([]Range, error) {
	r := encoding.NewReader(body)
	n := r.Count(2)
	positions := make([]Range, n)
	for i := range positions {
		begin := r.Uvarint()
		length := r.Uvarint()
		if begin+length < begin {
			return nil, fmt.Errorf("%w: position %d overflows", streamerrors.ErrCorruptedPayload, i)
		}
		positions[i] = Range{Begin: begin, End: begin + length}
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", streamerrors.ErrCorruptedPayload, r.Remaining())
	}
	return positions, nil
}
