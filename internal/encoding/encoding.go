// Package encoding packs the fixed-width and variable-width slices that
// make up tile, column map and position payloads.
//
// All fixed-width values are little-endian. Feature id sequences, which are
// strictly ascending, are delta coded as uvarints.
package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	streamerrors "github.com/tamirms/sparsetile/errors"
)

// AppendUvarint appends v as a uvarint.
func AppendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// AppendUint32s appends each value as 4 little-endian bytes.
func AppendUint32s(dst []byte, vs []uint32) []byte {
	dst = grow(dst, 4*len(vs))
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, v)
	}
	return dst
}

// AppendFloat32s appends the IEEE-754 bits of each value.
func AppendFloat32s(dst []byte, vs []float32) []byte {
	dst = grow(dst, 4*len(vs))
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// AppendInt64s appends each value as 8 little-endian bytes.
func AppendInt64s(dst []byte, vs []int64) []byte {
	dst = grow(dst, 8*len(vs))
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(v))
	}
	return dst
}

// AppendOffsets appends a CSR offset array as uvarint deltas.
// offsets must be non-decreasing.
func AppendOffsets(dst []byte, offsets []int) []byte {
	prev := 0
	for _, o := range offsets {
		dst = binary.AppendUvarint(dst, uint64(o-prev))
		prev = o
	}
	return dst
}

// AppendDeltaIDs appends an ascending id sequence as uvarint deltas.
// The first id is stored as is.
func AppendDeltaIDs(dst []byte, ids []uint64) []byte {
	var prev uint64
	for _, id := range ids {
		dst = binary.AppendUvarint(dst, id-prev)
		prev = id
	}
	return dst
}

func grow(dst []byte, n int) []byte {
	if cap(dst)-len(dst) < n {
		out := make([]byte, len(dst), len(dst)+n)
		copy(out, dst)
		return out
	}
	return dst
}

// Reader decodes values appended by the Append functions. The first
// failure is sticky: later calls return zero values and Err reports it.
type Reader struct {
	buf []byte
	err error
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first decode error.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of undecoded bytes.
func (r *Reader) Remaining() int {
	return len(r.buf)
}

func (r *Reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: reading %s", streamerrors.ErrTruncatedPayload, what)
	}
}

// Uvarint reads one uvarint.
func (r *Reader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail("uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// Count reads a uvarint length and rejects lengths the remaining bytes
// could not hold at minWidth bytes per element.
func (r *Reader) Count(minWidth int) int {
	v := r.Uvarint()
	if r.err != nil {
		return 0
	}
	if minWidth > 0 && v > uint64(len(r.buf)/minWidth) {
		r.err = fmt.Errorf("%w: length %d exceeds remaining %d bytes", streamerrors.ErrCorruptedPayload, v, len(r.buf))
		return 0
	}
	return int(v)
}

func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.fail(what)
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

// Uint32s reads n little-endian uint32 values.
func (r *Reader) Uint32s(n int) []uint32 {
	b := r.take(4*n, "uint32 slice")
	if b == nil {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}

// Float32s reads n float32 values.
func (r *Reader) Float32s(n int) []float32 {
	b := r.take(4*n, "float32 slice")
	if b == nil {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// Int64s reads n little-endian int64 values.
func (r *Reader) Int64s(n int) []int64 {
	b := r.take(8*n, "int64 slice")
	if b == nil {
		return nil
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out
}

// Offsets reads n CSR offsets written by AppendOffsets.
func (r *Reader) Offsets(n int) []int {
	out := make([]int, n)
	prev := 0
	for i := range out {
		d := r.Uvarint()
		if r.err != nil {
			return nil
		}
		if d > math.MaxInt32 {
			r.err = fmt.Errorf("%w: offset delta %d", streamerrors.ErrCorruptedPayload, d)
			return nil
		}
		prev += int(d)
		out[i] = prev
	}
	return out
}

// DeltaIDs reads n ids written by AppendDeltaIDs.
func (r *Reader) DeltaIDs(n int) []uint64 {
	out := make([]uint64, n)
	var prev uint64
	for i := range out {
		d := r.Uvarint()
		if r.err != nil {
			return nil
		}
		prev += d
		out[i] = prev
	}
	return out
}
