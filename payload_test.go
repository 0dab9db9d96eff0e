package sparsetile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/sparsetile/errors"
	"github.com/tamirms/sparsetile/internal/encoding"
)

// =============================================================================
// Frames
// =============================================================================

func TestFrameRoundTrip(t *testing.T) {
	rng := newTestRNG(t)
	random := make([]byte, 4096)
	for i := range random {
		random[i] = byte(rng.Uint32())
	}
	bodies := map[string][]byte{
		"empty":        {},
		"zeros":        make([]byte, 1<<16),
		"random":       random,
		"repetitive":   bytes.Repeat([]byte("feature"), 1000),
		"single-bytes": {42},
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		for name, body := range bodies {
			t.Run(fmt.Sprintf("%v/%s", c, name), func(t *testing.T) {
				frame, err := encodeFrame(kindColumnMap, body, c)
				require.NoError(t, err)

				h, err := decodeHeader(frame)
				require.NoError(t, err)
				assert.Equal(t, kindColumnMap, h.Kind)
				assert.Equal(t, uint64(len(body)), h.RawLen)
				assert.Equal(t, uint64(len(frame)-headerSize), h.StoredLen)

				got, err := decodeFrame(frame, kindColumnMap)
				require.NoError(t, err)
				assert.Equal(t, len(body), len(got))
				assert.True(t, bytes.Equal(body, got))
			})
		}
	}
}

func TestFrameStoresIncompressibleBodiesRaw(t *testing.T) {
	rng := newTestRNG(t)
	random := make([]byte, 8192)
	for i := range random {
		random[i] = byte(rng.Uint32())
	}
	zeros := make([]byte, 8192)

	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		frame, err := encodeFrame(kindTile, random, c)
		require.NoError(t, err)
		assert.Equal(t, byte(CompressionNone), frame[7], "%v", c)
		assert.Len(t, frame, headerSize+len(random))

		frame, err = encodeFrame(kindTile, zeros, c)
		require.NoError(t, err)
		assert.Equal(t, byte(c), frame[7], "%v", c)
		assert.Less(t, len(frame), headerSize+len(zeros)/10)
	}
}

func TestFrameKeepsExpansionDecodable(t *testing.T) {
	// An all -1 column map is a run of 0xFF bytes.
	colmap := make([]int64, 20_000)
	for i := range colmap {
		colmap[i] = -1
	}
	bodies := [][]byte{make([]byte, 1<<20), encodeColumnMap(colmap)}

	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		for _, body := range bodies {
			frame, err := encodeFrame(kindColumnMap, body, c)
			require.NoError(t, err)
			h, err := decodeHeader(frame)
			require.NoError(t, err)
			assert.LessOrEqual(t, h.RawLen, h.StoredLen*maxExpansion, "%v", c)

			got, err := decodeFrame(frame, kindColumnMap)
			require.NoError(t, err, "%v", c)
			assert.True(t, bytes.Equal(body, got))
		}
	}
}

func TestFrameRejectsCorruption(t *testing.T) {
	body := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 100)
	fresh := func(c Compression) []byte {
		frame, err := encodeFrame(kindTile, body, c)
		require.NoError(t, err)
		return frame
	}

	tests := []struct {
		name   string
		mutate func() []byte
		want   error
	}{
		{"ShortHeader", func() []byte { return fresh(CompressionNone)[:headerSize-1] }, streamerrors.ErrTruncatedPayload},
		{"BadMagic", func() []byte {
			f := fresh(CompressionNone)
			f[0] ^= 0xFF
			return f
		}, streamerrors.ErrInvalidMagic},
		{"BadVersion", func() []byte {
			f := fresh(CompressionNone)
			binary.LittleEndian.PutUint16(f[4:6], version+1)
			return f
		}, streamerrors.ErrInvalidVersion},
		{"UnknownCodec", func() []byte {
			f := fresh(CompressionNone)
			f[7] = 9
			return f
		}, streamerrors.ErrUnknownCodec},
		{"RawLengthMismatch", func() []byte {
			f := fresh(CompressionNone)
			binary.LittleEndian.PutUint64(f[8:16], uint64(len(body)+1))
			return f
		}, streamerrors.ErrCorruptedPayload},
		{"KindMismatch", func() []byte {
			f := fresh(CompressionNone)
			f[6] = byte(kindPositions)
			return f
		}, streamerrors.ErrKindMismatch},
		{"TruncatedBody", func() []byte {
			f := fresh(CompressionNone)
			return f[:len(f)-1]
		}, streamerrors.ErrTruncatedPayload},
		{"FlippedBodyByte", func() []byte {
			f := fresh(CompressionNone)
			f[len(f)-1] ^= 0x01
			return f
		}, streamerrors.ErrChecksumFailed},
		{"FlippedChecksum", func() []byte {
			f := fresh(CompressionZSTD)
			f[24] ^= 0x01
			return f
		}, streamerrors.ErrChecksumFailed},
		{"ExcessiveExpansion", func() []byte {
			f := fresh(CompressionLZ4)
			require.Equal(t, byte(CompressionLZ4), f[7])
			stored := binary.LittleEndian.Uint64(f[16:24])
			binary.LittleEndian.PutUint64(f[8:16], stored*maxExpansion+1)
			return f
		}, streamerrors.ErrCorruptedPayload},
		{"WrongRawLength", func() []byte {
			f := fresh(CompressionZSTD)
			require.Equal(t, byte(CompressionZSTD), f[7])
			binary.LittleEndian.PutUint64(f[8:16], uint64(len(body)-1))
			return f
		}, streamerrors.ErrCorruptedPayload},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeFrame(tc.mutate(), kindTile)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

// =============================================================================
// Bodies
// =============================================================================

func TestTileBodyRoundTrip(t *testing.T) {
	tiles := map[string]*Tile{
		"RowMajorLabeled": {
			Offset: []int{0, 2, 2, 3}, Index: []uint32{0, 1, 1},
			Label: []float32{1, 0, 1}, NumRows: 3, NumCols: 2,
		},
		"ColumnMajorWeighted": {
			Offset: []int{0, 1, 3}, Index: []uint32{0, 0, 2},
			Value: []float32{0.5, 2, 3}, NumRows: 3, NumCols: 2, ColumnMajor: true,
		},
		"Empty": {Offset: []int{0}, Index: []uint32{}},
		"EmptyWeighted": {
			Offset: []int{0, 0}, Index: []uint32{}, Value: []float32{},
			Label: []float32{7}, NumRows: 1,
		},
	}
	for name, tile := range tiles {
		t.Run(name, func(t *testing.T) {
			got, err := decodeTile(encodeTile(tile))
			require.NoError(t, err)
			assert.Equal(t, tile, got)
		})
	}
}

func TestTileBodyRejectsGarbage(t *testing.T) {
	valid := encodeTile(&Tile{Offset: []int{0, 1}, Index: []uint32{0}, Label: []float32{1}, NumRows: 1, NumCols: 1})

	tileHeader := func(rows, cols, flags uint64) []byte {
		buf := encoding.AppendUvarint(nil, rows)
		buf = encoding.AppendUvarint(buf, cols)
		return encoding.AppendUvarint(buf, flags)
	}

	tests := []struct {
		name string
		body []byte
		want error
	}{
		{"Empty", nil, streamerrors.ErrTruncatedPayload},
		{"TrailingBytes", append(valid, 0), streamerrors.ErrCorruptedPayload},
		{"Truncated", valid[:len(valid)-1], streamerrors.ErrTruncatedPayload},
		{"UnknownFlags", append(tileHeader(0, 0, 8), 0, 0), streamerrors.ErrCorruptedPayload},
		{"HugeShape", tileHeader(math.MaxUint64, 1, 0), streamerrors.ErrCorruptedPayload},
		{"OffsetsBeyondBody", tileHeader(1000, 1, 0), streamerrors.ErrTruncatedPayload},
		{"HugeNNZ", encoding.AppendUvarint(encoding.AppendOffsets(tileHeader(0, 0, 0), []int{0}), 1<<40), streamerrors.ErrCorruptedPayload},
		{"IndexOutOfRange", encodeTile(&Tile{Offset: []int{0, 1}, Index: []uint32{3}, NumRows: 1, NumCols: 1}), streamerrors.ErrCorruptedPayload},
		{"OffsetsDoNotSpan", encodeTile(&Tile{Offset: []int{0, 0}, Index: []uint32{0}, NumRows: 1, NumCols: 1}), streamerrors.ErrCorruptedPayload},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeTile(tc.body)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestColumnMapBody(t *testing.T) {
	for _, colmap := range [][]int64{{}, {1, 3, -1}, {-1, -1}, {0, math.MaxInt64}} {
		got, err := decodeColumnMap(encodeColumnMap(colmap))
		require.NoError(t, err)
		assert.Equal(t, colmap, got)
	}

	body := encodeColumnMap([]int64{1, 2})
	_, err := decodeColumnMap(body[:len(body)-3])
	assert.ErrorIs(t, err, streamerrors.ErrCorruptedPayload)
	_, err = decodeColumnMap(append(body, 1))
	assert.ErrorIs(t, err, streamerrors.ErrCorruptedPayload)
}

func TestPositionsBody(t *testing.T) {
	positions := []Range{{0, 0}, {0, 2}, {2, 5}, {5, 5}, {1 << 40, 1<<40 + 3}}
	got, err := decodePositions(encodePositions(positions))
	require.NoError(t, err)
	assert.Equal(t, positions, got)

	got, err = decodePositions(encodePositions(nil))
	require.NoError(t, err)
	assert.Empty(t, got)

	overflow := encoding.AppendUvarint(nil, 1)
	overflow = encoding.AppendUvarint(overflow, math.MaxUint64)
	overflow = encoding.AppendUvarint(overflow, 1)
	_, err = decodePositions(overflow)
	assert.ErrorIs(t, err, streamerrors.ErrCorruptedPayload)
}

// =============================================================================
// Keys
// =============================================================================

func TestBlobKeys(t *testing.T) {
	assert.Equal(t, "3_data", DataKey("", 3))
	assert.Equal(t, "3_colmap", ColumnMapKey("", 3))
	assert.Equal(t, "3_pos", PositionsKey("", 3))
	assert.Equal(t, "run/12_data", DataKey("run/", 12))

	tests := []struct {
		prefix, name string
		kind         payloadKind
		want         int
		ok           bool
	}{
		{"", "0_data", kindTile, 0, true},
		{"", "17_colmap", kindColumnMap, 17, true},
		{"run/", "run/4_pos", kindPositions, 4, true},
		{"", "4_pos", kindTile, 0, false},
		{"run/", "4_data", kindTile, 0, false},
		{"", "_data", kindTile, 0, false},
		{"", "07_data", kindTile, 0, false},
		{"", "-1_data", kindTile, 0, false},
		{"", "1a_data", kindTile, 0, false},
		{"", "99999999999999999999999_data", kindTile, 0, false},
	}
	for _, tc := range tests {
		got, ok := parseBlobKey(tc.prefix, tc.name, tc.kind)
		assert.Equal(t, tc.ok, ok, "%q", tc.name)
		assert.Equal(t, tc.want, got, "%q", tc.name)
	}
}
