package sparsetile

import (
	"encoding/binary"
	"fmt"

	streamerrors "github.com/tamirms/sparsetile/errors"
)

const (
	// magic number for stored payloads: "SPTL" in little-endian
	magic = uint32(0x4C545053)

	// version is the current frame format version
	version = uint16(0x0001)

	// headerSize is the exact size of the serialized frame header (32 bytes)
	headerSize = 32
)

// payloadKind says what a frame body holds.
type payloadKind uint8

const (
	kindTile payloadKind = iota + 1
	kindColumnMap
	kindPositions
)

func (k payloadKind) String() string {
	switch k {
	case kindTile:
		return "data"
	case kindColumnMap:
		return "colmap"
	case kindPositions:
		return "pos"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// header is the 32-byte frame header that precedes every stored payload.
//
// Layout:
//
//	Offset  Size  Field        Type
//	0       4     Magic        0x4C545053 ("SPTL")
//	4       2     Version      0x0001
//	6       1     Kind         uint8 (1=tile, 2=colmap, 3=positions)
//	7       1     Compression  uint8 (0=none, 1=lz4, 2=zstd)
//	8       8     RawLen       uint64_le (body length before compression)
//	16      8     StoredLen    uint64_le (body length as stored)
//	24      8     Checksum     uint64_le (xxHash64 of the raw body)
//
// Compression records what was actually applied; a body that did not
// shrink is stored raw with Compression 0.
type header struct {
	Magic       uint32
	Version     uint16
	Kind        payloadKind
	Compression Compression
	RawLen      uint64
	StoredLen   uint64
	Checksum    uint64
}

// encodeTo serializes the header to an existing buffer.
func (h *header) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = uint8(h.Kind)
	buf[7] = uint8(h.Compression)
	binary.LittleEndian.PutUint64(buf[8:16], h.RawLen)
	binary.LittleEndian.PutUint64(buf[16:24], h.StoredLen)
	binary.LittleEndian.PutUint64(buf[24:32], h.Checksum)
}

// decodeHeader parses a 32-byte header.
func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < headerSize {
		return nil, streamerrors.ErrTruncatedPayload
	}

	h := &header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Kind:        payloadKind(buf[6]),
		Compression: Compression(buf[7]),
		RawLen:      binary.LittleEndian.Uint64(buf[8:16]),
		StoredLen:   binary.LittleEndian.Uint64(buf[16:24]),
		Checksum:    binary.LittleEndian.Uint64(buf[24:32]),
	}

	if h.Magic != magic {
		return nil, streamerrors.ErrInvalidMagic
	}
	if h.Version != version {
		return nil, streamerrors.ErrInvalidVersion
	}
	if h.Compression > CompressionZSTD {
		return nil, streamerrors.ErrUnknownCodec
	}
	if h.Compression == CompressionNone && h.RawLen != h.StoredLen {
		return nil, streamerrors.ErrCorruptedPayload
	}

	return h, nil
}
