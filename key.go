package sparsetile

import (
	"strconv"
	"strings"
)

// Stored keys are "{prefix}{block}_{kind}", e.g. "3_data", "3_colmap"
// and "3_pos" for block 3 with no prefix.

// DataKey returns the key a block's tile is stored under.
func DataKey(prefix string, block int) string {
	return blobKey(prefix, block, kindTile)
}

// ColumnMapKey returns the key a block's column map is stored under.
func ColumnMapKey(prefix string, block int) string {
	return blobKey(prefix, block, kindColumnMap)
}

// PositionsKey returns the key a block's positions are stored under.
func PositionsKey(prefix string, block int) string {
	return blobKey(prefix, block, kindPositions)
}

func blobKey(prefix string, block int, kind payloadKind) string {
	return prefix + strconv.Itoa(block) + "_" + kind.String()
}

// parseBlobKey is the inverse of blobKey. It reports false for names
// that do not belong to prefix or carry a different kind.
func parseBlobKey(prefix, name string, kind payloadKind) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	num, ok := strings.CutSuffix(rest, "_"+kind.String())
	if !ok || num == "" {
		return 0, false
	}
	for _, c := range num {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	block, err := strconv.Atoi(num)
	if err != nil || strconv.Itoa(block) != num {
		return 0, false
	}
	return block, true
}
