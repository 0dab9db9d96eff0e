package sparsetile

import (
	"fmt"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	streamerrors "github.com/tamirms/sparsetile/errors"
)

// GlobalIDs is the strictly ascending union of feature ids that column
// maps are built against. Builder.Finalize takes ownership and empties it.
type GlobalIDs struct {
	ids []uint64
}

// NewGlobalIDs takes ownership of ids, which must be strictly ascending.
// The caller must not modify ids afterwards.
func NewGlobalIDs(ids []uint64) (*GlobalIDs, error) {
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			return nil, fmt.Errorf("%w: ids[%d]=%d after ids[%d]=%d",
				streamerrors.ErrUnsortedGlobalIDs, i, ids[i], i-1, ids[i-1])
		}
	}
	return &GlobalIDs{ids: ids}, nil
}

// UnionGlobalIDs returns the sorted union of the given id lists. The
// lists may be in any order and may contain duplicates.
func UnionGlobalIDs(lists ...[]uint64) *GlobalIDs {
	u := NewIDUnion()
	for _, l := range lists {
		u.Add(l)
	}
	return u.GlobalIDs()
}

// Len returns the number of ids held.
func (g *GlobalIDs) Len() int {
	return len(g.ids)
}

// IDs returns a copy of the ids.
func (g *GlobalIDs) IDs() []uint64 {
	return slices.Clone(g.ids)
}

// Position returns the 0-based position of id, if present.
func (g *GlobalIDs) Position(id uint64) (int, bool) {
	return slices.BinarySearch(g.ids, id)
}

// take hands the ids to the caller and leaves g empty.
func (g *GlobalIDs) take() []uint64 {
	ids := g.ids
	g.ids = nil
	return ids
}

// IDUnion accumulates feature ids from many blocks into a compressed
// bitmap. It is safe for concurrent use, so an AsyncBuilder result
// callback can feed it while ingestion continues.
type IDUnion struct {
	mu     sync.Mutex
	bitmap *roaring64.Bitmap
}

// NewIDUnion returns an empty union.
func NewIDUnion() *IDUnion {
	return &IDUnion{bitmap: roaring64.New()}
}

// Add merges ids into the union.
func (u *IDUnion) Add(ids []uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bitmap.AddMany(ids)
}

// Cardinality returns the number of distinct ids added so far.
func (u *IDUnion) Cardinality() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bitmap.GetCardinality()
}

// GlobalIDs returns the union as GlobalIDs. The union stays usable.
func (u *IDUnion) GlobalIDs() *GlobalIDs {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := u.bitmap.ToArray()
	if ids == nil {
		ids = []uint64{}
	}
	return &GlobalIDs{ids: ids}
}
