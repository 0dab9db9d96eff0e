package sparsetile

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	streamerrors "github.com/tamirms/sparsetile/errors"
)

func TestNewGlobalIDs(t *testing.T) {
	g, err := NewGlobalIDs([]uint64{3, 8, 1 << 63})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	pos, ok := g.Position(8)
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
	_, ok = g.Position(4)
	assert.False(t, ok)

	ids := g.IDs()
	ids[0] = 99
	assert.Equal(t, []uint64{3, 8, 1 << 63}, g.IDs())

	g, err = NewGlobalIDs(nil)
	require.NoError(t, err)
	assert.Zero(t, g.Len())

	_, err = NewGlobalIDs([]uint64{1, 1})
	assert.ErrorIs(t, err, streamerrors.ErrUnsortedGlobalIDs)
	_, err = NewGlobalIDs([]uint64{2, 1})
	assert.ErrorIs(t, err, streamerrors.ErrUnsortedGlobalIDs)
}

func TestUnionGlobalIDs(t *testing.T) {
	g := UnionGlobalIDs([]uint64{5, 1, 5}, nil, []uint64{1 << 62, 2}, []uint64{2})
	assert.Equal(t, []uint64{1, 2, 5, 1 << 62}, g.IDs())

	assert.Zero(t, UnionGlobalIDs().Len())
}

func TestIDUnionConcurrentAdd(t *testing.T) {
	rng := newTestRNG(t)
	lists := make([][]uint64, 16)
	var want []uint64
	for i := range lists {
		for range 500 {
			id := rng.Uint64()
			lists[i] = append(lists[i], id)
			want = append(want, id)
		}
		// Overlap with the previous list.
		if i > 0 {
			lists[i] = append(lists[i], lists[i-1][:50]...)
		}
	}
	slices.Sort(want)
	want = slices.Compact(want)

	u := NewIDUnion()
	var wg sync.WaitGroup
	for _, l := range lists {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Add(l)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(len(want)), u.Cardinality())
	assert.Equal(t, want, u.GlobalIDs().IDs())

	// Taking a snapshot leaves the union usable.
	u.Add([]uint64{0})
	assert.Equal(t, uint64(len(want)+1), u.Cardinality())
}

func TestGlobalIDsConsumedByFinalize(t *testing.T) {
	b, _ := newMemoryBuilder(t)
	u := NewIDUnion()
	ids, _, err := b.Ingest(csrBlock([]uint64{1, 2}), WantIDs)
	require.NoError(t, err)
	u.Add(ids)

	g := u.GlobalIDs()
	require.Equal(t, 2, g.Len())
	_, err = b.Finalize(g, nil)
	require.NoError(t, err)
	assert.Zero(t, g.Len())
	assert.Empty(t, g.IDs())
	assert.Equal(t, uint64(2), u.Cardinality(), "the union itself is not consumed")
}
