package pclod

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/pclod/pkg/formats"
)

// gridLookup numbers every cell of a w×h grid from 1.
func gridLookup(w, h int) func(x, y int) uint32 {
	return func(x, y int) uint32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return uint32(y*w + x + 1)
	}
}

func TestVisibleWindow_MoveKeepsSharedSlots(t *testing.T) {
	w := newVisibleWindow(1)
	refs := make(map[uint32]int)
	var trace []string
	acquire := func(id uint32) {
		refs[id]++
		trace = append(trace, "acquire")
	}
	release := func(id uint32) {
		refs[id]--
		trace = append(trace, "release")
	}
	lookup := gridLookup(10, 10)

	require.True(t, w.moveTo(5, 5, lookup, acquire, release))
	require.Len(t, w.zoneIDs(), 9)
	require.False(t, w.moveTo(5, 5, lookup, acquire, release))

	trace = nil
	require.True(t, w.moveTo(6, 5, lookup, acquire, release))
	require.Equal(t, []string{"acquire", "acquire", "acquire", "release", "release", "release"}, trace)
	require.Equal(t, 0, refs[lookup(4, 5)])
	require.Equal(t, 1, refs[lookup(5, 5)])
	require.Equal(t, 1, refs[lookup(7, 5)])
}

func TestVisibleWindow_RoundTripBalancesUses(t *testing.T) {
	w := newVisibleWindow(2)
	refs := make(map[uint32]int)
	acquire := func(id uint32) { refs[id]++ }
	release := func(id uint32) {
		refs[id]--
		require.GreaterOrEqual(t, refs[id], 0)
	}
	lookup := gridLookup(6, 6)

	w.moveTo(0, 0, lookup, acquire, release)
	before := make(map[uint32]int)
	for id, n := range refs {
		before[id] = n
	}

	w.moveTo(5, 5, lookup, acquire, release)
	w.moveTo(100, 100, lookup, acquire, release)
	require.Empty(t, w.zoneIDs())
	w.moveTo(0, 0, lookup, acquire, release)

	for id, n := range refs {
		require.Equal(t, before[id], n, "zone %d", id)
	}

	w.clear(release)
	for id, n := range refs {
		require.Zero(t, n, "zone %d", id)
	}
}

func TestSpatialIndex(t *testing.T) {
	h, err := formats.ParseHCLM(writeTerrain(t,
		formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0),
		formats.FlatZone(2, 2*testZoneSize, 0, testZoneSize, 4, 0, 0),
	))
	require.NoError(t, err)

	idx, err := buildSpatialIndex(h, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx.zoneAt(0, 0))
	require.Zero(t, idx.zoneAt(1, 0))
	require.Equal(t, uint32(2), idx.zoneAt(2, 0))
	require.Zero(t, idx.zoneAt(-1, 0))

	x, y := idx.cellOf(mgl32.Vec3{2*testZoneSize*2 + 1, 50, 3})
	require.Equal(t, 2, x)
	require.Equal(t, 0, y)
	x, _ = idx.cellOf(mgl32.Vec3{-0.5, 0, 0})
	require.Equal(t, -1, x)
}

func TestSpatialIndex_MixedZoneSizes(t *testing.T) {
	h, err := formats.ParseHCLM(writeTerrain(t,
		formats.FlatZone(1, 0, 0, testZoneSize, 4, 0, 0),
		formats.FlatZone(2, 2*testZoneSize, 0, 2*testZoneSize, 5, 0, 0),
	))
	require.NoError(t, err)

	_, err = buildSpatialIndex(h, 1)
	require.ErrorIs(t, err, ErrMixedZoneSizes)
}

func TestSpatialIndex_OversizedGrid(t *testing.T) {
	h := &formats.HCLM{
		ZoneSizeX: testZoneSize,
		ZoneSizeY: testZoneSize,
		Zones: []formats.ZoneHeader{{
			ID:       1,
			OriginX:  1 << 30,
			OriginY:  1 << 30,
			SizeX:    testZoneSize,
			SizeY:    testZoneSize,
			LodCount: 1,
		}},
	}
	_, err := buildSpatialIndex(h, 1)
	require.ErrorIs(t, err, ErrInvalidFormat)
	require.ErrorIs(t, err, formats.ErrInvalidZoneTable)
}

func TestChebyshev(t *testing.T) {
	require.Zero(t, chebyshev(2, 2, 2, 3, 3))
	require.Equal(t, 1, chebyshev(2, 2, 2, 4, 3))
	require.Equal(t, 3, chebyshev(2, 2, 1, 5, 0))
}

func TestCurveLevel(t *testing.T) {
	curve := []int{0, 1, 3}
	require.Equal(t, 0, curveLevel(curve, -2))
	require.Equal(t, 1, curveLevel(curve, 1))
	require.Equal(t, 3, curveLevel(curve, 9))
	require.Zero(t, curveLevel(nil, 4))
}
