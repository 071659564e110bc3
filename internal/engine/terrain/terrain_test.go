package terrain

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func flatHeightmap(t *testing.T, size int, height float32, material uint32) *Heightmap {
	t.Helper()
	n := (size + 1) * (size + 1)
	heights := make([]float32, n)
	materials := make([]uint32, n)
	for i := range heights {
		heights[i] = height
		materials[i] = material
	}
	h, err := NewHeightmap(size, heights, materials)
	require.NoError(t, err)
	return h
}

func TestNewHeightmap_SizeMismatch(t *testing.T) {
	_, err := NewHeightmap(4, make([]float32, 10), nil)
	require.Error(t, err)

	_, err = NewHeightmap(1, make([]float32, 4), make([]uint32, 3))
	require.Error(t, err)
}

func TestHeightmap_Interpolated(t *testing.T) {
	h, err := NewHeightmap(1, []float32{0, 2, 4, 6}, nil)
	require.NoError(t, err)

	require.InDelta(t, 0, h.Interpolated(0, 0), 1e-6)
	require.InDelta(t, 1, h.Interpolated(0.5, 0), 1e-6)
	require.InDelta(t, 3, h.Interpolated(0.5, 0.5), 1e-6)
	require.InDelta(t, 6, h.Interpolated(5, 5), 1e-6)
}

func TestComputeNormals_Flat(t *testing.T) {
	h := flatHeightmap(t, 4, 3, 1)
	for _, n := range h.ComputeNormals(1) {
		require.InDelta(t, 1, n.Y(), 1e-6)
	}
}

func TestComputeNormals_Slope(t *testing.T) {
	// Height rises with x, normals lean toward -X.
	h, err := NewHeightmap(2, []float32{0, 1, 2, 0, 1, 2, 0, 1, 2}, nil)
	require.NoError(t, err)
	normals := h.ComputeNormals(1)
	require.Less(t, normals[4].X(), float32(0))
	require.InDelta(t, 0, normals[4].Z(), 1e-6)
}

func TestSmoothNormals(t *testing.T) {
	// A single tilted normal in a flat field gets pulled back up.
	n := 3
	normals := make([]mgl32.Vec3, n*n)
	for i := range normals {
		normals[i] = mgl32.Vec3{0, 1, 0}
	}
	normals[4] = mgl32.Vec3{1, 0, 0}

	out := SmoothNormals(normals, n, 1)
	require.Greater(t, out[4].Y(), out[4].X())
	require.InDelta(t, 1, out[4].Len(), 1e-5)
	require.Equal(t, mgl32.Vec3{1, 0, 0}, normals[4], "input modified")

	require.Equal(t, normals, SmoothNormals(normals, n, 0))
}

func TestBuildBlock(t *testing.T) {
	h := flatHeightmap(t, 8, 2, 7)
	h.Materials[0] = 3
	normals := h.ComputeNormals(1)

	mesh, err := BuildBlock(h, normals, BlockParams{X0: 0, Y0: 0, Span: 8, Step: 2, Origin: [2]float32{16, 32}, UnitSize: 1})
	require.NoError(t, err)

	require.Len(t, mesh.Vertices, 25)
	require.Len(t, mesh.Indices, 16*6)
	require.Len(t, mesh.Groups, 2)
	require.Equal(t, uint32(3), mesh.Groups[0].MaterialID)
	require.Equal(t, int32(6), mesh.Groups[0].IndexCount)
	require.Equal(t, uint32(7), mesh.Groups[1].MaterialID)
	require.Equal(t, int32(6), mesh.Groups[1].StartIndex)

	require.Equal(t, [3]float32{16, 2, 32}, mesh.Bounds.Min)
	require.Equal(t, [3]float32{24, 2, 40}, mesh.Bounds.Max)
	require.Equal(t, [2]float32{1, 1}, mesh.Vertices[24].ColormapUV)
}

func TestBuildBlock_Invalid(t *testing.T) {
	h := flatHeightmap(t, 8, 0, 0)
	normals := h.ComputeNormals(1)

	_, err := BuildBlock(h, normals, BlockParams{Span: 8, Step: 3, UnitSize: 1})
	require.Error(t, err)

	_, err = BuildBlock(h, normals, BlockParams{X0: 4, Span: 8, Step: 1, UnitSize: 1})
	require.Error(t, err)

	_, err = BuildBlock(h, normals[:3], BlockParams{Span: 8, Step: 1, UnitSize: 1})
	require.Error(t, err)
}

func TestSweepFor(t *testing.T) {
	_, ok := SweepFor(mgl32.Vec3{0, 1, 0}, 1)
	require.False(t, ok)

	s, ok := SweepFor(mgl32.Vec3{-1, -1, 0.2}, 1)
	require.True(t, ok)
	require.Equal(t, 0, s.Axis)
	require.True(t, s.Reverse)
	require.InDelta(t, 1, s.Drop, 1e-6)

	s, ok = SweepFor(mgl32.Vec3{0, -1, 0}, 1)
	require.True(t, ok)
	require.True(t, math.IsInf(float64(s.Drop), 1))
}

func TestScanShadow_Wall(t *testing.T) {
	// A wall of height 10 at x=1 shadows samples downwind while the ray
	// loses one unit of height per sample.
	h := flatHeightmap(t, 8, 0, 0)
	for y := range 9 {
		h.Heights[y*9+1] = 10
	}
	mask, edge := ScanShadow(h, Sweep{Axis: 0, Drop: 4}, nil)

	row := mask[0:9]
	require.Equal(t, []uint8{1, 1, 0, 0, 1, 1, 1, 1, 1}, row)
	require.Len(t, edge, 9)
	require.InDelta(t, 0, edge[0], 1e-6)
}

func TestScanShadow_SeedContinuesAcrossZones(t *testing.T) {
	h := flatHeightmap(t, 4, 0, 0)
	seed := []float32{6, 6, 6, 6, 6}
	mask, edge := ScanShadow(h, Sweep{Axis: 1, Reverse: true, Drop: 2}, seed)

	// Column 0 starting at y=4 and walking toward y=0.
	col := []uint8{mask[4*5], mask[3*5], mask[2*5], mask[1*5], mask[0]}
	require.Equal(t, []uint8{0, 0, 0, 1, 1}, col)
	require.InDelta(t, 0, edge[0], 1e-6)
}

func TestShadowAverage(t *testing.T) {
	mask := []uint8{1, 0, 1, 1}
	require.InDelta(t, 0.75, ShadowAverage(mask, 2, 0, 0), 1e-6)
	require.InDelta(t, 0.75, ShadowAverage(mask, 2, 9, 9), 1e-6)
}

func TestLightFalloff(t *testing.T) {
	require.InDelta(t, 1, Attenuation(0, 10), 1e-6)
	require.Zero(t, Attenuation(10, 10))
	require.Less(t, Attenuation(5, 10), Attenuation(1, 10))

	down := mgl32.Vec3{0, -1, 0}
	require.Equal(t, float32(1), SpotFactor(down, down, 0.9, 0.8))
	require.Zero(t, SpotFactor(down, mgl32.Vec3{1, 0, 0}, 0.9, 0.8))

	require.Zero(t, Lambert(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0}))
	require.InDelta(t, 1, Lambert(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0}), 1e-6)
}
