package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/pclod/internal/engine/texture"
	"github.com/Faultbox/pclod/pkg/formats"
)

func TestGenerate_WritesReadableTerrain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generate(genOptions{
		Dir:       dir,
		Name:      "test",
		Zones:     2,
		Size:      8,
		Lods:      3,
		Seed:      42,
		Amplitude: 20,
		Colormaps: true,
	}))

	f, err := os.Open(filepath.Join(dir, "terrain.hclm"))
	require.NoError(t, err)
	defer f.Close()

	h, err := formats.ParseHCLM(f)
	require.NoError(t, err)
	require.Equal(t, "test", h.Name)
	require.Len(t, h.Zones, 4)
	w, hh := h.GridSize()
	require.Equal(t, 2, w)
	require.Equal(t, 2, hh)

	// Zones 1 and 2 are horizontal neighbours and share an edge column.
	west, err := formats.ReadZonePayload(f, h.Zones[0])
	require.NoError(t, err)
	east, err := formats.ReadZonePayload(f, h.Zones[1])
	require.NoError(t, err)
	const n = 9
	for y := range n {
		require.Equal(t, west.Heights[y*n+n-1], east.Heights[y*n], "row %d", y)
	}
	for _, v := range west.Heights {
		require.GreaterOrEqual(t, v, west.MinAltitude)
		require.LessOrEqual(t, v, west.MaxAltitude)
		require.LessOrEqual(t, v, float32(20))
	}

	m, err := os.Open(filepath.Join(dir, "terrain.tclm"))
	require.NoError(t, err)
	defer m.Close()
	entries, err := formats.ParseTCLM(m)
	require.NoError(t, err)
	require.Len(t, entries, len(genMaterials))

	for _, e := range entries {
		path := filepath.Join(dir, "materials", e.Path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		img, err := texture.Decode(path, data)
		require.NoError(t, err, e.Path)
		require.Equal(t, 32, img.Bounds().Dx())
	}

	for _, z := range h.Zones {
		_, err := os.Stat(filepath.Join(dir, "colormaps", strconv.FormatUint(uint64(z.ID), 10)+".bmp"))
		require.NoError(t, err)
	}

	_, err = os.Stat(filepath.Join(dir, "terrainview.yaml"))
	require.NoError(t, err)
}

func TestGenerate_Deterministic(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	opts := genOptions{Zones: 1, Size: 4, Lods: 2, Seed: 7, Amplitude: 10}

	opts.Dir = a
	require.NoError(t, generate(opts))
	opts.Dir = b
	require.NoError(t, generate(opts))

	da, err := os.ReadFile(filepath.Join(a, "terrain.hclm"))
	require.NoError(t, err)
	db, err := os.ReadFile(filepath.Join(b, "terrain.hclm"))
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestGenerate_InvalidOptions(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, generate(genOptions{Dir: dir, Zones: 0, Size: 8, Lods: 1}))
	require.Error(t, generate(genOptions{Dir: dir, Zones: 1, Size: 6, Lods: 1}))
	require.Error(t, generate(genOptions{Dir: dir, Zones: 1, Size: 8, Lods: 0}))
}

func TestHeightField_MaterialBands(t *testing.T) {
	f := newHeightField(1, 100)
	require.Equal(t, uint32(1), f.materialFor(10))
	require.Equal(t, uint32(2), f.materialFor(50))
	require.Equal(t, uint32(3), f.materialFor(90))
}
