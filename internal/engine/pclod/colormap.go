package pclod

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/texture"
)

// Colormap is the per-zone base color texture.
type Colormap struct {
	lifecycle
	zone *TopZone

	// Refresh goroutine state.
	lod          int
	generatedLod int
	source       *image.RGBA
	sourceRead   bool

	// Shared with the main goroutine under the manager lock.
	pending *image.RGBA
	texture gpu.TextureID
}

func newColormap(z *TopZone, instance uint64, lod int) *Colormap {
	return &Colormap{
		lifecycle:    lifecycle{kind: KindColormap, id: z.ID(), instance: instance},
		zone:         z,
		lod:          lod,
		generatedLod: -1,
	}
}

// findColormapFile looks for <dir>/<zoneId> with one of the known image extensions.
func findColormapFile(dir string, zoneID uint32) (string, bool) {
	if dir == "" {
		return "", false
	}
	base := filepath.Join(dir, strconv.FormatUint(uint64(zoneID), 10))
	for _, ext := range texture.Extensions {
		if st, err := os.Stat(base + ext); err == nil && !st.IsDir() {
			return base + ext, true
		}
	}
	return "", false
}

// readColormapSource decodes the colormap file of a zone. It returns nil
// without error when the zone has no file.
func readColormapSource(dir string, zoneID uint32) (*image.RGBA, error) {
	path, ok := findColormapFile(dir, zoneID)
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading colormap %s: %w", path, err)
	}
	return texture.Decode(path, data)
}

// generateColormap paints every texel with the average color of the
// material under it. averages must hold the null material.
func generateColormap(z *TopZone, lod int, averages func(id uint32) color.RGBA) (*image.RGBA, bool) {
	hm, _ := z.Heightmap()
	if hm == nil {
		return nil, false
	}
	res := textureResolution(hm.Size, lod)
	scale := float32(hm.Size) / float32(res)
	img := image.NewRGBA(image.Rect(0, 0, res, res))
	for ty := range res {
		y := int((float32(ty) + 0.5) * scale)
		for tx := range res {
			x := int((float32(tx) + 0.5) * scale)
			img.SetRGBA(tx, ty, averages(hm.MaterialAt(x, y)))
		}
	}
	return img, true
}
