package pclod

import (
	"image"
	"image/color"
	"os"

	"github.com/Faultbox/pclod/internal/engine/gpu"
	"github.com/Faultbox/pclod/internal/engine/texture"
)

// NullMaterial is the id of the built-in flat material.
const NullMaterial uint32 = 0

var nullMaterialColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Material is a detail texture listed in the manifest. Materials are
// unloaded when unused but stay registered for the life of the terrain.
type Material struct {
	lifecycle
	path string

	// Refresh goroutine state.
	decoded bool
	average color.RGBA

	// Shared with the main goroutine under the manager lock.
	pending *image.RGBA
	texture gpu.TextureID
}

func newMaterial(id uint32, path string, instance uint64) *Material {
	return &Material{
		lifecycle: lifecycle{kind: KindMaterial, id: id, instance: instance, state: StateUnloaded},
		path:      path,
		average:   nullMaterialColor,
	}
}

// Path returns the image file of the material, empty for the null material.
func (m *Material) Path() string { return m.path }

// decodeMaterial reads the material image. The null material is a flat swatch.
func decodeMaterial(path string) (*image.RGBA, error) {
	if path == "" {
		return texture.Solid(4, 4, nullMaterialColor), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return texture.Decode(path, data)
}
