// Package gpu defines the graphics services the terrain engine consumes.
// Every Device method must be called from the goroutine that owns the
// graphics context.
package gpu

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/pclod/internal/engine/terrain"
)

// TextureID identifies a texture created by a Device. Zero means none.
type TextureID uint32

// MeshID identifies a mesh created by a Device. Zero means none.
type MeshID uint32

// TextureOptions controls sampling of a new texture.
type TextureOptions struct {
	Repeat  bool // wrap instead of clamping to edge
	Mipmaps bool
}

// FrameState is shared by every draw call of a frame.
type FrameState struct {
	ViewProj  mgl32.Mat4
	CameraPos mgl32.Vec3
	Wireframe bool
}

// DrawCall binds the textures used to draw one terrain mesh.
type DrawCall struct {
	Colormap TextureID
	Lightmap TextureID
	// Materials is aligned with the mesh groups, zero entries fall back
	// to the colormap alone.
	Materials []TextureID
	// DetailScale is the number of material texture repeats across the mesh.
	DetailScale float32
}

// Device is the set of graphics operations the terrain needs.
type Device interface {
	BeginFrame(state FrameState)
	CreateMesh(mesh *terrain.Mesh) (MeshID, error)
	DeleteMesh(id MeshID)
	DrawMesh(id MeshID, call DrawCall)
	CreateTexture(img *image.RGBA, opts TextureOptions) (TextureID, error)
	UpdateTexture(id TextureID, img *image.RGBA) error
	DeleteTexture(id TextureID)
}
