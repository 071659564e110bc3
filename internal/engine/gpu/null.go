package gpu

import (
	"fmt"
	"image"
	"sync"

	"github.com/Faultbox/pclod/internal/engine/terrain"
)

// NullDevice is a headless Device. It keeps track of live objects so that
// leaks show up in tests and in headless runs.
type NullDevice struct {
	mu       sync.Mutex
	next     uint32
	textures map[TextureID][2]int
	meshes   map[MeshID]int
	draws    int
	frames   int
	uploads  int
}

// NewNullDevice creates an empty headless device.
func NewNullDevice() *NullDevice {
	return &NullDevice{
		textures: make(map[TextureID][2]int),
		meshes:   make(map[MeshID]int),
	}
}

func (d *NullDevice) BeginFrame(FrameState) {
	d.mu.Lock()
	d.frames++
	d.mu.Unlock()
}

func (d *NullDevice) CreateMesh(mesh *terrain.Mesh) (MeshID, error) {
	if mesh == nil || len(mesh.Vertices) == 0 {
		return 0, fmt.Errorf("empty mesh")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	id := MeshID(d.next)
	d.meshes[id] = len(mesh.Indices)
	return id, nil
}

func (d *NullDevice) DeleteMesh(id MeshID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.meshes[id]; !ok {
		panic(fmt.Sprintf("gpu: delete of unknown mesh %d", id))
	}
	delete(d.meshes, id)
}

func (d *NullDevice) DrawMesh(id MeshID, _ DrawCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.meshes[id]; !ok {
		panic(fmt.Sprintf("gpu: draw of unknown mesh %d", id))
	}
	d.draws++
}

func (d *NullDevice) CreateTexture(img *image.RGBA, _ TextureOptions) (TextureID, error) {
	if img == nil || img.Bounds().Empty() {
		return 0, fmt.Errorf("empty texture")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	id := TextureID(d.next)
	d.textures[id] = [2]int{img.Bounds().Dx(), img.Bounds().Dy()}
	d.uploads++
	return id, nil
}

func (d *NullDevice) UpdateTexture(id TextureID, img *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[id]; !ok {
		return fmt.Errorf("update of unknown texture %d", id)
	}
	d.textures[id] = [2]int{img.Bounds().Dx(), img.Bounds().Dy()}
	d.uploads++
	return nil
}

func (d *NullDevice) DeleteTexture(id TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[id]; !ok {
		panic(fmt.Sprintf("gpu: delete of unknown texture %d", id))
	}
	delete(d.textures, id)
}

// LiveTextures returns the number of textures not yet deleted.
func (d *NullDevice) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

// LiveMeshes returns the number of meshes not yet deleted.
func (d *NullDevice) LiveMeshes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.meshes)
}

// TextureSize returns the dimensions of a live texture.
func (d *NullDevice) TextureSize(id TextureID) (w, h int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.textures[id]
	return s[0], s[1], ok
}

// Draws returns the number of DrawMesh calls so far.
func (d *NullDevice) Draws() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws
}

// Uploads returns the number of texture uploads so far.
func (d *NullDevice) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}
